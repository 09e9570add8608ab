package domain

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
)

func newDraft(agg AggregateType, aggID string, evt EventType, key string, payload any, at time.Time) OutboxDraft {
	body, _ := json.Marshal(payload)
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: agg,
		AggregateID:   aggID,
		EventType:     evt,
		PartitionKey:  key,
		Headers:       json.RawMessage(`{}`),
		Payload:       body,
		OccurredAt:    at,
	}
}

// NewPunishmentAppliedEvent creates the lifecycle event for a freshly written punishment.
func NewPunishmentAppliedEvent(p *Punishment, at time.Time) OutboxDraft {
	return newDraft(AggregatePunishment, p.PublicID, EventPunishmentApplied, p.TargetUUID.String(), p, at)
}

// NewPunishmentRevokedEvent creates the event emitted when an active punishment is lifted.
func NewPunishmentRevokedEvent(publicID string, target uuid.UUID, t PunishmentType, by Staff, at time.Time) OutboxDraft {
	return newDraft(AggregatePunishment, publicID, EventPunishmentRevoked, target.String(), map[string]string{
		"punishment_id":   publicID,
		"uuid":            target.String(),
		"type":            string(t),
		"removed_by_name": by.Name,
	}, at)
}

// NewPunishmentScheduledEvent creates the event for a deferred punishment.
func NewPunishmentScheduledEvent(sp *ScheduledPunishment, at time.Time) OutboxDraft {
	evt := EventPunishmentScheduled
	if sp.EscalationLevel > 0 {
		evt = EventPunishmentEscalated
	}
	return newDraft(AggregateSchedule, strconv.FormatInt(sp.ID, 10), evt, sp.TargetUUID.String(), sp, at)
}

// NewWarningDecayedEvent creates the event for a warning removed by the decay sweep.
func NewWarningDecayedEvent(m PunishmentMetadata, at time.Time) OutboxDraft {
	return newDraft(AggregatePunishment, m.PublicID, EventWarningDecayed, m.TargetUUID.String(), m, at)
}

// NewAppealEvent creates an appeal lifecycle event.
func NewAppealEvent(a *Appeal, at time.Time) OutboxDraft {
	evt := EventAppealSubmitted
	if a.Status != AppealPending {
		evt = EventAppealResolved
	}
	return newDraft(AggregateAppeal, strconv.FormatInt(a.ID, 10), evt, a.UUID.String(), a, at)
}
