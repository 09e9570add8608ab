package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates all domain event types.
type EventType string

const (
	EventPunishmentApplied   EventType = "warden.punishment.applied"
	EventPunishmentRevoked   EventType = "warden.punishment.revoked"
	EventPunishmentScheduled EventType = "warden.punishment.scheduled"
	EventPunishmentEscalated EventType = "warden.punishment.escalated"
	EventWarningDecayed      EventType = "warden.warning.decayed"
	EventAppealSubmitted     EventType = "warden.appeal.submitted"
	EventAppealResolved      EventType = "warden.appeal.resolved"
)

// AggregateType enumerates the aggregate root types for outbox events.
type AggregateType string

const (
	AggregatePunishment AggregateType = "punishment"
	AggregateSchedule   AggregateType = "schedule"
	AggregateAppeal     AggregateType = "appeal"
)

// OutboxDraft is the payload written to the warden_outbox table.
// SeqID is assigned by the store and only set on fetched rows.
type OutboxDraft struct {
	SeqID         int64           `json:"-"`
	EventID       uuid.UUID       `json:"eventId"`
	AggregateType AggregateType   `json:"aggregateType"`
	AggregateID   string          `json:"aggregateId"`
	EventType     EventType       `json:"eventType"`
	PartitionKey  string          `json:"partitionKey"`
	Headers       json.RawMessage `json:"headers"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurredAt"`
}

// AuditEntry is a persisted row of warden_audit_log.
type AuditEntry struct {
	ID          int64           `json:"id"`
	EventID     uuid.UUID       `json:"event_id"`
	EventType   EventType       `json:"event_type"`
	AggregateID string          `json:"aggregate_id"`
	Payload     json.RawMessage `json:"payload"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// AuditFromDraft converts a published outbox event into an audit row.
func AuditFromDraft(d OutboxDraft) AuditEntry {
	return AuditEntry{
		EventID:     d.EventID,
		EventType:   d.EventType,
		AggregateID: d.AggregateID,
		Payload:     d.Payload,
		OccurredAt:  d.OccurredAt,
	}
}
