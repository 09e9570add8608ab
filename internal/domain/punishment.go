package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Permanent is the ExpiresAt / DurationSeconds sentinel for punishments that never expire.
const Permanent int64 = -1

// PunishmentType classifies a punishment record.
type PunishmentType string

const (
	TypeBan       PunishmentType = "ban"
	TypeTempBan   PunishmentType = "tempban"
	TypeMute      PunishmentType = "mute"
	TypeTempMute  PunishmentType = "tempmute"
	TypeWarn      PunishmentType = "warn"
	TypeKick      PunishmentType = "kick"
	TypeIPBan     PunishmentType = "ipban"
	TypeVoiceMute PunishmentType = "voicemute"
)

// AllPunishmentTypes returns every known punishment type.
func AllPunishmentTypes() []PunishmentType {
	return []PunishmentType{TypeBan, TypeTempBan, TypeMute, TypeTempMute, TypeWarn, TypeKick, TypeIPBan, TypeVoiceMute}
}

// ParsePunishmentType converts a stored or user-supplied name into a PunishmentType.
func ParsePunishmentType(s string) (PunishmentType, bool) {
	for _, t := range AllPunishmentTypes() {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// IsBanClass reports whether the type prevents connection.
func (t PunishmentType) IsBanClass() bool {
	return t == TypeBan || t == TypeTempBan || t == TypeIPBan
}

// IsMuteClass reports whether the type suppresses chat.
func (t PunishmentType) IsMuteClass() bool {
	return t == TypeMute || t == TypeTempMute
}

// IsTemporary reports whether the type requires a positive duration.
func (t PunishmentType) IsTemporary() bool {
	return t == TypeTempBan || t == TypeTempMute
}

// Table is the storage bucket a punishment type is persisted in.
type Table string

const (
	TableBans       Table = "litebans_bans"
	TableMutes      Table = "litebans_mutes"
	TableWarnings   Table = "litebans_warnings"
	TableKicks      Table = "litebans_kicks"
	TableVoiceMutes Table = "warden_voice_mutes"
)

// AllTables returns every punishment table in a stable order.
func AllTables() []Table {
	return []Table{TableBans, TableMutes, TableWarnings, TableKicks, TableVoiceMutes}
}

// Table returns the storage table for the type.
func (t PunishmentType) Table() Table {
	switch t {
	case TypeBan, TypeTempBan, TypeIPBan:
		return TableBans
	case TypeMute, TypeTempMute:
		return TableMutes
	case TypeWarn:
		return TableWarnings
	case TypeKick:
		return TableKicks
	default:
		return TableVoiceMutes
	}
}

// TypeFromRow reconstructs the punishment type of a stored row. The shared table
// shape has no type column, so bans and mutes are told apart by until and ipban.
func TypeFromRow(table Table, until int64, ipban bool) PunishmentType {
	switch table {
	case TableBans:
		if ipban {
			return TypeIPBan
		}
		if until <= 0 {
			return TypeBan
		}
		return TypeTempBan
	case TableMutes:
		if until <= 0 {
			return TypeMute
		}
		return TypeTempMute
	case TableWarnings:
		return TypeWarn
	case TableKicks:
		return TypeKick
	default:
		return TypeVoiceMute
	}
}

// Punishment is an immutable moderation decision record.
// CreatedAt, ExpiresAt and RemovedAt are unix milliseconds.
type Punishment struct {
	ID           int64          `json:"id"`
	PublicID     string         `json:"punishment_id"`
	Type         PunishmentType `json:"type"`
	TargetUUID   uuid.UUID      `json:"uuid"`
	TargetName   string         `json:"name"`
	TargetIP     string         `json:"ip,omitempty"`
	Reason       string         `json:"reason"`
	StaffUUID    *uuid.UUID     `json:"banned_by_uuid,omitempty"`
	StaffName    string         `json:"banned_by_name"`
	ServerOrigin string         `json:"server_origin"`
	CreatedAt    int64          `json:"time"`
	ExpiresAt    int64          `json:"until"`
	Silent       bool           `json:"silent"`
	IPScoped     bool           `json:"ipban"`
	Active       bool           `json:"active"`

	RemovedByUUID *uuid.UUID `json:"removed_by_uuid,omitempty"`
	RemovedByName string     `json:"removed_by_name,omitempty"`
	RemovedAt     *time.Time `json:"removed_by_date,omitempty"`
}

// IsPermanent reports whether the punishment never expires.
func (p *Punishment) IsPermanent() bool {
	return p.ExpiresAt <= 0
}

// IsExpired reports whether a temporary punishment has run out at now (unix ms).
func (p *Punishment) IsExpired(now int64) bool {
	return !p.IsPermanent() && now > p.ExpiresAt
}

// Remaining returns the time left at now, zero for expired or permanent punishments.
func (p *Punishment) Remaining(now int64) time.Duration {
	if p.IsPermanent() || now >= p.ExpiresAt {
		return 0
	}
	return time.Duration(p.ExpiresAt-now) * time.Millisecond
}

// IsInEffect reports whether the record is active and not yet expired.
func (p *Punishment) IsInEffect(now int64) bool {
	return p.Active && !p.IsExpired(now)
}

// IsConsole reports whether the punishment was issued by the console or the system.
func (p *Punishment) IsConsole() bool {
	return p.StaffUUID == nil
}

// ScheduledPunishment is a deferred instruction to apply a punishment.
type ScheduledPunishment struct {
	ID              int64          `json:"id"`
	Type            PunishmentType `json:"type"`
	TargetUUID      uuid.UUID      `json:"uuid"`
	TargetName      string         `json:"name"`
	TargetIP        string         `json:"ip,omitempty"`
	Reason          string         `json:"reason"`
	StaffUUID       *uuid.UUID     `json:"staff_uuid,omitempty"`
	StaffName       string         `json:"staff_name"`
	ServerOrigin    string         `json:"server_origin"`
	Silent          bool           `json:"silent"`
	IPScoped        bool           `json:"ip_scoped"`
	ExecutionTime   int64          `json:"execution_time"`
	DurationSeconds int64          `json:"duration_seconds"`
	Category        string         `json:"category,omitempty"`
	EscalationLevel int            `json:"escalation_level"`
	CreatedAt       time.Time      `json:"created_at"`
}

// IsDue reports whether the entry should fire at now (unix ms).
func (s *ScheduledPunishment) IsDue(now int64) bool {
	return s.ExecutionTime <= now
}

// Staff returns the actor the scheduled punishment is attributed to.
func (s *ScheduledPunishment) Staff() Staff {
	return Staff{UUID: s.StaffUUID, Name: s.StaffName}
}

// PunishmentMetadata is the escalation bookkeeping row attached to a punishment.
type PunishmentMetadata struct {
	PublicID        string    `json:"punishment_id"`
	TargetUUID      uuid.UUID `json:"uuid"`
	Category        string    `json:"category"`
	EscalationLevel int       `json:"escalation_level"`
	WarnDecayAt     int64     `json:"warn_decay_at"`
}

// Decays reports whether the metadata carries a decay deadline.
func (m *PunishmentMetadata) Decays() bool {
	return m.WarnDecayAt > 0
}

// MaxDurationFrom returns the longest duration in seconds whose expiry, counted
// from fromMs (unix ms), still fits in an int64.
func MaxDurationFrom(fromMs int64) int64 {
	return (math.MaxInt64 - fromMs) / 1000
}

// CheckDurationFrom rejects a duration whose expiry from fromMs would overflow.
func CheckDurationFrom(fromMs, seconds int64) error {
	if limit := MaxDurationFrom(fromMs); seconds > limit {
		return ErrValidation(fmt.Sprintf("duration %ds is out of range (maximum %ds)", seconds, limit))
	}
	return nil
}

// Millis converts t to unix milliseconds.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}
