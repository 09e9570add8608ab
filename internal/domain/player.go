package domain

import (
	"time"

	"github.com/google/uuid"
)

// ConsoleName is the display name recorded for console and system actions.
const ConsoleName = "Console"

// ConsoleUUID is the literal stored in *_by_uuid columns for console actions.
const ConsoleUUID = "CONSOLE"

// Identity is the resolved, stable view of a player: the UUID plus the
// last-known display name and IP.
type Identity struct {
	UUID uuid.UUID `json:"uuid"`
	Name string    `json:"name"`
	IP   string    `json:"ip,omitempty"`
}

// Staff is the actor behind a moderation request. A nil UUID means console.
type Staff struct {
	UUID  *uuid.UUID `json:"uuid,omitempty"`
	Name  string     `json:"name"`
	Admin bool       `json:"admin"`
}

// Console returns the system actor. It always holds the administrative capability.
func Console() Staff {
	return Staff{Name: ConsoleName, Admin: true}
}

// NewStaff returns a user actor.
func NewStaff(id uuid.UUID, name string, admin bool) Staff {
	return Staff{UUID: &id, Name: name, Admin: admin}
}

// IsConsole reports whether the actor is the console or the system.
func (s Staff) IsConsole() bool {
	return s.UUID == nil
}

// Is reports whether the actor is the given player.
func (s Staff) Is(id uuid.UUID) bool {
	return s.UUID != nil && *s.UUID == id
}

// LoginRecord is a row of the login history table.
type LoginRecord struct {
	ID   int64     `json:"id"`
	Date time.Time `json:"date"`
	Name string    `json:"name"`
	UUID uuid.UUID `json:"uuid"`
	IP   string    `json:"ip"`
}

// AppealStatus tracks the appeal lifecycle.
type AppealStatus string

const (
	AppealPending  AppealStatus = "pending"
	AppealAccepted AppealStatus = "accepted"
	AppealDenied   AppealStatus = "denied"
)

// Appeal is a player's request to lift a punishment.
type Appeal struct {
	ID         int64        `json:"id"`
	PublicID   string       `json:"punishment_id"`
	UUID       uuid.UUID    `json:"uuid"`
	Message    string       `json:"message"`
	Status     AppealStatus `json:"status"`
	CreatedAt  time.Time    `json:"created_at"`
	ResolvedBy string       `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time   `json:"resolved_at,omitempty"`
}
