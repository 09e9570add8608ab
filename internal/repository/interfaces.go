package repository

import (
	"context"
	"time"

	"github.com/attaboy/warden/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX abstracts pgx.Tx and pgxpool.Pool so repositories work with both.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Revocation describes who lifted a punishment and when.
type Revocation struct {
	By domain.Staff
	At time.Time
}

// PunishmentRepository provides access to the litebans_* punishment tables and warden_voice_mutes.
type PunishmentRepository interface {
	// Insert writes a new punishment and sets p.ID. Returns ErrDuplicatePublicID
	// when the public id collides within the target table.
	Insert(ctx context.Context, db DBTX, p *domain.Punishment) error

	// FindActive returns the newest in-effect record in table for the identity, or nil.
	FindActive(ctx context.Context, db DBTX, table domain.Table, id uuid.UUID, now int64) (*domain.Punishment, error)

	// FindActiveIPBan returns the newest in-effect IP-scoped ban on ip, or nil.
	FindActiveIPBan(ctx context.Context, db DBTX, ip string, now int64) (*domain.Punishment, error)

	// FindActiveIPMute returns the newest in-effect IP-scoped mute on ip, or nil.
	FindActiveIPMute(ctx context.Context, db DBTX, ip string, now int64) (*domain.Punishment, error)

	// FindByPublicID searches every punishment table for the code.
	FindByPublicID(ctx context.Context, db DBTX, publicID string) (*domain.Punishment, error)

	// History returns all records for the identity across tables, newest first.
	History(ctx context.Context, db DBTX, id uuid.UUID, limit int) ([]domain.Punishment, error)

	// Recent returns the newest records across tables.
	Recent(ctx context.Context, db DBTX, limit int) ([]domain.Punishment, error)

	// RevokeActive deactivates the newest in-effect record in table for the identity
	// in a single conditional update. ok is false when nothing was active.
	RevokeActive(ctx context.Context, db DBTX, table domain.Table, id uuid.UUID, now int64, rev Revocation) (publicID string, ok bool, err error)

	// DeactivateByPublicID deactivates one record by code in table.
	DeactivateByPublicID(ctx context.Context, db DBTX, table domain.Table, publicID string, rev Revocation) (bool, error)

	// CountActiveWarnings counts in-effect warnings for the identity tagged with category.
	CountActiveWarnings(ctx context.Context, db DBTX, id uuid.UUID, category string, now int64) (int, error)
}

// HistoryRepository provides access to litebans_history login records.
type HistoryRepository interface {
	Record(ctx context.Context, db DBTX, rec domain.LoginRecord) error

	// LatestByName returns the most recent login for a case-insensitive name, or nil.
	LatestByName(ctx context.Context, db DBTX, name string) (*domain.LoginRecord, error)

	// LatestByUUID returns the most recent login for the identity, or nil.
	LatestByUUID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.LoginRecord, error)

	// IPsFor returns every distinct IP the identity has logged in from.
	IPsFor(ctx context.Context, db DBTX, id uuid.UUID) ([]string, error)

	// IdentitiesFor returns every distinct identity seen on ip.
	IdentitiesFor(ctx context.Context, db DBTX, ip string) ([]uuid.UUID, error)

	// SharedIPs returns IPs of the identity that at least one other identity also used.
	SharedIPs(ctx context.Context, db DBTX, id uuid.UUID) ([]string, error)
}

// ScheduledRepository provides access to warden_scheduled_punishments.
type ScheduledRepository interface {
	Insert(ctx context.Context, db DBTX, sp *domain.ScheduledPunishment) error
	FetchDue(ctx context.Context, db DBTX, now int64, limit int) ([]domain.ScheduledPunishment, error)

	// Delete removes an entry and reports whether this call removed it.
	Delete(ctx context.Context, db DBTX, id int64) (bool, error)
	ListPending(ctx context.Context, db DBTX, id uuid.UUID) ([]domain.ScheduledPunishment, error)
}

// MetadataRepository provides access to warden_punishment_metadata.
type MetadataRepository interface {
	Upsert(ctx context.Context, db DBTX, m domain.PunishmentMetadata) error
	FindDecayed(ctx context.Context, db DBTX, now int64, limit int) ([]domain.PunishmentMetadata, error)
	Delete(ctx context.Context, db DBTX, publicID string) error
}

// OutboxRepository provides access to the warden_outbox table.
type OutboxRepository interface {
	// Insert writes an outbox event (within the same transaction as the punishment row).
	Insert(ctx context.Context, db DBTX, draft domain.OutboxDraft) error

	// FetchUnpublished returns events in insertion order with SeqID set.
	FetchUnpublished(ctx context.Context, db DBTX, limit int) ([]domain.OutboxDraft, error)

	// MarkPublished removes delivered events.
	MarkPublished(ctx context.Context, db DBTX, ids []int64) error
}

// AuditRepository provides access to warden_audit_log.
type AuditRepository interface {
	// Insert records an entry; replays of the same event id are ignored.
	Insert(ctx context.Context, db DBTX, e domain.AuditEntry) error
}

// AppealRepository provides access to warden_appeals.
type AppealRepository interface {
	Insert(ctx context.Context, db DBTX, a *domain.Appeal) error
	FindByID(ctx context.Context, db DBTX, id int64) (*domain.Appeal, error)
	ListPending(ctx context.Context, db DBTX, limit int) ([]domain.Appeal, error)
	Resolve(ctx context.Context, db DBTX, id int64, status domain.AppealStatus, by string, at time.Time) (bool, error)
}
