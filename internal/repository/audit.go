package repository

import (
	"context"
	"fmt"

	"github.com/attaboy/warden/internal/domain"
)

type auditRepo struct{}

// NewAuditRepository returns a pgx-backed AuditRepository.
func NewAuditRepository() AuditRepository {
	return &auditRepo{}
}

func (r *auditRepo) Insert(ctx context.Context, db DBTX, e domain.AuditEntry) error {
	_, err := db.Exec(ctx, `
		INSERT INTO warden_audit_log (event_id, event_type, aggregate_id, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (event_id) DO NOTHING`,
		e.EventID, string(e.EventType), e.AggregateID, e.Payload, e.OccurredAt)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}
