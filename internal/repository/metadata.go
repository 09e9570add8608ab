package repository

import (
	"context"
	"fmt"

	"github.com/attaboy/warden/internal/domain"
	"github.com/google/uuid"
)

type metadataRepo struct{}

// NewMetadataRepository returns a pgx-backed MetadataRepository.
func NewMetadataRepository() MetadataRepository {
	return &metadataRepo{}
}

func (r *metadataRepo) Upsert(ctx context.Context, db DBTX, m domain.PunishmentMetadata) error {
	decay := m.WarnDecayAt
	if decay <= 0 {
		decay = domain.Permanent
	}
	_, err := db.Exec(ctx, `
		INSERT INTO warden_punishment_metadata (punishment_id, uuid, category, escalation_level, warn_decay_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (punishment_id) DO UPDATE
		SET category = EXCLUDED.category,
		    escalation_level = EXCLUDED.escalation_level,
		    warn_decay_at = EXCLUDED.warn_decay_at`,
		m.PublicID, m.TargetUUID.String(), m.Category, m.EscalationLevel, decay)
	if err != nil {
		return fmt.Errorf("upsert punishment metadata: %w", err)
	}
	return nil
}

func (r *metadataRepo) FindDecayed(ctx context.Context, db DBTX, now int64, limit int) ([]domain.PunishmentMetadata, error) {
	rows, err := db.Query(ctx, `
		SELECT punishment_id, uuid, category, escalation_level, warn_decay_at
		FROM warden_punishment_metadata
		WHERE warn_decay_at > 0 AND warn_decay_at <= $1
		ORDER BY warn_decay_at ASC
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("find decayed metadata: %w", err)
	}
	defer rows.Close()

	var out []domain.PunishmentMetadata
	for rows.Next() {
		var m domain.PunishmentMetadata
		var target string
		if err := rows.Scan(&m.PublicID, &target, &m.Category, &m.EscalationLevel, &m.WarnDecayAt); err != nil {
			return nil, fmt.Errorf("scan metadata: %w", err)
		}
		if m.TargetUUID, err = uuid.Parse(target); err != nil {
			return nil, fmt.Errorf("parse metadata uuid %q: %w", target, err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *metadataRepo) Delete(ctx context.Context, db DBTX, publicID string) error {
	if _, err := db.Exec(ctx, `DELETE FROM warden_punishment_metadata WHERE punishment_id = $1`, publicID); err != nil {
		return fmt.Errorf("delete metadata: %w", err)
	}
	return nil
}
