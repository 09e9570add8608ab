package repository

import (
	"context"
	"fmt"

	"github.com/attaboy/warden/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const scheduledColumns = `id, type, uuid, target_name, ip, reason, staff_uuid, staff_name,
	server_origin, silent, ip_scoped, execution_time, duration_seconds, category, escalation_level, created_at`

type scheduledRepo struct{}

// NewScheduledRepository returns a pgx-backed ScheduledRepository.
func NewScheduledRepository() ScheduledRepository {
	return &scheduledRepo{}
}

func (r *scheduledRepo) Insert(ctx context.Context, db DBTX, sp *domain.ScheduledPunishment) error {
	err := db.QueryRow(ctx, `
		INSERT INTO warden_scheduled_punishments
		  (type, uuid, target_name, ip, reason, staff_uuid, staff_name, server_origin,
		   silent, ip_scoped, execution_time, duration_seconds, category, escalation_level)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at`,
		string(sp.Type),
		sp.TargetUUID.String(),
		sp.TargetName,
		sp.TargetIP,
		sp.Reason,
		staffColumn(sp.StaffUUID),
		sp.StaffName,
		sp.ServerOrigin,
		sp.Silent,
		sp.IPScoped,
		sp.ExecutionTime,
		sp.DurationSeconds,
		sp.Category,
		sp.EscalationLevel,
	).Scan(&sp.ID, &sp.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert scheduled punishment: %w", err)
	}
	return nil
}

func (r *scheduledRepo) FetchDue(ctx context.Context, db DBTX, now int64, limit int) ([]domain.ScheduledPunishment, error) {
	rows, err := db.Query(ctx, `
		SELECT `+scheduledColumns+`
		FROM warden_scheduled_punishments
		WHERE execution_time <= $1
		ORDER BY execution_time ASC, id ASC
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch due scheduled punishments: %w", err)
	}
	return collectScheduled(rows)
}

func (r *scheduledRepo) Delete(ctx context.Context, db DBTX, id int64) (bool, error) {
	tag, err := db.Exec(ctx, `DELETE FROM warden_scheduled_punishments WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete scheduled punishment: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *scheduledRepo) ListPending(ctx context.Context, db DBTX, id uuid.UUID) ([]domain.ScheduledPunishment, error) {
	rows, err := db.Query(ctx, `
		SELECT `+scheduledColumns+`
		FROM warden_scheduled_punishments
		WHERE uuid = $1
		ORDER BY execution_time ASC, id ASC`, id.String())
	if err != nil {
		return nil, fmt.Errorf("list pending scheduled punishments: %w", err)
	}
	return collectScheduled(rows)
}

func collectScheduled(rows pgx.Rows) ([]domain.ScheduledPunishment, error) {
	defer rows.Close()
	var out []domain.ScheduledPunishment
	for rows.Next() {
		var sp domain.ScheduledPunishment
		var typ, target, staff string
		err := rows.Scan(&sp.ID, &typ, &target, &sp.TargetName, &sp.TargetIP, &sp.Reason,
			&staff, &sp.StaffName, &sp.ServerOrigin, &sp.Silent, &sp.IPScoped,
			&sp.ExecutionTime, &sp.DurationSeconds, &sp.Category, &sp.EscalationLevel, &sp.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan scheduled punishment: %w", err)
		}
		pt, ok := domain.ParsePunishmentType(typ)
		if !ok {
			return nil, fmt.Errorf("scheduled punishment %d has unknown type %q", sp.ID, typ)
		}
		sp.Type = pt
		if sp.TargetUUID, err = uuid.Parse(target); err != nil {
			return nil, fmt.Errorf("parse scheduled uuid %q: %w", target, err)
		}
		sp.StaffUUID = parseStaffColumn(staff)
		out = append(out, sp)
	}
	return out, rows.Err()
}
