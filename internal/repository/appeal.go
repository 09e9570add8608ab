package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/attaboy/warden/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

type appealRepo struct{}

// NewAppealRepository returns a pgx-backed AppealRepository.
func NewAppealRepository() AppealRepository {
	return &appealRepo{}
}

func (r *appealRepo) Insert(ctx context.Context, db DBTX, a *domain.Appeal) error {
	err := db.QueryRow(ctx, `
		INSERT INTO warden_appeals (punishment_id, uuid, message, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		a.PublicID, a.UUID.String(), a.Message, string(a.Status), a.CreatedAt,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("insert appeal: %w", err)
	}
	return nil
}

func (r *appealRepo) FindByID(ctx context.Context, db DBTX, id int64) (*domain.Appeal, error) {
	row := db.QueryRow(ctx, `
		SELECT id, punishment_id, uuid, message, status, created_at, resolved_by, resolved_at
		FROM warden_appeals WHERE id = $1`, id)
	a, err := scanAppeal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (r *appealRepo) ListPending(ctx context.Context, db DBTX, limit int) ([]domain.Appeal, error) {
	rows, err := db.Query(ctx, `
		SELECT id, punishment_id, uuid, message, status, created_at, resolved_by, resolved_at
		FROM warden_appeals WHERE status = 'pending'
		ORDER BY created_at ASC, id ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending appeals: %w", err)
	}
	defer rows.Close()

	var out []domain.Appeal
	for rows.Next() {
		a, err := scanAppeal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (r *appealRepo) Resolve(ctx context.Context, db DBTX, id int64, status domain.AppealStatus, by string, at time.Time) (bool, error) {
	tag, err := db.Exec(ctx, `
		UPDATE warden_appeals SET status = $2, resolved_by = $3, resolved_at = $4
		WHERE id = $1 AND status = 'pending'`,
		id, string(status), by, at)
	if err != nil {
		return false, fmt.Errorf("resolve appeal: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanAppeal(row pgx.Row) (*domain.Appeal, error) {
	var a domain.Appeal
	var target, status string
	var resolvedBy pgtype.Text
	var resolvedAt pgtype.Timestamptz
	if err := row.Scan(&a.ID, &a.PublicID, &target, &a.Message, &status, &a.CreatedAt, &resolvedBy, &resolvedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan appeal: %w", err)
	}
	parsed, err := uuid.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("parse appeal uuid %q: %w", target, err)
	}
	a.UUID = parsed
	a.Status = domain.AppealStatus(status)
	if resolvedBy.Valid {
		a.ResolvedBy = resolvedBy.String
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		a.ResolvedAt = &t
	}
	return &a, nil
}
