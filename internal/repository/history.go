package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/attaboy/warden/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type historyRepo struct{}

// NewHistoryRepository returns a pgx-backed HistoryRepository.
func NewHistoryRepository() HistoryRepository {
	return &historyRepo{}
}

func (r *historyRepo) Record(ctx context.Context, db DBTX, rec domain.LoginRecord) error {
	_, err := db.Exec(ctx, `
		INSERT INTO litebans_history (date, name, uuid, ip)
		VALUES ($1, $2, $3, $4)`,
		rec.Date, rec.Name, rec.UUID.String(), rec.IP)
	if err != nil {
		return fmt.Errorf("insert login record: %w", err)
	}
	return nil
}

func (r *historyRepo) LatestByName(ctx context.Context, db DBTX, name string) (*domain.LoginRecord, error) {
	row := db.QueryRow(ctx, `
		SELECT id, date, name, uuid, ip FROM litebans_history
		WHERE lower(name) = lower($1)
		ORDER BY date DESC, id DESC LIMIT 1`, name)
	return scanLogin(row)
}

func (r *historyRepo) LatestByUUID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.LoginRecord, error) {
	row := db.QueryRow(ctx, `
		SELECT id, date, name, uuid, ip FROM litebans_history
		WHERE uuid = $1
		ORDER BY date DESC, id DESC LIMIT 1`, id.String())
	return scanLogin(row)
}

func (r *historyRepo) IPsFor(ctx context.Context, db DBTX, id uuid.UUID) ([]string, error) {
	rows, err := db.Query(ctx, `
		SELECT DISTINCT ip FROM litebans_history WHERE uuid = $1 AND ip <> '' ORDER BY ip`, id.String())
	if err != nil {
		return nil, fmt.Errorf("query ips for identity: %w", err)
	}
	return collectStrings(rows)
}

func (r *historyRepo) IdentitiesFor(ctx context.Context, db DBTX, ip string) ([]uuid.UUID, error) {
	rows, err := db.Query(ctx, `
		SELECT DISTINCT uuid FROM litebans_history WHERE ip = $1 ORDER BY uuid`, ip)
	if err != nil {
		return nil, fmt.Errorf("query identities for ip: %w", err)
	}
	raw, err := collectStrings(rows)
	if err != nil {
		return nil, err
	}
	out := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("parse history uuid %q: %w", s, err)
		}
		out = append(out, id)
	}
	return out, nil
}

func (r *historyRepo) SharedIPs(ctx context.Context, db DBTX, id uuid.UUID) ([]string, error) {
	rows, err := db.Query(ctx, `
		SELECT h.ip FROM litebans_history h
		WHERE h.ip IN (SELECT ip FROM litebans_history WHERE uuid = $1 AND ip <> '')
		GROUP BY h.ip
		HAVING count(DISTINCT h.uuid) > 1
		ORDER BY h.ip`, id.String())
	if err != nil {
		return nil, fmt.Errorf("query shared ips: %w", err)
	}
	return collectStrings(rows)
}

func scanLogin(row pgx.Row) (*domain.LoginRecord, error) {
	var rec domain.LoginRecord
	var id string
	if err := row.Scan(&rec.ID, &rec.Date, &rec.Name, &id, &rec.IP); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan login record: %w", err)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse history uuid %q: %w", id, err)
	}
	rec.UUID = parsed
	return &rec, nil
}

func collectStrings(rows pgx.Rows) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
