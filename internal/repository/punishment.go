package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/attaboy/warden/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// ErrDuplicatePublicID is returned by Insert when the punishment code already exists.
var ErrDuplicatePublicID = errors.New("duplicate punishment id")

const punishmentColumns = `id, punishment_id, uuid, target_name, ip, reason,
	banned_by_uuid, banned_by_name, removed_by_uuid, removed_by_name, removed_by_date,
	time, until, server_origin, silent, ipban, active`

// inEffect is the soft-uniqueness predicate for active records; $N is bound to now.
const inEffect = `active AND (until <= 0 OR until > $%d)`

type punishmentRepo struct{}

// NewPunishmentRepository returns a pgx-backed PunishmentRepository.
func NewPunishmentRepository() PunishmentRepository {
	return &punishmentRepo{}
}

// tableName guards the identifiers interpolated into SQL.
func tableName(t domain.Table) (string, error) {
	for _, known := range domain.AllTables() {
		if t == known {
			return string(t), nil
		}
	}
	return "", fmt.Errorf("unknown punishment table %q", t)
}

func (r *punishmentRepo) Insert(ctx context.Context, db DBTX, p *domain.Punishment) error {
	tbl, err := tableName(p.Type.Table())
	if err != nil {
		return err
	}
	err = db.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO %s
		  (punishment_id, uuid, target_name, ip, reason, banned_by_uuid, banned_by_name,
		   time, until, server_origin, silent, ipban, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`, tbl),
		p.PublicID,
		p.TargetUUID.String(),
		p.TargetName,
		p.TargetIP,
		p.Reason,
		staffColumn(p.StaffUUID),
		p.StaffName,
		p.CreatedAt,
		p.ExpiresAt,
		p.ServerOrigin,
		p.Silent,
		p.IPScoped,
		p.Active,
	).Scan(&p.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicatePublicID
		}
		return fmt.Errorf("insert punishment: %w", err)
	}
	return nil
}

func (r *punishmentRepo) FindActive(ctx context.Context, db DBTX, table domain.Table, id uuid.UUID, now int64) (*domain.Punishment, error) {
	tbl, err := tableName(table)
	if err != nil {
		return nil, err
	}
	row := db.QueryRow(ctx, fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE uuid = $1 AND `+inEffect+`
		ORDER BY time DESC, id DESC LIMIT 1`, punishmentColumns, tbl, 2),
		id.String(), now)
	return scanPunishment(row, table)
}

func (r *punishmentRepo) FindActiveIPBan(ctx context.Context, db DBTX, ip string, now int64) (*domain.Punishment, error) {
	return r.findActiveByIP(ctx, db, domain.TableBans, ip, now)
}

func (r *punishmentRepo) FindActiveIPMute(ctx context.Context, db DBTX, ip string, now int64) (*domain.Punishment, error) {
	return r.findActiveByIP(ctx, db, domain.TableMutes, ip, now)
}

func (r *punishmentRepo) findActiveByIP(ctx context.Context, db DBTX, table domain.Table, ip string, now int64) (*domain.Punishment, error) {
	if ip == "" {
		return nil, nil
	}
	tbl, err := tableName(table)
	if err != nil {
		return nil, err
	}
	row := db.QueryRow(ctx, fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE ipban AND ip = $1 AND `+inEffect+`
		ORDER BY time DESC, id DESC LIMIT 1`, punishmentColumns, tbl, 2),
		ip, now)
	return scanPunishment(row, table)
}

func (r *punishmentRepo) FindByPublicID(ctx context.Context, db DBTX, publicID string) (*domain.Punishment, error) {
	rows, err := db.Query(ctx, unionQuery("punishment_id = $1", "")+" LIMIT 1", publicID)
	if err != nil {
		return nil, fmt.Errorf("find by punishment id: %w", err)
	}
	list, err := collectTagged(rows)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return &list[0], nil
}

func (r *punishmentRepo) History(ctx context.Context, db DBTX, id uuid.UUID, limit int) ([]domain.Punishment, error) {
	rows, err := db.Query(ctx, unionQuery("uuid = $1", " LIMIT $2"), id.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	return collectTagged(rows)
}

func (r *punishmentRepo) Recent(ctx context.Context, db DBTX, limit int) ([]domain.Punishment, error) {
	rows, err := db.Query(ctx, unionQuery("TRUE", " LIMIT $1"), limit)
	if err != nil {
		return nil, fmt.Errorf("query recent punishments: %w", err)
	}
	return collectTagged(rows)
}

func (r *punishmentRepo) RevokeActive(ctx context.Context, db DBTX, table domain.Table, id uuid.UUID, now int64, rev Revocation) (string, bool, error) {
	tbl, err := tableName(table)
	if err != nil {
		return "", false, err
	}
	var publicID string
	err = db.QueryRow(ctx, fmt.Sprintf(`
		UPDATE %[1]s SET active = FALSE, removed_by_uuid = $2, removed_by_name = $3, removed_by_date = $4
		WHERE active AND id = (
			SELECT id FROM %[1]s
			WHERE uuid = $1 AND active AND (until <= 0 OR until > $5)
			ORDER BY time DESC, id DESC LIMIT 1
		)
		RETURNING punishment_id`, tbl),
		id.String(), staffColumn(rev.By.UUID), rev.By.Name, rev.At, now,
	).Scan(&publicID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("revoke active punishment: %w", err)
	}
	return publicID, true, nil
}

func (r *punishmentRepo) DeactivateByPublicID(ctx context.Context, db DBTX, table domain.Table, publicID string, rev Revocation) (bool, error) {
	tbl, err := tableName(table)
	if err != nil {
		return false, err
	}
	tag, err := db.Exec(ctx, fmt.Sprintf(`
		UPDATE %s SET active = FALSE, removed_by_uuid = $2, removed_by_name = $3, removed_by_date = $4
		WHERE punishment_id = $1 AND active`, tbl),
		publicID, staffColumn(rev.By.UUID), rev.By.Name, rev.At)
	if err != nil {
		return false, fmt.Errorf("deactivate punishment: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *punishmentRepo) CountActiveWarnings(ctx context.Context, db DBTX, id uuid.UUID, category string, now int64) (int, error) {
	var n int
	err := db.QueryRow(ctx, `
		SELECT count(*)
		FROM litebans_warnings w
		JOIN warden_punishment_metadata m ON m.punishment_id = w.punishment_id
		WHERE w.uuid = $1 AND m.category = $2
		  AND w.active AND (w.until <= 0 OR w.until > $3)`,
		id.String(), category, now,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active warnings: %w", err)
	}
	return n, nil
}

// unionQuery selects punishmentColumns from every table, tagged with the source table name.
func unionQuery(where, tail string) string {
	parts := make([]string, 0, len(domain.AllTables()))
	for _, t := range domain.AllTables() {
		parts = append(parts, fmt.Sprintf("SELECT '%s' AS tbl, %s FROM %s WHERE %s", t, punishmentColumns, t, where))
	}
	return "SELECT * FROM (" + strings.Join(parts, " UNION ALL ") + ") p ORDER BY time DESC, id DESC" + tail
}

func collectTagged(rows pgx.Rows) ([]domain.Punishment, error) {
	defer rows.Close()
	var out []domain.Punishment
	for rows.Next() {
		var tbl string
		p, err := scanPunishmentFields(rows, &tbl)
		if err != nil {
			return nil, err
		}
		p.Type = domain.TypeFromRow(domain.Table(tbl), p.ExpiresAt, p.IPScoped)
		out = append(out, *p)
	}
	return out, rows.Err()
}

func scanPunishment(row pgx.Row, table domain.Table) (*domain.Punishment, error) {
	p, err := scanPunishmentFields(row, nil)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	p.Type = domain.TypeFromRow(table, p.ExpiresAt, p.IPScoped)
	return p, nil
}

func scanPunishmentFields(row pgx.Row, tbl *string) (*domain.Punishment, error) {
	var (
		p         domain.Punishment
		target    string
		staff     string
		removedBy pgtype.Text
		removedNm pgtype.Text
		removedAt pgtype.Timestamptz
		dest      []any
	)
	if tbl != nil {
		dest = append(dest, tbl)
	}
	dest = append(dest, &p.ID, &p.PublicID, &target, &p.TargetName, &p.TargetIP, &p.Reason,
		&staff, &p.StaffName, &removedBy, &removedNm, &removedAt,
		&p.CreatedAt, &p.ExpiresAt, &p.ServerOrigin, &p.Silent, &p.IPScoped, &p.Active)

	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan punishment: %w", err)
	}

	var err error
	if p.TargetUUID, err = uuid.Parse(target); err != nil {
		return nil, fmt.Errorf("parse punishment uuid %q: %w", target, err)
	}
	p.StaffUUID = parseStaffColumn(staff)
	if removedBy.Valid {
		p.RemovedByUUID = parseStaffColumn(removedBy.String)
	}
	if removedNm.Valid {
		p.RemovedByName = removedNm.String
	}
	if removedAt.Valid {
		t := removedAt.Time
		p.RemovedAt = &t
	}
	return &p, nil
}

// staffColumn renders an actor for *_by_uuid columns; console is the CONSOLE literal.
func staffColumn(id *uuid.UUID) string {
	if id == nil {
		return domain.ConsoleUUID
	}
	return id.String()
}

func parseStaffColumn(s string) *uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		return nil
	}
	return &id
}
