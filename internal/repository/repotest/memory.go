// Package repotest provides in-memory repository and store implementations
// for unit tests. Queries mirror the SQL predicates of the pgx repositories.
package repotest

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/attaboy/warden/internal/domain"
	"github.com/attaboy/warden/internal/repository"
	"github.com/google/uuid"
)

// DB holds every table in memory. The zero value is not usable; call New.
type DB struct {
	mu sync.Mutex

	nextID      int64
	punishments map[domain.Table][]*domain.Punishment
	logins      []domain.LoginRecord
	scheduled   []domain.ScheduledPunishment
	metadata    map[string]domain.PunishmentMetadata
	outbox      []domain.OutboxDraft
	audit       map[uuid.UUID]domain.AuditEntry
	appeals     []*domain.Appeal

	collisions int
	// InsertErr fails every punishment insert when set.
	InsertErr error
	// TxErr fails Store.InTx before fn runs when set.
	TxErr error
}

// New returns an empty database.
func New() *DB {
	return &DB{
		punishments: make(map[domain.Table][]*domain.Punishment),
		metadata:    make(map[string]domain.PunishmentMetadata),
		audit:       make(map[uuid.UUID]domain.AuditEntry),
	}
}

func (d *DB) id() int64 {
	d.nextID++
	return d.nextID
}

// CollideNext makes the next n punishment inserts report a duplicate public id.
func (d *DB) CollideNext(n int) {
	d.mu.Lock()
	d.collisions = n
	d.mu.Unlock()
}

// Rows returns a copy of every record in table, oldest first.
func (d *DB) Rows(table domain.Table) []domain.Punishment {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]domain.Punishment, 0, len(d.punishments[table]))
	for _, p := range d.punishments[table] {
		out = append(out, *p)
	}
	return out
}

// Events returns the outbox contents in insertion order.
func (d *DB) Events() []domain.OutboxDraft {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]domain.OutboxDraft(nil), d.outbox...)
}

// Metadata returns the metadata row for a public id.
func (d *DB) Metadata(publicID string) (domain.PunishmentMetadata, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.metadata[publicID]
	return m, ok
}

// ScheduledCount returns the number of pending scheduled entries.
func (d *DB) ScheduledCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.scheduled)
}

// AuditLen returns the number of audit rows.
func (d *DB) AuditLen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.audit)
}

// Store returns a Store whose transactions run fn directly against d.
func (d *DB) Store() *Store { return &Store{db: d} }

func (d *DB) Punishments() repository.PunishmentRepository { return punishments{d} }
func (d *DB) History() repository.HistoryRepository         { return history{d} }
func (d *DB) Scheduled() repository.ScheduledRepository     { return scheduled{d} }
func (d *DB) MetadataRepo() repository.MetadataRepository   { return metadata{d} }
func (d *DB) Outbox() repository.OutboxRepository           { return outbox{d} }
func (d *DB) Audit() repository.AuditRepository             { return audit{d} }
func (d *DB) Appeals() repository.AppealRepository          { return appeals{d} }

// Store implements store.Store without isolation or rollback.
type Store struct {
	db *DB
}

func (s *Store) DB() repository.DBTX { return nil }

func (s *Store) InTx(_ context.Context, fn func(db repository.DBTX) error) error {
	s.db.mu.Lock()
	err := s.db.TxErr
	s.db.mu.Unlock()
	if err != nil {
		return err
	}
	return fn(nil)
}

func inEffect(p *domain.Punishment, now int64) bool {
	return p.Active && (p.ExpiresAt <= 0 || p.ExpiresAt > now)
}

func newestFirst(list []domain.Punishment) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].CreatedAt != list[j].CreatedAt {
			return list[i].CreatedAt > list[j].CreatedAt
		}
		return list[i].ID > list[j].ID
	})
}

type punishments struct{ d *DB }

func (r punishments) Insert(_ context.Context, _ repository.DBTX, p *domain.Punishment) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if r.d.InsertErr != nil {
		return r.d.InsertErr
	}
	if r.d.collisions > 0 {
		r.d.collisions--
		return repository.ErrDuplicatePublicID
	}
	t := p.Type.Table()
	for _, q := range r.d.punishments[t] {
		if q.PublicID == p.PublicID {
			return repository.ErrDuplicatePublicID
		}
	}
	p.ID = r.d.id()
	cp := *p
	r.d.punishments[t] = append(r.d.punishments[t], &cp)
	return nil
}

func (r punishments) newestActive(table domain.Table, match func(*domain.Punishment) bool, now int64) *domain.Punishment {
	var best *domain.Punishment
	for _, p := range r.d.punishments[table] {
		if !match(p) || !inEffect(p, now) {
			continue
		}
		if best == nil || p.CreatedAt > best.CreatedAt || (p.CreatedAt == best.CreatedAt && p.ID > best.ID) {
			best = p
		}
	}
	return best
}

func (r punishments) FindActive(_ context.Context, _ repository.DBTX, table domain.Table, id uuid.UUID, now int64) (*domain.Punishment, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	p := r.newestActive(table, func(p *domain.Punishment) bool { return p.TargetUUID == id }, now)
	if p == nil {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r punishments) FindActiveIPBan(_ context.Context, _ repository.DBTX, ip string, now int64) (*domain.Punishment, error) {
	return r.findActiveByIP(domain.TableBans, ip, now)
}

func (r punishments) FindActiveIPMute(_ context.Context, _ repository.DBTX, ip string, now int64) (*domain.Punishment, error) {
	return r.findActiveByIP(domain.TableMutes, ip, now)
}

func (r punishments) findActiveByIP(table domain.Table, ip string, now int64) (*domain.Punishment, error) {
	if ip == "" {
		return nil, nil
	}
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	p := r.newestActive(table, func(p *domain.Punishment) bool { return p.IPScoped && p.TargetIP == ip }, now)
	if p == nil {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r punishments) FindByPublicID(_ context.Context, _ repository.DBTX, publicID string) (*domain.Punishment, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	for _, t := range domain.AllTables() {
		for _, p := range r.d.punishments[t] {
			if p.PublicID == publicID {
				cp := *p
				return &cp, nil
			}
		}
	}
	return nil, nil
}

func (r punishments) collect(match func(*domain.Punishment) bool, limit int) []domain.Punishment {
	var out []domain.Punishment
	for _, t := range domain.AllTables() {
		for _, p := range r.d.punishments[t] {
			if match(p) {
				out = append(out, *p)
			}
		}
	}
	newestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r punishments) History(_ context.Context, _ repository.DBTX, id uuid.UUID, limit int) ([]domain.Punishment, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	return r.collect(func(p *domain.Punishment) bool { return p.TargetUUID == id }, limit), nil
}

func (r punishments) Recent(_ context.Context, _ repository.DBTX, limit int) ([]domain.Punishment, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	return r.collect(func(*domain.Punishment) bool { return true }, limit), nil
}

func stamp(p *domain.Punishment, rev repository.Revocation) {
	at := rev.At
	p.Active = false
	p.RemovedByUUID = rev.By.UUID
	p.RemovedByName = rev.By.Name
	p.RemovedAt = &at
}

func (r punishments) RevokeActive(_ context.Context, _ repository.DBTX, table domain.Table, id uuid.UUID, now int64, rev repository.Revocation) (string, bool, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	p := r.newestActive(table, func(p *domain.Punishment) bool { return p.TargetUUID == id }, now)
	if p == nil {
		return "", false, nil
	}
	stamp(p, rev)
	return p.PublicID, true, nil
}

func (r punishments) DeactivateByPublicID(_ context.Context, _ repository.DBTX, table domain.Table, publicID string, rev repository.Revocation) (bool, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	for _, p := range r.d.punishments[table] {
		if p.PublicID == publicID && p.Active {
			stamp(p, rev)
			return true, nil
		}
	}
	return false, nil
}

func (r punishments) CountActiveWarnings(_ context.Context, _ repository.DBTX, id uuid.UUID, category string, now int64) (int, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	n := 0
	for _, p := range r.d.punishments[domain.TableWarnings] {
		m, ok := r.d.metadata[p.PublicID]
		if p.TargetUUID == id && ok && m.Category == category && inEffect(p, now) {
			n++
		}
	}
	return n, nil
}

type history struct{ d *DB }

func (r history) Record(_ context.Context, _ repository.DBTX, rec domain.LoginRecord) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	rec.ID = r.d.id()
	r.d.logins = append(r.d.logins, rec)
	return nil
}

func (r history) latest(match func(domain.LoginRecord) bool) *domain.LoginRecord {
	var best *domain.LoginRecord
	for i := range r.d.logins {
		rec := r.d.logins[i]
		if !match(rec) {
			continue
		}
		if best == nil || !rec.Date.Before(best.Date) {
			cp := rec
			best = &cp
		}
	}
	return best
}

func (r history) LatestByName(_ context.Context, _ repository.DBTX, name string) (*domain.LoginRecord, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	return r.latest(func(rec domain.LoginRecord) bool { return strings.EqualFold(rec.Name, name) }), nil
}

func (r history) LatestByUUID(_ context.Context, _ repository.DBTX, id uuid.UUID) (*domain.LoginRecord, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	return r.latest(func(rec domain.LoginRecord) bool { return rec.UUID == id }), nil
}

func (r history) IPsFor(_ context.Context, _ repository.DBTX, id uuid.UUID) ([]string, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, rec := range r.d.logins {
		if rec.UUID == id && rec.IP != "" && !seen[rec.IP] {
			seen[rec.IP] = true
			out = append(out, rec.IP)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r history) IdentitiesFor(_ context.Context, _ repository.DBTX, ip string) ([]uuid.UUID, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	seen := map[uuid.UUID]bool{}
	var out []uuid.UUID
	for _, rec := range r.d.logins {
		if rec.IP == ip && !seen[rec.UUID] {
			seen[rec.UUID] = true
			out = append(out, rec.UUID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

func (r history) SharedIPs(ctx context.Context, db repository.DBTX, id uuid.UUID) ([]string, error) {
	ips, _ := r.IPsFor(ctx, db, id)
	var out []string
	for _, ip := range ips {
		ids, _ := r.IdentitiesFor(ctx, db, ip)
		if len(ids) > 1 {
			out = append(out, ip)
		}
	}
	return out, nil
}

type scheduled struct{ d *DB }

func (r scheduled) Insert(_ context.Context, _ repository.DBTX, sp *domain.ScheduledPunishment) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	sp.ID = r.d.id()
	r.d.scheduled = append(r.d.scheduled, *sp)
	return nil
}

func (r scheduled) FetchDue(_ context.Context, _ repository.DBTX, now int64, limit int) ([]domain.ScheduledPunishment, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	var out []domain.ScheduledPunishment
	for _, sp := range r.d.scheduled {
		if sp.ExecutionTime <= now {
			out = append(out, sp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ExecutionTime < out[j].ExecutionTime })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r scheduled) Delete(_ context.Context, _ repository.DBTX, id int64) (bool, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	for i, sp := range r.d.scheduled {
		if sp.ID == id {
			r.d.scheduled = append(r.d.scheduled[:i], r.d.scheduled[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (r scheduled) ListPending(_ context.Context, _ repository.DBTX, id uuid.UUID) ([]domain.ScheduledPunishment, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	var out []domain.ScheduledPunishment
	for _, sp := range r.d.scheduled {
		if sp.TargetUUID == id {
			out = append(out, sp)
		}
	}
	return out, nil
}

type metadata struct{ d *DB }

func (r metadata) Upsert(_ context.Context, _ repository.DBTX, m domain.PunishmentMetadata) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if m.WarnDecayAt <= 0 {
		m.WarnDecayAt = domain.Permanent
	}
	r.d.metadata[m.PublicID] = m
	return nil
}

func (r metadata) FindDecayed(_ context.Context, _ repository.DBTX, now int64, limit int) ([]domain.PunishmentMetadata, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	var out []domain.PunishmentMetadata
	for _, m := range r.d.metadata {
		if m.WarnDecayAt > 0 && m.WarnDecayAt <= now {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WarnDecayAt < out[j].WarnDecayAt })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r metadata) Delete(_ context.Context, _ repository.DBTX, publicID string) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	delete(r.d.metadata, publicID)
	return nil
}

type outbox struct{ d *DB }

func (r outbox) Insert(_ context.Context, _ repository.DBTX, draft domain.OutboxDraft) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	draft.SeqID = r.d.id()
	r.d.outbox = append(r.d.outbox, draft)
	return nil
}

func (r outbox) FetchUnpublished(_ context.Context, _ repository.DBTX, limit int) ([]domain.OutboxDraft, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	out := append([]domain.OutboxDraft(nil), r.d.outbox...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r outbox) MarkPublished(_ context.Context, _ repository.DBTX, ids []int64) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	drop := make(map[int64]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := r.d.outbox[:0]
	for _, e := range r.d.outbox {
		if !drop[e.SeqID] {
			kept = append(kept, e)
		}
	}
	r.d.outbox = kept
	return nil
}

type audit struct{ d *DB }

func (r audit) Insert(_ context.Context, _ repository.DBTX, e domain.AuditEntry) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if _, dup := r.d.audit[e.EventID]; !dup {
		e.ID = r.d.id()
		r.d.audit[e.EventID] = e
	}
	return nil
}

type appeals struct{ d *DB }

// ErrDuplicateAppeal mirrors the single-pending-appeal unique index.
var ErrDuplicateAppeal = errors.New("pending appeal already exists")

func (r appeals) Insert(_ context.Context, _ repository.DBTX, a *domain.Appeal) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	for _, q := range r.d.appeals {
		if q.PublicID == a.PublicID && q.Status == domain.AppealPending {
			return ErrDuplicateAppeal
		}
	}
	a.ID = r.d.id()
	cp := *a
	r.d.appeals = append(r.d.appeals, &cp)
	return nil
}

func (r appeals) FindByID(_ context.Context, _ repository.DBTX, id int64) (*domain.Appeal, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	for _, a := range r.d.appeals {
		if a.ID == id {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (r appeals) ListPending(_ context.Context, _ repository.DBTX, limit int) ([]domain.Appeal, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	var out []domain.Appeal
	for _, a := range r.d.appeals {
		if a.Status == domain.AppealPending {
			out = append(out, *a)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r appeals) Resolve(_ context.Context, _ repository.DBTX, id int64, status domain.AppealStatus, by string, at time.Time) (bool, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	for _, a := range r.d.appeals {
		if a.ID == id && a.Status == domain.AppealPending {
			a.Status = status
			a.ResolvedBy = by
			a.ResolvedAt = &at
			return true, nil
		}
	}
	return false, nil
}
