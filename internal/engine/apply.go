package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/attaboy/warden/internal/cache"
	"github.com/attaboy/warden/internal/domain"
	"github.com/attaboy/warden/internal/repository"
)

// Request is the input of every apply command. Duration is in seconds and
// only read by temporary types and IP bans.
type Request struct {
	TargetName   string `validate:"required,playername"`
	Reason       string `validate:"max=512"`
	Staff        domain.Staff
	Duration     int64
	Silent       bool
	IPScoped     bool
	ServerOrigin string `validate:"max=64"`
}

// applyOptions carries internal overrides for derived applies.
type applyOptions struct {
	// identity skips name resolution.
	identity *domain.Identity
	// derivative marks cascade and escalated punishments: no further cascade or escalation.
	derivative bool
}

// apply runs the full pipeline: validate, resolve, check eligibility, write,
// invalidate, then hand side effects to the worker pool.
func (e *Engine) apply(ctx context.Context, t domain.PunishmentType, req Request, opts applyOptions) (*domain.Punishment, error) {
	p, err := e.applyRecord(ctx, t, req, opts)
	if err != nil {
		engineApplies.WithLabelValues(string(t), domain.CodeOf(err)).Inc()
		return nil, err
	}
	engineApplies.WithLabelValues(string(t), "ok").Inc()

	snapshot := *p
	e.Pool.Submit(func(ctx context.Context) {
		e.afterApply(ctx, snapshot, opts)
	})
	return p, nil
}

func (e *Engine) applyRecord(ctx context.Context, t domain.PunishmentType, req Request, opts applyOptions) (*domain.Punishment, error) {
	if err := domain.ValidateStruct(req); err != nil {
		return nil, err
	}
	if t.IsTemporary() && req.Duration <= 0 {
		return nil, domain.ErrValidation("duration must be positive")
	}

	ident := opts.identity
	if ident == nil {
		var err error
		if ident, err = e.resolve(ctx, req.TargetName); err != nil {
			return nil, err
		}
	}

	if req.Staff.Is(ident.UUID) {
		return nil, domain.ErrSelfPunishment()
	}

	silent := req.Silent
	exempt, err := e.isExempt(ctx, ident)
	if err != nil {
		return nil, err
	}
	if exempt {
		if !req.Staff.IsConsole() {
			return nil, domain.ErrExempt(ident.Name)
		}
		silent = true
	}

	if err := e.checkDuration(t, req); err != nil {
		return nil, err
	}

	if locksIdentity(t) {
		unlock := e.locks.Lock(ident.UUID.String())
		defer unlock()
	}

	now := e.now()
	if locksIdentity(t) {
		existing, err := e.Punishments.FindActive(ctx, e.Store.DB(), t.Table(), ident.UUID, domain.Millis(now))
		if err != nil {
			return nil, domain.ErrPersistence("check active punishment", err)
		}
		if existing != nil {
			return nil, domain.ErrConflictingPunishment(ident.Name, existing.Type)
		}
	}

	p, err := e.build(t, req, ident, silent, now)
	if err != nil {
		return nil, err
	}
	if err := e.persist(ctx, p, now); err != nil {
		return nil, err
	}

	e.InvalidateIdentity(p.TargetUUID)
	switch {
	case p.IPScoped && p.Type.IsBanClass():
		e.active.Invalidate(cache.IPBanKey(p.TargetIP))
	case p.IPScoped && p.Type.IsMuteClass():
		e.active.Invalidate(cache.IPMuteKey(p.TargetIP))
	}

	e.logger.Info("punishment applied",
		"punishment_id", p.PublicID, "type", p.Type, "uuid", p.TargetUUID,
		"staff", p.StaffName, "derivative", opts.derivative)
	return p, nil
}

// locksIdentity reports whether t is subject to the one-active-record rule.
func locksIdentity(t domain.PunishmentType) bool {
	return t.IsBanClass() || t.IsMuteClass() || t == domain.TypeVoiceMute
}

// isExempt reads the live exemption flag on the serial executor.
func (e *Engine) isExempt(ctx context.Context, ident *domain.Identity) (bool, error) {
	var online, exempt bool
	err := e.Serial.Call(ctx, func(context.Context) error {
		online, exempt = e.Connections.Lookup(ident.UUID)
		return nil
	})
	if err != nil {
		return false, domain.ErrInternal("read session state", err)
	}
	return online && exempt, nil
}

func (e *Engine) checkDuration(t domain.PunishmentType, req Request) error {
	if req.Staff.Admin {
		return nil
	}
	var ceiling time.Duration
	switch {
	case t == domain.TypeTempBan:
		ceiling = e.cfg.MaxTempBan
	case t == domain.TypeTempMute:
		ceiling = e.cfg.MaxTempMute
	case t == domain.TypeIPBan && req.Duration > 0:
		ceiling = e.cfg.MaxTempBan
	default:
		return nil
	}
	if limit := int64(ceiling / time.Second); limit > 0 && req.Duration > limit {
		return domain.ErrDurationExceeded(req.Duration, limit)
	}
	return nil
}

func (e *Engine) build(t domain.PunishmentType, req Request, ident *domain.Identity, silent bool, now time.Time) (*domain.Punishment, error) {
	created := domain.Millis(now)
	p := &domain.Punishment{
		Type:         t,
		TargetUUID:   ident.UUID,
		TargetName:   ident.Name,
		TargetIP:     ident.IP,
		Reason:       req.Reason,
		StaffUUID:    req.Staff.UUID,
		StaffName:    req.Staff.Name,
		ServerOrigin: req.ServerOrigin,
		CreatedAt:    created,
		ExpiresAt:    domain.Permanent,
		Silent:       silent,
		IPScoped:     req.IPScoped || t == domain.TypeIPBan,
		Active:       true,
	}
	if p.StaffName == "" {
		p.StaffName = domain.ConsoleName
	}
	if p.ServerOrigin == "" {
		p.ServerOrigin = e.cfg.ServerName
	}
	if p.Reason == "" {
		p.Reason = "No reason specified"
	}

	switch {
	case t == domain.TypeKick:
		p.ExpiresAt = created
	case t.IsTemporary(), t == domain.TypeIPBan && req.Duration > 0:
		if err := domain.CheckDurationFrom(created, req.Duration); err != nil {
			return nil, err
		}
		p.ExpiresAt = created + req.Duration*1000
	}

	if p.IPScoped && p.TargetIP == "" {
		return nil, domain.ErrValidation(fmt.Sprintf("no known IP for %s", ident.Name))
	}
	return p, nil
}

// persist writes the punishment and its outbox event in one transaction,
// drawing a fresh public id on collision.
func (e *Engine) persist(ctx context.Context, p *domain.Punishment, now time.Time) error {
	var err error
	for attempt := 1; attempt <= maxPublicIDAttempts; attempt++ {
		p.PublicID = newPublicID()
		err = e.Store.InTx(ctx, func(db repository.DBTX) error {
			if err := e.Punishments.Insert(ctx, db, p); err != nil {
				return err
			}
			return e.Outbox.Insert(ctx, db, domain.NewPunishmentAppliedEvent(p, now))
		})
		if !errors.Is(err, repository.ErrDuplicatePublicID) {
			break
		}
		e.logger.Debug("punishment id collision", "punishment_id", p.PublicID, "attempt", attempt)
	}
	if err != nil {
		p.PublicID = ""
		return domain.ErrPersistence("write punishment", err)
	}
	return nil
}

// resolve maps a name to an identity through the identity cache.
func (e *Engine) resolve(ctx context.Context, name string) (*domain.Identity, error) {
	ident, err := e.identities.GetOrLoad(ctx, cache.IdentityKey(name), func(ctx context.Context) (*domain.Identity, error) {
		ident, err := e.Identities.Resolve(ctx, name)
		if err != nil {
			return nil, err
		}
		if ident == nil {
			return nil, domain.ErrUnknownIdentity(name)
		}
		return ident, nil
	}, e.cfg.IdentityTTL)
	if err != nil {
		if errors.Is(err, domain.ErrIdentityNotFound) {
			return nil, err
		}
		return nil, domain.ErrPersistence("resolve identity", err)
	}
	return ident, nil
}
