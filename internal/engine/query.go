package engine

import (
	"context"
	"strings"

	"github.com/attaboy/warden/internal/cache"
	"github.com/attaboy/warden/internal/domain"
	"github.com/google/uuid"
)

// historyCacheLimit is the window cached per identity; larger requests read through.
const historyCacheLimit = 100

// GetActiveBan returns the identity's in-effect ban, or nil.
func (e *Engine) GetActiveBan(ctx context.Context, id uuid.UUID) (*domain.Punishment, error) {
	return e.activeIn(ctx, cache.BanKey(id), domain.TableBans, id)
}

// GetActiveMute returns the identity's in-effect mute, or nil.
func (e *Engine) GetActiveMute(ctx context.Context, id uuid.UUID) (*domain.Punishment, error) {
	return e.activeIn(ctx, cache.MuteKey(id), domain.TableMutes, id)
}

func (e *Engine) activeIn(ctx context.Context, key string, table domain.Table, id uuid.UUID) (*domain.Punishment, error) {
	p, err := e.active.GetOrLoad(ctx, key, func(ctx context.Context) (*domain.Punishment, error) {
		return e.Punishments.FindActive(ctx, e.Store.DB(), table, id, domain.Millis(e.now()))
	}, e.cfg.ActiveTTL)
	if err != nil {
		return nil, domain.ErrPersistence("find active punishment", err)
	}
	return e.stillInEffect(p), nil
}

// GetActiveIPBan returns the in-effect IP ban covering ip, or nil.
func (e *Engine) GetActiveIPBan(ctx context.Context, ip string) (*domain.Punishment, error) {
	p, err := e.active.GetOrLoad(ctx, cache.IPBanKey(ip), func(ctx context.Context) (*domain.Punishment, error) {
		return e.Punishments.FindActiveIPBan(ctx, e.Store.DB(), ip, domain.Millis(e.now()))
	}, e.cfg.ActiveTTL)
	if err != nil {
		return nil, domain.ErrPersistence("find active ip ban", err)
	}
	return e.stillInEffect(p), nil
}

// GetActiveIPMute returns the in-effect IP mute covering ip, or nil.
func (e *Engine) GetActiveIPMute(ctx context.Context, ip string) (*domain.Punishment, error) {
	p, err := e.active.GetOrLoad(ctx, cache.IPMuteKey(ip), func(ctx context.Context) (*domain.Punishment, error) {
		return e.Punishments.FindActiveIPMute(ctx, e.Store.DB(), ip, domain.Millis(e.now()))
	}, e.cfg.ActiveTTL)
	if err != nil {
		return nil, domain.ErrPersistence("find active ip mute", err)
	}
	return e.stillInEffect(p), nil
}

// stillInEffect drops a cached record that expired after it was loaded.
func (e *Engine) stillInEffect(p *domain.Punishment) *domain.Punishment {
	if p == nil || !p.IsInEffect(domain.Millis(e.now())) {
		return nil
	}
	return p
}

// GetHistory returns up to limit records for the identity, newest first.
func (e *Engine) GetHistory(ctx context.Context, id uuid.UUID, limit int) ([]domain.Punishment, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > historyCacheLimit {
		list, err := e.Punishments.History(ctx, e.Store.DB(), id, limit)
		if err != nil {
			return nil, domain.ErrPersistence("load history", err)
		}
		return list, nil
	}

	list, err := e.history.GetOrLoad(ctx, cache.HistoryKey(id), func(ctx context.Context) ([]domain.Punishment, error) {
		return e.Punishments.History(ctx, e.Store.DB(), id, historyCacheLimit)
	}, e.cfg.ActiveTTL)
	if err != nil {
		return nil, domain.ErrPersistence("load history", err)
	}
	if len(list) > limit {
		list = list[:limit]
	}
	return append([]domain.Punishment(nil), list...), nil
}

// Recent returns the newest records across every table. Uncached.
func (e *Engine) Recent(ctx context.Context, limit int) ([]domain.Punishment, error) {
	list, err := e.Punishments.Recent(ctx, e.Store.DB(), limit)
	if err != nil {
		return nil, domain.ErrPersistence("load recent punishments", err)
	}
	return list, nil
}

// FindByPublicID looks a punishment up by its six-character code.
func (e *Engine) FindByPublicID(ctx context.Context, code string) (*domain.Punishment, error) {
	code = strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(code), "#"))
	if err := domain.ValidatePublicID(code); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	p, err := e.Punishments.FindByPublicID(ctx, e.Store.DB(), code)
	if err != nil {
		return nil, domain.ErrPersistence("find punishment", err)
	}
	if p == nil {
		return nil, domain.ErrNotFound("punishment", code)
	}
	return p, nil
}

// LookupIdentity resolves a name through the identity cache.
func (e *Engine) LookupIdentity(ctx context.Context, name string) (*domain.Identity, error) {
	if err := domain.ValidatePlayerName(name); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	return e.resolve(ctx, name)
}
