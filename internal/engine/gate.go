package engine

import (
	"context"
	"time"

	"github.com/attaboy/warden/internal/cache"
	"github.com/attaboy/warden/internal/domain"
	"github.com/attaboy/warden/internal/executor"
	"github.com/google/uuid"
)

// CheckLogin returns the punishment that blocks a connection from id on ip,
// or nil when the login is allowed. Identity bans take precedence over IP bans.
func (e *Engine) CheckLogin(ctx context.Context, id uuid.UUID, ip string) (*domain.Punishment, error) {
	ban, err := e.GetActiveBan(ctx, id)
	if err != nil || ban != nil {
		return ban, err
	}
	if ip == "" {
		return nil, nil
	}
	return e.GetActiveIPBan(ctx, ip)
}

// RecordLogin appends a login history row and refreshes cached name resolution.
func (e *Engine) RecordLogin(ctx context.Context, rec domain.LoginRecord) error {
	if rec.Date.IsZero() {
		rec.Date = e.now().UTC().Truncate(time.Millisecond)
	}
	if err := e.History.Record(ctx, e.Store.DB(), rec); err != nil {
		return domain.ErrPersistence("record login", err)
	}
	e.identities.Invalidate(cache.IdentityKey(rec.Name))
	if f, ok := e.Alts.(interface{ Forget(uuid.UUID) }); ok {
		f.Forget(rec.UUID)
	}
	return nil
}

// ChatAllowed reports whether id may chat. An identity mute or an IP mute on
// the session's address blocks it. Called from the serial executor, it blocks
// on the pool for the mute lookups; this is the one place the simulation side
// waits on I/O.
func (e *Engine) ChatAllowed(ctx context.Context, id uuid.UUID) (bool, error) {
	ip, _ := e.Connections.Address(id)
	mute, err := executor.Go(e.Pool, func(ctx context.Context) (*domain.Punishment, error) {
		mute, err := e.GetActiveMute(ctx, id)
		if err != nil || mute != nil || ip == "" {
			return mute, err
		}
		return e.GetActiveIPMute(ctx, ip)
	}).Await(ctx)
	if err != nil {
		return false, err
	}
	return mute == nil, nil
}
