package engine

import (
	"context"

	"github.com/attaboy/warden/internal/domain"
)

// Ban permanently bans the target.
func (e *Engine) Ban(ctx context.Context, req Request) (*domain.Punishment, error) {
	return e.apply(ctx, domain.TypeBan, req, applyOptions{})
}

// TempBan bans the target for req.Duration seconds.
func (e *Engine) TempBan(ctx context.Context, req Request) (*domain.Punishment, error) {
	return e.apply(ctx, domain.TypeTempBan, req, applyOptions{})
}

// IPBan bans the target's last-known IP, permanently unless req.Duration is set.
func (e *Engine) IPBan(ctx context.Context, req Request) (*domain.Punishment, error) {
	return e.apply(ctx, domain.TypeIPBan, req, applyOptions{})
}

// Unban lifts the target's active ban. It returns false when none was active.
func (e *Engine) Unban(ctx context.Context, targetName string, staff domain.Staff) (bool, error) {
	return e.revoke(ctx, domain.TableBans, domain.TypeBan, targetName, staff)
}
