package engine

import (
	"context"

	"github.com/attaboy/warden/internal/domain"
)

// Warn records a warning. Warnings feed escalation and may decay.
func (e *Engine) Warn(ctx context.Context, req Request) (*domain.Punishment, error) {
	return e.apply(ctx, domain.TypeWarn, req, applyOptions{})
}

// Kick records a kick and disconnects the target wherever it is connected.
func (e *Engine) Kick(ctx context.Context, req Request) (*domain.Punishment, error) {
	return e.apply(ctx, domain.TypeKick, req, applyOptions{})
}
