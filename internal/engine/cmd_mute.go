package engine

import (
	"context"

	"github.com/attaboy/warden/internal/domain"
)

// Mute permanently mutes the target.
func (e *Engine) Mute(ctx context.Context, req Request) (*domain.Punishment, error) {
	return e.apply(ctx, domain.TypeMute, req, applyOptions{})
}

// TempMute mutes the target for req.Duration seconds.
func (e *Engine) TempMute(ctx context.Context, req Request) (*domain.Punishment, error) {
	return e.apply(ctx, domain.TypeTempMute, req, applyOptions{})
}

// IPMute mutes the target's IP: a temporary mute when req.Duration is set.
func (e *Engine) IPMute(ctx context.Context, req Request) (*domain.Punishment, error) {
	req.IPScoped = true
	if req.Duration > 0 {
		return e.apply(ctx, domain.TypeTempMute, req, applyOptions{})
	}
	return e.apply(ctx, domain.TypeMute, req, applyOptions{})
}

// VoiceMute records a voice-chat mute. Enforcement belongs to the voice integration.
func (e *Engine) VoiceMute(ctx context.Context, req Request) (*domain.Punishment, error) {
	return e.apply(ctx, domain.TypeVoiceMute, req, applyOptions{})
}

// Unmute lifts the target's active mute. It returns false when none was active.
func (e *Engine) Unmute(ctx context.Context, targetName string, staff domain.Staff) (bool, error) {
	return e.revoke(ctx, domain.TableMutes, domain.TypeMute, targetName, staff)
}
