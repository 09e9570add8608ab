package engine

import (
	"context"

	"github.com/attaboy/warden/internal/domain"
	"github.com/attaboy/warden/internal/notice"
	"github.com/attaboy/warden/internal/relay"
	"github.com/google/uuid"
)

// afterApply runs on the worker pool once the record is durable. Every step
// is independent; failures are logged and never undo the punishment.
func (e *Engine) afterApply(ctx context.Context, p domain.Punishment, opts applyOptions) {
	if err := e.Relay.Send(ctx, relay.Invalidate(p.TargetUUID.String())); err != nil {
		e.logger.Warn("relay invalidate failed", "uuid", p.TargetUUID, "error", err)
	}

	if p.Type.IsBanClass() || p.Type == domain.TypeKick {
		e.enforce(p)
	}

	if e.shouldBroadcast(p.Silent) {
		text := e.Formatter.Format(notice.Key(p.Type, notice.KindBroadcast), p)
		if err := e.Broadcaster.Broadcast(ctx, text); err != nil {
			e.logger.Warn("broadcast failed", "punishment_id", p.PublicID, "error", err)
		}
	}

	if opts.derivative {
		return
	}

	if p.Type.IsBanClass() && e.cfg.AltCascade && e.Alts != nil {
		e.cascade(ctx, p)
	}

	if e.Escalation != nil {
		if err := e.Escalation.OnPunishmentApplied(ctx, p); err != nil {
			e.logger.Warn("escalation failed", "punishment_id", p.PublicID, "error", err)
		}
	}
}

// shouldBroadcast applies the silent flag relative to the server default:
// a silent request on a silent-by-default server is announced.
func (e *Engine) shouldBroadcast(silent bool) bool {
	return silent == e.cfg.BroadcastSilentByDefault
}

// enforce disconnects the target locally when connected here, otherwise asks
// the proxy to do it. The session read hops to the serial executor and the
// relay send hops back to the pool.
func (e *Engine) enforce(p domain.Punishment) {
	msg := e.Formatter.Format(notice.Key(p.Type, notice.KindScreen), p)
	e.Serial.Submit(func(context.Context) {
		if e.Connections.Kick(p.TargetUUID, msg) {
			e.logger.Info("target disconnected", "uuid", p.TargetUUID, "punishment_id", p.PublicID)
			return
		}
		e.Pool.Submit(func(ctx context.Context) {
			if err := e.Relay.Send(ctx, relay.Kick(p.TargetName, msg)); err != nil {
				e.logger.Warn("relay kick failed", "uuid", p.TargetUUID, "error", err)
			}
		})
	})
}

// cascade applies a silent derivative of p to every correlated identity that
// is not already banned.
func (e *Engine) cascade(ctx context.Context, p domain.Punishment) {
	alts, err := e.Alts.FindAlts(ctx, p.TargetUUID)
	if err != nil {
		e.logger.Warn("alt lookup failed", "uuid", p.TargetUUID, "error", err)
		return
	}

	staff := domain.Staff{UUID: p.StaffUUID, Name: p.StaffName, Admin: true}
	var duration int64
	if !p.IsPermanent() {
		duration = (p.ExpiresAt - p.CreatedAt) / 1000
	}

	for _, alt := range alts {
		if staff.Is(alt) {
			continue
		}
		ident, err := e.identityByUUID(ctx, alt)
		if err != nil || ident == nil {
			e.logger.Warn("alt identity lookup failed", "uuid", alt, "error", err)
			continue
		}
		if ban, err := e.GetActiveBan(ctx, alt); err != nil || ban != nil {
			continue
		}

		req := Request{
			TargetName:   ident.Name,
			Reason:       p.Reason,
			Staff:        staff,
			Duration:     duration,
			Silent:       true,
			IPScoped:     p.IPScoped,
			ServerOrigin: p.ServerOrigin,
		}
		d, err := e.apply(ctx, p.Type, req, applyOptions{identity: ident, derivative: true})
		if err != nil {
			e.logger.Warn("alt cascade failed", "uuid", alt, "source", p.PublicID, "error", err)
			continue
		}
		e.logger.Info("alt punished", "uuid", alt, "punishment_id", d.PublicID, "source", p.PublicID)
	}
}

// identityByUUID returns the last-known name and IP for id, or nil.
func (e *Engine) identityByUUID(ctx context.Context, id uuid.UUID) (*domain.Identity, error) {
	rec, err := e.History.LatestByUUID(ctx, e.Store.DB(), id)
	if err != nil || rec == nil {
		return nil, err
	}
	return &domain.Identity{UUID: rec.UUID, Name: rec.Name, IP: rec.IP}, nil
}
