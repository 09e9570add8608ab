package engine

import (
	"context"

	"github.com/attaboy/warden/internal/cache"
	"github.com/attaboy/warden/internal/domain"
	"github.com/attaboy/warden/internal/notice"
	"github.com/attaboy/warden/internal/relay"
	"github.com/attaboy/warden/internal/repository"
)

// revoke deactivates the newest in-effect record in table with one conditional update.
func (e *Engine) revoke(ctx context.Context, table domain.Table, t domain.PunishmentType, targetName string, staff domain.Staff) (bool, error) {
	if err := domain.ValidatePlayerName(targetName); err != nil {
		return false, domain.ErrValidation(err.Error())
	}
	ident, err := e.resolve(ctx, targetName)
	if err != nil {
		return false, err
	}

	now := e.now()
	rev := repository.Revocation{By: staff, At: now}
	var publicID string
	var ok bool
	err = e.Store.InTx(ctx, func(db repository.DBTX) error {
		var err error
		publicID, ok, err = e.Punishments.RevokeActive(ctx, db, table, ident.UUID, domain.Millis(now), rev)
		if err != nil || !ok {
			return err
		}
		return e.Outbox.Insert(ctx, db, domain.NewPunishmentRevokedEvent(publicID, ident.UUID, t, staff, now))
	})
	if err != nil {
		return false, domain.ErrPersistence("revoke punishment", err)
	}
	if !ok {
		return false, nil
	}

	e.InvalidateIdentity(ident.UUID)
	e.invalidateIPScoped(table)
	e.logger.Info("punishment revoked", "punishment_id", publicID, "uuid", ident.UUID, "staff", staff.Name)

	shown := domain.Punishment{Type: t, PublicID: publicID, TargetUUID: ident.UUID, TargetName: ident.Name, StaffName: staff.Name}
	e.Pool.Submit(func(ctx context.Context) {
		e.afterRevoke(ctx, shown)
	})
	return true, nil
}

// RevokeByPublicID deactivates one record by code, whatever its type.
func (e *Engine) RevokeByPublicID(ctx context.Context, publicID string, staff domain.Staff) (bool, error) {
	p, err := e.FindByPublicID(ctx, publicID)
	if err != nil {
		return false, err
	}
	if !p.Active {
		return false, nil
	}

	now := e.now()
	var ok bool
	err = e.Store.InTx(ctx, func(db repository.DBTX) error {
		var err error
		ok, err = e.Punishments.DeactivateByPublicID(ctx, db, p.Type.Table(), p.PublicID, repository.Revocation{By: staff, At: now})
		if err != nil || !ok {
			return err
		}
		return e.Outbox.Insert(ctx, db, domain.NewPunishmentRevokedEvent(p.PublicID, p.TargetUUID, p.Type, staff, now))
	})
	if err != nil {
		return false, domain.ErrPersistence("revoke punishment", err)
	}
	if !ok {
		return false, nil
	}

	e.InvalidateIdentity(p.TargetUUID)
	if p.IPScoped {
		e.invalidateIPScoped(p.Type.Table())
	}
	e.logger.Info("punishment revoked", "punishment_id", p.PublicID, "uuid", p.TargetUUID, "staff", staff.Name)

	shown := *p
	shown.StaffName = staff.Name
	e.Pool.Submit(func(ctx context.Context) {
		e.afterRevoke(ctx, shown)
	})
	return true, nil
}

// invalidateIPScoped drops every cached IP lookup backed by table.
func (e *Engine) invalidateIPScoped(table domain.Table) {
	switch table {
	case domain.TableBans:
		e.active.InvalidatePrefix(cache.IPBanPrefix)
	case domain.TableMutes:
		e.active.InvalidatePrefix(cache.IPMutePrefix)
	}
}

func (e *Engine) afterRevoke(ctx context.Context, p domain.Punishment) {
	if err := e.Relay.Send(ctx, relay.Invalidate(p.TargetUUID.String())); err != nil {
		e.logger.Warn("relay invalidate failed", "uuid", p.TargetUUID, "error", err)
	}
	if p.Type == domain.TypeWarn || p.Type == domain.TypeKick || e.cfg.BroadcastSilentByDefault {
		return
	}
	text := e.Formatter.Format(notice.Key(p.Type, notice.KindRevoke), p)
	if err := e.Broadcaster.Broadcast(ctx, text); err != nil {
		e.logger.Warn("broadcast failed", "punishment_id", p.PublicID, "error", err)
	}
}
