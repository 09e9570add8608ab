package engine

import (
	"context"
	"strconv"
	"strings"

	"github.com/attaboy/warden/internal/domain"
	"github.com/attaboy/warden/internal/repository"
	"github.com/google/uuid"
)

const maxAppealLength = 1000

// SubmitAppeal files an appeal by the punished player against an in-effect punishment.
func (e *Engine) SubmitAppeal(ctx context.Context, publicID string, player uuid.UUID, message string) (*domain.Appeal, error) {
	message = strings.TrimSpace(message)
	if message == "" || len(message) > maxAppealLength {
		return nil, domain.ErrValidation("appeal message must be 1-1000 characters")
	}
	p, err := e.FindByPublicID(ctx, publicID)
	if err != nil {
		return nil, err
	}
	if p.TargetUUID != player {
		return nil, domain.ErrNotFound("punishment", p.PublicID)
	}
	now := e.now()
	if !p.IsInEffect(domain.Millis(now)) {
		return nil, domain.ErrValidation("punishment is no longer in effect")
	}

	a := &domain.Appeal{
		PublicID:  p.PublicID,
		UUID:      player,
		Message:   message,
		Status:    domain.AppealPending,
		CreatedAt: now,
	}
	err = e.Store.InTx(ctx, func(db repository.DBTX) error {
		if err := e.Appeals.Insert(ctx, db, a); err != nil {
			return err
		}
		return e.Outbox.Insert(ctx, db, domain.NewAppealEvent(a, now))
	})
	if err != nil {
		return nil, domain.ErrPersistence("submit appeal", err)
	}
	e.logger.Info("appeal submitted", "appeal_id", a.ID, "punishment_id", a.PublicID, "uuid", player)
	return a, nil
}

// ResolveAppeal accepts or denies a pending appeal. Accepting revokes the punishment.
func (e *Engine) ResolveAppeal(ctx context.Context, id int64, accept bool, staff domain.Staff) (*domain.Appeal, error) {
	a, err := e.Appeals.FindByID(ctx, e.Store.DB(), id)
	if err != nil {
		return nil, domain.ErrPersistence("find appeal", err)
	}
	if a == nil || a.Status != domain.AppealPending {
		return nil, domain.ErrNotFound("pending appeal", strconv.FormatInt(id, 10))
	}

	now := e.now()
	a.Status = domain.AppealDenied
	if accept {
		a.Status = domain.AppealAccepted
	}
	a.ResolvedBy = staff.Name
	a.ResolvedAt = &now

	var ok bool
	err = e.Store.InTx(ctx, func(db repository.DBTX) error {
		var err error
		ok, err = e.Appeals.Resolve(ctx, db, a.ID, a.Status, staff.Name, now)
		if err != nil || !ok {
			return err
		}
		return e.Outbox.Insert(ctx, db, domain.NewAppealEvent(a, now))
	})
	if err != nil {
		return nil, domain.ErrPersistence("resolve appeal", err)
	}
	if !ok {
		return nil, domain.ErrNotFound("pending appeal", strconv.FormatInt(id, 10))
	}

	if accept {
		if _, err := e.RevokeByPublicID(ctx, a.PublicID, staff); err != nil {
			return a, err
		}
	}
	e.logger.Info("appeal resolved", "appeal_id", a.ID, "status", a.Status, "staff", staff.Name)
	return a, nil
}

// ListPendingAppeals returns the oldest pending appeals first.
func (e *Engine) ListPendingAppeals(ctx context.Context, limit int) ([]domain.Appeal, error) {
	list, err := e.Appeals.ListPending(ctx, e.Store.DB(), limit)
	if err != nil {
		return nil, domain.ErrPersistence("list appeals", err)
	}
	return list, nil
}
