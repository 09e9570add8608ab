package engine

import (
	"context"
	"time"

	"github.com/attaboy/warden/internal/domain"
)

// Schedule validates req now and stores it for execution at at. The lookahead
// ceiling is enforced by the scheduler.
func (e *Engine) Schedule(ctx context.Context, t domain.PunishmentType, req Request, at time.Time) (*domain.ScheduledPunishment, error) {
	if e.Scheduler == nil {
		return nil, domain.ErrInternal("scheduling is disabled", nil)
	}
	if err := domain.ValidateStruct(req); err != nil {
		return nil, err
	}
	if t.IsTemporary() && req.Duration <= 0 {
		return nil, domain.ErrValidation("duration must be positive")
	}
	if !at.After(e.now()) {
		return nil, domain.ErrValidation("execution time must be in the future")
	}
	if req.Duration > 0 {
		if err := domain.CheckDurationFrom(domain.Millis(at), req.Duration); err != nil {
			return nil, err
		}
	}
	ident, err := e.resolve(ctx, req.TargetName)
	if err != nil {
		return nil, err
	}
	if req.Staff.Is(ident.UUID) {
		return nil, domain.ErrSelfPunishment()
	}
	if err := e.checkDuration(t, req); err != nil {
		return nil, err
	}

	duration := domain.Permanent
	if t.IsTemporary() || (t == domain.TypeIPBan && req.Duration > 0) {
		duration = req.Duration
	}
	sp := &domain.ScheduledPunishment{
		Type:            t,
		TargetUUID:      ident.UUID,
		TargetName:      ident.Name,
		TargetIP:        ident.IP,
		Reason:          req.Reason,
		StaffUUID:       req.Staff.UUID,
		StaffName:       req.Staff.Name,
		ServerOrigin:    req.ServerOrigin,
		Silent:          req.Silent,
		IPScoped:        req.IPScoped,
		ExecutionTime:   domain.Millis(at),
		DurationSeconds: duration,
	}
	if sp.StaffName == "" {
		sp.StaffName = domain.ConsoleName
	}
	if err := e.Scheduler.Schedule(ctx, sp); err != nil {
		return nil, err
	}
	return sp, nil
}

// ApplyScheduled executes a claimed entry as its recorded staff. Limits were
// checked when the entry was created.
func (e *Engine) ApplyScheduled(ctx context.Context, sp domain.ScheduledPunishment) (*domain.Punishment, error) {
	staff := sp.Staff()
	staff.Admin = true
	req := Request{
		TargetName:   sp.TargetName,
		Reason:       sp.Reason,
		Staff:        staff,
		Silent:       sp.Silent,
		IPScoped:     sp.IPScoped,
		ServerOrigin: sp.ServerOrigin,
	}
	if sp.DurationSeconds > 0 {
		req.Duration = sp.DurationSeconds
	}
	ident := &domain.Identity{UUID: sp.TargetUUID, Name: sp.TargetName, IP: sp.TargetIP}
	return e.apply(ctx, sp.Type, req, applyOptions{identity: ident, derivative: sp.EscalationLevel > 0})
}
