package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/attaboy/warden/internal/app"
	"github.com/attaboy/warden/internal/domain"
	"github.com/attaboy/warden/internal/engine"
	"github.com/attaboy/warden/internal/infra"
	"github.com/attaboy/warden/internal/store"
	"github.com/google/uuid"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	if err := newRootCmd(openEngine(logger)).Execute(); err != nil {
		os.Exit(1)
	}
}

// operator is the slice of the engine modctl drives.
type operator interface {
	Ban(ctx context.Context, req engine.Request) (*domain.Punishment, error)
	TempBan(ctx context.Context, req engine.Request) (*domain.Punishment, error)
	IPBan(ctx context.Context, req engine.Request) (*domain.Punishment, error)
	Mute(ctx context.Context, req engine.Request) (*domain.Punishment, error)
	TempMute(ctx context.Context, req engine.Request) (*domain.Punishment, error)
	VoiceMute(ctx context.Context, req engine.Request) (*domain.Punishment, error)
	Warn(ctx context.Context, req engine.Request) (*domain.Punishment, error)
	Kick(ctx context.Context, req engine.Request) (*domain.Punishment, error)

	Unban(ctx context.Context, targetName string, staff domain.Staff) (bool, error)
	Unmute(ctx context.Context, targetName string, staff domain.Staff) (bool, error)
	RevokeByPublicID(ctx context.Context, publicID string, staff domain.Staff) (bool, error)

	LookupIdentity(ctx context.Context, name string) (*domain.Identity, error)
	GetHistory(ctx context.Context, id uuid.UUID, limit int) ([]domain.Punishment, error)
	FindByPublicID(ctx context.Context, code string) (*domain.Punishment, error)

	Schedule(ctx context.Context, t domain.PunishmentType, req engine.Request, at time.Time) (*domain.ScheduledPunishment, error)
	ListPendingAppeals(ctx context.Context, limit int) ([]domain.Appeal, error)
	ResolveAppeal(ctx context.Context, id int64, accept bool, staff domain.Staff) (*domain.Appeal, error)
}

// opener connects an operator. The returned func releases it once side
// effects have drained.
type opener func(ctx context.Context) (operator, func(), error)

func openEngine(logger *slog.Logger) opener {
	return func(ctx context.Context) (operator, func(), error) {
		cfg, err := infra.LoadConfig()
		if err != nil {
			return nil, nil, fmt.Errorf("load config: %w", err)
		}
		pool, err := infra.NewPostgresPool(ctx, cfg, store.Tracer{})
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		svc, err := app.NewServices(ctx, cfg, pool, logger)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return svc.Engine, func() {
			svc.Close()
			pool.Close()
		}, nil
	}
}
