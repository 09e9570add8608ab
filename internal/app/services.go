package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/attaboy/warden/internal/alts"
	"github.com/attaboy/warden/internal/cache"
	"github.com/attaboy/warden/internal/engine"
	"github.com/attaboy/warden/internal/escalation"
	"github.com/attaboy/warden/internal/executor"
	"github.com/attaboy/warden/internal/guard"
	"github.com/attaboy/warden/internal/infra"
	"github.com/attaboy/warden/internal/notice"
	"github.com/attaboy/warden/internal/policy"
	"github.com/attaboy/warden/internal/relay"
	"github.com/attaboy/warden/internal/repository"
	"github.com/attaboy/warden/internal/scheduler"
	"github.com/attaboy/warden/internal/session"
	"github.com/attaboy/warden/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
)

// Services is the assembled punishment stack shared by wardend and modctl.
type Services struct {
	Store      *store.PG
	Engine     *engine.Engine
	Relay      *relay.Relay
	Sessions   *session.Registry
	Scheduler  *scheduler.Scheduler
	Escalation *escalation.Resolver
	Alts       *alts.Correlator
	NATS       *nats.Conn

	Outbox repository.OutboxRepository
	Audit  repository.AuditRepository

	pool   *executor.Pool
	serial *executor.Serial
	sub    *nats.Subscription
	logger *slog.Logger
}

// NewServices wires repositories, executors, relay, scheduler, escalation and
// the engine over pool. Background loops are not started; see Start.
func NewServices(ctx context.Context, cfg *infra.Config, pool *pgxpool.Pool, logger *slog.Logger) (*Services, error) {
	st := store.New(pool, logger)

	punishments := repository.NewPunishmentRepository()
	history := repository.NewHistoryRepository()
	scheduled := repository.NewScheduledRepository()
	metadata := repository.NewMetadataRepository()
	outbox := repository.NewOutboxRepository()
	appeals := repository.NewAppealRepository()

	templates, err := notice.LoadTemplates(cfg.NoticeTemplatesPath)
	if err != nil {
		return nil, fmt.Errorf("load notice templates: %w", err)
	}
	rules, err := policy.LoadRules(cfg.EscalationRulesPath)
	if err != nil {
		return nil, err
	}

	workers := executor.NewPool(ctx, cfg.WorkerPoolSize, logger)
	serial := executor.NewSerial(ctx, 256, logger)

	rel := relay.New(cfg.ServerName, cfg.RelayQueueCapacity,
		guard.NewCircuitBreaker(cfg.RelayBreakerLimit, cfg.RelayBreakerReset), logger)
	sessions := session.NewRegistry(rel.FlushAsync, logger)
	rel.AttachCarriers(sessions)

	nc, err := infra.NewNATSConn(cfg, rel.FlushAsync, logger)
	if err != nil {
		return nil, err
	}
	if nc != nil {
		rel.AttachTransport(relay.NewNATSTransport(nc, cfg.RelaySubject))
	}

	sched := scheduler.New(st, scheduled, outbox, workers, scheduler.Config{
		Lookahead: cfg.SchedulerLookahead,
		Interval:  cfg.SchedulerInterval,
		BatchSize: cfg.SchedulerBatch,
	}, logger)

	resolver := escalation.NewResolver(st, punishments, metadata, outbox, rules, sched, escalation.Config{
		Enabled:      cfg.EscalationEnabled,
		Cooldown:     cfg.EscalationCooldown,
		DecayEnabled: cfg.WarnDecayEnabled,
		DecayAfter:   cfg.WarnDecayAfter,
	}, logger)

	correlator := alts.NewCorrelator(st, history, cache.New[[]uuid.UUID]("alts", cfg.CacheMaxEntries), cfg.CacheAltTTL)

	eng := engine.New(engine.Deps{
		Store:       st,
		Punishments: punishments,
		History:     history,
		Outbox:      outbox,
		Appeals:     appeals,
		Connections: sessions,
		Formatter:   templates,
		Relay:       rel,
		Alts:        correlator,
		Escalation:  resolver,
		Scheduler:   sched,
		Pool:        workers,
		Serial:      serial,
		Logger:      logger,
	}, engine.Config{
		ServerName:               cfg.ServerName,
		MaxTempBan:               cfg.MaxTempBan,
		MaxTempMute:              cfg.MaxTempMute,
		BroadcastSilentByDefault: cfg.BroadcastSilentDefault,
		AltCascade:               cfg.AltCascadeEnabled,
		ActiveTTL:                cfg.CacheActiveTTL,
		IdentityTTL:              cfg.CacheIdentityTTL,
		CacheMaxEntries:          cfg.CacheMaxEntries,
	})
	resolver.OnDecay(eng.InvalidateIdentity)

	svc := &Services{
		Store:      st,
		Engine:     eng,
		Relay:      rel,
		Sessions:   sessions,
		Scheduler:  sched,
		Escalation: resolver,
		Alts:       correlator,
		NATS:       nc,
		Outbox:     outbox,
		Audit:      repository.NewAuditRepository(),
		pool:       workers,
		serial:     serial,
		logger:     logger,
	}

	if nc != nil {
		sub, err := relay.Listen(nc, cfg.RelaySubject, cfg.ServerName, eng.HandleRelay, logger)
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("subscribe relay: %w", err)
		}
		svc.sub = sub
	}
	return svc, nil
}

// Start launches the scheduler poll loop and the warning decay sweep.
func (s *Services) Start(ctx context.Context, cfg *infra.Config) {
	s.Scheduler.Start(ctx, s.Engine)
	s.Escalation.StartDecaySweep(ctx, cfg.DecaySweepInterval)
}

// Close stops relay intake, drains the executors and closes the NATS
// connection. Queued relay messages get one last flush attempt.
func (s *Services) Close() {
	if s.sub != nil {
		if err := s.sub.Unsubscribe(); err != nil {
			s.logger.Warn("relay unsubscribe failed", "error", err)
		}
	}
	s.pool.Wait()
	s.serial.Close()
	if n := s.Relay.Len(); n > 0 {
		s.Relay.Flush(context.Background())
		if left := s.Relay.Len(); left > 0 {
			s.logger.Warn("relay messages lost on shutdown", "count", left)
		}
	}
	if s.NATS != nil {
		if err := s.NATS.Drain(); err != nil {
			s.NATS.Close()
		}
	}
}
