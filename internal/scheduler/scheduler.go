// Package scheduler runs deferred punishments. Entries are claimed by
// deleting their row before execution, so each fires at most once; a failed
// or interrupted apply is logged and lost.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/attaboy/warden/internal/domain"
	"github.com/attaboy/warden/internal/executor"
	"github.com/attaboy/warden/internal/repository"
	"github.com/attaboy/warden/internal/store"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MinInterval is the shortest allowed poll interval.
const MinInterval = time.Second

var schedulerExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_scheduler_executions_total",
	Help: "Scheduled punishment executions by result (applied, failed, skipped)",
}, []string{"result"})

// Applier executes a claimed entry.
type Applier interface {
	ApplyScheduled(ctx context.Context, sp domain.ScheduledPunishment) (*domain.Punishment, error)
}

// Config tunes the poll loop.
type Config struct {
	Lookahead time.Duration
	Interval  time.Duration
	BatchSize int
}

// Scheduler stores and fires scheduled punishments.
type Scheduler struct {
	store  store.Store
	repo   repository.ScheduledRepository
	outbox repository.OutboxRepository
	pool   executor.Executor
	cfg    Config
	now    func() time.Time
	logger *slog.Logger
}

// New creates a scheduler. Interval is raised to MinInterval when below it.
func New(st store.Store, repo repository.ScheduledRepository, outbox repository.OutboxRepository, pool executor.Executor, cfg Config, logger *slog.Logger) *Scheduler {
	if cfg.Interval < MinInterval {
		cfg.Interval = MinInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Scheduler{
		store:  st,
		repo:   repo,
		outbox: outbox,
		pool:   pool,
		cfg:    cfg,
		now:    time.Now,
		logger: logger,
	}
}

// Schedule validates and stores sp, setting its ID and CreatedAt.
func (s *Scheduler) Schedule(ctx context.Context, sp *domain.ScheduledPunishment) error {
	now := s.now()
	if _, ok := domain.ParsePunishmentType(string(sp.Type)); !ok {
		return domain.ErrValidation(fmt.Sprintf("unknown punishment type %q", sp.Type))
	}
	if sp.Type.IsTemporary() && sp.DurationSeconds <= 0 {
		return domain.ErrValidation("temporary punishment needs a positive duration")
	}
	if sp.DurationSeconds > 0 {
		if err := domain.CheckDurationFrom(sp.ExecutionTime, sp.DurationSeconds); err != nil {
			return err
		}
	}
	if sp.ExecutionTime > domain.Millis(now.Add(s.cfg.Lookahead)) {
		return domain.ErrValidation(fmt.Sprintf("execution time is beyond the %s lookahead window", s.cfg.Lookahead))
	}
	sp.CreatedAt = now

	err := s.store.InTx(ctx, func(db repository.DBTX) error {
		if err := s.repo.Insert(ctx, db, sp); err != nil {
			return err
		}
		return s.outbox.Insert(ctx, db, domain.NewPunishmentScheduledEvent(sp, now))
	})
	if err != nil {
		return domain.ErrPersistence("schedule punishment", err)
	}

	s.logger.Info("punishment scheduled",
		"schedule_id", sp.ID, "uuid", sp.TargetUUID, "type", sp.Type,
		"execution_time", sp.ExecutionTime, "escalation_level", sp.EscalationLevel)
	return nil
}

// Cancel removes a pending entry. Returns false if it was already consumed.
func (s *Scheduler) Cancel(ctx context.Context, id int64) (bool, error) {
	ok, err := s.repo.Delete(ctx, s.store.DB(), id)
	if err != nil {
		return false, domain.ErrPersistence("cancel scheduled punishment", err)
	}
	return ok, nil
}

// Pending lists entries not yet consumed for the identity.
func (s *Scheduler) Pending(ctx context.Context, id uuid.UUID) ([]domain.ScheduledPunishment, error) {
	list, err := s.repo.ListPending(ctx, s.store.DB(), id)
	if err != nil {
		return nil, domain.ErrPersistence("list scheduled punishments", err)
	}
	return list, nil
}

// Start polls on the configured interval until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context, applier Applier) {
	s.logger.Info("scheduler started", "interval", s.cfg.Interval, "lookahead", s.cfg.Lookahead)

	go func() {
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("scheduler stopped")
				return
			case <-ticker.C:
				if _, err := s.Poll(ctx, applier); err != nil {
					s.logger.Error("scheduler poll error", "error", err)
				}
			}
		}
	}()
}

// Poll claims every due entry and hands it to the worker pool. Returns the
// number of entries claimed by this call.
func (s *Scheduler) Poll(ctx context.Context, applier Applier) (int, error) {
	db := s.store.DB()
	due, err := s.repo.FetchDue(ctx, db, domain.Millis(s.now()), s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	claimed := 0
	for _, sp := range due {
		ok, err := s.repo.Delete(ctx, db, sp.ID)
		if err != nil {
			s.logger.Error("scheduled punishment claim failed", "schedule_id", sp.ID, "error", err)
			continue
		}
		if !ok {
			// Another node claimed it first.
			schedulerExecutions.WithLabelValues("skipped").Inc()
			continue
		}
		claimed++

		sp := sp
		s.pool.Submit(func(ctx context.Context) {
			p, err := applier.ApplyScheduled(ctx, sp)
			if err != nil {
				schedulerExecutions.WithLabelValues("failed").Inc()
				s.logger.Error("scheduled punishment lost",
					"schedule_id", sp.ID, "uuid", sp.TargetUUID, "type", sp.Type, "error", err)
				return
			}
			schedulerExecutions.WithLabelValues("applied").Inc()
			s.logger.Info("scheduled punishment applied",
				"schedule_id", sp.ID, "uuid", sp.TargetUUID, "punishment_id", p.PublicID)
		})
	}
	return claimed, nil
}
