// Package escalation tags applied punishments with a category, schedules
// automatic punishments when a warning threshold is reached and expires
// decayed warnings.
package escalation

import (
	"context"
	"log/slog"
	"time"

	"github.com/attaboy/warden/internal/domain"
	"github.com/attaboy/warden/internal/guard"
	"github.com/attaboy/warden/internal/policy"
	"github.com/attaboy/warden/internal/repository"
	"github.com/attaboy/warden/internal/store"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DecayActor is the removed_by_name stamped on warnings expired by the sweep.
const DecayActor = "#decay"

var (
	escalationsScheduled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_escalations_scheduled_total",
		Help: "Automatic punishments scheduled by category",
	}, []string{"category"})

	warningsDecayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warden_warnings_decayed_total",
		Help: "Warnings deactivated by the decay sweep",
	})
)

// Scheduler stores deferred punishments.
type Scheduler interface {
	Schedule(ctx context.Context, sp *domain.ScheduledPunishment) error
}

// Config toggles escalation and decay.
type Config struct {
	Enabled      bool
	Cooldown     time.Duration
	DecayEnabled bool
	DecayAfter   time.Duration
	SweepBatch   int
}

// Resolver implements category tagging, threshold escalation and warning decay.
type Resolver struct {
	store       store.Store
	punishments repository.PunishmentRepository
	metadata    repository.MetadataRepository
	outbox      repository.OutboxRepository
	rules       *policy.Rules
	sched       Scheduler
	cfg         Config
	locks       *guard.KeyedMutex
	now         func() time.Time
	logger      *slog.Logger

	onDecay func(id uuid.UUID)
}

// NewResolver creates a resolver. rules defaults to policy.DefaultRules.
func NewResolver(
	st store.Store,
	punishments repository.PunishmentRepository,
	metadata repository.MetadataRepository,
	outbox repository.OutboxRepository,
	rules *policy.Rules,
	sched Scheduler,
	cfg Config,
	logger *slog.Logger,
) *Resolver {
	if rules == nil {
		rules = policy.DefaultRules()
	}
	if cfg.SweepBatch <= 0 {
		cfg.SweepBatch = 100
	}
	return &Resolver{
		store:       st,
		punishments: punishments,
		metadata:    metadata,
		outbox:      outbox,
		rules:       rules,
		sched:       sched,
		cfg:         cfg,
		locks:       guard.NewKeyedMutex(),
		now:         time.Now,
		logger:      logger,
	}
}

// OnDecay registers a callback run for each identity whose warning decayed.
func (r *Resolver) OnDecay(fn func(id uuid.UUID)) {
	r.onDecay = fn
}

// Category classifies a reason.
func (r *Resolver) Category(reason string) string {
	return r.rules.ResolveCategory(reason)
}

// OnPunishmentApplied records metadata for p and, for warnings that bring the
// category count exactly to a rule threshold, schedules the escalation.
func (r *Resolver) OnPunishmentApplied(ctx context.Context, p domain.Punishment) error {
	unlock := r.locks.Lock(p.TargetUUID.String())
	defer unlock()

	category := r.rules.ResolveCategory(p.Reason)
	meta := domain.PunishmentMetadata{
		PublicID:    p.PublicID,
		TargetUUID:  p.TargetUUID,
		Category:    category,
		WarnDecayAt: domain.Permanent,
	}
	if p.Type == domain.TypeWarn && r.cfg.DecayEnabled && r.cfg.DecayAfter > 0 {
		meta.WarnDecayAt = p.CreatedAt + r.cfg.DecayAfter.Milliseconds()
	}

	db := r.store.DB()
	if err := r.metadata.Upsert(ctx, db, meta); err != nil {
		return err
	}
	if p.Type != domain.TypeWarn || !r.cfg.Enabled {
		return nil
	}

	now := r.now()
	count, err := r.punishments.CountActiveWarnings(ctx, db, p.TargetUUID, category, domain.Millis(now))
	if err != nil {
		return err
	}
	rule, ok := r.rules.RuleFor(count)
	if !ok {
		return nil
	}

	console := domain.Console()
	sp := &domain.ScheduledPunishment{
		Type:            rule.Type,
		TargetUUID:      p.TargetUUID,
		TargetName:      p.TargetName,
		TargetIP:        p.TargetIP,
		Reason:          rule.Reason,
		StaffName:       console.Name,
		ServerOrigin:    p.ServerOrigin,
		Silent:          true,
		ExecutionTime:   domain.Millis(now.Add(r.cfg.Cooldown)),
		DurationSeconds: rule.DurationSeconds,
		Category:        category,
		EscalationLevel: count,
	}
	if err := r.sched.Schedule(ctx, sp); err != nil {
		return err
	}

	escalationsScheduled.WithLabelValues(category).Inc()
	r.logger.Info("escalation scheduled",
		"uuid", p.TargetUUID, "category", category, "warnings", count,
		"type", rule.Type, "punishment_id", p.PublicID)
	return nil
}

// SweepDecayed deactivates warnings whose decay deadline has passed and drops
// their metadata. Returns the number of warnings deactivated.
func (r *Resolver) SweepDecayed(ctx context.Context) (int, error) {
	now := r.now()
	due, err := r.metadata.FindDecayed(ctx, r.store.DB(), domain.Millis(now), r.cfg.SweepBatch)
	if err != nil {
		return 0, err
	}

	rev := repository.Revocation{By: domain.Staff{Name: DecayActor}, At: now}
	decayed := 0
	for _, m := range due {
		var deactivated bool
		err := r.store.InTx(ctx, func(db repository.DBTX) error {
			ok, err := r.punishments.DeactivateByPublicID(ctx, db, domain.TableWarnings, m.PublicID, rev)
			if err != nil {
				return err
			}
			deactivated = ok
			if err := r.metadata.Delete(ctx, db, m.PublicID); err != nil {
				return err
			}
			if !ok {
				return nil
			}
			return r.outbox.Insert(ctx, db, domain.NewWarningDecayedEvent(m, now))
		})
		if err != nil {
			r.logger.Error("warning decay failed", "punishment_id", m.PublicID, "error", err)
			continue
		}
		if !deactivated {
			continue
		}
		decayed++
		warningsDecayed.Inc()
		if r.onDecay != nil {
			r.onDecay(m.TargetUUID)
		}
		r.logger.Info("warning decayed", "punishment_id", m.PublicID, "uuid", m.TargetUUID)
	}
	return decayed, nil
}

// StartDecaySweep runs SweepDecayed on interval until ctx is cancelled. It is
// a no-op when decay is disabled.
func (r *Resolver) StartDecaySweep(ctx context.Context, interval time.Duration) {
	if !r.cfg.DecayEnabled {
		return
	}
	r.logger.Info("decay sweep started", "interval", interval, "decay_after", r.cfg.DecayAfter)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				r.logger.Info("decay sweep stopped")
				return
			case <-ticker.C:
				if _, err := r.SweepDecayed(ctx); err != nil {
					r.logger.Error("decay sweep error", "error", err)
				}
			}
		}
	}()
}
