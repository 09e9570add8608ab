// Package engine is the punishment lifecycle orchestrator: it validates
// moderation requests, writes punishment records and drives the side effects
// that follow a successful write.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/attaboy/warden/internal/cache"
	"github.com/attaboy/warden/internal/domain"
	"github.com/attaboy/warden/internal/executor"
	"github.com/attaboy/warden/internal/guard"
	"github.com/attaboy/warden/internal/notice"
	"github.com/attaboy/warden/internal/relay"
	"github.com/attaboy/warden/internal/repository"
	"github.com/attaboy/warden/internal/store"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var engineApplies = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_engine_applies_total",
	Help: "Punishment apply attempts by type and result",
}, []string{"type", "result"})

// IdentityResolver maps a display name to a stable identity. It returns nil,
// nil when the name is unknown.
type IdentityResolver interface {
	Resolve(ctx context.Context, name string) (*domain.Identity, error)
}

// Connections is the live-session view. Methods are only called from the
// serial executor.
type Connections interface {
	Lookup(id uuid.UUID) (online, exempt bool)
	Address(id uuid.UUID) (ip string, ok bool)
	Kick(id uuid.UUID, message string) bool
}

// Broadcaster shows a notice to every connected player.
type Broadcaster interface {
	Broadcast(ctx context.Context, text string) error
}

// Relay carries proxy messages to sibling processes.
type Relay interface {
	Send(ctx context.Context, m relay.Message) error
}

// AltFinder lists identities correlated with id.
type AltFinder interface {
	FindAlts(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error)
}

// Escalator receives every non-derivative punishment after it is written.
type Escalator interface {
	OnPunishmentApplied(ctx context.Context, p domain.Punishment) error
}

// Scheduler stores deferred punishments.
type Scheduler interface {
	Schedule(ctx context.Context, sp *domain.ScheduledPunishment) error
}

// Config holds engine policy.
type Config struct {
	ServerName               string
	MaxTempBan               time.Duration
	MaxTempMute              time.Duration
	BroadcastSilentByDefault bool
	AltCascade               bool
	ActiveTTL                time.Duration
	IdentityTTL              time.Duration
	CacheMaxEntries          int
}

// Deps are the engine's collaborators. Alts, Escalation and Scheduler may be
// nil to disable cascade, escalation and scheduling.
type Deps struct {
	Store       store.Store
	Punishments repository.PunishmentRepository
	History     repository.HistoryRepository
	Outbox      repository.OutboxRepository
	Appeals     repository.AppealRepository

	Identities  IdentityResolver
	Connections Connections
	Broadcaster Broadcaster
	Formatter   notice.Formatter
	Relay       Relay
	Alts        AltFinder
	Escalation  Escalator
	Scheduler   Scheduler

	Pool   executor.Executor
	Serial executor.Executor
	Logger *slog.Logger
}

// Engine applies, revokes and answers queries about punishments.
type Engine struct {
	Deps
	cfg Config

	active     *cache.TTL[*domain.Punishment]
	history    *cache.TTL[[]domain.Punishment]
	identities *cache.TTL[*domain.Identity]
	locks      *guard.KeyedMutex
	now        func() time.Time
	logger     *slog.Logger
}

// New creates an engine. Identities defaults to the login-history resolver
// and Broadcaster to the relay.
func New(d Deps, cfg Config) *Engine {
	if d.Identities == nil {
		d.Identities = NewHistoryResolver(d.Store, d.History)
	}
	if d.Broadcaster == nil {
		d.Broadcaster = RelayBroadcaster{Relay: d.Relay}
	}
	if d.Formatter == nil {
		d.Formatter = notice.NewTemplates(nil)
	}
	if cfg.ServerName == "" {
		cfg.ServerName = "global"
	}
	return &Engine{
		Deps:       d,
		cfg:        cfg,
		active:     cache.New[*domain.Punishment]("active", cfg.CacheMaxEntries),
		history:    cache.New[[]domain.Punishment]("history", cfg.CacheMaxEntries),
		identities: cache.New[*domain.Identity]("identity", cfg.CacheMaxEntries),
		locks:      guard.NewKeyedMutex(),
		now:        time.Now,
		logger:     d.Logger,
	}
}

// InvalidateIdentity drops the cached ban, mute and history entries for id.
func (e *Engine) InvalidateIdentity(id uuid.UUID) {
	for _, k := range cache.IdentityKeys(id) {
		e.active.Invalidate(k)
		e.history.Invalidate(k)
	}
}

// HandleRelay applies a message received from a sibling process.
func (e *Engine) HandleRelay(m relay.Message) {
	switch m.Action {
	case relay.ActionInvalidatePlayer:
		id, err := uuid.Parse(m.UUID)
		if err != nil {
			e.logger.Warn("relay invalidate with bad uuid", "uuid", m.UUID)
			return
		}
		e.InvalidateIdentity(id)
		e.active.InvalidatePrefix(cache.IPBanPrefix)
		e.active.InvalidatePrefix(cache.IPMutePrefix)
	case relay.ActionKickPlayer:
		e.Pool.Submit(func(ctx context.Context) {
			ident, err := e.resolve(ctx, m.PlayerName)
			if err != nil || ident == nil {
				return
			}
			e.Serial.Submit(func(context.Context) {
				if e.Connections.Kick(ident.UUID, m.KickMessage) {
					e.logger.Info("relayed kick enforced", "uuid", ident.UUID, "origin", m.Origin)
				}
			})
		})
	}
}
