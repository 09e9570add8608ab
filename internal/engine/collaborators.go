package engine

import (
	"context"
	"errors"

	"github.com/attaboy/warden/internal/domain"
	"github.com/attaboy/warden/internal/relay"
	"github.com/attaboy/warden/internal/repository"
	"github.com/attaboy/warden/internal/store"
)

// HistoryResolver resolves names from the most recent login record.
type HistoryResolver struct {
	store   store.Store
	history repository.HistoryRepository
}

// NewHistoryResolver creates the default IdentityResolver.
func NewHistoryResolver(st store.Store, history repository.HistoryRepository) *HistoryResolver {
	return &HistoryResolver{store: st, history: history}
}

func (r *HistoryResolver) Resolve(ctx context.Context, name string) (*domain.Identity, error) {
	rec, err := r.history.LatestByName(ctx, r.store.DB(), name)
	if err != nil || rec == nil {
		return nil, err
	}
	return &domain.Identity{UUID: rec.UUID, Name: rec.Name, IP: rec.IP}, nil
}

// RelayBroadcaster sends notices to the proxy tier as BROADCAST messages.
type RelayBroadcaster struct {
	Relay Relay
}

func (b RelayBroadcaster) Broadcast(ctx context.Context, text string) error {
	if b.Relay == nil {
		return errors.New("no relay configured")
	}
	return b.Relay.Send(ctx, relay.Broadcast(text))
}
