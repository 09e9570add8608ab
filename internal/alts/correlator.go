// Package alts finds identities that share login IPs with a player.
package alts

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/attaboy/warden/internal/cache"
	"github.com/attaboy/warden/internal/repository"
	"github.com/attaboy/warden/internal/store"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// maxParallelIPs bounds concurrent second-hop queries.
const maxParallelIPs = 4

// Correlator walks the identity to IP graph from login history. Traversal
// stops after two hops: identity, its IPs, the identities on those IPs.
type Correlator struct {
	store   store.Store
	history repository.HistoryRepository
	cache   *cache.TTL[[]uuid.UUID]
	ttl     time.Duration
}

// NewCorrelator creates a correlator whose results are cached for ttl.
func NewCorrelator(st store.Store, history repository.HistoryRepository, c *cache.TTL[[]uuid.UUID], ttl time.Duration) *Correlator {
	return &Correlator{store: st, history: history, cache: c, ttl: ttl}
}

// FindAlts returns every other identity seen on any IP the identity used,
// sorted by UUID string.
func (c *Correlator) FindAlts(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	return c.cache.GetOrLoad(ctx, cache.AltsKey(id), func(ctx context.Context) ([]uuid.UUID, error) {
		return c.walk(ctx, id)
	}, c.ttl)
}

// FindSharedIPs returns the identity's IPs that some other identity also used.
// Uncached.
func (c *Correlator) FindSharedIPs(ctx context.Context, id uuid.UUID) ([]string, error) {
	return c.history.SharedIPs(ctx, c.store.DB(), id)
}

// Forget drops the cached alt set for id.
func (c *Correlator) Forget(id uuid.UUID) {
	c.cache.Invalidate(cache.AltsKey(id))
}

func (c *Correlator) walk(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	db := c.store.DB()
	ips, err := c.history.IPsFor(ctx, db, id)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	seen := make(map[uuid.UUID]struct{})
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelIPs)
	for _, ip := range ips {
		g.Go(func() error {
			ids, err := c.history.IdentitiesFor(gctx, db, ip)
			if err != nil {
				return err
			}
			mu.Lock()
			for _, other := range ids {
				if other != id {
					seen[other] = struct{}{}
				}
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]uuid.UUID, 0, len(seen))
	for other := range seen {
		out = append(out, other)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}
