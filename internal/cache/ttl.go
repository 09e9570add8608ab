package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_cache_lookups_total",
		Help: "Cache lookups by cache name and result",
	}, []string{"cache", "result"})

	cacheEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_cache_evictions_total",
		Help: "Expired entries removed by the size-ceiling sweep",
	}, []string{"cache"})
)

// Loader fetches a value on cache miss.
type Loader[V any] func(ctx context.Context) (V, error)

type entry[V any] struct {
	value     V
	expiresAt int64 // unix ms
}

// TTL is a string-keyed cache with per-entry expiry. Concurrent misses on the
// same key each run their loader; there is no request coalescing.
type TTL[V any] struct {
	name       string
	maxEntries int
	now        func() time.Time

	mu   sync.Mutex
	data map[string]entry[V]
}

// Option configures a TTL cache.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New creates a TTL cache. name labels its metrics; maxEntries <= 0 disables the sweep.
func New[V any](name string, maxEntries int, opts ...Option) *TTL[V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &TTL[V]{
		name:       name,
		maxEntries: maxEntries,
		now:        o.now,
		data:       make(map[string]entry[V]),
	}
}

// GetOrLoad returns the fresh cached value for key or runs load and caches its
// result for ttl. Loader errors are returned and nothing is cached.
func (c *TTL[V]) GetOrLoad(ctx context.Context, key string, load Loader[V], ttl time.Duration) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := load(ctx)
	if err != nil {
		var zero V
		return zero, err
	}
	c.Set(key, v, ttl)
	return v, nil
}

// Get returns the value for key if present and unexpired.
func (c *TTL[V]) Get(key string) (V, bool) {
	now := c.now().UnixMilli()

	c.mu.Lock()
	e, ok := c.data[key]
	if ok && now >= e.expiresAt {
		delete(c.data, key)
		ok = false
	}
	c.mu.Unlock()

	if !ok {
		cacheLookups.WithLabelValues(c.name, "miss").Inc()
		var zero V
		return zero, false
	}
	cacheLookups.WithLabelValues(c.name, "hit").Inc()
	return e.value, true
}

// Set stores value under key until now+ttl.
func (c *TTL[V]) Set(key string, value V, ttl time.Duration) {
	now := c.now().UnixMilli()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = entry[V]{value: value, expiresAt: now + ttl.Milliseconds()}
	if c.maxEntries > 0 && len(c.data) > c.maxEntries {
		c.sweepLocked(now)
	}
}

// Invalidate removes key.
func (c *TTL[V]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.data, key)
	c.mu.Unlock()
}

// InvalidatePrefix removes every key starting with prefix and returns how many were removed.
func (c *TTL[V]) InvalidatePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.data {
		if strings.HasPrefix(k, prefix) {
			delete(c.data, k)
			n++
		}
	}
	return n
}

// Len returns the number of stored entries, including expired ones not yet swept.
func (c *TTL[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

// Sweep removes expired entries immediately.
func (c *TTL[V]) Sweep() int {
	now := c.now().UnixMilli()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked(now)
}

func (c *TTL[V]) sweepLocked(now int64) int {
	n := 0
	for k, e := range c.data {
		if now >= e.expiresAt {
			delete(c.data, k)
			n++
		}
	}
	if n > 0 {
		cacheEvictions.WithLabelValues(c.name).Add(float64(n))
	}
	return n
}
