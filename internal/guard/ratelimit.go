package guard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/attaboy/warden/internal/domain"
)

// Caller identifies a reporting API client. Authenticated reporters are
// limited per token subject; anonymous requests share a window per address.
type Caller struct {
	Subject string
	IP      string
}

// Key returns the window key for the caller.
func (c Caller) Key() string {
	if c.Subject != "" {
		return "reporter:" + c.Subject
	}
	return "ip:" + c.IP
}

// Decision is a rate limit verdict. RetryAfter is set on rejections.
type Decision struct {
	domain.GuardResult
	RetryAfter time.Duration
}

// RateLimiter is a sliding window limiter over reporting API callers.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	limit   int
	window  time.Duration
	now     func() time.Time
}

// NewRateLimiter allows limit requests per caller in each window. A limit
// below one disables limiting.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		windows: make(map[string][]time.Time),
		limit:   limit,
		window:  window,
		now:     time.Now,
	}
}

// Check records a request from caller if it fits in the window.
func (rl *RateLimiter) Check(_ context.Context, caller Caller) Decision {
	if rl.limit < 1 {
		return Decision{GuardResult: domain.GuardResult{Allowed: true}}
	}
	key := caller.Key()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	valid := rl.liveLocked(key, now)
	if len(valid) >= rl.limit {
		rl.windows[key] = valid
		return Decision{
			GuardResult: domain.GuardResult{
				Allowed: false,
				Reason:  fmt.Sprintf("rate limit exceeded for %s: %d/%s", key, rl.limit, rl.window),
				Guard:   "rate_limiter",
			},
			RetryAfter: valid[0].Add(rl.window).Sub(now),
		}
	}

	rl.windows[key] = append(valid, now)
	return Decision{GuardResult: domain.GuardResult{Allowed: true}}
}

// Sweep drops callers with no request inside the window and returns how many
// were removed.
func (rl *RateLimiter) Sweep() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for key := range rl.windows {
		if valid := rl.liveLocked(key, now); len(valid) == 0 {
			delete(rl.windows, key)
			removed++
		} else {
			rl.windows[key] = valid
		}
	}
	return removed
}

// StartSweep runs Sweep every interval until ctx is cancelled.
func (rl *RateLimiter) StartSweep(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.Sweep()
			}
		}
	}()
}

// Callers returns the number of tracked callers.
func (rl *RateLimiter) Callers() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.windows)
}

func (rl *RateLimiter) liveLocked(key string, now time.Time) []time.Time {
	cutoff := now.Add(-rl.window)
	entries := rl.windows[key]
	valid := entries[:0]
	for _, t := range entries {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	return valid
}
