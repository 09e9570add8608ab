package guard

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaller_Key(t *testing.T) {
	tests := []struct {
		name   string
		caller Caller
		want   string
	}{
		{"reporter", Caller{Subject: "abc", IP: "10.0.0.1"}, "reporter:abc"},
		{"anonymous", Caller{IP: "10.0.0.1"}, "ip:10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.caller.Key())
		})
	}
}

func TestRateLimiter_AllowsUnderLimit(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)
	ctx := context.Background()
	bot := Caller{Subject: "bot"}

	for i := 0; i < 3; i++ {
		result := rl.Check(ctx, bot)
		assert.True(t, result.Allowed, "request %d should be allowed", i+1)
	}
}

func TestRateLimiter_BlocksOverLimit(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }
	ctx := context.Background()
	bot := Caller{Subject: "bot"}

	rl.Check(ctx, bot)
	now = now.Add(10 * time.Second)
	rl.Check(ctx, bot)
	result := rl.Check(ctx, bot)

	assert.False(t, result.Allowed)
	assert.Equal(t, "rate_limiter", result.Guard)
	assert.Contains(t, result.Reason, "reporter:bot")
	assert.Equal(t, 50*time.Second, result.RetryAfter)
}

func TestRateLimiter_SubjectsShareNoWindow(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	ctx := context.Background()

	assert.True(t, rl.Check(ctx, Caller{Subject: "a", IP: "10.0.0.1"}).Allowed)
	assert.True(t, rl.Check(ctx, Caller{Subject: "b", IP: "10.0.0.1"}).Allowed)
	assert.True(t, rl.Check(ctx, Caller{IP: "10.0.0.1"}).Allowed)
	assert.False(t, rl.Check(ctx, Caller{Subject: "a", IP: "10.0.0.2"}).Allowed)
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(0, time.Minute)
	for i := 0; i < 5; i++ {
		assert.True(t, rl.Check(context.Background(), Caller{IP: "10.0.0.1"}).Allowed)
	}
	assert.Zero(t, rl.Callers())
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }
	ctx := context.Background()
	k := Caller{Subject: "k"}

	require.True(t, rl.Check(ctx, k).Allowed)
	require.False(t, rl.Check(ctx, k).Allowed)

	now = now.Add(61 * time.Second)
	assert.True(t, rl.Check(ctx, k).Allowed)
}

func TestRateLimiter_SweepDropsIdleCallers(t *testing.T) {
	rl := NewRateLimiter(5, time.Minute)
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	rl.Check(ctx, Caller{Subject: "old"})
	now = now.Add(50 * time.Second)
	rl.Check(ctx, Caller{Subject: "recent"})
	require.Equal(t, 2, rl.Callers())

	now = now.Add(20 * time.Second)
	assert.Equal(t, 1, rl.Sweep())
	assert.Equal(t, 1, rl.Callers())
}

func TestCircuitBreaker_ClosedByDefault(t *testing.T) {
	cb := NewCircuitBreaker(3, 5*time.Second)
	ctx := context.Background()

	result := cb.Check(ctx, "nats")
	assert.True(t, result.Allowed)
	assert.Equal(t, CircuitClosed, cb.State("nats"))
}

func TestCircuitBreaker_OpensOnThreshold(t *testing.T) {
	cb := NewCircuitBreaker(2, 5*time.Second)
	ctx := context.Background()

	cb.Check(ctx, "nats")
	cb.RecordFailure("nats")
	cb.RecordFailure("nats")

	result := cb.Check(ctx, "nats")
	assert.False(t, result.Allowed)
	assert.Equal(t, "circuit_breaker", result.Guard)
	assert.Equal(t, CircuitOpen, cb.State("nats"))
}

func TestCircuitBreaker_SuccessResets(t *testing.T) {
	cb := NewCircuitBreaker(2, 5*time.Second)
	ctx := context.Background()

	cb.Check(ctx, "nats")
	cb.RecordFailure("nats")
	cb.RecordSuccess("nats")
	cb.RecordFailure("nats")

	assert.True(t, cb.Check(ctx, "nats").Allowed)
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Second)
	now := time.Unix(1_700_000_000, 0)
	cb.now = func() time.Time { return now }
	ctx := context.Background()

	cb.RecordFailure("nats")
	require.False(t, cb.Check(ctx, "nats").Allowed)

	now = now.Add(2 * time.Second)
	require.True(t, cb.Check(ctx, "nats").Allowed, "first probe after reset timeout")
	assert.Equal(t, CircuitHalfOpen, cb.State("nats"))
	assert.False(t, cb.Check(ctx, "nats").Allowed, "second probe blocked while first in flight")

	cb.RecordSuccess("nats")
	assert.Equal(t, CircuitClosed, cb.State("nats"))
	assert.True(t, cb.Check(ctx, "nats").Allowed)
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Second)
	now := time.Unix(1_700_000_000, 0)
	cb.now = func() time.Time { return now }
	ctx := context.Background()

	for range 3 {
		cb.RecordFailure("nats")
	}
	now = now.Add(2 * time.Second)
	require.True(t, cb.Check(ctx, "nats").Allowed)

	cb.RecordFailure("nats")
	assert.Equal(t, CircuitOpen, cb.State("nats"))
	assert.False(t, cb.Check(ctx, "nats").Allowed)
}

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	km := NewKeyedMutex()

	var inside, peak atomic.Int32
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("steve")
			defer unlock()
			n := inside.Add(1)
			if n > peak.Load() {
				peak.Store(n)
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), peak.Load())
	assert.Equal(t, 0, km.Len())
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	km := NewKeyedMutex()
	unlockA := km.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := km.Lock("b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}
}

func TestKeyedMutex_UnlockIdempotent(t *testing.T) {
	km := NewKeyedMutex()
	unlock := km.Lock("a")
	unlock()
	assert.NotPanics(t, unlock)
	assert.Equal(t, 0, km.Len())
}
