package relay

import (
	"context"
	"log/slog"
	"sync"

	"github.com/attaboy/warden/internal/guard"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	relayMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_relay_messages_total",
		Help: "Relay messages by action and outcome (direct, carrier, queued, dropped)",
	}, []string{"action", "outcome"})

	relayQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "warden_relay_queue_depth",
		Help: "Encoded messages waiting for a transport",
	})
)

// Transport is the direct process-to-proxy channel.
type Transport interface {
	Name() string
	Send(ctx context.Context, frame []byte) error
}

// Carrier is a connected session able to forward a frame to the proxy.
type Carrier interface {
	Relay(frame []byte) error
}

// CarrierSource lists the sessions currently usable as carriers.
type CarrierSource interface {
	Carriers() []Carrier
}

type queued struct {
	action Action
	frame  []byte
}

// Relay delivers proxy messages best effort: direct transport first, then any
// carrier, otherwise a bounded FIFO queue that drops the oldest on overflow.
type Relay struct {
	origin   string
	capacity int
	breaker  *guard.CircuitBreaker
	logger   *slog.Logger

	mu        sync.Mutex
	transport Transport
	carriers  CarrierSource
	queue     []queued

	flushMu sync.Mutex
}

// New creates a relay. transport and carriers may be nil and attached later.
func New(origin string, capacity int, breaker *guard.CircuitBreaker, logger *slog.Logger) *Relay {
	if capacity < 1 {
		capacity = 1
	}
	return &Relay{
		origin:   origin,
		capacity: capacity,
		breaker:  breaker,
		logger:   logger,
	}
}

// AttachTransport sets the direct channel.
func (r *Relay) AttachTransport(t Transport) {
	r.mu.Lock()
	r.transport = t
	r.mu.Unlock()
}

// AttachCarriers sets the carrier fallback.
func (r *Relay) AttachCarriers(src CarrierSource) {
	r.mu.Lock()
	r.carriers = src
	r.mu.Unlock()
}

// Send encodes and dispatches m. Only encoding failures are returned; a
// message nobody could take is queued, which is not an error.
func (r *Relay) Send(ctx context.Context, m Message) error {
	if m.Origin == "" {
		m.Origin = r.origin
	}
	frame, err := Encode(m)
	if err != nil {
		return err
	}
	if r.dispatch(ctx, m.Action, frame) {
		return nil
	}
	r.enqueue(queued{action: m.Action, frame: frame})
	return nil
}

// Flush drains the queue in order. On the first failure the undelivered
// remainder goes back to the front of the queue and the drain stops.
// Returns the number of messages delivered.
func (r *Relay) Flush(ctx context.Context) int {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	r.mu.Lock()
	pending := r.queue
	r.queue = nil
	r.mu.Unlock()

	for i, q := range pending {
		if ctx.Err() != nil || !r.dispatch(ctx, q.action, q.frame) {
			r.requeueFront(pending[i:])
			if i > 0 {
				r.logger.Info("relay flush partial", "delivered", i, "remaining", len(pending)-i)
			}
			return i
		}
	}
	if len(pending) > 0 {
		r.logger.Info("relay queue flushed", "delivered", len(pending))
	}
	r.updateDepth()
	return len(pending)
}

// FlushAsync runs Flush on its own goroutine. Used from connection callbacks.
func (r *Relay) FlushAsync() {
	go r.Flush(context.Background())
}

// Len returns the number of queued messages.
func (r *Relay) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

func (r *Relay) dispatch(ctx context.Context, action Action, frame []byte) bool {
	r.mu.Lock()
	t, src := r.transport, r.carriers
	r.mu.Unlock()

	if t != nil {
		key := t.Name()
		if res := r.breaker.Check(ctx, key); res.Allowed {
			err := t.Send(ctx, frame)
			if err == nil {
				r.breaker.RecordSuccess(key)
				relayMessages.WithLabelValues(string(action), "direct").Inc()
				return true
			}
			r.breaker.RecordFailure(key)
			r.logger.Debug("relay direct send failed", "transport", key, "error", err)
		}
	}

	if src != nil {
		for _, c := range src.Carriers() {
			if err := c.Relay(frame); err == nil {
				relayMessages.WithLabelValues(string(action), "carrier").Inc()
				return true
			}
		}
	}
	return false
}

func (r *Relay) enqueue(q queued) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = append(r.queue, q)
	relayMessages.WithLabelValues(string(q.action), "queued").Inc()
	r.trimLocked()
	relayQueueDepth.Set(float64(len(r.queue)))
}

func (r *Relay) requeueFront(items []queued) {
	r.mu.Lock()
	defer r.mu.Unlock()
	merged := make([]queued, 0, len(items)+len(r.queue))
	merged = append(merged, items...)
	merged = append(merged, r.queue...)
	r.queue = merged
	r.trimLocked()
	relayQueueDepth.Set(float64(len(r.queue)))
}

func (r *Relay) trimLocked() {
	if over := len(r.queue) - r.capacity; over > 0 {
		for _, q := range r.queue[:over] {
			relayMessages.WithLabelValues(string(q.action), "dropped").Inc()
		}
		r.logger.Warn("relay queue full, dropping oldest", "dropped", over, "capacity", r.capacity)
		r.queue = append([]queued(nil), r.queue[over:]...)
	}
}

func (r *Relay) updateDepth() {
	r.mu.Lock()
	relayQueueDepth.Set(float64(len(r.queue)))
	r.mu.Unlock()
}
