package infra

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/attaboy/warden/internal/domain"
	"github.com/attaboy/warden/internal/repository"
)

// EventSink receives outbox events in insertion order.
type EventSink interface {
	Deliver(ctx context.Context, evt domain.OutboxDraft) error
}

// KafkaSink publishes outbox events to a single topic keyed by partition key.
type KafkaSink struct {
	Producer *KafkaProducer
	Topic    string
}

func (s KafkaSink) Deliver(ctx context.Context, evt domain.OutboxDraft) error {
	msg, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return s.Producer.Publish(ctx, s.Topic, []byte(evt.PartitionKey), msg)
}

// AuditSink writes events straight to the audit log. Used when Kafka is disabled.
type AuditSink struct {
	DB    repository.DBTX
	Audit repository.AuditRepository
}

func (s AuditSink) Deliver(ctx context.Context, evt domain.OutboxDraft) error {
	return s.Audit.Insert(ctx, s.DB, domain.AuditFromDraft(evt))
}

// OutboxPoller polls the warden_outbox table and forwards events to a sink.
type OutboxPoller struct {
	db        repository.DBTX
	outbox    repository.OutboxRepository
	sink      EventSink
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

// NewOutboxPoller creates a new outbox poller.
func NewOutboxPoller(db repository.DBTX, outbox repository.OutboxRepository, sink EventSink, interval time.Duration, batchSize int, logger *slog.Logger) *OutboxPoller {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OutboxPoller{
		db:        db,
		outbox:    outbox,
		sink:      sink,
		logger:    logger,
		interval:  interval,
		batchSize: batchSize,
	}
}

// Start begins polling in a goroutine. Stops when ctx is cancelled.
func (p *OutboxPoller) Start(ctx context.Context) {
	p.logger.Info("outbox poller started", "interval", p.interval, "batch_size", p.batchSize)

	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				p.logger.Info("outbox poller stopped")
				return
			case <-ticker.C:
				if _, err := p.Poll(ctx); err != nil {
					p.logger.Error("outbox poll error", "error", err)
				}
			}
		}
	}()
}

// Poll forwards one batch. Delivery stops at the first failure so later events
// never overtake an undelivered one; delivered events are removed.
func (p *OutboxPoller) Poll(ctx context.Context) (int, error) {
	events, err := p.outbox.FetchUnpublished(ctx, p.db, p.batchSize)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	delivered := make([]int64, 0, len(events))
	for _, e := range events {
		if err := p.sink.Deliver(ctx, e); err != nil {
			p.logger.Error("outbox delivery failed", "event_id", e.EventID, "event_type", e.EventType, "error", err)
			break
		}
		delivered = append(delivered, e.SeqID)
	}

	if err := p.outbox.MarkPublished(ctx, p.db, delivered); err != nil {
		return 0, err
	}

	p.logger.Debug("outbox poll complete", "published", len(delivered))
	return len(delivered), nil
}
