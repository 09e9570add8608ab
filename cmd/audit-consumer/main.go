package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/attaboy/warden/internal/domain"
	"github.com/attaboy/warden/internal/infra"
	"github.com/attaboy/warden/internal/repository"
	"github.com/segmentio/kafka-go"
)

const retryDelay = time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("audit consumer failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.KafkaEnabled {
		return errors.New("KAFKA_ENABLED is false; wardend writes the audit log directly")
	}

	pool, err := infra.NewPostgresPool(ctx, cfg, nil)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	logger.Info("audit-consumer connected to postgres")

	consumer := infra.NewKafkaConsumer(cfg.Brokers(), cfg.KafkaTopic, cfg.KafkaGroupID, true, logger)
	defer consumer.Close()

	logger.Info("audit-consumer starting", "topic", cfg.KafkaTopic, "group", cfg.KafkaGroupID)
	err = consume(ctx, consumer, pool, repository.NewAuditRepository(), logger)
	if errors.Is(err, context.Canceled) {
		logger.Info("audit-consumer shutting down")
		return nil
	}
	return err
}

type source interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, msgs ...kafka.Message) error
}

// consume copies outbox events into the audit log until ctx is cancelled.
// Undecodable messages are committed and skipped; insert failures are retried
// on the same message so nothing is committed ahead of the audit row.
func consume(ctx context.Context, src source, db repository.DBTX, audit repository.AuditRepository, logger *slog.Logger) error {
	for {
		msg, err := src.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("fetch: %w", err)
		}

		var evt domain.OutboxDraft
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			logger.Warn("skipping undecodable event", "offset", msg.Offset, "partition", msg.Partition, "error", err)
		} else if err := insertWithRetry(ctx, db, audit, evt, logger); err != nil {
			return err
		}

		if err := src.Commit(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("commit: %w", err)
		}
	}
}

func insertWithRetry(ctx context.Context, db repository.DBTX, audit repository.AuditRepository, evt domain.OutboxDraft, logger *slog.Logger) error {
	for {
		err := audit.Insert(ctx, db, domain.AuditFromDraft(evt))
		if err == nil {
			logger.Debug("audit entry stored", "event_id", evt.EventID, "event_type", evt.EventType)
			return nil
		}
		logger.Error("audit insert failed, retrying", "event_id", evt.EventID, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelay):
		}
	}
}
