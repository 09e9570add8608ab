package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/attaboy/warden/internal/app"
	"github.com/attaboy/warden/internal/auth"
	"github.com/attaboy/warden/internal/guard"
	"github.com/attaboy/warden/internal/infra"
	"github.com/attaboy/warden/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("wardend failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load config
	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	logger = logger.With("server", cfg.ServerName)

	// Schema first, then the pool
	if err := infra.RunMigrations(cfg.DSN(), logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	pool, err := infra.NewPostgresPool(ctx, cfg, store.Tracer{})
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	logger.Info("connected to postgres")

	svc, err := app.NewServices(ctx, cfg, pool, logger)
	if err != nil {
		return fmt.Errorf("wire services: %w", err)
	}
	defer svc.Close()

	// Outbox: Kafka when enabled, otherwise straight into the audit table
	var sink infra.EventSink = infra.AuditSink{DB: svc.Store.DB(), Audit: svc.Audit}
	if cfg.KafkaEnabled {
		producer := infra.NewKafkaProducer(cfg.Brokers(), true, logger)
		defer producer.Close()
		sink = infra.KafkaSink{Producer: producer, Topic: cfg.KafkaTopic}
	}
	infra.NewOutboxPoller(svc.Store.DB(), svc.Outbox, sink, cfg.OutboxPollInterval, cfg.OutboxBatchSize, logger).Start(ctx)

	svc.Start(ctx, cfg)

	if svc.NATS != nil {
		sub, err := app.ServeLogins(svc.NATS, cfg.LoginSubject, svc.Engine, svc.Engine.Formatter, logger)
		if err != nil {
			return fmt.Errorf("subscribe login gate: %w", err)
		}
		defer sub.Unsubscribe()
		logger.Info("login gate listening", "subject", cfg.LoginSubject)
	}

	// Reporting API
	limiter := guard.NewRateLimiter(cfg.APIRateLimit, time.Minute)
	limiter.StartSweep(ctx, 5*time.Minute)
	router := app.NewRouter(app.RouterDeps{
		Reader:      svc.Engine,
		DB:          infra.DBHealth{Pool: pool},
		JWTMgr:      auth.NewJWTManager(cfg.JWTSecret, cfg.JWTReporterExpiry),
		RateLimiter: limiter,
		CORSOrigins: cfg.CORSAllowedOrigins,
		Logger:      logger,
	})

	addr := fmt.Sprintf(":%d", cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("reporting api starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	logger.Info("wardend stopped gracefully")
	return nil
}
