//go:build integration

package testutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/attaboy/warden/internal/app"
	"github.com/attaboy/warden/internal/auth"
	"github.com/attaboy/warden/internal/infra"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	TestJWTSecret = "integration-test-secret-0123456789abcdef"
	TestDBHost    = "localhost"
	TestDBPort    = 5435
	TestDBUser    = "warden"
	TestDBPass    = "warden"
	TestDBName    = "warden_test"
)

// TestEnv holds all resources for an integration test.
type TestEnv struct {
	Server   *httptest.Server
	Pool     *pgxpool.Pool
	Services *app.Services
	JWTMgr   *auth.JWTManager
	t        *testing.T
}

var (
	sharedPool *pgxpool.Pool
	poolOnce   sync.Once
	poolErr    error
)

func testDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		TestDBUser, TestDBPass, TestDBHost, TestDBPort, TestDBName)
}

func bootstrapDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		TestDBUser, TestDBPass, TestDBHost, TestDBPort, "warden")
}

func ensureTestDB() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	bPool, err := pgxpool.New(ctx, bootstrapDSN())
	if err != nil {
		return fmt.Errorf("connect bootstrap db: %w", err)
	}
	defer bPool.Close()

	var exists bool
	err = bPool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", TestDBName).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check db exists: %w", err)
	}
	if !exists {
		if _, err := bPool.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s", TestDBName)); err != nil {
			return fmt.Errorf("create test db: %w", err)
		}
	}
	return nil
}

// Config returns the settings integration environments run with.
func Config() *infra.Config {
	return &infra.Config{
		DatabaseURL:        testDSN(),
		ServerName:         "it",
		JWTSecret:          TestJWTSecret,
		JWTReporterExpiry:  time.Hour,
		APIRateLimit:       1000,
		CORSAllowedOrigins: "*",
		RelayQueueCapacity: 64,
		RelayBreakerLimit:  3,
		RelayBreakerReset:  time.Second,
		CacheMaxEntries:    1000,
		CacheActiveTTL:     time.Minute,
		CacheIdentityTTL:   time.Minute,
		CacheAltTTL:        time.Minute,
		SchedulerInterval:  time.Second,
		SchedulerLookahead: 24 * time.Hour,
		SchedulerBatch:     50,
		MaxTempBan:         720 * time.Hour,
		MaxTempMute:        168 * time.Hour,
		WorkerPoolSize:     4,
		EscalationEnabled:  true,
		AltCascadeEnabled:  true,
	}
}

// SharedPool returns a migrated pool on the test database.
func SharedPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	poolOnce.Do(func() {
		if err := ensureTestDB(); err != nil {
			poolErr = err
			return
		}
		if err := infra.RunMigrations(testDSN(), slog.New(slog.NewTextHandler(io.Discard, nil))); err != nil {
			poolErr = fmt.Errorf("run migrations: %w", err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		poolCfg, err := pgxpool.ParseConfig(testDSN())
		if err != nil {
			poolErr = fmt.Errorf("parse pool config: %w", err)
			return
		}
		poolCfg.MaxConns = 10
		poolCfg.MinConns = 1

		sharedPool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			poolErr = fmt.Errorf("create pool: %w", err)
		}
	})

	if poolErr != nil {
		t.Fatalf("failed to initialize test pool: %v", poolErr)
	}
	return sharedPool
}

// NewTestEnv creates a test environment with an httptest.Server backed by the
// real router, a fully wired engine and the test DB.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	pool := SharedPool(t)
	cfg := Config()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	env := &TestEnv{Pool: pool, t: t}
	env.CleanAll()

	ctx, cancel := context.WithCancel(context.Background())
	svc, err := app.NewServices(ctx, cfg, pool, logger)
	if err != nil {
		cancel()
		t.Fatalf("wire services: %v", err)
	}
	env.Services = svc
	env.JWTMgr = auth.NewJWTManager(cfg.JWTSecret, cfg.JWTReporterExpiry)

	env.Server = httptest.NewServer(app.NewRouter(app.RouterDeps{
		Reader:      svc.Engine,
		DB:          infra.DBHealth{Pool: pool},
		JWTMgr:      env.JWTMgr,
		CORSOrigins: cfg.CORSAllowedOrigins,
		Logger:      logger,
	}))

	t.Cleanup(func() {
		env.Server.Close()
		cancel()
		svc.Close()
		env.CleanAll()
	})
	return env
}
