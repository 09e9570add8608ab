package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/attaboy/warden/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the unit-of-work boundary over the connection pool.
type Store interface {
	// DB returns a handle for single-statement operations.
	DB() repository.DBTX
	// InTx runs fn in a transaction, committing when fn returns nil.
	InTx(ctx context.Context, fn func(db repository.DBTX) error) error
}

// PG is the pgxpool-backed Store.
type PG struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New wraps pool.
func New(pool *pgxpool.Pool, logger *slog.Logger) *PG {
	return &PG{pool: pool, logger: logger}
}

func (s *PG) DB() repository.DBTX {
	return s.pool
}

// InTx checks out a connection, begins a transaction and always releases the
// connection before returning, including on panic.
func (s *PG) InTx(ctx context.Context, fn func(db repository.DBTX) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(context.Background())
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(context.Background()); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				s.logger.Warn("rollback failed", "error", rbErr)
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Pool exposes the underlying pool for health checks.
func (s *PG) Pool() *pgxpool.Pool {
	return s.pool
}
