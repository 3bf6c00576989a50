// Package store is the local system-of-record access layer: the
// safetickets mirror plus the directory tables the handlers mutate.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tier2-ops/safesync/internal/config"
)

// Executor defines the common interface for pgxpool.Pool and pgx.Tx.
// This allows repositories to work seamlessly with both standalone connections and transactions.
type Executor interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type DB struct {
	Pool   *pgxpool.Pool
	logger *slog.Logger
}

// Connect establishes a connection pool to the local database and
// verifies connectivity. Connection failure is fatal to the whole run.
func Connect(ctx context.Context, cfg *config.DatabaseConfig, logger *slog.Logger) (*DB, error) {
	pgxCfg, err := cfg.PgxConfig()
	if err != nil {
		logger.Error("failed to build pgx config", "error", err)
		return nil, err
	}

	logger.Info("connecting to database",
		"host", cfg.Host,
		"port", cfg.Port,
		"database", cfg.Name,
	)

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		logger.Error("failed to create connection pool", "error", err)
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		pool.Close()
		return nil, ClassifyError(err)
	}

	return &DB{
		Pool:   pool,
		logger: logger,
	}, nil
}

func (db *DB) Close() {
	db.logger.Info("closing database connection pool")
	db.Pool.Close()
}

// StoreErrorKind separates the local failures an operator triages
// differently.
type StoreErrorKind string

const (
	KindAccessDenied  StoreErrorKind = "access_denied"
	KindMissingSchema StoreErrorKind = "missing_schema"
	KindGeneric       StoreErrorKind = "generic"
)

// LocalStoreError is a database failure, classified by SQLSTATE.
type LocalStoreError struct {
	Kind StoreErrorKind
	Err  error
}

func (e *LocalStoreError) Error() string {
	switch e.Kind {
	case KindAccessDenied:
		return fmt.Sprintf("access denied: something is wrong with your user name or password: %v", e.Err)
	case KindMissingSchema:
		return fmt.Sprintf("database or table does not exist: %v", e.Err)
	}
	return fmt.Sprintf("local store error: %v", e.Err)
}

func (e *LocalStoreError) Unwrap() error {
	return e.Err
}

// ClassifyError wraps a database error as a LocalStoreError with a
// triage kind. Nil passes through.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "28000", "28P01":
			return &LocalStoreError{Kind: KindAccessDenied, Err: err}
		case "3D000", "42P01":
			return &LocalStoreError{Kind: KindMissingSchema, Err: err}
		}
	}
	return &LocalStoreError{Kind: KindGeneric, Err: err}
}
