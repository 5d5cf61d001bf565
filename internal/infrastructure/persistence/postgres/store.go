// Package postgres implements the record store on PostgreSQL, for hosted
// deployments. A single records table holds the serialized snapshots; each
// row carries a write stamp so concurrent sessions for the same learner can
// be detected instead of silently last-write-wins (the optional extension
// the engine probes for via record.StampedStore).
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nikhillinit/ACFStudy-sub002/internal/domain/shared"
)

// Config holds PostgreSQL connection configuration.
type Config struct {
	// DSN is the connection string (postgres://... or key=value form).
	DSN string

	// MaxConns is the maximum number of connections in the pool. The
	// engine is a single writer; a small pool is plenty.
	MaxConns int32

	// ConnectTimeout is the timeout for establishing a connection.
	ConnectTimeout time.Duration
}

// DefaultConfig returns a sensible default configuration for the given DSN.
func DefaultConfig(dsn string) Config {
	return Config{
		DSN:            dsn,
		MaxConns:       4,
		ConnectTimeout: 10 * time.Second,
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS records (
    key        TEXT PRIMARY KEY,
    value      BYTEA NOT NULL,
    stamp      BIGINT NOT NULL DEFAULT 1,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Store is the postgres-backed record store.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to PostgreSQL and ensures the records table exists.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse DSN: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: connection failed: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ensure records table: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Get returns the record stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.pool.QueryRow(ctx, `SELECT value FROM records WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrRecordAbsent
		}
		return nil, shared.WrapError("postgres", "Get", shared.ErrStorageRead, "read record "+key, err)
	}
	return value, nil
}

// Set replaces the record stored under key, advancing its stamp.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO records (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, stamp = records.stamp + 1, updated_at = now()`,
		key, value)
	if err != nil {
		return shared.WrapError("postgres", "Set", shared.ErrStorageWrite, "write record "+key, err)
	}
	return nil
}

// GetStamped returns the record and its current write stamp.
func (s *Store) GetStamped(ctx context.Context, key string) ([]byte, int64, error) {
	var (
		value []byte
		stamp int64
	)
	err := s.pool.QueryRow(ctx, `SELECT value, stamp FROM records WHERE key = $1`, key).Scan(&value, &stamp)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, 0, shared.ErrRecordAbsent
		}
		return nil, 0, shared.WrapError("postgres", "GetStamped", shared.ErrStorageRead, "read record "+key, err)
	}
	return value, stamp, nil
}

// SetStamped replaces the record only if its stamp still equals expected.
// expected 0 means "no record yet"; an existing row then signals another
// writer got there first.
func (s *Store) SetStamped(ctx context.Context, key string, value []byte, expected int64) (int64, error) {
	if expected == 0 {
		var stamp int64
		err := s.pool.QueryRow(ctx, `
			INSERT INTO records (key, value) VALUES ($1, $2)
			ON CONFLICT (key) DO NOTHING
			RETURNING stamp`,
			key, value).Scan(&stamp)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return 0, shared.NewDomainError("postgres", "SetStamped", shared.ErrStaleWrite, "record created by another writer")
			}
			return 0, shared.WrapError("postgres", "SetStamped", shared.ErrStorageWrite, "write record "+key, err)
		}
		return stamp, nil
	}

	var stamp int64
	err := s.pool.QueryRow(ctx, `
		UPDATE records
		SET value = $2, stamp = stamp + 1, updated_at = now()
		WHERE key = $1 AND stamp = $3
		RETURNING stamp`,
		key, value, expected).Scan(&stamp)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, shared.NewDomainError("postgres", "SetStamped", shared.ErrStaleWrite, "record stamp advanced by another writer")
		}
		return 0, shared.WrapError("postgres", "SetStamped", shared.ErrStorageWrite, "write record "+key, err)
	}
	return stamp, nil
}

// Ping checks if the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
