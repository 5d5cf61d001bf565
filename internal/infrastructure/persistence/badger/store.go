// Package badger implements the record store on BadgerDB, the default
// backend. BadgerDB is an embedded key/value store with synchronous writes,
// which matches the engine's write-through contract: one learner, one local
// data directory, durable across process restarts.
package badger

import (
	"context"
	"errors"
	"fmt"
	"os"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/nikhillinit/ACFStudy-sub002/internal/domain/shared"
	"github.com/nikhillinit/ACFStudy-sub002/pkg/logger"
)

// Config holds configuration for the badger-backed record store.
type Config struct {
	// Path is the directory for database files. Required unless InMemory.
	Path string

	// InMemory enables in-memory mode (no disk persistence). For tests.
	InMemory bool

	// SyncWrites forces each write to disk before Set returns. The engine
	// treats a nil Set as durable, so this defaults to on.
	SyncWrites bool

	// Logger receives badger's internal log output. Nil disables it.
	Logger *logger.Logger
}

// DefaultConfig returns the production configuration for a data directory.
func DefaultConfig(path string) Config {
	return Config{
		Path:       path,
		SyncWrites: true,
	}
}

// InMemoryConfig returns a configuration for tests: no disk I/O, no sync.
func InMemoryConfig() Config {
	return Config{
		InMemory: true,
	}
}

// badgerLogger adapts pkg/logger to badger's Logger interface.
type badgerLogger struct {
	log *logger.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, args...))
}

// Store is the badger-backed record store.
type Store struct {
	db *badger.DB
}

// NewStore opens (and if needed creates) the database described by cfg.
func NewStore(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger: path is required for a persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("badger: create data directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{log: cfg.Logger.With(logger.Component("badger"))})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open database: %w", err)
	}

	return &Store{db: db}, nil
}

// Get returns the record stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, shared.ErrRecordAbsent
		}
		return nil, shared.WrapError("badger", "Get", shared.ErrStorageRead, "read record "+key, err)
	}
	return value, nil
}

// Set replaces the record stored under key. With SyncWrites enabled the
// write has hit disk when this returns nil.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return shared.WrapError("badger", "Set", shared.ErrStorageWrite, "write record "+key, err)
	}
	return nil
}

// RunGC triggers one round of value-log garbage collection. Callers that
// keep a store open for long sessions can run this periodically; ratio is
// the minimum fraction of garbage that justifies a rewrite.
func (s *Store) RunGC(ratio float64) error {
	err := s.db.RunValueLogGC(ratio)
	if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
		return fmt.Errorf("badger: value log GC: %w", err)
	}
	return nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Sync forces pending writes to disk. No-op for in-memory databases.
func (s *Store) Sync() error {
	if s.db.Opts().InMemory {
		return nil
	}
	return s.db.Sync()
}
