// Package record defines the durable record store contract the progress
// engine persists through, plus an in-memory implementation for tests and
// ephemeral runs. Each record slot holds one serialized snapshot; writes are
// full-record replaces.
package record

import (
	"context"
)

// Well-known record slots. Each is an independent record; the engine never
// writes partial-field patches at the storage layer.
const (
	// KeyProgress is the slot for the serialized progress state.
	KeyProgress = "progress"

	// KeyCompanionSettings is the slot for the serialized companion settings.
	KeyCompanionSettings = "companion-settings"
)

// ScopedKey namespaces a record slot by learner ID. Local embedded backends
// are already scoped to one learner's data directory; shared backends
// (redis, postgres) need the prefix to keep learners apart.
func ScopedKey(learnerID, key string) string {
	if learnerID == "" {
		return key
	}
	return learnerID + ":" + key
}

// Store is the durable record store capability the engine consumes:
// get(key) -> bytes|absent, set(key, bytes) -> ok|fail. Implementations
// must survive process restart (the in-memory store is the deliberate
// exception, for tests and throwaway runs).
type Store interface {
	// Get returns the record stored under key, or shared.ErrRecordAbsent
	// if no record exists.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set replaces the record stored under key. Synchronous from the
	// caller's point of view: when Set returns nil the record is durable
	// to the backend's guarantees.
	Set(ctx context.Context, key string, value []byte) error

	// Close releases backend resources.
	Close() error
}

// StampedStore is an optional extension for backends that can detect stale
// writes from a second process sharing the same storage scope. The default
// contract stays last-write-wins; the engine only uses stamps when the
// backend offers them.
type StampedStore interface {
	Store

	// GetStamped returns the record and its current write stamp.
	// A missing record returns shared.ErrRecordAbsent and stamp 0.
	GetStamped(ctx context.Context, key string) ([]byte, int64, error)

	// SetStamped replaces the record only if its current stamp still
	// equals expected; returns the new stamp on success or
	// shared.ErrStaleWrite if another writer advanced it.
	SetStamped(ctx context.Context, key string, value []byte, expected int64) (int64, error)
}
