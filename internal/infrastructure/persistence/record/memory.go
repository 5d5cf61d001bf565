package record

import (
	"context"
	"sync"

	"github.com/nikhillinit/ACFStudy-sub002/internal/domain/shared"
)

// MemoryStore is an in-memory Store (and StampedStore) implementation.
// Used by tests and by the "memory" backend for throwaway runs; contents do
// not survive the process.
type MemoryStore struct {
	mu       sync.RWMutex
	records  map[string][]byte
	stamps   map[string]int64
	writeErr error
	closed   bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string][]byte),
		stamps:  make(map[string]int64),
	}
}

// FailWrites makes subsequent writes return err (nil restores normal
// operation). Lets tests simulate quota-exceeded storage.
func (m *MemoryStore) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, shared.ErrStoreClosed
	}
	data, ok := m.records[key]
	if !ok {
		return nil, shared.ErrRecordAbsent
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

// Set implements Store.
func (m *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return shared.ErrStoreClosed
	}
	if m.writeErr != nil {
		return shared.WrapError("record", "Set", shared.ErrStorageWrite, "memory store write rejected", m.writeErr)
	}

	cp := make([]byte, len(value))
	copy(cp, value)
	m.records[key] = cp
	m.stamps[key]++
	return nil
}

// GetStamped implements StampedStore.
func (m *MemoryStore) GetStamped(_ context.Context, key string) ([]byte, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, 0, shared.ErrStoreClosed
	}
	data, ok := m.records[key]
	if !ok {
		return nil, 0, shared.ErrRecordAbsent
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, m.stamps[key], nil
}

// SetStamped implements StampedStore.
func (m *MemoryStore) SetStamped(_ context.Context, key string, value []byte, expected int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, shared.ErrStoreClosed
	}
	if m.writeErr != nil {
		return 0, shared.WrapError("record", "SetStamped", shared.ErrStorageWrite, "memory store write rejected", m.writeErr)
	}
	if m.stamps[key] != expected {
		return 0, shared.NewDomainError("record", "SetStamped", shared.ErrStaleWrite, "record stamp advanced by another writer")
	}

	cp := make([]byte, len(value))
	copy(cp, value)
	m.records[key] = cp
	m.stamps[key]++
	return m.stamps[key], nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
