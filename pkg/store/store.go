// Package store defines the keyed accumulator store used by stateful
// aggregation, plus in-memory, SQLite-backed and MongoDB-backed
// implementations. The aggregation actions perform one read and one write
// per event against this contract; per-key atomicity across concurrent
// in-flight events is the implementation's responsibility, not the
// pipeline's. Entries are never deleted by the pipeline; eviction policy,
// if any, belongs to the implementation.
package store

import (
	"context"
	"sync"

	"github.com/ajitpratap0/streamdsl/pkg/metrics"
)

// KeyedStore is the pluggable key→accumulator persistence contract.
type KeyedStore interface {
	// Get returns the accumulator for key. The second return reports
	// whether the key exists.
	Get(ctx context.Context, key string) (interface{}, bool, error)

	// Put stores the accumulator for key, creating or replacing it.
	Put(ctx context.Context, key string, value interface{}) error

	// Increment atomically adds one to the integer accumulator for key
	// and returns the new value. A missing key counts from zero.
	Increment(ctx context.Context, key string) (int64, error)
}

// MemoryStore is a mutex-guarded in-process KeyedStore.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]interface{}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]interface{})}
}

// Get implements KeyedStore.
func (m *MemoryStore) Get(_ context.Context, key string) (interface{}, bool, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveStore("get")

	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

// Put implements KeyedStore.
func (m *MemoryStore) Put(_ context.Context, key string, value interface{}) error {
	timer := metrics.NewTimer()
	defer timer.ObserveStore("put")

	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

// Increment implements KeyedStore. The read-modify-write is atomic per key.
func (m *MemoryStore) Increment(_ context.Context, key string) (int64, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveStore("increment")

	m.mu.Lock()
	defer m.mu.Unlock()
	current := toInt64(m.data[key])
	current++
	m.data[key] = current
	return current, nil
}

// Len returns the number of stored keys.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
