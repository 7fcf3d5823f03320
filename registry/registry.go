// Package registry holds the concurrent lookup tables shared across
// connection workers: clientKey -> control channel, userId -> user or
// real-server channel. It generalizes the teacher's manager.Manager[T]
// (itself a generic wrapper over core-utils/safe.Map) to the handful of
// map operations the tunnel's binding logic actually needs.
package registry

import (
	"sync"

	"github.com/go-zoox/core-utils/safe"
)

// Map is a concurrency-safe id -> T table.
type Map[T any] struct {
	cache *safe.Map
}

// New creates an empty Map.
func New[T any]() *Map[T] {
	return &Map[T]{cache: safe.NewMap()}
}

// Get returns the value stored for id, if any.
func (m *Map[T]) Get(id string) (T, bool) {
	v, ok := m.cache.Get(id).(T)
	return v, ok
}

// Set stores value for id, overwriting any previous entry.
func (m *Map[T]) Set(id string, value T) {
	m.cache.Set(id, value)
}

// SetIfAbsent stores value for id only if nothing is stored yet, and
// reports whether the store happened. The check and the store are two
// separate safe.Map operations, not one atomic compare-and-swap — this
// mirrors the source's non-atomic get-then-put duplicate-clientKey check
// (see DESIGN.md's Open Question notes): a race between two simultaneous
// inserts for the same id is resolved by whichever Set wins, not by this
// method.
func (m *Map[T]) SetIfAbsent(id string, value T) (stored bool) {
	if _, exists := m.Get(id); exists {
		return false
	}
	m.cache.Set(id, value)
	return true
}

// Remove deletes id and returns the value that was stored there, if any.
// The lookup and the delete are two separate safe.Map calls, so Remove
// alone is not atomic; callers that need remove-then-close to be atomic
// hold the key's LockTable mutex around it.
func (m *Map[T]) Remove(id string) (T, bool) {
	v, ok := m.Get(id)
	if ok {
		m.cache.Delete(id)
	}
	return v, ok
}

// Range calls fn for every id/value pair currently stored. fn must not
// mutate the Map.
func (m *Map[T]) Range(fn func(id string, value T)) {
	m.cache.ForEach(func(k string, v interface{}) {
		if tv, ok := v.(T); ok {
			fn(k, tv)
		}
	})
}

// Len returns the number of entries currently stored.
func (m *Map[T]) Len() int {
	return m.cache.Len()
}

// LockTable hands out a per-key mutex so unrelated keys don't serialize
// against each other, matching the source's channelLocks auxiliary map
// that makes remove-then-close atomic against a concurrent TRANSFER.
type LockTable struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLockTable creates an empty LockTable.
func NewLockTable() *LockTable {
	return &LockTable{locks: make(map[string]*sync.Mutex)}
}

// Lock returns the mutex for key, creating it on first use, and locks it.
// The caller must Unlock the returned mutex.
func (lt *LockTable) Lock(key string) *sync.Mutex {
	lt.mu.Lock()
	m, ok := lt.locks[key]
	if !ok {
		m = &sync.Mutex{}
		lt.locks[key] = m
	}
	lt.mu.Unlock()

	m.Lock()
	return m
}
