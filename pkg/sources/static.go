package sources

import (
	"context"
	"fmt"
	"sync"
)

// StaticSource is a thread-safe, in-memory Source seeded from a map. It is
// the backend for tests and development fixtures, and it satisfies
// CachingSource so it can stand in as the cache tier of a FallbackSource.
type StaticSource[K comparable, V any] struct {
	mu   sync.RWMutex
	data map[K]V
}

// NewStaticSource returns a StaticSource holding a copy of seed. A nil seed
// starts empty.
func NewStaticSource[K comparable, V any](seed map[K]V) *StaticSource[K, V] {
	data := make(map[K]V, len(seed))
	for k, v := range seed {
		data[k] = v
	}
	return &StaticSource[K, V]{data: data}
}

// Fetch retrieves the value stored for key.
func (s *StaticSource[K, V]) Fetch(_ context.Context, key K) (V, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.data[key]
	if !ok {
		var zero V
		return zero, fmt.Errorf("static source: key '%v': %w", key, ErrNotFound)
	}
	return value, nil
}

// WriteToCache stores value under key, satisfying CachingSource.
func (s *StaticSource[K, V]) WriteToCache(_ context.Context, key K, value V) error {
	s.Set(key, value)
	return nil
}

// Set stores value under key.
func (s *StaticSource[K, V]) Set(key K, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

// Delete removes key, turning later fetches for it into misses.
func (s *StaticSource[K, V]) Delete(key K) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}

// Len returns the number of stored entries.
func (s *StaticSource[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Close is a no-op; a StaticSource holds no external resources.
func (s *StaticSource[K, V]) Close() error { return nil }
