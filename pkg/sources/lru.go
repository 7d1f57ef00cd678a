package sources

import (
	"container/list"
	"context"
	"fmt"
	"sync"
)

// lruItem is the internal structure stored in the linked list.
type lruItem[K comparable, V any] struct {
	key   K
	value V
}

// LRUSource is a size-capped, in-memory read-through layer with a Least
// Recently Used eviction policy. On a miss it pulls from its fallback
// Source and memoizes the result, evicting the coldest entry once full.
//
// A memoized value is served as-is until it is evicted or invalidated, so
// hosts that pair an LRUSource with the cache engine must call Invalidate
// on it for the keys they invalidate on the engine; otherwise refetches
// keep hitting the memo instead of the backend.
type LRUSource[K comparable, V any] struct {
	maxSize  int
	fallback Source[K, V]

	mu    sync.Mutex
	ll    *list.List          // Tracks the order of items (recency).
	items map[K]*list.Element // Fast key lookups.
}

// NewLRUSource creates a size-limited, in-memory LRU layer.
// - maxSize: the maximum number of items to memoize. Must be > 0.
// - fallback: an optional Source to pull from on a miss.
func NewLRUSource[K comparable, V any](maxSize int, fallback Source[K, V]) (*LRUSource[K, V], error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("maxSize must be greater than 0")
	}
	return &LRUSource[K, V]{
		maxSize:  maxSize,
		fallback: fallback,
		ll:       list.New(),
		items:    make(map[K]*list.Element),
	}, nil
}

// Fetch retrieves an item. A memoized key is a hit and moves to the front
// of the recency list. On a miss the fallback is consulted, the result
// memoized, and the least recently used entry evicted if the cap is
// exceeded.
func (s *LRUSource[K, V]) Fetch(ctx context.Context, key K) (V, error) {
	s.mu.Lock()
	if elem, ok := s.items[key]; ok {
		s.ll.MoveToFront(elem)
		s.mu.Unlock()
		return elem.Value.(*lruItem[K, V]).value, nil
	}
	s.mu.Unlock()

	var zero V
	if s.fallback == nil {
		return zero, fmt.Errorf("lru source: key '%v' not memoized and no fallback is configured: %w", key, ErrNotFound)
	}

	sourceValue, err := s.fallback.Fetch(ctx, key)
	if err != nil {
		return zero, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another goroutine may have populated the key while the fallback ran.
	if elem, ok := s.items[key]; ok {
		s.ll.MoveToFront(elem)
		return elem.Value.(*lruItem[K, V]).value, nil
	}

	s.insertLocked(key, sourceValue)
	return sourceValue, nil
}

// WriteToCache memoizes value under key directly, satisfying CachingSource.
func (s *LRUSource[K, V]) WriteToCache(_ context.Context, key K, value V) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.items[key]; ok {
		elem.Value.(*lruItem[K, V]).value = value
		s.ll.MoveToFront(elem)
		return nil
	}
	s.insertLocked(key, value)
	return nil
}

// Invalidate drops the memoized value for key, forcing the next Fetch back
// to the fallback.
func (s *LRUSource[K, V]) Invalidate(_ context.Context, key K) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if elem, ok := s.items[key]; ok {
		s.ll.Remove(elem)
		delete(s.items, key)
	}
	return nil
}

// insertLocked adds a new front entry and evicts past the cap. The caller
// must hold mu.
func (s *LRUSource[K, V]) insertLocked(key K, value V) {
	element := s.ll.PushFront(&lruItem[K, V]{key: key, value: value})
	s.items[key] = element
	if s.ll.Len() > s.maxSize {
		s.evictLocked()
	}
}

// evictLocked removes the least recently used item. The caller must hold mu.
func (s *LRUSource[K, V]) evictLocked() {
	elementToRemove := s.ll.Back()
	if elementToRemove != nil {
		itemToRemove := s.ll.Remove(elementToRemove).(*lruItem[K, V])
		delete(s.items, itemToRemove.key)
	}
}

// Close is a no-op; the fallback's lifecycle belongs to whoever built it.
func (s *LRUSource[K, V]) Close() error {
	return nil
}
