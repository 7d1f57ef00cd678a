package querycache

import (
	"sync"
	"time"
)

// CachedResult pairs a query Result with the bookkeeping the engine needs to
// decide whether the entry is fresh, stale, or has never run. Values are
// snapshots: once returned by the engine they do not change.
type CachedResult[T any] struct {
	value       Result[T]
	lastUpdated time.Time
	hasRun      bool
}

// Result returns the current query outcome.
func (c CachedResult[T]) Result() Result[T] { return c.value }

// LastUpdated returns the time of the last state transition. The boolean is
// false for entries that have never transitioned.
func (c CachedResult[T]) LastUpdated() (time.Time, bool) {
	return c.lastUpdated, !c.lastUpdated.IsZero()
}

// IsFresh reports whether the entry transitioned within the last staleTime.
// Entries that have never transitioned are never fresh.
func (c CachedResult[T]) IsFresh(staleTime time.Duration) bool {
	if c.lastUpdated.IsZero() {
		return false
	}
	return time.Since(c.lastUpdated) < staleTime
}

// HasBeenCached reports whether the entry has ever held anything worth
// showing: a settled value, or a timestamp proving a fetch once ran.
func (c CachedResult[T]) HasBeenCached() bool {
	return !c.value.IsLoading() || !c.lastUpdated.IsZero()
}

// HasRun reports whether a fetch has ever been dispatched for this entry.
// It stays true even after the result goes stale.
func (c CachedResult[T]) HasRun() bool { return c.hasRun }

// entryValue is the shared, lock-guarded cache slot behind a registry record.
// Subscriptions and in-flight fetch tasks each hold their own reference, so
// a slot stays writable and readable even after its record has been removed
// from the registry.
type entryValue[T any] struct {
	mu     sync.RWMutex
	cached CachedResult[T]
}

func (v *entryValue[T]) snapshot() CachedResult[T] {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.cached
}

// markLoading flips the slot into a loading state carrying the previous
// successful value, stamping the transition time.
func (v *entryValue[T]) markLoading(now time.Time) {
	v.mu.Lock()
	prev := v.cached.value.previous()
	v.cached = CachedResult[T]{value: LoadingFrom(prev), lastUpdated: now, hasRun: true}
	v.mu.Unlock()
}

// settle records a completed fetch.
func (v *entryValue[T]) settle(result Result[T], now time.Time) {
	v.mu.Lock()
	v.cached = CachedResult[T]{value: result, lastUpdated: now, hasRun: true}
	v.mu.Unlock()
}

// seed installs an initial result on a brand-new slot without stamping
// lastUpdated: the seed is visible immediately but still counts as stale,
// so the first real fetch is not suppressed.
func (v *entryValue[T]) seed(result Result[T]) {
	v.mu.Lock()
	v.cached.value = result
	v.mu.Unlock()
}
