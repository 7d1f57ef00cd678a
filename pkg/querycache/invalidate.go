package querycache

import (
	"context"
	"sync"
	"time"
)

// InvalidateQuery marks every entry whose key list contains key as stale and
// refetches it. It is InvalidateQueries for a single key.
func (c *Client[K, T]) InvalidateQuery(ctx context.Context, key K) {
	c.InvalidateQueries(ctx, []K{key})
}

// InvalidateQueries refetches every live entry whose key list intersects
// keys. Matching entries first flip to a loading state carrying their
// previous value and their listeners are notified, then all refetches run
// concurrently. The call blocks until every refetch has settled and its
// listeners have been notified, so a caller that invalidates after a write
// observes the refreshed state on return.
//
// Entries with no listeners never match, and entries removed mid-flight
// settle against their detached value slots without notifying anyone.
// Overlapping calls are allowed but their refetches interleave; callers that
// need the documented ordering must not overlap invalidations.
func (c *Client[K, T]) InvalidateQueries(ctx context.Context, keys []K) {
	if len(keys) == 0 {
		return
	}
	invalidated := make(map[K]struct{}, len(keys))
	for _, k := range keys {
		invalidated[k] = struct{}{}
	}

	type refetch struct {
		key   registryKey
		entry RegistryEntry[K]
		value *entryValue[T]
		fn    QueryFn[K, T]
	}
	var matches []refetch

	c.mu.Lock()
	for key, rec := range c.registry {
		if len(rec.listeners) == 0 || !rec.entry.intersects(invalidated) {
			continue
		}
		matches = append(matches, refetch{key: key, entry: rec.entry, value: rec.value, fn: rec.fn})
	}
	c.mu.Unlock()

	c.logger.Debug().Int("keys", len(keys)).Int("matched", len(matches)).
		Msg("Invalidation scan complete.")
	if len(matches) == 0 {
		return
	}

	// Every match flips to loading before any refetch starts, so listeners
	// across entries see the invalidation as one event.
	for _, m := range matches {
		m.value.markLoading(time.Now())
		c.notifyListeners(m.key, m.value)
	}

	var wg sync.WaitGroup
	for _, m := range matches {
		m := m // per-iteration copy: the go directive predates go1.22 loop scoping
		wg.Add(1)
		c.spawn(func() {
			defer wg.Done()
			result := m.fn(ctx, m.entry.Keys())
			m.value.settle(result, time.Now())
			c.logger.Debug().Stringer("entry", m.entry).Str("state", result.stateName()).
				Msg("Refetch settled.")
			c.notifyListeners(m.key, m.value)
		})
	}
	wg.Wait()
}
