package sources

import (
	"context"

	"github.com/illmade-knight/go-querycache/pkg/querycache"
)

// PickFunc selects which key of a subscription's ordered key list is the
// backend lookup key. The engine guarantees the list is non-empty.
type PickFunc[K comparable] func(keys []K) K

// FirstKey is the default PickFunc: the first key identifies the data and
// any further keys exist only for invalidation matching.
func FirstKey[K comparable](keys []K) K { return keys[0] }

// LastKey picks the final key, for key lists ordered broad-to-narrow.
func LastKey[K comparable](keys []K) K { return keys[len(keys)-1] }

// QueryFn adapts a Source into a fetch function for the cache engine. The
// picked key is fetched and the conventional (value, error) return is
// wrapped into a query Result, so backend misses and failures surface to
// listeners as error states rather than faults. A nil pick means FirstKey.
func QueryFn[K comparable, V any](source Source[K, V], pick PickFunc[K]) querycache.QueryFn[K, V] {
	if pick == nil {
		pick = FirstKey[K]
	}
	return func(ctx context.Context, keys []K) querycache.Result[V] {
		return querycache.From(source.Fetch(ctx, pick(keys)))
	}
}
