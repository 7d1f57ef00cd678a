// Package sources provides ready-made backends for query fetch functions:
// an in-memory map for tests and development, Redis, Firestore, Cloud
// Storage, and BigQuery, plus composition helpers for read-through layering
// and for turning any Source into a querycache fetch function.
//
// Sources stay dumb: they look a single key up in one backend and report
// misses through ErrNotFound. Staleness, deduplication, and listener
// fan-out all belong to the cache engine sitting above them.
package sources

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound reports that the backend holds no value for the requested
// key. Sources wrap it with backend context; callers test for it with
// errors.Is.
var ErrNotFound = errors.New("key not found")

// Source is a read-only backend a query function fetches from. Fetch
// returns the value for exactly one key, or an error wrapping ErrNotFound
// when the backend has nothing for it.
type Source[K comparable, V any] interface {
	Fetch(ctx context.Context, key K) (V, error)
	io.Closer
}

// CachingSource is a Source that can also be written, letting it act as the
// cache tier of a FallbackSource.
type CachingSource[K comparable, V any] interface {
	Source[K, V]
	// WriteToCache stores a value so later Fetch calls for the same key
	// hit without consulting anything else.
	WriteToCache(ctx context.Context, key K, value V) error
}

// Invalidatable is implemented by sources that hold their own copies and
// can drop one on request, such as LRUSource. Hosts that invalidate engine
// keys for data served through such a source should invalidate the source
// too, or refetches will keep returning the memoized value.
type Invalidatable[K comparable] interface {
	Invalidate(ctx context.Context, key K) error
}
