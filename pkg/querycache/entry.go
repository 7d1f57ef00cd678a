package querycache

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// QueryFnID names a fetch function for deduplication purposes. Two
// subscriptions share a cache entry only when both their key lists and their
// QueryFnIDs match, so callers must give distinct IDs to functions with
// distinct behavior. Reusing an ID across different functions silently hands
// later subscribers the first function's data.
type QueryFnID string

// QueryFn fetches the data identified by an ordered key list. The engine
// calls it from spawned tasks; implementations are expected to be safe for
// concurrent use. The context carries cancellation for the underlying I/O
// only. The engine itself never cancels a fetch and always records whatever
// the function returns.
type QueryFn[K comparable, T any] func(ctx context.Context, keys []K) Result[T]

// RegistryEntry is the identity of one cache record: the ordered key list a
// query was declared with plus the ID of its fetch function.
type RegistryEntry[K comparable] struct {
	keys []K
	fnID QueryFnID
}

func newRegistryEntry[K comparable](keys []K, fnID QueryFnID) RegistryEntry[K] {
	owned := make([]K, len(keys))
	copy(owned, keys)
	return RegistryEntry[K]{keys: owned, fnID: fnID}
}

// Keys returns a copy of the ordered key list.
func (e RegistryEntry[K]) Keys() []K {
	out := make([]K, len(e.keys))
	copy(out, e.keys)
	return out
}

// FnID returns the fetch function ID the entry was declared with.
func (e RegistryEntry[K]) FnID() QueryFnID { return e.fnID }

// intersects reports whether any of the entry's keys appears in set.
func (e RegistryEntry[K]) intersects(set map[K]struct{}) bool {
	for _, k := range e.keys {
		if _, ok := set[k]; ok {
			return true
		}
	}
	return false
}

// equal reports whether other names the same query identity, comparing the
// actual key values rather than their rendered forms.
func (e RegistryEntry[K]) equal(other RegistryEntry[K]) bool {
	if e.fnID != other.fnID || len(e.keys) != len(other.keys) {
		return false
	}
	for i, k := range e.keys {
		if k != other.keys[i] {
			return false
		}
	}
	return true
}

func (e RegistryEntry[K]) String() string {
	return fmt.Sprintf("%v/%s", e.keys, e.fnID)
}

// registryKey is the comparable map key derived from a RegistryEntry. Key
// order matters: [a b] and [b a] are different entries.
type registryKey string

// registryKeyFor renders each component length-prefixed, which keeps
// components from bleeding into one another. The rendering itself can still
// be lossy for composite key types whose %v forms coincide, so registry
// lookups confirm identity against the stored entry with equal.
func registryKeyFor[K comparable](entry RegistryEntry[K]) registryKey {
	var b strings.Builder
	writeComponent(&b, string(entry.fnID))
	for _, k := range entry.keys {
		b.WriteByte('|')
		writeComponent(&b, fmt.Sprintf("%v", k))
	}
	return registryKey(b.String())
}

func writeComponent(b *strings.Builder, s string) {
	b.WriteString(strconv.Itoa(len(s)))
	b.WriteByte(':')
	b.WriteString(s)
}
