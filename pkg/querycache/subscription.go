package querycache

import (
	"sync"

	"github.com/illmade-knight/go-querycache/pkg/types"
)

// Subscription ties one listener to one cache entry. It is the handle a
// Notify callback reads from: Result returns a consistent snapshot of the
// entry's current state.
//
// A Subscription must be closed when its listener goes away; Close detaches
// the listener and deletes the entry once nobody else is watching it. Using
// a closed Subscription is a bug in the host and panics.
type Subscription[K comparable, T any] struct {
	client   *Client[K, T]
	entry    RegistryEntry[K]
	key      registryKey
	listener types.ListenerID
	value    *entryValue[T]

	mu     sync.Mutex
	closed bool
}

// Listener returns the listener ID the subscription was registered with.
func (s *Subscription[K, T]) Listener() types.ListenerID { return s.listener }

// Keys returns a copy of the subscribed key list.
func (s *Subscription[K, T]) Keys() []K { return s.entry.Keys() }

// FnID returns the fetch function ID the subscription was registered with.
func (s *Subscription[K, T]) FnID() QueryFnID { return s.entry.FnID() }

// Result returns a snapshot of the entry's current cached state. Snapshots
// taken while a fetch is in flight show the loading state with the previous
// value; a later call after Notify fires shows the settled result.
func (s *Subscription[K, T]) Result() CachedResult[T] {
	s.ensureOpen()
	return s.value.snapshot()
}

// IsFresh reports whether the entry's state transitioned within the client's
// staleness window.
func (s *Subscription[K, T]) IsFresh() bool {
	s.ensureOpen()
	return s.value.snapshot().IsFresh(s.client.staleTime)
}

// Close detaches the listener from the entry. The first call wins; closing
// an already-closed Subscription is a no-op. Close never interrupts an
// in-flight fetch: the fetch settles against the shared slot and simply
// finds no listeners to notify.
func (s *Subscription[K, T]) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.client.unsubscribe(s.key, s.listener)
	return nil
}

func (s *Subscription[K, T]) ensureOpen() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		panic("querycache: Subscription used after Close")
	}
}
