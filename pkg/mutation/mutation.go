// Package mutation tracks the lifecycle of write-style asynchronous
// operations: a state machine that moves from pending through loading to a
// settled success or error, notifying one listener at each visible
// transition.
//
// Mutations are simpler than queries. There is no registry, no
// deduplication, and no staleness: every declaration owns its own state, and
// overlapping runs on one handle are the caller's problem, not the
// engine's.
package mutation

import (
	"context"
	"errors"
	"sync"

	"github.com/illmade-knight/go-querycache/pkg/types"
	"github.com/rs/zerolog"
)

// Fn performs the write operation. The engine calls it inline from Mutate;
// implementations that suspend (network, I/O) block the mutating caller, so
// hosts that need fire-and-forget semantics run Mutate through their own
// spawner. Whatever Fn returns is recorded, even if the listener is long
// gone.
type Fn[T any, P any] func(ctx context.Context, arg P) Result[T]

// Mutation drives one write operation's state through
// Pending -> Loading -> Ok/Err, re-entering Loading on every further run.
// The state is safe to read concurrently with a run, but two overlapping
// runs race: the last write wins and both notify.
type Mutation[T any, P any] struct {
	fn       Fn[T, P]
	listener types.ListenerID
	notify   types.NotifyFunc
	logger   zerolog.Logger

	mu    sync.RWMutex
	value Result[T]
}

// New returns a Mutation in the Pending state, owned by listener. Each call
// creates an independent state machine; mutations are never shared or
// deduplicated the way queries are.
func New[T any, P any](fn Fn[T, P], listener types.ListenerID, notify types.NotifyFunc, logger zerolog.Logger) (*Mutation[T, P], error) {
	if fn == nil {
		return nil, errors.New("mutation: Fn cannot be nil")
	}
	if listener == "" {
		return nil, errors.New("mutation: listener ID cannot be empty")
	}
	if notify == nil {
		return nil, errors.New("mutation: notify callback cannot be nil")
	}
	return &Mutation[T, P]{
		fn:       fn,
		listener: listener,
		notify:   notify,
		logger:   logger.With().Str("component", "mutation.Mutation").Str("listener_id", string(listener)).Logger(),
	}, nil
}

// Listener returns the listener ID the mutation notifies.
func (m *Mutation[T, P]) Listener() types.ListenerID { return m.listener }

// Result returns a snapshot of the mutation's current state.
func (m *Mutation[T, P]) Result() Result[T] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.value
}

// Mutate runs the mutation function with arg and returns the settled state.
// The listener is notified twice: once when the state flips to Loading
// (carrying the previous successful value, if any), and once when the run
// settles. The call blocks for the duration of the function.
func (m *Mutation[T, P]) Mutate(ctx context.Context, arg P) Result[T] {
	return m.run(ctx, arg, true)
}

// MutateSilent is Mutate without the listener notifications. It is for
// callers that want the state updated but no re-render triggered, such as
// background writes whose outcome the UI polls later.
func (m *Mutation[T, P]) MutateSilent(ctx context.Context, arg P) Result[T] {
	return m.run(ctx, arg, false)
}

func (m *Mutation[T, P]) run(ctx context.Context, arg P, announce bool) Result[T] {
	m.mu.Lock()
	prev := m.value.previous()
	m.value = LoadingFrom(prev)
	m.mu.Unlock()

	if announce {
		m.notify(m.listener)
	}

	result := m.fn(ctx, arg)

	m.mu.Lock()
	m.value = result
	m.mu.Unlock()
	m.logger.Debug().Str("state", result.stateName()).Msg("Mutation settled.")

	if announce {
		m.notify(m.listener)
	}
	// Re-read rather than returning the local result: under overlapping
	// runs the caller sees the same last-write-wins state a listener would.
	return m.Result()
}
