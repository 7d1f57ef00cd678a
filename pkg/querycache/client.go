// Package querycache is a client-side cache for asynchronous data fetching.
// It deduplicates concurrent queries onto shared cache entries, tracks
// staleness, fans change notifications out to listeners, and supports
// key-based invalidation with automatic refetching.
//
// The engine fetches nothing on its own schedule. Work happens only when a
// listener subscribes to a query or when a caller invalidates keys; rendering
// and scheduling stay in the host application, reached through the callbacks
// in pkg/types.
package querycache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/illmade-knight/go-querycache/pkg/types"
	"github.com/rs/zerolog"
)

// DefaultStaleTime is how long a settled entry serves subscribers without a
// refetch when ClientConfig.StaleTime is left zero.
const DefaultStaleTime = 100 * time.Millisecond

// ClientConfig carries the host hooks and tuning for a Client.
type ClientConfig struct {
	// StaleTime is the window after a state transition during which an
	// entry is considered fresh. Zero means DefaultStaleTime.
	StaleTime time.Duration
	// Notify is called whenever a listener's observed value changes.
	// Required.
	Notify types.NotifyFunc
	// Spawn launches the engine's asynchronous fetch tasks. Nil means
	// types.GoSpawner.
	Spawn types.SpawnFunc
}

// QueryConfig declares one query: the ordered keys that identify the data,
// the function that fetches it, and that function's identity for
// deduplication.
type QueryConfig[K comparable, T any] struct {
	// Keys identify the data. Order matters; at least one is required.
	// Distinct key lists that render identically via fmt cannot both be
	// live; Subscribe rejects the later one.
	Keys []K
	// FnID is the deduplication identity of Fn. Required.
	FnID QueryFnID
	// Fn fetches the data. Required. When several subscriptions share an
	// entry, the function supplied by the first subscriber is the one
	// that runs.
	Fn QueryFn[K, T]
	// Initial optionally seeds a brand-new entry with a result to show
	// before the first fetch settles. It is ignored when the entry
	// already exists, and it never suppresses the first fetch. The
	// callback runs outside the client's internal lock and may itself
	// read from the Client.
	Initial func() Result[T]
}

// record is one live registry entry: the shared value slot, the listeners
// watching it, and the fetch function that fills it.
type record[K comparable, T any] struct {
	entry     RegistryEntry[K]
	value     *entryValue[T]
	listeners map[types.ListenerID]struct{}
	fn        QueryFn[K, T]
}

// Client is the query cache engine. One Client manages one registry of cache
// entries, all sharing a key type K and value type T.
//
// All methods are safe for concurrent use. Fetch tasks keep their own
// reference to an entry's value slot, so a fetch that outlives its entry
// completes harmlessly against the detached slot.
type Client[K comparable, T any] struct {
	staleTime time.Duration
	notify    types.NotifyFunc
	spawn     types.SpawnFunc
	logger    zerolog.Logger

	mu       sync.Mutex
	registry map[registryKey]*record[K, T]
}

// NewClient validates cfg, applies defaults, and returns a ready Client.
func NewClient[K comparable, T any](cfg ClientConfig, logger zerolog.Logger) (*Client[K, T], error) {
	if cfg.Notify == nil {
		return nil, errors.New("querycache: ClientConfig.Notify cannot be nil")
	}
	if cfg.StaleTime < 0 {
		return nil, fmt.Errorf("querycache: negative StaleTime %v", cfg.StaleTime)
	}
	if cfg.StaleTime == 0 {
		cfg.StaleTime = DefaultStaleTime
	}
	if cfg.Spawn == nil {
		cfg.Spawn = types.GoSpawner
	}
	return &Client[K, T]{
		staleTime: cfg.StaleTime,
		notify:    cfg.Notify,
		spawn:     cfg.Spawn,
		logger:    logger.With().Str("component", "querycache.Client").Logger(),
		registry:  make(map[registryKey]*record[K, T]),
	}, nil
}

// StaleTime returns the freshness window the Client was configured with.
func (c *Client[K, T]) StaleTime() time.Duration { return c.staleTime }

// Len returns the number of live cache entries.
func (c *Client[K, T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.registry)
}

// Peek returns the current cached state of the entry identified by keys and
// fnID, without subscribing and without triggering any fetch. The boolean is
// false when no such entry is live.
func (c *Client[K, T]) Peek(keys []K, fnID QueryFnID) (CachedResult[T], bool) {
	entry := newRegistryEntry(keys, fnID)
	c.mu.Lock()
	rec, ok, err := c.lookupLocked(registryKeyFor(entry), entry)
	c.mu.Unlock()
	if err != nil || !ok {
		return CachedResult[T]{}, false
	}
	return rec.value.snapshot(), true
}

// lookupLocked resolves key to its live record and confirms the record
// really belongs to entry: the derived registry key can alias distinct key
// lists whose rendered forms coincide, so identity is re-checked against the
// stored keys. The caller must hold c.mu.
func (c *Client[K, T]) lookupLocked(key registryKey, entry RegistryEntry[K]) (*record[K, T], bool, error) {
	rec, ok := c.registry[key]
	if !ok {
		return nil, false, nil
	}
	if !rec.entry.equal(entry) {
		return nil, false, fmt.Errorf("querycache: key list %v collides with live entry %v under the registry encoding", entry.keys, rec.entry)
	}
	return rec, true, nil
}

// Subscribe registers listener against the entry identified by q's keys and
// FnID, creating the entry if needed, and schedules a validation pass that
// fetches if the entry is stale or has never run. It returns immediately
// with a Subscription handle; results arrive through the configured Notify
// callback and are read from the handle.
//
// ctx is handed to the fetch function, which completes in the background
// after Subscribe returns. Cancelling it does not stop the engine from
// recording whatever the function returns.
func (c *Client[K, T]) Subscribe(ctx context.Context, listener types.ListenerID, q QueryConfig[K, T]) (*Subscription[K, T], error) {
	if listener == "" {
		return nil, errors.New("querycache: listener ID cannot be empty")
	}
	if len(q.Keys) == 0 {
		return nil, errors.New("querycache: query needs at least one key")
	}
	if q.FnID == "" {
		return nil, errors.New("querycache: QueryConfig.FnID cannot be empty")
	}
	if q.Fn == nil {
		return nil, errors.New("querycache: QueryConfig.Fn cannot be nil")
	}

	entry := newRegistryEntry(q.Keys, q.FnID)
	key := registryKeyFor(entry)

	var (
		seed     Result[T]
		haveSeed bool
	)

	c.mu.Lock()
	rec, existed, err := c.lookupLocked(key, entry)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if !existed && q.Initial != nil {
		// Initial is a host callback and may re-enter the client, so it
		// cannot run under c.mu. Evaluate it unlocked, then look the key
		// up again: a subscriber may have raced the entry into existence
		// meanwhile, in which case its state wins and the seed is
		// discarded.
		c.mu.Unlock()
		seed = q.Initial()
		haveSeed = true
		c.mu.Lock()
		rec, existed, err = c.lookupLocked(key, entry)
		if err != nil {
			c.mu.Unlock()
			return nil, err
		}
	}
	if !existed {
		rec = &record[K, T]{
			entry:     entry,
			value:     &entryValue[T]{},
			listeners: make(map[types.ListenerID]struct{}),
			fn:        q.Fn,
		}
		if haveSeed {
			rec.value.seed(seed)
		}
		c.registry[key] = rec
	}
	rec.listeners[listener] = struct{}{}
	value, fn := rec.value, rec.fn
	c.mu.Unlock()

	if existed {
		c.logger.Debug().Stringer("entry", entry).Str("listener_id", string(listener)).
			Msg("Joined existing cache entry; its original fetch function stays in charge.")
	} else {
		c.logger.Debug().Stringer("entry", entry).Str("listener_id", string(listener)).
			Msg("Created cache entry.")
	}

	sub := &Subscription[K, T]{client: c, entry: entry, key: key, listener: listener, value: value}
	c.spawn(func() {
		c.validate(ctx, key, entry, value, fn)
	})
	return sub, nil
}

// validate brings one entry up to date. It fetches when the entry is stale
// and idle, or has never run at all; otherwise it only notifies listeners so
// late subscribers re-read the already-fresh value.
//
// The value slot and fetch function are taken at subscribe time: validation
// never depends on the entry still being registered, and a completion whose
// record has been removed notifies nobody, even when a later subscriber has
// re-created the entry under the same identity.
func (c *Client[K, T]) validate(ctx context.Context, key registryKey, entry RegistryEntry[K], value *entryValue[T], fn QueryFn[K, T]) {
	// The staleness check and the transition to a loading state form one
	// critical section. Two subscriptions racing onto a cold entry must
	// resolve to a single fetch: whichever validation commits first flips
	// the entry to loading (or records the dispatch), and the loser sees
	// that and backs off to a plain notification.
	value.mu.Lock()
	fresh := value.cached.IsFresh(c.staleTime)
	loading := value.cached.value.IsLoading()
	hasRun := value.cached.hasRun
	if (fresh || loading) && hasRun {
		value.mu.Unlock()
		// Rehydration: the entry already holds something current, so the
		// new subscriber just needs to be told to look.
		c.logger.Debug().Stringer("entry", entry).Msg("Entry is current; notifying without a refetch.")
		c.notifyListeners(key, value)
		return
	}
	transitioned := false
	if value.cached.HasBeenCached() {
		prev := value.cached.value.previous()
		value.cached = CachedResult[T]{value: LoadingFrom(prev), lastUpdated: time.Now(), hasRun: true}
		transitioned = true
	} else {
		// First run: keep the pristine loading state visible, just record
		// the dispatch.
		value.cached.hasRun = true
	}
	value.mu.Unlock()

	if transitioned {
		c.notifyListeners(key, value)
	}

	result := fn(ctx, entry.Keys())

	value.settle(result, time.Now())
	c.logger.Debug().Stringer("entry", entry).Str("state", result.stateName()).
		Msg("Fetch settled.")

	// The listener set is re-read here rather than captured before the
	// fetch: subscribers that arrived mid-flight are notified, departed
	// ones are not.
	c.notifyListeners(key, value)
}

// notifyListeners snapshots the listener set of the record that still owns
// value and invokes the host callback for each member. A completion whose
// record has been removed, or replaced by a re-created entry under the same
// key, resolves to a different slot and notifies nobody. The callback runs
// outside every engine lock, so hosts may call back into the Client from
// inside it.
func (c *Client[K, T]) notifyListeners(key registryKey, value *entryValue[T]) {
	c.mu.Lock()
	rec, ok := c.registry[key]
	var ids []types.ListenerID
	if ok && rec.value == value && len(rec.listeners) > 0 {
		ids = make([]types.ListenerID, 0, len(rec.listeners))
		for id := range rec.listeners {
			ids = append(ids, id)
		}
	}
	c.mu.Unlock()

	for _, id := range ids {
		c.notify(id)
	}
}

// unsubscribe detaches listener from the entry and deletes the entry when
// its last listener leaves. Fetches already in flight for a deleted entry
// finish against their own reference to the value slot.
func (c *Client[K, T]) unsubscribe(key registryKey, listener types.ListenerID) {
	c.mu.Lock()
	rec, ok := c.registry[key]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(rec.listeners, listener)
	removedEntry := len(rec.listeners) == 0
	if removedEntry {
		delete(c.registry, key)
	}
	entry := rec.entry
	c.mu.Unlock()

	if removedEntry {
		c.logger.Debug().Stringer("entry", entry).
			Msg("Removed cache entry; last listener unsubscribed.")
	}
}
