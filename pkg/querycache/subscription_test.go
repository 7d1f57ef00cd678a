package querycache_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/illmade-knight/go-querycache/pkg/querycache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscription_LastListenerOutRemovesEntry(t *testing.T) {
	// Arrange: two listeners share one entry.
	ctx := context.Background()
	rec := newNotifyRecorder()
	client := newTestClient(t, rec, 5*time.Second)

	var calls atomic.Int32
	query := querycache.QueryConfig[string, int]{
		Keys: []string{"user:1"}, FnID: "user",
		Fn: func(context.Context, []string) querycache.Result[int] {
			calls.Add(1)
			return querycache.Ok(42)
		},
	}
	sub1, err := client.Subscribe(ctx, "component-1", query)
	require.NoError(t, err)
	sub2, err := client.Subscribe(ctx, "component-2", query)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return calls.Load() == 1 },
		2*time.Second, 5*time.Millisecond)
	require.Equal(t, 1, client.Len())

	// Act: the first listener leaves.
	require.NoError(t, sub1.Close())
	closedAt := rec.Count("component-1")

	// Assert: the entry survives for the remaining listener, who still
	// gets invalidation traffic.
	assert.Equal(t, 1, client.Len())
	before := rec.Count("component-2")
	client.InvalidateQuery(ctx, "user:1")
	assert.Equal(t, int32(2), calls.Load())
	assert.GreaterOrEqual(t, rec.Count("component-2"), before+2)
	assert.Equal(t, closedAt, rec.Count("component-1"), "closed listeners receive nothing further")

	// Act: the last listener leaves.
	require.NoError(t, sub2.Close())

	// Assert: the entry is gone and invalidation finds nothing.
	assert.Equal(t, 0, client.Len())
	_, ok := client.Peek([]string{"user:1"}, "user")
	assert.False(t, ok)
	client.InvalidateQuery(ctx, "user:1")
	assert.Equal(t, int32(2), calls.Load(), "no entry, no refetch")
}

func TestSubscription_CloseSemantics(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, newNotifyRecorder(), 5*time.Second)

	sub, err := client.Subscribe(ctx, "component-1", querycache.QueryConfig[string, int]{
		Keys: []string{"user:1"}, FnID: "user",
		Fn: func(context.Context, []string) querycache.Result[int] { return querycache.Ok(1) },
	})
	require.NoError(t, err)

	t.Run("Close Is Idempotent", func(t *testing.T) {
		require.NoError(t, sub.Close())
		require.NoError(t, sub.Close())
	})

	t.Run("Use After Close Panics", func(t *testing.T) {
		assert.Panics(t, func() { _ = sub.Result() })
		assert.Panics(t, func() { _ = sub.IsFresh() })
	})
}

func TestSubscription_ResubscribeStartsCold(t *testing.T) {
	// Deleting the last listener deletes the record, so a resubscription
	// inside the staleness window still starts from nothing rather than
	// inheriting the old state.
	ctx := context.Background()
	client := newTestClient(t, newNotifyRecorder(), 5*time.Second)

	var calls atomic.Int32
	var secondFetchSaw querycache.CachedResult[int]
	keys := []string{"user:1"}
	query := querycache.QueryConfig[string, int]{
		Keys: keys, FnID: "user",
		Fn: func(context.Context, []string) querycache.Result[int] {
			if calls.Add(1) == 2 {
				if cached, ok := client.Peek(keys, "user"); ok {
					secondFetchSaw = cached
				}
			}
			return querycache.Ok(42)
		},
	}

	sub1, err := client.Subscribe(ctx, "component-1", query)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return calls.Load() == 1 },
		2*time.Second, 5*time.Millisecond)
	require.NoError(t, sub1.Close())
	require.Equal(t, 0, client.Len())

	// Act: resubscribe immediately, well inside what would have been the
	// freshness window.
	sub2, err := client.Subscribe(ctx, "component-2", query)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub2.Close() })

	// Assert: a brand-new record fetched again, and that fetch saw a
	// pristine slot with no carried-over state.
	require.Eventually(t, func() bool { return calls.Load() == 2 },
		2*time.Second, 5*time.Millisecond, "a resubscription after deletion must refetch")
	assert.Equal(t, 1, client.Len())
	assert.True(t, secondFetchSaw.Result().IsLoading())
	_, hadPrev := secondFetchSaw.Result().Previous()
	assert.False(t, hadPrev, "no stale carry-over from the deleted record")
	assert.False(t, secondFetchSaw.HasBeenCached())
	_, wasSet := secondFetchSaw.LastUpdated()
	assert.False(t, wasSet)
}

func TestSubscription_InFlightFetchOutlivesEntry(t *testing.T) {
	// Arrange: a fetch parked on a channel so the subscription can be
	// closed, and its entry deleted, while the fetch is still running.
	ctx := context.Background()
	rec := newNotifyRecorder()
	client := newTestClient(t, rec, 5*time.Second)

	release := make(chan struct{})
	done := make(chan struct{})
	sub, err := client.Subscribe(ctx, "component-1", querycache.QueryConfig[string, int]{
		Keys: []string{"user:1"}, FnID: "user",
		Fn: func(context.Context, []string) querycache.Result[int] {
			<-release
			defer close(done)
			return querycache.Ok(42)
		},
	})
	require.NoError(t, err)

	// Act: delete the entry out from under the fetch, then let it finish.
	require.NoError(t, sub.Close())
	require.Equal(t, 0, client.Len())
	close(release)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("fetch never completed after the entry was deleted")
	}

	// Assert: the fetch settled against its detached slot. Nobody was
	// notified and nothing reappeared in the registry.
	assert.Equal(t, 0, client.Len())
	assert.Equal(t, 0, rec.Total(), "a completion with no listeners is a no-op")
}

func TestSubscription_OrphanedFetchSkipsRecreatedEntry(t *testing.T) {
	// Arrange: a fetch parked on a channel, its entry deleted, and the same
	// entry re-created by a new subscriber before the fetch completes.
	ctx := context.Background()
	rec := newNotifyRecorder()
	client := newTestClient(t, rec, 5*time.Second)

	release := make(chan struct{})
	sub1, err := client.Subscribe(ctx, "component-1", querycache.QueryConfig[string, int]{
		Keys: []string{"user:1"}, FnID: "user",
		Fn: func(context.Context, []string) querycache.Result[int] {
			<-release
			return querycache.Ok(1)
		},
	})
	require.NoError(t, err)
	require.NoError(t, sub1.Close())
	require.Equal(t, 0, client.Len())

	sub2, err := client.Subscribe(ctx, "component-2", querycache.QueryConfig[string, int]{
		Keys: []string{"user:1"}, FnID: "user",
		Fn: func(context.Context, []string) querycache.Result[int] { return querycache.Ok(2) },
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub2.Close() })
	require.Eventually(t, func() bool {
		v, ok := sub2.Result().Result().Value()
		return ok && v == 2
	}, 2*time.Second, 5*time.Millisecond)
	settled := rec.Count("component-2")

	// Act: let the orphaned fetch finish. Its completion belongs to the
	// removed record, not to the record now living under the same key.
	close(release)

	// Assert: the new subscriber hears nothing and its value is untouched.
	assert.Never(t, func() bool { return rec.Count("component-2") > settled },
		300*time.Millisecond, 20*time.Millisecond,
		"an orphaned completion must not notify the re-created entry")
	v, ok := sub2.Result().Result().Value()
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestSubscription_ExposesIdentity(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, newNotifyRecorder(), 5*time.Second)

	sub, err := client.Subscribe(ctx, "component-1", querycache.QueryConfig[string, int]{
		Keys: []string{"user:1", "profile"}, FnID: "user",
		Fn: func(context.Context, []string) querycache.Result[int] { return querycache.Ok(1) },
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })

	assert.Equal(t, []string{"user:1", "profile"}, sub.Keys())
	assert.Equal(t, querycache.QueryFnID("user"), sub.FnID())
	assert.Equal(t, "component-1", string(sub.Listener()))

	// Keys hands out a copy; mutating it must not corrupt the entry.
	leaked := sub.Keys()
	leaked[0] = "user:999"
	assert.Equal(t, []string{"user:1", "profile"}, sub.Keys())
}
