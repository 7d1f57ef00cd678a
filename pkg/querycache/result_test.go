package querycache_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/illmade-knight/go-querycache/pkg/querycache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResult_States(t *testing.T) {
	t.Run("Zero Value Is Loading With Nothing Previous", func(t *testing.T) {
		var r querycache.Result[int]
		assert.True(t, r.IsLoading())
		assert.False(t, r.IsOk())
		assert.False(t, r.IsErr())
		_, ok := r.Previous()
		assert.False(t, ok)
		assert.Equal(t, querycache.Loading[int](), r)
	})

	t.Run("Ok", func(t *testing.T) {
		r := querycache.Ok(42)
		assert.True(t, r.IsOk())
		v, ok := r.Value()
		require.True(t, ok)
		assert.Equal(t, 42, v)
		assert.NoError(t, r.Error())
	})

	t.Run("Err", func(t *testing.T) {
		boom := errors.New("boom")
		r := querycache.Err[int](boom)
		assert.True(t, r.IsErr())
		assert.ErrorIs(t, r.Error(), boom)
		_, ok := r.Value()
		assert.False(t, ok)
	})

	t.Run("LoadingFrom Carries The Previous Value", func(t *testing.T) {
		prev := 42
		r := querycache.LoadingFrom(&prev)
		assert.True(t, r.IsLoading())
		got, ok := r.Previous()
		require.True(t, ok)
		assert.Equal(t, 42, got)

		// Settled results never expose a previous value.
		_, ok = querycache.Ok(1).Previous()
		assert.False(t, ok)
	})

	t.Run("From Wraps Conventional Returns", func(t *testing.T) {
		r := querycache.From(7, nil)
		v, ok := r.Value()
		require.True(t, ok)
		assert.Equal(t, 7, v)

		boom := errors.New("boom")
		r = querycache.From(0, boom)
		assert.True(t, r.IsErr())
		assert.ErrorIs(t, r.Error(), boom)
	})
}

func TestCachedResult_ZeroValue(t *testing.T) {
	var cached querycache.CachedResult[int]
	assert.True(t, cached.Result().IsLoading())
	assert.False(t, cached.HasBeenCached())
	assert.False(t, cached.HasRun())
	assert.False(t, cached.IsFresh(time.Hour), "an entry that never ran is never fresh")
	_, ok := cached.LastUpdated()
	assert.False(t, ok)
}

func TestStaleness_IsMonotonic(t *testing.T) {
	// Freshness is a one-way trip: true immediately after a fetch settles,
	// false once the window elapses, and it stays false until another fetch.
	ctx := context.Background()
	client := newTestClient(t, newNotifyRecorder(), 300*time.Millisecond)

	var calls atomic.Int32
	sub, err := client.Subscribe(ctx, "component-1", querycache.QueryConfig[string, int]{
		Keys: []string{"user:1"}, FnID: "user",
		Fn: func(context.Context, []string) querycache.Result[int] {
			calls.Add(1)
			return querycache.Ok(42)
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })

	require.Eventually(t, func() bool { return sub.Result().Result().IsOk() },
		2*time.Second, 2*time.Millisecond)
	assert.True(t, sub.IsFresh(), "fresh immediately after settling")
	updatedAt, ok := sub.Result().LastUpdated()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now(), updatedAt, time.Second)

	require.Eventually(t, func() bool { return !sub.IsFresh() },
		2*time.Second, 5*time.Millisecond, "freshness must lapse after the window")

	// With nothing refetching, staleness is permanent.
	time.Sleep(80 * time.Millisecond)
	assert.False(t, sub.IsFresh())
	assert.True(t, sub.Result().HasRun(), "staleness does not reset the has-run flag")
	assert.Equal(t, int32(1), calls.Load())
}
