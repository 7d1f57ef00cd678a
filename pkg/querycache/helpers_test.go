package querycache_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/illmade-knight/go-querycache/pkg/querycache"
	"github.com/illmade-knight/go-querycache/pkg/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// newTestClient builds a string-keyed, int-valued client wired to the given
// recorder. Most tests want a staleTime far above their own runtime so
// entries only go stale when a test forces it.
func newTestClient(t *testing.T, rec *notifyRecorder, staleTime time.Duration) *querycache.Client[string, int] {
	t.Helper()
	client, err := querycache.NewClient[string, int](querycache.ClientConfig{
		StaleTime: staleTime,
		Notify:    rec.Notify,
	}, zerolog.Nop())
	require.NoError(t, err)
	return client
}

// notifyRecorder is a test double for the host's notification callback. It
// counts calls per listener so tests can assert who was told to re-read.
type notifyRecorder struct {
	mu    sync.Mutex
	calls map[types.ListenerID]int
}

func newNotifyRecorder() *notifyRecorder {
	return &notifyRecorder{calls: make(map[types.ListenerID]int)}
}

func (r *notifyRecorder) Notify(id types.ListenerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[id]++
}

func (r *notifyRecorder) Count(id types.ListenerID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[id]
}

func (r *notifyRecorder) Total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, n := range r.calls {
		total += n
	}
	return total
}

// concurrencyGauge tracks how many tracked sections run at once, so tests
// can prove work happened in parallel without timing the wall clock.
type concurrencyGauge struct {
	current atomic.Int32
	peak    atomic.Int32
}

func (g *concurrencyGauge) enter() {
	cur := g.current.Add(1)
	for {
		peak := g.peak.Load()
		if cur <= peak || g.peak.CompareAndSwap(peak, cur) {
			return
		}
	}
}

func (g *concurrencyGauge) exit() {
	g.current.Add(-1)
}

func (g *concurrencyGauge) Peak() int {
	return int(g.peak.Load())
}
