package sources_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/illmade-knight/go-querycache/pkg/sources"
)

// mockSource is a test double that simulates a database or other primary
// data source, recording how often and for which keys it was hit.
type mockSource struct {
	callCount atomic.Int32
	fetchErr  error
	closed    atomic.Bool

	mu   sync.Mutex
	data map[string]string
}

func newMockSource() *mockSource {
	return &mockSource{
		data: map[string]string{
			"user:123": "John Doe",
			"user:456": "Jane Smith",
		},
	}
}

func (m *mockSource) Fetch(_ context.Context, key string) (string, error) {
	m.callCount.Add(1)
	if m.fetchErr != nil {
		return "", m.fetchErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if val, ok := m.data[key]; ok {
		return val, nil
	}
	return "", fmt.Errorf("mock source: key '%s': %w", key, sources.ErrNotFound)
}

func (m *mockSource) set(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
}

func (m *mockSource) Close() error {
	m.closed.Store(true)
	return nil
}

// mockCachingSource layers write recording on top of mockSource so tests
// can observe asynchronous write-backs.
type mockCachingSource struct {
	mockSource
	writeCount atomic.Int32
}

func newMockCachingSource() *mockCachingSource {
	return &mockCachingSource{
		mockSource: mockSource{data: map[string]string{}},
	}
}

func (m *mockCachingSource) WriteToCache(_ context.Context, key string, value string) error {
	m.writeCount.Add(1)
	m.set(key, value)
	return nil
}
