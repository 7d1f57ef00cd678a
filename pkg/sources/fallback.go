package sources

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// DefaultCacheWriteTimeout bounds the background write-back of a fallback
// hit when FallbackConfig.CacheWriteTimeout is left zero.
const DefaultCacheWriteTimeout = 10 * time.Second

// FallbackConfig holds tuning for a FallbackSource.
type FallbackConfig struct {
	// CacheWriteTimeout bounds each background write-back into the cache
	// tier. Zero means DefaultCacheWriteTimeout.
	CacheWriteTimeout time.Duration
}

// FallbackSource composes a cache tier over a source of truth using a
// cache-then-source strategy: fetch from the cache, fall back to the source
// on a miss, and repopulate the cache in the background so the read path
// never waits on the write.
//
// A cache-tier failure is not a read failure: any cache error falls through
// to the source, with genuine backend trouble logged at Warn.
type FallbackSource[K comparable, V any] struct {
	cacheTimeout time.Duration
	logger       zerolog.Logger
	cache        CachingSource[K, V]
	fallback     Source[K, V]
}

// NewFallbackSource builds the read-through composition. Both tiers are
// required; their lifecycles transfer to the returned source, whose Close
// closes them in order.
func NewFallbackSource[K comparable, V any](
	cfg *FallbackConfig,
	cache CachingSource[K, V],
	source Source[K, V],
	logger zerolog.Logger,
) (*FallbackSource[K, V], error) {
	if cache == nil {
		return nil, errors.New("cache tier cannot be nil")
	}
	if source == nil {
		return nil, errors.New("source of truth cannot be nil")
	}
	timeout := cfg.CacheWriteTimeout
	if timeout <= 0 {
		timeout = DefaultCacheWriteTimeout
	}
	return &FallbackSource[K, V]{
		cacheTimeout: timeout,
		logger:       logger.With().Str("component", "FallbackSource").Logger(),
		cache:        cache,
		fallback:     source,
	}, nil
}

// Fetch retrieves an item by key, preferring the cache tier.
func (f *FallbackSource[K, V]) Fetch(ctx context.Context, key K) (V, error) {
	var zero V

	// 1. Try the cache tier.
	value, err := f.cache.Fetch(ctx, key)
	if err == nil {
		f.logger.Debug().Msg("Cache hit.")
		return value, nil
	}
	if errors.Is(err, ErrNotFound) {
		f.logger.Debug().Msg("Cache miss. Falling back to source.")
	} else {
		f.logger.Warn().Err(err).Msg("Cache tier failed. Falling back to source.")
	}

	// 2. Fall back to the source of truth.
	value, err = f.fallback.Fetch(ctx, key)
	if err != nil {
		return zero, fmt.Errorf("error fetching from source: %w", err)
	}

	// 3. Repopulate the cache in the background. A fresh context keeps the
	// write alive after the caller's request finishes.
	go func(k K, v V) {
		writeCtx, cancel := context.WithTimeout(context.Background(), f.cacheTimeout)
		defer cancel()
		if writeErr := f.cache.WriteToCache(writeCtx, k, v); writeErr != nil {
			f.logger.Error().Err(writeErr).Str("key", fmt.Sprintf("%v", k)).Msg("Failed to write to cache in background.")
		}
	}(key, value)

	return value, nil
}

// Close closes the cache tier, then the source of truth.
func (f *FallbackSource[K, V]) Close() error {
	if err := f.cache.Close(); err != nil {
		f.logger.Error().Err(err).Msg("Error closing cache tier.")
		return fmt.Errorf("error closing cache tier: %w", err)
	}
	if err := f.fallback.Close(); err != nil {
		f.logger.Error().Err(err).Msg("Error closing source.")
		return fmt.Errorf("error closing source: %w", err)
	}
	return nil
}
