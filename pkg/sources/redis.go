package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig holds the connection settings for a RedisSource.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// WriteTTL is the expiry applied by WriteToCache. Zero means no expiry.
	WriteTTL time.Duration
}

// RedisSource fetches JSON-encoded values from Redis by key. It satisfies
// CachingSource, so it works both as a plain backend for query functions
// and as the cache tier of a FallbackSource in front of a slower store.
type RedisSource[K comparable, V any] struct {
	redisClient *redis.Client
	logger      zerolog.Logger
	ttl         time.Duration
}

// NewRedisSource creates and connects a RedisSource. It pings the Redis
// server to ensure connectivity before returning, and owns the resulting
// client: Close disconnects it.
func NewRedisSource[K comparable, V any](
	ctx context.Context,
	cfg *RedisConfig,
	logger zerolog.Logger,
) (*RedisSource[K, V], error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info().Str("redis_address", cfg.Addr).Msg("Successfully connected to Redis.")

	return &RedisSource[K, V]{
		redisClient: rdb,
		logger:      logger.With().Str("component", "RedisSource").Logger(),
		ttl:         cfg.WriteTTL,
	}, nil
}

// Fetch retrieves and unmarshals the value stored under the rendered key.
// A missing key is reported through ErrNotFound; any other Redis failure is
// a genuine error.
func (s *RedisSource[K, V]) Fetch(ctx context.Context, key K) (V, error) {
	var zero V
	stringKey := fmt.Sprintf("%v", key)
	cachedData, err := s.redisClient.Get(ctx, stringKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return zero, fmt.Errorf("redis source: key '%s': %w", stringKey, ErrNotFound)
		}
		s.logger.Error().Err(err).Str("key", stringKey).Msg("Unexpected Redis error during fetch.")
		return zero, fmt.Errorf("redis get for %s: %w", stringKey, err)
	}

	var value V
	if err := json.Unmarshal([]byte(cachedData), &value); err != nil {
		s.logger.Error().Err(err).Str("key", stringKey).Msg("Failed to unmarshal stored data.")
		return zero, fmt.Errorf("failed to unmarshal data: %w", err)
	}

	s.logger.Debug().Str("key", stringKey).Msg("Redis hit.")
	return value, nil
}

// WriteToCache marshals value and stores it under the rendered key with the
// configured TTL, satisfying CachingSource.
func (s *RedisSource[K, V]) WriteToCache(ctx context.Context, key K, value V) error {
	stringKey := fmt.Sprintf("%v", key)
	jsonData, err := json.Marshal(value)
	if err != nil {
		s.logger.Error().Err(err).Str("key", stringKey).Msg("Failed to marshal data for storage.")
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	if err := s.redisClient.Set(ctx, stringKey, jsonData, s.ttl).Err(); err != nil {
		s.logger.Error().Err(err).Str("key", stringKey).Msg("Failed to set data in Redis.")
		return fmt.Errorf("failed to set in redis: %w", err)
	}

	s.logger.Debug().Str("key", stringKey).Msg("Successfully stored data in Redis.")
	return nil
}

// Close closes the Redis client connection.
func (s *RedisSource[K, V]) Close() error {
	if s.redisClient != nil {
		s.logger.Info().Msg("Closing Redis client connection...")
		return s.redisClient.Close()
	}
	return nil
}
