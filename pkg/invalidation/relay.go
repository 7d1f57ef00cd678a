package invalidation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
)

// Invalidator is the engine-side contract a Relay drives. A
// *querycache.Client satisfies it directly.
type Invalidator[K comparable] interface {
	InvalidateQueries(ctx context.Context, keys []K)
}

// DecodeKeyFunc turns one wire-form key back into the engine's key type.
// Returning an error rejects the whole event.
type DecodeKeyFunc[K comparable] func(string) (K, error)

// StringKeys is the DecodeKeyFunc for engines keyed by plain strings.
func StringKeys(key string) (string, error) { return key, nil }

// RelayConfig configures a Relay's subscription and identity.
type RelayConfig struct {
	SubscriptionID string
	// Origin tags this process. Events published under the same tag are
	// acknowledged without being applied, since the publishing process
	// already refetched locally.
	Origin                 string
	MaxOutstandingMessages int
	NumGoroutines          int
}

// LoadDefaultRelayConfig returns a RelayConfig with production-ready
// concurrency settings. A relay always needs a subscription and an origin.
func LoadDefaultRelayConfig(subID string, origin string) *RelayConfig {
	return &RelayConfig{
		SubscriptionID:         subID,
		Origin:                 origin,
		MaxOutstandingMessages: 100,
		NumGoroutines:          5,
	}
}

// Relay subscribes to invalidation events and replays them into a local
// cache client. Each event is applied synchronously before it is
// acknowledged, so an acked event means the local cache has refetched.
type Relay[K comparable] struct {
	subscription  *pubsub.Subscription
	origin        string
	invalidator   Invalidator[K]
	decodeKey     DecodeKeyFunc[K]
	logger        zerolog.Logger
	stopOnce      sync.Once
	cancelReceive context.CancelFunc
	wg            sync.WaitGroup
	doneChan      chan struct{}
}

// NewRelay creates a Relay over an injected Pub/Sub client, verifying the
// subscription exists before returning.
func NewRelay[K comparable](cfg *RelayConfig, client *pubsub.Client, invalidator Invalidator[K], decodeKey DecodeKeyFunc[K], logger zerolog.Logger) (*Relay[K], error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client cannot be nil")
	}
	if cfg == nil || cfg.SubscriptionID == "" || cfg.Origin == "" {
		return nil, fmt.Errorf("RelayConfig requires SubscriptionID and Origin")
	}
	if invalidator == nil {
		return nil, fmt.Errorf("invalidator cannot be nil")
	}
	if decodeKey == nil {
		return nil, fmt.Errorf("decodeKey cannot be nil")
	}

	sub := client.Subscription(cfg.SubscriptionID)

	subContext, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	e, err := sub.Exists(subContext)
	if !e || err != nil {
		return nil, fmt.Errorf("subscription %s does not exist: %w", cfg.SubscriptionID, err)
	}
	logger.Info().Str("subscription_id", cfg.SubscriptionID).Msg("Listening for invalidation events")

	sub.ReceiveSettings.MaxOutstandingMessages = cfg.MaxOutstandingMessages
	sub.ReceiveSettings.NumGoroutines = cfg.NumGoroutines

	return &Relay[K]{
		subscription: sub,
		origin:       cfg.Origin,
		invalidator:  invalidator,
		decodeKey:    decodeKey,
		logger:       logger.With().Str("component", "invalidation.Relay").Str("subscription_id", cfg.SubscriptionID).Logger(),
		doneChan:     make(chan struct{}),
	}, nil
}

// Start launches the receive loop. It returns immediately; events are
// applied on the subscription's receive goroutines until Stop is called or
// ctx is cancelled.
func (r *Relay[K]) Start(ctx context.Context) error {
	r.logger.Info().Msg("Starting invalidation event consumption...")
	receiveCtx, cancel := context.WithCancel(ctx)
	r.cancelReceive = cancel
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(r.doneChan)
		defer r.logger.Info().Msg("Relay receive goroutine stopped.")

		r.logger.Info().Msg("Relay receive goroutine started.")
		err := r.subscription.Receive(receiveCtx, r.handle)
		if err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Error().Err(err).Msg("Pub/Sub Receive call exited with error")
		}
	}()
	return nil
}

// handle applies one wire message. Undecodable messages are Nacked for
// redelivery elsewhere; loopback and applied events are Acked.
func (r *Relay[K]) handle(ctx context.Context, msg *pubsub.Message) {
	var event Event
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		r.logger.Error().Err(err).Str("msg_id", msg.ID).Msg("Failed to unmarshal invalidation event, Nacking.")
		msg.Nack()
		return
	}

	if event.Origin == r.origin {
		r.logger.Debug().Str("event_id", event.ID).Msg("Skipping invalidation event from own origin.")
		msg.Ack()
		return
	}

	keys := make([]K, 0, len(event.Keys))
	for _, wireKey := range event.Keys {
		key, err := r.decodeKey(wireKey)
		if err != nil {
			r.logger.Error().Err(err).Str("event_id", event.ID).Str("key", wireKey).
				Msg("Failed to decode invalidation key, Nacking.")
			msg.Nack()
			return
		}
		keys = append(keys, key)
	}

	r.invalidator.InvalidateQueries(ctx, keys)
	msg.Ack()
	r.logger.Debug().Str("event_id", event.ID).Str("origin", event.Origin).Int("key_count", len(keys)).
		Msg("Applied invalidation event.")
}

// Stop halts the receive loop and waits for it to confirm, respecting the
// context's deadline. Stopping a relay that never started is a no-op.
func (r *Relay[K]) Stop(ctx context.Context) error {
	var err error
	r.stopOnce.Do(func() {
		r.logger.Info().Msg("Stopping invalidation relay...")
		if r.cancelReceive == nil {
			return
		}
		r.cancelReceive()
		select {
		case <-r.doneChan:
			r.logger.Info().Msg("Relay receive goroutine confirmed stopped.")
		case <-ctx.Done():
			r.logger.Error().Err(ctx.Err()).Msg("Timeout waiting for relay receive goroutine to stop.")
			err = ctx.Err()
		}
	})
	return err
}

// Done is closed once the receive goroutine has fully stopped.
func (r *Relay[K]) Done() <-chan struct{} { return r.doneChan }
