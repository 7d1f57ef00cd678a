package invalidation

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
)

// BroadcasterConfig identifies the topic invalidations are published to and
// the origin tag stamped onto every event.
type BroadcasterConfig struct {
	TopicID string
	Origin  string
}

// Broadcaster publishes invalidation events to a Pub/Sub topic so remote
// relays can replay them into their own caches.
type Broadcaster struct {
	topic  *pubsub.Topic
	origin string
	logger zerolog.Logger
}

// NewBroadcaster creates a Broadcaster over an injected Pub/Sub client.
// It verifies that the target topic exists before returning, respecting the
// context's deadline.
func NewBroadcaster(ctx context.Context, cfg *BroadcasterConfig, client *pubsub.Client, logger zerolog.Logger) (*Broadcaster, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client cannot be nil")
	}
	if cfg == nil || cfg.TopicID == "" || cfg.Origin == "" {
		return nil, fmt.Errorf("BroadcasterConfig requires TopicID and Origin")
	}

	topic := client.Topic(cfg.TopicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check for topic %s: %w", cfg.TopicID, err)
	}
	if !exists {
		return nil, fmt.Errorf("pubsub topic %s does not exist", cfg.TopicID)
	}

	return &Broadcaster{
		topic:  topic,
		origin: cfg.Origin,
		logger: logger.With().Str("component", "Broadcaster").Str("topic_id", cfg.TopicID).Logger(),
	}, nil
}

// Origin returns the origin tag the broadcaster stamps onto its events.
func (b *Broadcaster) Origin() string { return b.origin }

// Broadcast stamps a new event for keys under the broadcaster's origin and
// publishes it, returning the event for log correlation.
func (b *Broadcaster) Broadcast(ctx context.Context, keys ...string) (Event, error) {
	event := NewEvent(b.origin, keys...)
	if err := b.Publish(ctx, event); err != nil {
		return Event{}, err
	}
	return event, nil
}

// Publish sends one event and waits for the server to acknowledge it. An
// invalidation that was not acknowledged must surface to the caller, since
// remote caches would otherwise serve stale data indefinitely.
func (b *Broadcaster) Publish(ctx context.Context, event Event) error {
	if len(event.Keys) == 0 {
		return fmt.Errorf("invalidation event %s carries no keys", event.ID)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal invalidation event: %w", err)
	}

	// The origin attribute duplicates the payload field so deployments can
	// filter loopback events server-side with a subscription filter.
	result := b.topic.Publish(ctx, &pubsub.Message{
		Data:       payload,
		Attributes: map[string]string{"origin": event.Origin},
	})

	msgID, err := result.Get(ctx)
	if err != nil {
		b.logger.Error().Err(err).Str("event_id", event.ID).Msg("Failed to publish invalidation event")
		return fmt.Errorf("failed to publish invalidation event %s: %w", event.ID, err)
	}

	b.logger.Info().Str("published_msg_id", msgID).Str("event_id", event.ID).Int("key_count", len(event.Keys)).
		Msg("Invalidation event sent successfully.")
	return nil
}

// Stop flushes any pending messages for the topic, respecting the context's
// timeout.
func (b *Broadcaster) Stop(ctx context.Context) error {
	if b.topic == nil {
		return nil
	}

	// topic.Stop() is blocking, so we wrap it to respect the context timeout.
	stopDone := make(chan struct{})
	go func() {
		b.topic.Stop()
		close(stopDone)
	}()

	select {
	case <-stopDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
