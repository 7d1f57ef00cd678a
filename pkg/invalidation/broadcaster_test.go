package invalidation_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/illmade-knight/go-querycache/pkg/invalidation"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// setupPubsubTest creates an in-memory Pub/Sub environment with one topic
// and one subscription bound to it.
func setupPubsubTest(t *testing.T, projectID, topicID, subID string) (*pubsub.Client, *pubsub.Subscription) {
	t.Helper()
	ctx := context.Background()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(ctx, projectID, option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	topic, err := client.CreateTopic(ctx, topicID)
	require.NoError(t, err)

	sub, err := client.CreateSubscription(ctx, subID, pubsub.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)

	return client, sub
}

func TestBroadcaster_PublishAndReceive(t *testing.T) {
	// --- Arrange ---
	testCtx, testCancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(testCancel)

	client, sub := setupPubsubTest(t, "test-project", "invalidation-topic", "invalidation-sub")

	broadcaster, err := invalidation.NewBroadcaster(testCtx, &invalidation.BroadcasterConfig{
		TopicID: "invalidation-topic",
		Origin:  "service-a",
	}, client, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "service-a", broadcaster.Origin())

	// --- Act ---
	sent, err := broadcaster.Broadcast(testCtx, "user:123", "user:456")
	require.NoError(t, err)
	require.NotEmpty(t, sent.ID)

	// --- Assert ---
	var mu sync.Mutex
	var receivedMsg *pubsub.Message

	receiveCtx, receiveCancel := context.WithCancel(testCtx)
	t.Cleanup(receiveCancel)

	go func() {
		err := sub.Receive(receiveCtx, func(_ context.Context, msg *pubsub.Message) {
			mu.Lock()
			receivedMsg = msg
			mu.Unlock()
			msg.Ack()
			receiveCancel()
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Subscription receive error: %v", err)
		}
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return receivedMsg != nil
	}, 5*time.Second, 50*time.Millisecond, "did not receive invalidation event in time")

	var received invalidation.Event
	require.NoError(t, json.Unmarshal(receivedMsg.Data, &received))
	assert.Equal(t, sent.ID, received.ID)
	assert.Equal(t, "service-a", received.Origin)
	assert.Equal(t, []string{"user:123", "user:456"}, received.Keys)
	assert.Equal(t, "service-a", receivedMsg.Attributes["origin"], "origin attribute supports server-side filtering")

	// --- Act & Assert: Stop ---
	stopCtx, stopCancel := context.WithTimeout(testCtx, 2*time.Second)
	t.Cleanup(stopCancel)
	require.NoError(t, broadcaster.Stop(stopCtx))
}

func TestBroadcaster_PublishRejectsEmptyEvent(t *testing.T) {
	testCtx, testCancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(testCancel)

	client, _ := setupPubsubTest(t, "test-project", "invalidation-topic", "invalidation-sub")

	broadcaster, err := invalidation.NewBroadcaster(testCtx, &invalidation.BroadcasterConfig{
		TopicID: "invalidation-topic",
		Origin:  "service-a",
	}, client, zerolog.Nop())
	require.NoError(t, err)

	err = broadcaster.Publish(testCtx, invalidation.NewEvent("service-a"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carries no keys")
}

func TestNewBroadcaster_Validation(t *testing.T) {
	testCtx, testCancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(testCancel)

	client, _ := setupPubsubTest(t, "test-project", "invalidation-topic", "invalidation-sub")

	t.Run("Nil client", func(t *testing.T) {
		_, err := invalidation.NewBroadcaster(testCtx, &invalidation.BroadcasterConfig{TopicID: "t", Origin: "o"}, nil, zerolog.Nop())
		require.Error(t, err)
	})

	t.Run("Missing config fields", func(t *testing.T) {
		_, err := invalidation.NewBroadcaster(testCtx, &invalidation.BroadcasterConfig{TopicID: "invalidation-topic"}, client, zerolog.Nop())
		require.Error(t, err)

		_, err = invalidation.NewBroadcaster(testCtx, &invalidation.BroadcasterConfig{Origin: "service-a"}, client, zerolog.Nop())
		require.Error(t, err)
	})

	t.Run("Topic does not exist", func(t *testing.T) {
		_, err := invalidation.NewBroadcaster(testCtx, &invalidation.BroadcasterConfig{
			TopicID: "non-existent-topic",
			Origin:  "service-a",
		}, client, zerolog.Nop())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "pubsub topic non-existent-topic does not exist")
	})
}
