// Package invalidation carries cache invalidations between processes over
// Google Cloud Pub/Sub. A Broadcaster publishes the keys a process has
// invalidated; a Relay subscribes and replays them into its local cache
// client. Only the invalidate verb travels: no cached data crosses process
// boundaries, each receiver refetches from its own sources.
package invalidation

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event is one remote invalidation on the wire: the keys to invalidate and
// where the invalidation came from.
type Event struct {
	// ID uniquely identifies the event, mostly for log correlation.
	ID string `json:"id"`
	// Origin names the process that published the event. Relays configured
	// with the same origin skip it, since the publishing process already
	// refetched locally.
	Origin string `json:"origin"`
	// Keys are the invalidated keys in wire form. Receivers decode them
	// back into their engine's key type.
	Keys []string `json:"keys"`
	// PublishedAt is when the event was stamped, in UTC.
	PublishedAt time.Time `json:"published_at"`
}

// NewEvent stamps a new event with a generated ID and the current time.
func NewEvent(origin string, keys ...string) Event {
	return Event{
		ID:          uuid.NewString(),
		Origin:      origin,
		Keys:        keys,
		PublishedAt: time.Now().UTC(),
	}
}

// EncodeKeys renders typed engine keys into their wire form. It is the
// inverse of a Relay's DecodeKey for key types whose string rendering round
// trips, such as strings and integers.
func EncodeKeys[K comparable](keys []K) []string {
	encoded := make([]string, len(keys))
	for i, k := range keys {
		encoded[i] = fmt.Sprintf("%v", k)
	}
	return encoded
}
