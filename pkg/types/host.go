// Package types defines the contracts between the cache engine and the host
// application that embeds it. The engine never renders, schedules, or spawns
// anything itself; it calls back through these types.
package types

import "github.com/google/uuid"

// ListenerID identifies one consumer of a cached value, typically a UI
// component instance. The engine treats it as an opaque token: it is only
// ever stored, compared, and handed back through a NotifyFunc.
type ListenerID string

// NewListenerID returns a process-unique ListenerID.
func NewListenerID() ListenerID {
	return ListenerID(uuid.NewString())
}

// NotifyFunc tells the host that the value a listener observes has changed
// and the listener should re-read it. Calls are fire-and-forget: the engine
// never waits for the listener to act and never retries.
type NotifyFunc func(id ListenerID)

// SpawnFunc launches a unit of asynchronous work. Implementations must not
// run the task inline; the engine relies on Spawn returning before the task
// completes.
type SpawnFunc func(task func())

// GoSpawner is the default SpawnFunc. It runs each task on its own goroutine.
func GoSpawner(task func()) {
	go task()
}
