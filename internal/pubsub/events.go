// Package pubsub fans daemon events out to notification sinks.
package pubsub

import "time"

// EventType identifies what happened.
type EventType string

const (
	// NotificationEvent carries a user-facing message.
	NotificationEvent EventType = "notification"
	// StateChangedEvent is published after a state transition was applied.
	StateChangedEvent EventType = "state_changed"
	// DriftEvent is published when a live artifact drifted from its
	// snapshot outside of a sync.
	DriftEvent EventType = "drift"
)

// Event is one published event.
type Event[T any] struct {
	Type      EventType
	Payload   T
	Timestamp time.Time
}
