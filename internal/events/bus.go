// Package events broadcasts engine notifications to in-process listeners
// such as the SSE endpoint.
package events

import (
	"time"

	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting.
// A nil *Bus discards everything, so components can run without one.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers of its concrete type.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	switch e := ev.(type) {
	case StateChangedEvent:
		event.Publish(b.dispatcher, e)
	case StallEvent:
		event.Publish(b.dispatcher, e)
	case RecoveryEvent:
		event.Publish(b.dispatcher, e)
	case RecordingEvent:
		event.Publish(b.dispatcher, e)
	case SnapshotEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers handler for the event type it accepts and returns an
// unsubscribe function. Unknown handler types are ignored.
func (b *Bus) Subscribe(handler any) func() {
	if b == nil {
		return func() {}
	}
	switch h := handler.(type) {
	case func(StateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(StallEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(RecoveryEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(RecordingEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SnapshotEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}

// Now formats the current time for event timestamps.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
