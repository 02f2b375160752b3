// Package events is the in-process publish/subscribe layer. Cascade state
// changes are announced here; delivery stays with the subscribers.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is anything published on the bus. EventName is the routing key.
type Event interface {
	EventName() string
	OccurredAt() time.Time
}

// BaseEvent carries the identity and time of one publication.
type BaseEvent struct {
	EventID   uuid.UUID `json:"eventId"`
	Timestamp time.Time `json:"timestamp"`
}

func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// ID returns the publication id, uuid.Nil for events built without NewBaseEvent.
func (e BaseEvent) ID() uuid.UUID {
	return e.EventID
}

// NewBaseEvent stamps a fresh id and the current UTC time.
func NewBaseEvent() BaseEvent {
	return BaseEvent{EventID: uuid.New(), Timestamp: time.Now().UTC()}
}

// Handler reacts to one event. A returned error is logged by Publish and
// returned by PublishSync.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc lets a plain function subscribe.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus routes events to the handlers subscribed to their name.
type Bus interface {
	// Publish hands the event to every handler without waiting.
	Publish(ctx context.Context, event Event)
	// PublishSync runs the handlers in subscription order and joins their errors.
	PublishSync(ctx context.Context, event Event) error
	Subscribe(eventName string, handler Handler)
	// Wait blocks until handlers started by Publish have returned.
	Wait()
}

type identified interface {
	ID() uuid.UUID
}

// eventID is the id to log for event, empty when it has none.
func eventID(event Event) string {
	if e, ok := event.(identified); ok && e.ID() != uuid.Nil {
		return e.ID().String()
	}
	return ""
}
