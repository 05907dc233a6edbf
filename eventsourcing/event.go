package eventsourcing

import (
	"time"

	"github.com/google/uuid"
)

// Event is a domain event describing a change that has happened to an aggregate.
type Event interface {
	AggregateID() string
	EventType() string
}

// Envelope wraps an Event with the stream bookkeeping a store needs to persist it.
// Version is the 1-based position of the event inside its stream.
type Envelope struct {
	EventID    uuid.UUID
	StreamID   string
	Metadata   map[string]any
	Event      Event
	Version    uint64
	OccurredAt time.Time
}
