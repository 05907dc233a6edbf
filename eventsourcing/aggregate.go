package eventsourcing

import (
	"time"

	"github.com/google/uuid"
)

var now = time.Now

// Aggregate is the interface that all event-sourced aggregates must implement.
type Aggregate interface {
	// EntityID returns the unique identifier of the aggregate.
	EntityID() string

	// AggregateVersion returns the number of committed events the aggregate was built from.
	AggregateVersion() uint64

	// SetAggregateVersion sets the version of the aggregate.
	SetAggregateVersion(version uint64)

	// UncommittedEvents returns all the events that are currently uncommitted.
	UncommittedEvents() []Envelope

	// ClearUncommittedEvents clears all uncommitted events from the aggregate.
	ClearUncommittedEvents()

	// Apply folds one event into the aggregate state. It is called once when an
	// operation records a new event and again, in order, during replay.
	Apply(event Event) error
}

// EventOption customises an envelope while it is being recorded.
type EventOption func(*Envelope)

// WithEventMetadata attaches a metadata entry to the recorded envelope.
func WithEventMetadata(key string, value any) EventOption {
	return func(e *Envelope) {
		e.Metadata[key] = value
	}
}

// AggregateBase carries identity, version and the uncommitted event list.
// Embed it and implement Apply to satisfy Aggregate.
type AggregateBase struct {
	id     string
	v      uint64
	events []Envelope
}

// NewAggregateBase creates an aggregate base for the given id.
func NewAggregateBase(id string) *AggregateBase {
	return &AggregateBase{
		id:     id,
		events: make([]Envelope, 0),
	}
}

// EntityID implements the EntityID method of the Aggregate interface.
func (a *AggregateBase) EntityID() string {
	return a.id
}

// AggregateVersion implements the AggregateVersion method of the Aggregate interface.
func (a *AggregateBase) AggregateVersion() uint64 {
	return a.v
}

// SetAggregateVersion implements the SetAggregateVersion method of the Aggregate interface.
func (a *AggregateBase) SetAggregateVersion(v uint64) {
	a.v = v
}

// Exists reports whether the aggregate has any history, committed or pending.
// A freshly loaded aggregate without events is the "not found" marker.
func (a *AggregateBase) Exists() bool {
	return a.v > 0 || len(a.events) > 0
}

// UncommittedEvents implements the UncommittedEvents method of the Aggregate interface.
func (a *AggregateBase) UncommittedEvents() []Envelope {
	return a.events
}

// ClearUncommittedEvents implements the ClearUncommittedEvents method of the Aggregate interface.
func (a *AggregateBase) ClearUncommittedEvents() {
	a.events = nil
}

// AppendEvent records a new event. Event ids are UUIDv7 so they sort by creation time.
func (a *AggregateBase) AppendEvent(event Event, options ...EventOption) {
	envelope := Envelope{
		EventID:    newEventID(),
		Metadata:   make(map[string]any),
		Event:      event,
		Version:    a.AggregateVersion() + uint64(len(a.events)) + 1,
		OccurredAt: now(),
	}

	for _, option := range options {
		option(&envelope)
	}

	a.events = append(a.events, envelope)
}

func newEventID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}
