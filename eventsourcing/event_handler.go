package eventsourcing

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

var ErrDuplicateHandler = errors.New("duplicate handler")

// EventHandler reacts to a committed event. The envelope it came from is
// available through the context helpers (StreamIDFromContext, VersionFromContext, ...).
type EventHandler interface {
	Handle(ctx context.Context, event Event) error
}

// NewEventHandlerFunc creates an EventHandler from a plain function.
// The function receives every event; use OnEvent for type-safe routing.
func NewEventHandlerFunc(fn func(ctx context.Context, event Event) error) EventHandler {
	return eventHandlerFunc(fn)
}

type eventHandlerFunc func(ctx context.Context, event Event) error

func (h eventHandlerFunc) Handle(ctx context.Context, event Event) error {
	return h(ctx, event)
}

type typedEventHandler[T Event] func(ctx context.Context, ev T) error

// EventName returns the EventType of T. T must be usable as a zero value.
func (h typedEventHandler[T]) EventName() string {
	var zero T
	return zero.EventType()
}

func (h typedEventHandler[T]) Handle(ctx context.Context, event Event) error {
	ev, ok := event.(T)
	if !ok {
		return &ErrSkippedEvent{Event: event}
	}
	return h(ctx, ev)
}

// OnEvent creates a strongly-typed EventHandler for a specific event type.
// Events of any other type are answered with ErrSkippedEvent.
//
//	handler := OnEvent(func(ctx context.Context, ev ReservationConfirmed) error {
//	    return notify(ctx, ev.ReservationID)
//	})
func OnEvent[T Event](fn func(ctx context.Context, ev T) error) EventHandler {
	return typedEventHandler[T](fn)
}

// EventGroupProcessor routes events to typed handlers by event type.
type EventGroupProcessor struct {
	handlers map[string]EventHandler
}

// NewEventGroupProcessor builds a router from handlers created with OnEvent.
// It panics on handlers without EventName() and on duplicate event types.
func NewEventGroupProcessor(handlers ...EventHandler) *EventGroupProcessor {
	m := make(map[string]EventHandler, len(handlers))
	for _, h := range handlers {
		u, ok := h.(interface{ EventName() string })
		if !ok {
			panic(fmt.Errorf("handler %T does not have a function `EventName()`", h))
		}

		name := u.EventName()
		if _, exists := m[name]; exists {
			panic(fmt.Errorf("duplicate handler for event %s: %w", name, ErrDuplicateHandler))
		}
		m[name] = h
	}

	return &EventGroupProcessor{handlers: m}
}

// Handle routes the event to its handler, or returns ErrSkippedEvent.
func (p *EventGroupProcessor) Handle(ctx context.Context, ev Event) error {
	h, ok := p.handlers[ev.EventType()]
	if !ok {
		return &ErrSkippedEvent{Event: ev}
	}
	return h.Handle(ctx, ev)
}

// Accepts reports whether the group has a handler for the event. It is a
// ready-made subscription filter.
func (p *EventGroupProcessor) Accepts(ev Event) bool {
	_, ok := p.handlers[ev.EventType()]
	return ok
}

// EventNames returns the sorted event types handled by this group.
func (p *EventGroupProcessor) EventNames() []string {
	out := make([]string, 0, len(p.handlers))
	for name := range p.handlers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
