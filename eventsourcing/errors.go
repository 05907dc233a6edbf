package eventsourcing

import (
	"errors"
	"fmt"
)

var (
	// ErrConcurrencyConflict is matched by every optimistic-concurrency failure.
	// The caller must reload the aggregate and retry.
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	ErrStreamNotFound     = errors.New("stream not found")
	ErrInvalidEventBatch  = errors.New("invalid event batch")
	ErrInvalidRevision    = errors.New("invalid revision")
	ErrEventNotRegistered = errors.New("event not registered")
)

// StreamRevisionConflictError reports that a stream moved on since it was loaded.
type StreamRevisionConflictError struct {
	Stream           string
	ExpectedRevision Revision
	ActualRevision   Revision
}

func (s StreamRevisionConflictError) Error() string {
	return fmt.Sprintf("concurrency conflict on stream %q: (expected version %d, actual %d)",
		s.Stream, uint64(s.ExpectedRevision), uint64(s.ActualRevision))
}

func (s StreamRevisionConflictError) Is(target error) bool {
	return target == ErrConcurrencyConflict
}

// ErrSkippedEvent is returned when a handler cannot handle the event type.
type ErrSkippedEvent struct {
	Event Event
}

func (e ErrSkippedEvent) Error() string {
	return fmt.Sprintf("skipped event of type %T", e.Event)
}

// EventStoreError wraps failures of the storage backend itself.
type EventStoreError struct {
	Err error
}

func (e *EventStoreError) Error() string {
	return fmt.Sprintf("eventstore error: %v", e.Err)
}

func (e *EventStoreError) Unwrap() error {
	return e.Err
}

func WrapEventStoreError(err error) error {
	if err == nil {
		return nil
	}
	var conflict *StreamRevisionConflictError
	if errors.As(err, &conflict) {
		return err
	}
	return &EventStoreError{Err: err}
}
