package eventsourcing

import (
	"context"
	"fmt"
)

// EventStore defines the contract for an append-only event store.
//
// Implementations must guarantee:
//   - Events for a given stream are stored in order, with 1-based versions.
//   - Save checks the StreamState atomically with the append; a violated
//     Revision or NoStream expectation yields *StreamRevisionConflictError.
//   - Iteration order from LoadStream is deterministic (oldest → newest).
type EventStore interface {
	// Save appends all events to the stream named by their StreamID. All
	// envelopes must share one StreamID, otherwise ErrInvalidEventBatch.
	Save(ctx context.Context, events []Envelope, revision StreamState) (AppendResult, error)

	// LoadStream yields every event of a stream in ascending version order.
	// A stream without events is reported either as ErrStreamNotFound or as an
	// empty iterator; callers treat both as "no history".
	LoadStream(ctx context.Context, id string) (*Iterator[*Envelope], error)

	// Close releases any resources held by the EventStore. It must be idempotent.
	Close() error
}

// AppendResult describes the outcome of an append operation.
type AppendResult struct {
	Successful          bool
	StreamID            string
	NextExpectedVersion uint64
}

// ValidateBatch returns the common stream id of a batch.
func ValidateBatch(events []Envelope) (string, error) {
	if len(events) == 0 {
		return "", nil
	}
	stream := events[0].StreamID
	if stream == "" {
		return "", fmt.Errorf("save events: %w: missing stream ID", ErrInvalidEventBatch)
	}
	for i, env := range events {
		if env.StreamID != stream {
			return "", fmt.Errorf("save events to stream %q: %w: event %d has different stream ID %q",
				stream, ErrInvalidEventBatch, i, env.StreamID)
		}
		if env.Event == nil {
			return "", fmt.Errorf("save events to stream %q: %w: event %d has no payload",
				stream, ErrInvalidEventBatch, i)
		}
	}
	return stream, nil
}
