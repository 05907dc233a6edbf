package eventsourcing

import "fmt"

// StreamState is the concurrency expectation attached to an append.
type StreamState interface {
	streamState()
	fmt.Stringer
}

// Any means append without checking the current revision.
type Any struct{}

func (Any) streamState() {}
func (Any) String() string { return "any" }

// NoStream means the stream must not exist yet.
type NoStream struct{}

func (NoStream) streamState() {}
func (NoStream) String() string { return "no-stream" }

// StreamExists means the stream must already hold at least one event.
type StreamExists struct{}

func (StreamExists) streamState() {}
func (StreamExists) String() string { return "stream-exists" }

// Revision expects the stream to hold exactly that many events.
// Revision(0) is equivalent to NoStream.
type Revision uint64

func (Revision) streamState() {}
func (r Revision) String() string {
	return fmt.Sprintf("revision %d", uint64(r))
}

// CheckStreamState validates the expectation against the number of events
// currently stored in the stream. Stores call it while holding their write guard.
func CheckStreamState(stream string, state StreamState, current uint64) error {
	switch rev := state.(type) {
	case Any, nil:
		return nil
	case NoStream:
		if current != 0 {
			return &StreamRevisionConflictError{Stream: stream, ExpectedRevision: 0, ActualRevision: Revision(current)}
		}
	case StreamExists:
		if current == 0 {
			return fmt.Errorf("stream %q: should exist: %w", stream, ErrStreamNotFound)
		}
	case Revision:
		if current != uint64(rev) {
			return &StreamRevisionConflictError{Stream: stream, ExpectedRevision: rev, ActualRevision: Revision(current)}
		}
	default:
		return fmt.Errorf("stream %q: unsupported stream state %T: %w", stream, state, ErrInvalidRevision)
	}
	return nil
}
