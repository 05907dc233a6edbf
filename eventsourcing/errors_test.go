package eventsourcing

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorStrings(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "StreamRevisionConflictError",
			err: &StreamRevisionConflictError{
				Stream:           "reservation-123",
				ExpectedRevision: Revision(5),
				ActualRevision:   Revision(7),
			},
			want: `concurrency conflict on stream "reservation-123": (expected version 5, actual 7)`,
		},
		{
			name: "ErrSkippedEvent",
			err:  ErrSkippedEvent{Event: carReturned{}},
			want: "skipped event of type eventsourcing.carReturned",
		},
		{
			name: "EventStoreError",
			err:  WrapEventStoreError(errors.New("disk full")),
			want: "eventstore error: disk full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConflictMatchesSentinelThroughWrapping(t *testing.T) {
	err := fmt.Errorf("save aggregate: %w", &StreamRevisionConflictError{Stream: "s"})
	if !errors.Is(err, ErrConcurrencyConflict) {
		t.Fatalf("expected %v to match ErrConcurrencyConflict", err)
	}

	if wrapped := WrapEventStoreError(err); wrapped != err {
		t.Fatalf("conflicts must not be wrapped as store errors, got %v", wrapped)
	}
}

func TestCheckStreamState(t *testing.T) {
	tests := []struct {
		name     string
		state    StreamState
		current  uint64
		conflict bool
		target   error
	}{
		{name: "any on empty", state: Any{}, current: 0},
		{name: "any on existing", state: Any{}, current: 3},
		{name: "no stream on empty", state: NoStream{}, current: 0},
		{name: "no stream on existing", state: NoStream{}, current: 1, conflict: true},
		{name: "exists on existing", state: StreamExists{}, current: 2},
		{name: "exists on empty", state: StreamExists{}, current: 0, target: ErrStreamNotFound},
		{name: "matching revision", state: Revision(4), current: 4},
		{name: "revision zero on empty", state: Revision(0), current: 0},
		{name: "stale revision", state: Revision(3), current: 4, conflict: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckStreamState("s", tt.state, tt.current)
			switch {
			case tt.conflict:
				if !errors.Is(err, ErrConcurrencyConflict) {
					t.Fatalf("expected conflict, got %v", err)
				}
			case tt.target != nil:
				if !errors.Is(err, tt.target) {
					t.Fatalf("expected %v, got %v", tt.target, err)
				}
			default:
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
			}
		})
	}
}
