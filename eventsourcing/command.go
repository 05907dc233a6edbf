package eventsourcing

import (
	"context"
	"errors"
)

// ErrBusinessRuleViolation is matched by errors that reject a command because of
// domain rules rather than infrastructure failures. Telemetry and logging
// decorators use it to tell the two apart.
var ErrBusinessRuleViolation = errors.New("business rule violation")

// Command is an intent addressed to a single aggregate.
type Command interface {
	AggregateID() string
}

// CommandHandler handles one command type and returns a result of type R.
//
// Handlers load the target aggregate, invoke exactly one operation on it and
// persist the recorded events. Decorators such as logging.WithCommandLogging
// and otel.WithCommandTelemetry wrap a CommandHandler without changing its type.
type CommandHandler[C Command, R any] func(ctx context.Context, command C) (R, error)
