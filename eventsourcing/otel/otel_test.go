package otel_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	es "github.com/terraskye/fleetrental/eventsourcing"
	"github.com/terraskye/fleetrental/eventsourcing/eventstore/memory"
	"github.com/terraskye/fleetrental/eventsourcing/eventstore/storetest"
	"github.com/terraskye/fleetrental/eventsourcing/otel"
)

func TestTelemetryStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) es.EventStore {
		return otel.WithEventStoreTelemetry(memory.NewMemoryStore(), otel.WithOperation("test"))
	})
}

type pingVehicle struct{ ID string }

func (c pingVehicle) AggregateID() string { return c.ID }

func TestCommandTelemetryPassesThrough(t *testing.T) {
	rejected := fmt.Errorf("no fuel: %w", es.ErrBusinessRuleViolation)
	handler := otel.WithCommandTelemetry(func(_ context.Context, cmd pingVehicle) (string, error) {
		switch cmd.ID {
		case "rejected":
			return "", rejected
		case "conflict":
			return "", &es.StreamRevisionConflictError{Stream: cmd.ID}
		}
		return "pong " + cmd.ID, nil
	})

	got, err := handler(t.Context(), pingVehicle{ID: "car-1"})
	require.NoError(t, err)
	assert.Equal(t, "pong car-1", got)

	_, err = handler(t.Context(), pingVehicle{ID: "rejected"})
	assert.ErrorIs(t, err, es.ErrBusinessRuleViolation)

	_, err = handler(t.Context(), pingVehicle{ID: "conflict"})
	assert.ErrorIs(t, err, es.ErrConcurrencyConflict)
}

func TestEventTelemetryKeepsSkippedError(t *testing.T) {
	handler := otel.WithEventTelemetry(es.OnEvent(func(context.Context, storetest.OdometerRead) error {
		return errors.New("unreachable")
	}))

	env := storetest.Envelope("car-1", 10)
	err := handler.Handle(es.WithEnvelope(t.Context(), &env), skippedEvent{})

	var skipped *es.ErrSkippedEvent
	assert.ErrorAs(t, err, &skipped)
}

type skippedEvent struct{}

func (skippedEvent) AggregateID() string { return "car-1" }
func (skippedEvent) EventType() string   { return "test.skipped" }
