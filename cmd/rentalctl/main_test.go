package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	es "github.com/terraskye/fleetrental/eventsourcing"
	"github.com/terraskye/fleetrental/reservation"
)

func setupEnv(t *testing.T) {
	t.Setenv("EVENT_STORE", "disk")
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("SCHEDULE", "file")
	t.Setenv("SCHEDULE_DIR", t.TempDir())
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("RETRY_MAX_ELAPSED", "1s")
	t.Setenv("OTEL_ENABLED", "")
}

func runJSON(t *testing.T, args ...string) reservation.Snapshot {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, run(t.Context(), args, &out))

	var snap reservation.Snapshot
	require.NoError(t, json.Unmarshal(out.Bytes(), &snap))
	return snap
}

func TestLifecycleThroughTheCLI(t *testing.T) {
	setupEnv(t)
	pickup := time.Now().AddDate(0, 0, 5).Format(time.DateOnly)
	ret := time.Now().AddDate(0, 0, 7).Format(time.DateOnly)

	created := runJSON(t, "create",
		"-vehicle", "WOB-EV-42", "-customer", "cust-7",
		"-pickup", pickup, "-return", ret,
		"-from", "FRA", "-daily-rate", "40")
	assert.Equal(t, reservation.StatusPending, created.Status)
	assert.Equal(t, "FRA", created.DropoffLocation)
	assert.Equal(t, "120.00", created.TotalPrice.Net().StringFixed(2))
	assert.Equal(t, "142.80", created.TotalPrice.Gross().StringFixed(2))

	confirmed := runJSON(t, "confirm", "-id", created.ID)
	assert.Equal(t, reservation.StatusConfirmed, confirmed.Status)

	var out bytes.Buffer
	err := run(t.Context(), []string{"activate", "-id", created.ID}, &out)
	assert.ErrorIs(t, err, reservation.ErrPreconditionNotMet)
	assert.Equal(t, 4, exitCode(err))

	cancelled := runJSON(t, "cancel", "-id", created.ID, "-reason", "trip postponed")
	assert.Equal(t, reservation.StatusCancelled, cancelled.Status)

	shown := runJSON(t, "show", "-id", created.ID)
	assert.Equal(t, uint64(3), shown.Version)
	require.NotNil(t, shown.CancellationReason)
	assert.Equal(t, "trip postponed", *shown.CancellationReason)
}

func TestUnknownReservation(t *testing.T) {
	setupEnv(t)

	var out bytes.Buffer
	err := run(t.Context(), []string{"show", "-id", "nope"}, &out)
	require.ErrorIs(t, err, reservation.ErrNotFound)
	assert.Equal(t, 3, exitCode(err))
	assert.Empty(t, out.String())
}

func TestUsageErrors(t *testing.T) {
	setupEnv(t)

	var out bytes.Buffer
	assert.ErrorIs(t, run(t.Context(), nil, &out), flag.ErrHelp)
	assert.ErrorIs(t, run(t.Context(), []string{"teleport"}, &out), flag.ErrHelp)

	err := run(t.Context(), []string{"confirm"}, &out)
	assert.ErrorIs(t, err, reservation.ErrValidation)
}

func TestExitCodes(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("wrapped: %w", flag.ErrHelp), 2},
		{&reservation.NotFoundError{ID: "r-1"}, 3},
		{&reservation.UnavailableError{VehicleID: "car-1"}, 4},
		{&reservation.DuplicateReservationError{ID: "r-1"}, 4},
		{&es.StreamRevisionConflictError{Stream: "reservation-r-1"}, 5},
		{fmt.Errorf("disk on fire"), 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, exitCode(tt.err), tt.err.Error())
	}
}

func TestFollowNeedsBrokers(t *testing.T) {
	setupEnv(t)

	var out bytes.Buffer
	assert.ErrorIs(t, run(t.Context(), []string{"follow"}, &out), errNoBrokers)
}

func TestPrintEvents(t *testing.T) {
	var out bytes.Buffer
	occurred := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
	env := &es.Envelope{
		StreamID:   "reservation-r-1",
		Version:    2,
		OccurredAt: occurred,
		Event:      &reservation.ReservationConfirmed{ReservationID: "r-1", ConfirmedAt: occurred},
	}

	require.NoError(t, printEvents(&out).Handle(es.WithEnvelope(t.Context(), env), env.Event))

	var line struct {
		Stream  string `json:"stream"`
		Version uint64 `json:"version"`
		Type    string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &line))
	assert.Equal(t, "reservation-r-1", line.Stream)
	assert.Equal(t, uint64(2), line.Version)
	assert.Equal(t, "reservation.confirmed", line.Type)
}

func createArgs(vehicle string, from, to int) []string {
	return []string{"create",
		"-vehicle", vehicle, "-customer", "cust-7",
		"-pickup", time.Now().AddDate(0, 0, from).Format(time.DateOnly),
		"-return", time.Now().AddDate(0, 0, to).Format(time.DateOnly),
		"-from", "FRA", "-daily-rate", "40"}
}

func TestNoDoubleBookingAcrossInvocations(t *testing.T) {
	setupEnv(t)

	first := runJSON(t, createArgs("WOB-EV-42", 5, 7)...)

	var out bytes.Buffer
	err := run(t.Context(), createArgs("WOB-EV-42", 6, 9), &out)
	require.ErrorIs(t, err, reservation.ErrVehicleUnavailable)
	var unavailable *reservation.UnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, first.ID, unavailable.HeldBy)
	assert.Equal(t, 4, exitCode(err))

	runJSON(t, "cancel", "-id", first.ID)
	second := runJSON(t, createArgs("WOB-EV-42", 6, 9)...)
	assert.Equal(t, reservation.StatusPending, second.Status)
}

func TestDuplicateIDFailsWithoutRetrying(t *testing.T) {
	setupEnv(t)
	t.Setenv("RETRY_MAX_ELAPSED", "1m")

	first := runJSON(t, createArgs("WOB-EV-42", 5, 7)...)

	started := time.Now()
	var out bytes.Buffer
	err := run(t.Context(), append(createArgs("HH-CAR-1", 5, 7), "-id", first.ID), &out)
	require.ErrorIs(t, err, reservation.ErrDuplicateReservation)
	assert.Equal(t, 4, exitCode(err))
	assert.Less(t, time.Since(started), 10*time.Second)
}

func TestMemoryScheduleNeedsMemoryStore(t *testing.T) {
	setupEnv(t)
	t.Setenv("SCHEDULE", "memory")

	var out bytes.Buffer
	err := run(t.Context(), createArgs("WOB-EV-42", 5, 7), &out)
	assert.ErrorContains(t, err, "SCHEDULE=memory requires EVENT_STORE=memory")
}

func TestReleaseCommand(t *testing.T) {
	setupEnv(t)

	created := runJSON(t, createArgs("WOB-EV-42", 5, 7)...)

	var out bytes.Buffer
	err := run(t.Context(), []string{"release", "-id", created.ID}, &out)
	require.ErrorIs(t, err, reservation.ErrInvalidStateTransition)

	runJSON(t, "cancel", "-id", created.ID)
	released := runJSON(t, "release", "-id", created.ID)
	assert.Equal(t, reservation.StatusCancelled, released.Status)
}
