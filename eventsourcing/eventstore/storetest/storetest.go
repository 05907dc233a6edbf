// Package storetest is a conformance suite shared by the EventStore implementations.
package storetest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	es "github.com/terraskye/fleetrental/eventsourcing"
)

// OdometerRead is the test event used by the suite.
type OdometerRead struct {
	VehicleID string `json:"vehicle_id"`
	Km        int    `json:"km"`
}

func (e OdometerRead) AggregateID() string { return e.VehicleID }
func (e OdometerRead) EventType() string   { return "storetest.odometer_read" }

// Registry knows how to decode the suite's events.
func Registry() *es.Registry {
	r := es.NewRegistry()
	r.Register(func() es.Event { return &OdometerRead{} })
	return r
}

// Envelope builds an envelope for stream with the given odometer reading.
func Envelope(stream string, km int) es.Envelope {
	return es.Envelope{
		EventID:    uuid.New(),
		StreamID:   stream,
		Event:      OdometerRead{VehicleID: stream, Km: km},
		Metadata:   map[string]any{"source": "storetest"},
		OccurredAt: time.Now().UTC().Truncate(time.Millisecond),
	}
}

// Run executes the suite. newStore must return an empty store for every call.
func Run(t *testing.T, newStore func(t *testing.T) es.EventStore) {
	t.Run("empty batch is a no-op", func(t *testing.T) {
		store := newStore(t)
		result, err := store.Save(t.Context(), nil, es.Any{})
		require.NoError(t, err)
		assert.True(t, result.Successful)
	})

	t.Run("save and load preserves order and payload", func(t *testing.T) {
		store := newStore(t)
		stream := "vehicle-" + uuid.NewString()
		batch := []es.Envelope{Envelope(stream, 10), Envelope(stream, 20), Envelope(stream, 30)}

		result, err := store.Save(t.Context(), batch, es.Revision(0))
		require.NoError(t, err)
		assert.True(t, result.Successful)
		assert.Equal(t, uint64(3), result.NextExpectedVersion)

		loaded := load(t, store, stream)
		require.Len(t, loaded, 3)
		for i, env := range loaded {
			assert.Equal(t, uint64(i+1), env.Version)
			assert.Equal(t, batch[i].EventID, env.EventID)
			assert.Equal(t, stream, env.StreamID)
			assert.Equal(t, batch[i].Event, env.Event)
			assert.Equal(t, "storetest", env.Metadata["source"])
			assert.True(t, batch[i].OccurredAt.Equal(env.OccurredAt))
		}
	})

	t.Run("appending continues the version sequence", func(t *testing.T) {
		store := newStore(t)
		stream := "vehicle-" + uuid.NewString()

		_, err := store.Save(t.Context(), []es.Envelope{Envelope(stream, 1)}, es.Revision(0))
		require.NoError(t, err)
		result, err := store.Save(t.Context(), []es.Envelope{Envelope(stream, 2), Envelope(stream, 3)}, es.Revision(1))
		require.NoError(t, err)
		assert.Equal(t, uint64(3), result.NextExpectedVersion)

		loaded := load(t, store, stream)
		require.Len(t, loaded, 3)
		assert.Equal(t, 3, loaded[2].Event.(OdometerRead).Km)
	})

	t.Run("mixed streams are rejected", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Save(t.Context(), []es.Envelope{Envelope("a", 1), Envelope("b", 1)}, es.Any{})
		assert.ErrorIs(t, err, es.ErrInvalidEventBatch)
	})

	t.Run("stale revision conflicts", func(t *testing.T) {
		store := newStore(t)
		stream := "vehicle-" + uuid.NewString()

		_, err := store.Save(t.Context(), []es.Envelope{Envelope(stream, 1)}, es.Revision(0))
		require.NoError(t, err)

		_, err = store.Save(t.Context(), []es.Envelope{Envelope(stream, 2)}, es.Revision(0))
		require.ErrorIs(t, err, es.ErrConcurrencyConflict)

		var conflict *es.StreamRevisionConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, stream, conflict.Stream)

		assert.Len(t, load(t, store, stream), 1, "a rejected append must not leave events behind")
	})

	t.Run("no stream on existing stream conflicts", func(t *testing.T) {
		store := newStore(t)
		stream := "vehicle-" + uuid.NewString()
		_, err := store.Save(t.Context(), []es.Envelope{Envelope(stream, 1)}, es.NoStream{})
		require.NoError(t, err)

		_, err = store.Save(t.Context(), []es.Envelope{Envelope(stream, 2)}, es.NoStream{})
		assert.ErrorIs(t, err, es.ErrConcurrencyConflict)
	})

	t.Run("stream exists on missing stream fails", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Save(t.Context(), []es.Envelope{Envelope("vehicle-"+uuid.NewString(), 1)}, es.StreamExists{})
		assert.ErrorIs(t, err, es.ErrStreamNotFound)
	})

	t.Run("missing stream has no history", func(t *testing.T) {
		store := newStore(t)
		assert.Empty(t, load(t, store, "vehicle-"+uuid.NewString()))
	})

	t.Run("concurrent saves at the same version", func(t *testing.T) {
		store := newStore(t)
		stream := "vehicle-" + uuid.NewString()
		_, err := store.Save(t.Context(), []es.Envelope{Envelope(stream, 1)}, es.Revision(0))
		require.NoError(t, err)

		const writers = 8
		var wins, conflicts atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(km int) {
				defer wg.Done()
				_, err := store.Save(context.Background(), []es.Envelope{Envelope(stream, km)}, es.Revision(1))
				switch {
				case err == nil:
					wins.Add(1)
				case errors.Is(err, es.ErrConcurrencyConflict):
					conflicts.Add(1)
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(i + 2)
		}
		wg.Wait()

		assert.Equal(t, int32(1), wins.Load())
		assert.Equal(t, int32(writers-1), conflicts.Load())
		assert.Len(t, load(t, store, stream), 2)
	})
}

// load reads a whole stream, treating ErrStreamNotFound as an empty stream.
func load(t *testing.T, store es.EventStore, stream string) []*es.Envelope {
	t.Helper()
	iter, err := store.LoadStream(t.Context(), stream)
	if errors.Is(err, es.ErrStreamNotFound) {
		return nil
	}
	require.NoError(t, err)

	envs, err := iter.All(t.Context())
	if errors.Is(err, es.ErrStreamNotFound) {
		return nil
	}
	require.NoError(t, err)
	return envs
}
