package disk_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	es "github.com/terraskye/fleetrental/eventsourcing"
	"github.com/terraskye/fleetrental/eventsourcing/eventstore/disk"
	"github.com/terraskye/fleetrental/eventsourcing/eventstore/storetest"
)

func TestFileStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) es.EventStore {
		store, err := disk.NewFileStore(t.TempDir(), disk.WithRegistry(storetest.Registry()))
		require.NoError(t, err)
		return store
	})
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	first, err := disk.NewFileStore(dir, disk.WithRegistry(storetest.Registry()))
	require.NoError(t, err)

	_, err = first.Save(t.Context(), []es.Envelope{storetest.Envelope("vehicle-1", 100)}, es.Revision(0))
	require.NoError(t, err)

	second, err := disk.NewFileStore(dir, disk.WithRegistry(storetest.Registry()))
	require.NoError(t, err)

	_, err = second.Save(t.Context(), []es.Envelope{storetest.Envelope("vehicle-1", 200)}, es.Revision(0))
	require.ErrorIs(t, err, es.ErrConcurrencyConflict)

	iter, err := second.LoadStream(t.Context(), "vehicle-1")
	require.NoError(t, err)
	envs, err := iter.All(t.Context())
	require.NoError(t, err)
	require.Len(t, envs, 1)
	assert.Equal(t, storetest.OdometerRead{VehicleID: "vehicle-1", Km: 100}, envs[0].Event)
}

func TestFileStoreIgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := disk.NewFileStore(dir, disk.WithRegistry(storetest.Registry()))
	require.NoError(t, err)

	_, err = store.Save(t.Context(), []es.Envelope{storetest.Envelope("vehicle-2", 1)}, es.Revision(0))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vehicle-2", "README.txt"), []byte("notes"), 0o644))

	_, err = store.Save(t.Context(), []es.Envelope{storetest.Envelope("vehicle-2", 2)}, es.Revision(1))
	require.NoError(t, err)

	iter, err := store.LoadStream(t.Context(), "vehicle-2")
	require.NoError(t, err)
	envs, err := iter.All(t.Context())
	require.NoError(t, err)
	assert.Len(t, envs, 2)
}

func TestFileStoreUnknownEventType(t *testing.T) {
	dir := t.TempDir()
	writer, err := disk.NewFileStore(dir, disk.WithRegistry(storetest.Registry()))
	require.NoError(t, err)
	_, err = writer.Save(t.Context(), []es.Envelope{storetest.Envelope("vehicle-3", 1)}, es.Any{})
	require.NoError(t, err)

	reader, err := disk.NewFileStore(dir, disk.WithRegistry(es.NewRegistry()))
	require.NoError(t, err)
	iter, err := reader.LoadStream(t.Context(), "vehicle-3")
	require.NoError(t, err)

	_, err = iter.All(t.Context())
	assert.ErrorIs(t, err, es.ErrEventNotRegistered)
}

type serviceLogged struct {
	VehicleID string `json:"vehicle_id"`
	Note      string `json:"note"`
}

func (e serviceLogged) AggregateID() string { return e.VehicleID }
func (e serviceLogged) EventType() string   { return "disktest.service_logged" }

// stallingContext blocks its first Err call, which Save makes after it has
// listed the stream, until resume is closed.
type stallingContext struct {
	context.Context
	once   sync.Once
	listed chan struct{}
	resume chan struct{}
}

func (c *stallingContext) Err() error {
	c.once.Do(func() {
		close(c.listed)
		<-c.resume
	})
	return c.Context.Err()
}

func TestFileStoreRacingWritersAcrossInstances(t *testing.T) {
	registry := storetest.Registry()
	registry.Register(func() es.Event { return &serviceLogged{} })

	dir := t.TempDir()
	first, err := disk.NewFileStore(dir, disk.WithRegistry(registry))
	require.NoError(t, err)
	second, err := disk.NewFileStore(dir, disk.WithRegistry(registry))
	require.NoError(t, err)

	_, err = first.Save(t.Context(), []es.Envelope{storetest.Envelope("vehicle-4", 10)}, es.Revision(0))
	require.NoError(t, err)

	ctx := &stallingContext{
		Context: t.Context(),
		listed:  make(chan struct{}),
		resume:  make(chan struct{}),
	}
	firstErr := make(chan error, 1)
	go func() {
		_, err := first.Save(ctx, []es.Envelope{storetest.Envelope("vehicle-4", 20)}, es.Revision(1))
		firstErr <- err
	}()
	<-ctx.listed

	_, err = second.Save(t.Context(), []es.Envelope{{
		EventID:    uuid.New(),
		StreamID:   "vehicle-4",
		Event:      serviceLogged{VehicleID: "vehicle-4", Note: "brakes"},
		OccurredAt: time.Now().UTC(),
	}}, es.Revision(1))
	require.NoError(t, err)

	close(ctx.resume)
	assert.ErrorIs(t, <-firstErr, es.ErrConcurrencyConflict)

	iter, err := first.LoadStream(t.Context(), "vehicle-4")
	require.NoError(t, err)
	envs, err := iter.All(t.Context())
	require.NoError(t, err)
	require.Len(t, envs, 2)
	assert.Equal(t, uint64(2), envs[1].Version)
	assert.Equal(t, serviceLogged{VehicleID: "vehicle-4", Note: "brakes"}, envs[1].Event)

	entries, err := os.ReadDir(filepath.Join(dir, "vehicle-4"))
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temp files are left behind")
}
