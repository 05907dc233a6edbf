package memory_test

import (
	"errors"
	"testing"

	es "github.com/terraskye/fleetrental/eventsourcing"
	"github.com/terraskye/fleetrental/eventsourcing/eventstore/memory"
	"github.com/terraskye/fleetrental/eventsourcing/eventstore/storetest"
)

func TestMemoryStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) es.EventStore {
		store := memory.NewMemoryStore()
		t.Cleanup(func() { _ = store.Close() })
		return store
	})
}

func TestMemoryStoreRestampsVersions(t *testing.T) {
	store := memory.NewMemoryStore()
	defer store.Close()

	env := storetest.Envelope("s", 1)
	env.Version = 42

	if _, err := store.Save(t.Context(), []es.Envelope{env}, es.Any{}); err != nil {
		t.Fatal(err)
	}
	if v := store.StreamVersion("s"); v != 1 {
		t.Fatalf("expected stream version 1, got %d", v)
	}

	iter, err := store.LoadStream(t.Context(), "s")
	if err != nil {
		t.Fatal(err)
	}
	envs, err := iter.All(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if envs[0].Version != 1 {
		t.Fatalf("expected version 1, got %d", envs[0].Version)
	}
}

func TestMemoryStoreRejectsSavesAfterClose(t *testing.T) {
	store := memory.NewMemoryStore()
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	_, err := store.Save(t.Context(), []es.Envelope{storetest.Envelope("s", 1)}, es.Any{})
	var storeErr *es.EventStoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("expected EventStoreError, got %v", err)
	}
}
