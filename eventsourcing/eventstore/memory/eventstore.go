// Package memory provides an in-process EventStore. It is the default store of
// the rentalctl tool and the backbone of the package tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	es "github.com/terraskye/fleetrental/eventsourcing"
)

var _ es.EventStore = (*MemoryStore)(nil)

type MemoryStore struct {
	mu     sync.RWMutex
	events map[string][]*es.Envelope
	closed bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events: make(map[string][]*es.Envelope),
	}
}

func (m *MemoryStore) Save(ctx context.Context, events []es.Envelope, revision es.StreamState) (es.AppendResult, error) {
	if err := ctx.Err(); err != nil {
		return es.AppendResult{}, err
	}
	if len(events) == 0 {
		return es.AppendResult{Successful: true}, nil
	}

	streamID, err := es.ValidateBatch(events)
	if err != nil {
		return es.AppendResult{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return es.AppendResult{}, es.WrapEventStoreError(fmt.Errorf("store is closed"))
	}

	currentVersion := uint64(len(m.events[streamID]))
	if err := es.CheckStreamState(streamID, revision, currentVersion); err != nil {
		return es.AppendResult{StreamID: streamID, NextExpectedVersion: currentVersion}, err
	}

	for i := range events {
		currentVersion++
		env := events[i]
		env.Version = currentVersion
		m.events[streamID] = append(m.events[streamID], &env)
	}

	return es.AppendResult{
		Successful:          true,
		StreamID:            streamID,
		NextExpectedVersion: currentVersion,
	}, nil
}

func (m *MemoryStore) LoadStream(ctx context.Context, id string) (*es.Iterator[*es.Envelope], error) {
	m.mu.RLock()
	events, exists := m.events[id]
	m.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("load stream %q: %w", id, es.ErrStreamNotFound)
	}

	// the slice header is a snapshot: later appends never touch these elements
	return es.NewSliceIterator(events), nil
}

// StreamVersion returns the number of events stored for a stream.
func (m *MemoryStore) StreamVersion(id string) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(len(m.events[id]))
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.events = make(map[string][]*es.Envelope)
	return nil
}
