// Package kurrentdb stores event streams in KurrentDB. The aggregate version
// maps onto KurrentDB's expected stream revision, which is zero-based: a stream
// holding n events is at revision n-1.
package kurrentdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/kurrent-io/KurrentDB-Client-Go/kurrentdb"

	es "github.com/terraskye/fleetrental/eventsourcing"
)

var _ es.EventStore = (*EventStore)(nil)

type EventStore struct {
	client   *kurrentdb.Client
	registry *es.Registry
}

// Option configures an EventStore.
type Option func(*EventStore)

// WithRegistry sets the registry used to encode and decode events.
func WithRegistry(r *es.Registry) Option {
	return func(s *EventStore) { s.registry = r }
}

// NewEventStore creates a KurrentDB-backed event store.
func NewEventStore(client *kurrentdb.Client, opts ...Option) *EventStore {
	s := &EventStore{client: client, registry: es.DefaultRegistry}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dial parses a kurrentdb:// connection string and creates a client.
func Dial(connectionString string) (*kurrentdb.Client, error) {
	cfg, err := kurrentdb.ParseConnectionString(connectionString)
	if err != nil {
		return nil, fmt.Errorf("parse kurrentdb connection string: %w", err)
	}
	return kurrentdb.NewClient(cfg)
}

// userMetadata is what the store keeps in the KurrentDB metadata slot.
type userMetadata struct {
	OccurredAt time.Time      `json:"occurred_at"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func (s *EventStore) Save(ctx context.Context, events []es.Envelope, revision es.StreamState) (es.AppendResult, error) {
	if len(events) == 0 {
		return es.AppendResult{Successful: true}, nil
	}

	streamID, err := es.ValidateBatch(events)
	if err != nil {
		return es.AppendResult{}, err
	}

	state, err := toStreamState(revision)
	if err != nil {
		return es.AppendResult{}, fmt.Errorf("stream %q: %w", streamID, err)
	}

	kevents := make([]kurrentdb.EventData, len(events))
	for i, ev := range events {
		eventType, data, err := s.registry.Encode(ev.Event)
		if err != nil {
			return es.AppendResult{}, es.WrapEventStoreError(err)
		}

		metaData, err := json.Marshal(userMetadata{OccurredAt: ev.OccurredAt, Metadata: ev.Metadata})
		if err != nil {
			return es.AppendResult{}, es.WrapEventStoreError(err)
		}

		kevents[i] = kurrentdb.EventData{
			EventID:     ev.EventID,
			EventType:   eventType,
			ContentType: kurrentdb.ContentTypeJson,
			Data:        data,
			Metadata:    metaData,
		}
	}

	result, err := s.client.AppendToStream(ctx, streamID, kurrentdb.AppendToStreamOptions{
		StreamState: state,
	}, kevents...)
	if err != nil {
		var kerr *kurrentdb.Error
		if errors.As(err, &kerr) && kerr.IsErrorCode(kurrentdb.ErrorCodeWrongExpectedVersion) {
			conflict := &es.StreamRevisionConflictError{Stream: streamID}
			if rev, ok := revision.(es.Revision); ok {
				conflict.ExpectedRevision = rev
			}
			return es.AppendResult{}, conflict
		}
		if errors.As(err, &kerr) && kerr.IsErrorCode(kurrentdb.ErrorCodeResourceNotFound) {
			return es.AppendResult{}, fmt.Errorf("stream %q: should exist: %w", streamID, es.ErrStreamNotFound)
		}
		return es.AppendResult{}, es.WrapEventStoreError(err)
	}

	return es.AppendResult{
		Successful:          true,
		StreamID:            streamID,
		NextExpectedVersion: result.NextExpectedVersion + 1,
	}, nil
}

// LoadStream drains the stream eagerly so the gRPC subscription is always closed.
func (s *EventStore) LoadStream(ctx context.Context, id string) (*es.Iterator[*es.Envelope], error) {
	stream, err := s.client.ReadStream(ctx, id, kurrentdb.ReadStreamOptions{
		Direction:      kurrentdb.Forwards,
		From:           kurrentdb.Start{},
		ResolveLinkTos: true,
	}, math.MaxInt64)
	if err != nil {
		return nil, s.translateReadError(id, err)
	}
	defer stream.Close()

	var envelopes []*es.Envelope
	for {
		resolved, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, s.translateReadError(id, err)
		}

		envelope, err := s.decode(resolved.OriginalEvent())
		if err != nil {
			return nil, err
		}
		envelopes = append(envelopes, envelope)
	}

	return es.NewSliceIterator(envelopes), nil
}

func (s *EventStore) decode(recorded *kurrentdb.RecordedEvent) (*es.Envelope, error) {
	ev, err := s.registry.Decode(recorded.EventType, recorded.Data)
	if err != nil {
		return nil, es.WrapEventStoreError(fmt.Errorf("cannot create event %q: %w", recorded.EventType, err))
	}

	var meta userMetadata
	if err := json.Unmarshal(recorded.UserMetadata, &meta); err != nil {
		meta = userMetadata{OccurredAt: recorded.CreatedDate}
	}
	if meta.Metadata == nil {
		meta.Metadata = make(map[string]any)
	}

	return &es.Envelope{
		EventID:    recorded.EventID,
		StreamID:   recorded.StreamID,
		Event:      ev,
		Metadata:   meta.Metadata,
		Version:    recorded.EventNumber + 1,
		OccurredAt: meta.OccurredAt,
	}, nil
}

func (s *EventStore) translateReadError(id string, err error) error {
	var kerr *kurrentdb.Error
	if errors.As(err, &kerr) && kerr.IsErrorCode(kurrentdb.ErrorCodeResourceNotFound) {
		return fmt.Errorf("load stream %q: %w", id, es.ErrStreamNotFound)
	}
	return es.WrapEventStoreError(err)
}

func (s *EventStore) Close() error {
	return s.client.Close()
}

// toStreamState converts the aggregate-level expectation into KurrentDB's
// zero-based stream state.
func toStreamState(state es.StreamState) (kurrentdb.StreamState, error) {
	switch rev := state.(type) {
	case es.Any, nil:
		return kurrentdb.Any{}, nil
	case es.NoStream:
		return kurrentdb.NoStream{}, nil
	case es.StreamExists:
		return kurrentdb.StreamExists{}, nil
	case es.Revision:
		if rev == 0 {
			return kurrentdb.NoStream{}, nil
		}
		return kurrentdb.StreamRevision{Value: uint64(rev) - 1}, nil
	default:
		return nil, fmt.Errorf("unsupported stream state %T: %w", state, es.ErrInvalidRevision)
	}
}
