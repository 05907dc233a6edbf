// Package postgres persists event streams in a single Postgres table. The
// UNIQUE (stream_id, version) constraint is the final arbiter of optimistic
// concurrency: whichever transaction commits a version first wins.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	es "github.com/terraskye/fleetrental/eventsourcing"
)

const uniqueViolation = "23505"

// DB is the subset of *pgxpool.Pool (and pgx.Tx) the store needs. Tests pass a
// transaction that is rolled back afterwards.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

var _ es.EventStore = (*EventStore)(nil)

type EventStore struct {
	db       DB
	registry *es.Registry
}

// Option configures an EventStore.
type Option func(*EventStore)

// WithRegistry sets the registry used to encode and decode events.
func WithRegistry(r *es.Registry) Option {
	return func(s *EventStore) { s.registry = r }
}

func NewEventStore(db DB, opts ...Option) *EventStore {
	s := &EventStore{db: db, registry: es.DefaultRegistry}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect opens a pool for dsn and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 8
	cfg.MinConns = 1
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func (s *EventStore) Save(ctx context.Context, events []es.Envelope, revision es.StreamState) (es.AppendResult, error) {
	if len(events) == 0 {
		return es.AppendResult{Successful: true}, nil
	}

	streamID, err := es.ValidateBatch(events)
	if err != nil {
		return es.AppendResult{}, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return es.AppendResult{}, es.WrapEventStoreError(err)
	}
	defer tx.Rollback(ctx)

	var current int64
	const versionQuery = `SELECT COALESCE(MAX(version), 0) FROM events WHERE stream_id = $1`
	if err := tx.QueryRow(ctx, versionQuery, streamID).Scan(&current); err != nil {
		return es.AppendResult{}, es.WrapEventStoreError(fmt.Errorf("read stream version: %w", err))
	}
	currentVersion := uint64(current)

	if err := es.CheckStreamState(streamID, revision, currentVersion); err != nil {
		return es.AppendResult{StreamID: streamID, NextExpectedVersion: currentVersion}, err
	}

	const insert = `
		INSERT INTO events (event_id, stream_id, version, event_type, data, metadata, occurred_at)
		VALUES (@event_id, @stream_id, @version, @event_type, @data, @metadata, @occurred_at)`

	for i, env := range events {
		eventType, data, err := s.registry.Encode(env.Event)
		if err != nil {
			return es.AppendResult{}, es.WrapEventStoreError(err)
		}
		metadata, err := json.Marshal(env.Metadata)
		if err != nil {
			return es.AppendResult{}, es.WrapEventStoreError(fmt.Errorf("encode metadata: %w", err))
		}

		version := currentVersion + uint64(i) + 1
		_, err = tx.Exec(ctx, insert, pgx.NamedArgs{
			"event_id":    env.EventID,
			"stream_id":   streamID,
			"version":     int64(version),
			"event_type":  eventType,
			"data":        string(data),
			"metadata":    string(metadata),
			"occurred_at": env.OccurredAt,
		})
		if err != nil {
			if isUniqueViolation(err) {
				return es.AppendResult{}, &es.StreamRevisionConflictError{
					Stream:           streamID,
					ExpectedRevision: es.Revision(currentVersion),
					ActualRevision:   es.Revision(version),
				}
			}
			return es.AppendResult{}, es.WrapEventStoreError(fmt.Errorf("insert event %d: %w", version, err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return es.AppendResult{}, &es.StreamRevisionConflictError{
				Stream:           streamID,
				ExpectedRevision: es.Revision(currentVersion),
			}
		}
		return es.AppendResult{}, es.WrapEventStoreError(err)
	}

	return es.AppendResult{
		Successful:          true,
		StreamID:            streamID,
		NextExpectedVersion: currentVersion + uint64(len(events)),
	}, nil
}

type eventRow struct {
	EventID    uuid.UUID `db:"event_id"`
	StreamID   string    `db:"stream_id"`
	Version    int64     `db:"version"`
	EventType  string    `db:"event_type"`
	Data       []byte    `db:"data"`
	Metadata   []byte    `db:"metadata"`
	OccurredAt time.Time `db:"occurred_at"`
}

// LoadStream reads the whole stream in one round trip. Reservation streams are
// short, so buffering keeps the connection from being held by a slow consumer.
func (s *EventStore) LoadStream(ctx context.Context, id string) (*es.Iterator[*es.Envelope], error) {
	const q = `
		SELECT event_id, stream_id, version, event_type, data, metadata, occurred_at
		FROM events
		WHERE stream_id = $1
		ORDER BY version`

	rows, err := s.db.Query(ctx, q, id)
	if err != nil {
		return nil, es.WrapEventStoreError(err)
	}
	records, err := pgx.CollectRows(rows, pgx.RowToStructByName[eventRow])
	if err != nil {
		return nil, es.WrapEventStoreError(fmt.Errorf("scan stream %q: %w", id, err))
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("load stream %q: %w", id, es.ErrStreamNotFound)
	}

	envelopes := make([]*es.Envelope, 0, len(records))
	for _, rec := range records {
		ev, err := s.registry.Decode(rec.EventType, rec.Data)
		if err != nil {
			return nil, es.WrapEventStoreError(err)
		}
		metadata := make(map[string]any)
		if len(rec.Metadata) > 0 {
			if err := json.Unmarshal(rec.Metadata, &metadata); err != nil {
				return nil, es.WrapEventStoreError(fmt.Errorf("decode metadata: %w", err))
			}
		}
		envelopes = append(envelopes, &es.Envelope{
			EventID:    rec.EventID,
			StreamID:   rec.StreamID,
			Event:      ev,
			Metadata:   metadata,
			Version:    uint64(rec.Version),
			OccurredAt: rec.OccurredAt,
		})
	}

	return es.NewSliceIterator(envelopes), nil
}

// Close is a no-op: the pool belongs to the caller.
func (s *EventStore) Close() error {
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
