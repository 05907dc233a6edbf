package eventsourcing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type ctxKey string

const (
	streamIDKey    ctxKey = "streamID"
	aggregateIDKey ctxKey = "aggregateID"
	eventIDKey     ctxKey = "eventID"
	versionKey     ctxKey = "version"
	occurredAtKey  ctxKey = "occurredAt"
	metadataKey    ctxKey = "metadata"
)

// WithEnvelope adds the bookkeeping of an envelope to the context handed to event handlers.
func WithEnvelope(ctx context.Context, env *Envelope) context.Context {
	ctx = context.WithValue(ctx, streamIDKey, env.StreamID)
	ctx = context.WithValue(ctx, aggregateIDKey, env.Event.AggregateID())
	ctx = context.WithValue(ctx, eventIDKey, env.EventID)
	ctx = context.WithValue(ctx, versionKey, env.Version)
	ctx = context.WithValue(ctx, occurredAtKey, env.OccurredAt)
	ctx = context.WithValue(ctx, metadataKey, env.Metadata)
	return ctx
}

// AggregateIDFromContext returns the aggregate id or "" if not present.
func AggregateIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(aggregateIDKey).(string)
	return s
}

// StreamIDFromContext returns the StreamID or "" if not present.
func StreamIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(streamIDKey).(string)
	return s
}

// EventIDFromContext returns the EventID or uuid.Nil if not present.
func EventIDFromContext(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(eventIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

// VersionFromContext returns the Version or 0 if not present.
func VersionFromContext(ctx context.Context) uint64 {
	v, _ := ctx.Value(versionKey).(uint64)
	return v
}

// OccurredAtFromContext returns OccurredAt or zero time if not present.
func OccurredAtFromContext(ctx context.Context) time.Time {
	t, _ := ctx.Value(occurredAtKey).(time.Time)
	return t
}

// MetadataFromContext returns Metadata or nil if not present.
func MetadataFromContext(ctx context.Context) map[string]any {
	md, _ := ctx.Value(metadataKey).(map[string]any)
	return md
}
