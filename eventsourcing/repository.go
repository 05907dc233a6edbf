package eventsourcing

import (
	"context"
	"errors"
	"fmt"
	"maps"
)

// StreamNamer maps an aggregate id onto the name of its event stream.
type StreamNamer func(id string) string

// DefaultStreamNamer uses the aggregate id as the stream name.
var DefaultStreamNamer StreamNamer = func(id string) string { return id }

type repositoryOptions struct {
	streamNamer    StreamNamer
	metadataFuncs  []func(ctx context.Context) map[string]any
	publisher      EventPublisher
	onPublishError func(ctx context.Context, err error)
}

// RepositoryOption configures a Repository.
type RepositoryOption func(*repositoryOptions)

// WithStreamNamer overrides how aggregate ids are turned into stream names,
// e.g. to add a per-aggregate-type prefix.
func WithStreamNamer(namer StreamNamer) RepositoryOption {
	return func(o *repositoryOptions) { o.streamNamer = namer }
}

// WithMetadataExtractor adds a function whose result is merged into the
// metadata of every envelope saved by the repository.
func WithMetadataExtractor(fn func(ctx context.Context) map[string]any) RepositoryOption {
	return func(o *repositoryOptions) {
		o.metadataFuncs = append(o.metadataFuncs, fn)
	}
}

// WithPublisher hands committed envelopes to p after every successful Save.
// A failed publish does not undo the append; it is reported to onError.
func WithPublisher(p EventPublisher, onError func(ctx context.Context, err error)) RepositoryOption {
	return func(o *repositoryOptions) {
		o.publisher = p
		o.onPublishError = onError
	}
}

// Repository loads aggregates by replaying their stream and saves them by
// appending only their uncommitted events, guarded by the loaded version.
type Repository[A Aggregate] struct {
	store   EventStore
	factory func(id string) A
	opts    repositoryOptions
}

// NewRepository creates a Repository. factory must return an empty aggregate
// carrying the given id; it is the starting point of every replay.
func NewRepository[A Aggregate](store EventStore, factory func(id string) A, opts ...RepositoryOption) *Repository[A] {
	o := repositoryOptions{streamNamer: DefaultStreamNamer}
	for _, opt := range opts {
		opt(&o)
	}
	return &Repository[A]{store: store, factory: factory, opts: o}
}

// StreamName returns the stream an aggregate id is stored under.
func (r *Repository[A]) StreamName(id string) string {
	return r.opts.streamNamer(id)
}

// Load folds the stream of id into a fresh aggregate. When the stream has no
// events the empty aggregate is returned with version 0 and no error; callers
// check for existence themselves.
func (r *Repository[A]) Load(ctx context.Context, id string) (A, error) {
	var zero A
	agg := r.factory(id)
	stream := r.StreamName(id)

	iter, err := r.store.LoadStream(ctx, stream)
	if err != nil {
		if errors.Is(err, ErrStreamNotFound) {
			return agg, nil
		}
		return zero, fmt.Errorf("load aggregate %q (stream %q): %w", id, stream, err)
	}

	var version uint64
	for iter.Next(ctx) {
		envelope := iter.Value()
		if envelope.Version != version+1 {
			return zero, fmt.Errorf("load aggregate %q (stream %q): %w: expected version %d, got %d",
				id, stream, ErrInvalidRevision, version+1, envelope.Version)
		}
		if err := agg.Apply(envelope.Event); err != nil {
			return zero, fmt.Errorf("load aggregate %q (stream %q): replay version %d: %w",
				id, stream, envelope.Version, err)
		}
		version = envelope.Version
	}
	if err := iter.Err(); err != nil {
		if errors.Is(err, ErrStreamNotFound) && version == 0 {
			return agg, nil
		}
		return zero, fmt.Errorf("load aggregate %q (stream %q): iter failed: %w", id, stream, err)
	}

	agg.SetAggregateVersion(version)
	agg.ClearUncommittedEvents()
	return agg, nil
}

// Save appends the uncommitted events of agg, expecting the stream to still be
// at the version the aggregate was loaded at. A stream that moved on fails with
// an error matching ErrConcurrencyConflict; the caller must reload and retry.
func (r *Repository[A]) Save(ctx context.Context, agg A) error {
	pending := agg.UncommittedEvents()
	if len(pending) == 0 {
		return nil
	}

	stream := r.StreamName(agg.EntityID())
	expected := agg.AggregateVersion()

	extra := make(map[string]any)
	for _, fn := range r.opts.metadataFuncs {
		maps.Copy(extra, fn(ctx))
	}

	envelopes := make([]Envelope, len(pending))
	for i, env := range pending {
		md := make(map[string]any, len(env.Metadata)+len(extra))
		maps.Copy(md, env.Metadata)
		maps.Copy(md, extra)
		env.Metadata = md
		env.StreamID = stream
		envelopes[i] = env
	}

	if _, err := r.store.Save(ctx, envelopes, Revision(expected)); err != nil {
		return fmt.Errorf("save aggregate %q (stream %q): %w", agg.EntityID(), stream, err)
	}

	agg.SetAggregateVersion(expected + uint64(len(envelopes)))
	agg.ClearUncommittedEvents()

	if r.opts.publisher != nil {
		if err := r.opts.publisher.Publish(ctx, envelopes...); err != nil && r.opts.onPublishError != nil {
			r.opts.onPublishError(ctx, fmt.Errorf("publish events of stream %q: %w", stream, err))
		}
	}
	return nil
}
