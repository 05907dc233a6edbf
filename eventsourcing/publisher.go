package eventsourcing

import "context"

// EventPublisher forwards committed envelopes to interested parties outside the
// aggregate, e.g. notification or payment services. Envelopes of one stream are
// handed over in version order; delivery guarantees belong to the implementation.
type EventPublisher interface {
	Publish(ctx context.Context, envelopes ...Envelope) error
}

// PublisherFunc adapts a function to EventPublisher.
type PublisherFunc func(ctx context.Context, envelopes ...Envelope) error

func (f PublisherFunc) Publish(ctx context.Context, envelopes ...Envelope) error {
	return f(ctx, envelopes...)
}
