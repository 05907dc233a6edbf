// Package memory implements an in-process event bus. It is an
// es.EventPublisher, so it can be handed straight to a repository.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	es "github.com/terraskye/fleetrental/eventsourcing"
)

var (
	ErrBusClosed      = errors.New("eventbus is closed")
	ErrSubscriberBusy = errors.New("subscriber buffer full")
)

var _ es.EventPublisher = (*EventBus)(nil)

type subscriber struct {
	name     string
	filter   func(es.Event) bool
	handler  es.EventHandler
	envelope chan es.Envelope
	cancel   context.CancelFunc
}

type EventBus struct {
	mu         sync.RWMutex
	subs       map[string]*subscriber
	closed     bool
	errs       chan error
	wg         sync.WaitGroup
	bufferSize int
}

// NewEventBus constructs a new bus with a given subscriber buffer size.
func NewEventBus(bufferSize int) *EventBus {
	return &EventBus{
		subs:       make(map[string]*subscriber),
		errs:       make(chan error, 64),
		bufferSize: bufferSize,
	}
}

// Subscribe registers a handler with a filter and name. The subscription ends
// when ctx is done or the bus is closed.
func (b *EventBus) Subscribe(
	ctx context.Context,
	name string,
	filter func(es.Event) bool,
	handler es.EventHandler,
) error {
	if filter == nil || handler == nil {
		return errors.New("filter and handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}

	if _, exists := b.subs[name]; exists {
		return fmt.Errorf("handler with name %q already registered", name)
	}

	workerCtx, cancel := context.WithCancel(context.Background())
	s := &subscriber{
		name:     name,
		filter:   filter,
		handler:  handler,
		envelope: make(chan es.Envelope, b.bufferSize),
		cancel:   cancel,
	}

	b.subs[name] = s

	b.wg.Add(1)
	go b.runSubscriber(workerCtx, s)

	go func() {
		select {
		case <-ctx.Done():
			b.removeSubscriber(name)
		case <-workerCtx.Done():
		}
	}()

	return nil
}

// Errors reports handler failures. Errors are dropped when nobody drains the channel.
func (b *EventBus) Errors() <-chan error {
	return b.errs
}

// Publish hands the envelopes to every matching subscriber without waiting for
// the handlers. A subscriber whose buffer is full misses the envelope and the
// miss is reported in the returned error.
func (b *EventBus) Publish(_ context.Context, envelopes ...es.Envelope) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}

	var errs []error
	for _, env := range envelopes {
		for _, s := range b.subs {
			if !s.filter(env.Event) {
				continue
			}
			select {
			case s.envelope <- env:
			default:
				errs = append(errs, fmt.Errorf("subscriber %q dropped %s v%d: %w", s.name, env.StreamID, env.Version, ErrSubscriberBusy))
			}
		}
	}
	return errors.Join(errs...)
}

// Close stops accepting envelopes and waits until every subscriber has
// handled what is already buffered.
func (b *EventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true

	subs := make([]*subscriber, 0, len(b.subs))
	for name, s := range b.subs {
		close(s.envelope)
		delete(b.subs, name)
		subs = append(subs, s)
	}
	b.mu.Unlock()

	b.wg.Wait()
	for _, s := range subs {
		s.cancel()
	}
	close(b.errs)

	return nil
}

func (b *EventBus) runSubscriber(ctx context.Context, s *subscriber) {
	defer b.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case env, ok := <-s.envelope:
			if !ok {
				return
			}

			err := s.handler.Handle(es.WithEnvelope(ctx, &env), env.Event)
			var skipped *es.ErrSkippedEvent
			if err == nil || errors.As(err, &skipped) {
				continue
			}

			select {
			case b.errs <- fmt.Errorf("handler %q: %w", s.name, err):
			default:
			}
		}
	}
}

func (b *EventBus) removeSubscriber(name string) {
	b.mu.Lock()
	s, ok := b.subs[name]
	if !ok {
		b.mu.Unlock()
		return
	}
	delete(b.subs, name)
	b.mu.Unlock()

	s.cancel()
	close(s.envelope)
}
