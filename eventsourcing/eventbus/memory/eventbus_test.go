package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	es "github.com/terraskye/fleetrental/eventsourcing"
	"github.com/terraskye/fleetrental/eventsourcing/eventbus/memory"
	"github.com/terraskye/fleetrental/eventsourcing/eventstore/storetest"
)

func acceptAll(es.Event) bool { return true }

func TestPublishDeliversWithEnvelopeContext(t *testing.T) {
	bus := memory.NewEventBus(8)
	defer bus.Close()

	type delivery struct {
		stream  string
		version uint64
		km      int
	}
	got := make(chan delivery, 2)

	handler := es.OnEvent(func(ctx context.Context, ev storetest.OdometerRead) error {
		got <- delivery{stream: es.StreamIDFromContext(ctx), version: es.VersionFromContext(ctx), km: ev.Km}
		return nil
	})
	require.NoError(t, bus.Subscribe(t.Context(), "odometer", acceptAll, handler))

	first := storetest.Envelope("car-1", 100)
	first.Version = 1
	second := storetest.Envelope("car-1", 150)
	second.Version = 2
	require.NoError(t, bus.Publish(t.Context(), first, second))

	for _, want := range []delivery{{"car-1", 1, 100}, {"car-1", 2, 150}} {
		select {
		case d := <-got:
			assert.Equal(t, want, d)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for delivery")
		}
	}
}

func TestFilterSkipsEvents(t *testing.T) {
	bus := memory.NewEventBus(8)
	defer bus.Close()

	called := make(chan struct{}, 1)
	handler := es.NewEventHandlerFunc(func(context.Context, es.Event) error {
		called <- struct{}{}
		return nil
	})
	require.NoError(t, bus.Subscribe(t.Context(), "none", func(es.Event) bool { return false }, handler))
	require.NoError(t, bus.Publish(t.Context(), storetest.Envelope("car-1", 1)))

	select {
	case <-called:
		t.Fatal("filtered handler was called")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDuplicateSubscriberName(t *testing.T) {
	bus := memory.NewEventBus(1)
	defer bus.Close()

	h := es.NewEventHandlerFunc(func(context.Context, es.Event) error { return nil })
	require.NoError(t, bus.Subscribe(t.Context(), "dup", acceptAll, h))
	assert.Error(t, bus.Subscribe(t.Context(), "dup", acceptAll, h))
}

func TestHandlerErrorsAreReported(t *testing.T) {
	bus := memory.NewEventBus(1)

	boom := errors.New("boom")
	h := es.NewEventHandlerFunc(func(context.Context, es.Event) error { return boom })
	require.NoError(t, bus.Subscribe(t.Context(), "failing", acceptAll, h))
	require.NoError(t, bus.Publish(t.Context(), storetest.Envelope("car-1", 1)))

	select {
	case err := <-bus.Errors():
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), `handler "failing"`)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for handler error")
	}
	require.NoError(t, bus.Close())
}

func TestFullBufferIsReported(t *testing.T) {
	bus := memory.NewEventBus(1)
	defer bus.Close()

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	h := es.NewEventHandlerFunc(func(context.Context, es.Event) error {
		started <- struct{}{}
		<-release
		return nil
	})
	require.NoError(t, bus.Subscribe(t.Context(), "slow", acceptAll, h))

	require.NoError(t, bus.Publish(t.Context(), storetest.Envelope("car-1", 1)))
	<-started
	require.NoError(t, bus.Publish(t.Context(), storetest.Envelope("car-1", 2)))

	err := bus.Publish(t.Context(), storetest.Envelope("car-1", 3))
	assert.ErrorIs(t, err, memory.ErrSubscriberBusy)
	close(release)
}

func TestPublishAfterClose(t *testing.T) {
	bus := memory.NewEventBus(1)
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(t.Context(), storetest.Envelope("car-1", 1)), memory.ErrBusClosed)
	h := es.NewEventHandlerFunc(func(context.Context, es.Event) error { return nil })
	assert.ErrorIs(t, bus.Subscribe(t.Context(), "late", acceptAll, h), memory.ErrBusClosed)
}

func TestSubscriptionEndsWithContext(t *testing.T) {
	bus := memory.NewEventBus(1)
	defer bus.Close()

	ctx, cancel := context.WithCancel(t.Context())
	h := es.NewEventHandlerFunc(func(context.Context, es.Event) error { return nil })
	require.NoError(t, bus.Subscribe(ctx, "short", acceptAll, h))
	cancel()

	assert.Eventually(t, func() bool {
		return bus.Subscribe(t.Context(), "short", acceptAll, h) == nil
	}, time.Second, 10*time.Millisecond)
}

func TestCloseDrainsBufferedEnvelopes(t *testing.T) {
	bus := memory.NewEventBus(8)

	var seen []int
	handler := es.OnEvent(func(_ context.Context, ev storetest.OdometerRead) error {
		seen = append(seen, ev.Km)
		return nil
	})
	require.NoError(t, bus.Subscribe(t.Context(), "odometer", acceptAll, handler))
	require.NoError(t, bus.Publish(t.Context(),
		storetest.Envelope("car-1", 10), storetest.Envelope("car-1", 20), storetest.Envelope("car-1", 30)))

	require.NoError(t, bus.Close())
	assert.Equal(t, []int{10, 20, 30}, seen)
}
