package eventsourcing_test

import (
	"context"
	"errors"
	"io"
	"testing"

	es "github.com/terraskye/fleetrental/eventsourcing"
)

func TestSliceIteratorYieldsInOrder(t *testing.T) {
	envs := []*es.Envelope{{Version: 1}, {Version: 2}, {Version: 3}}

	got, err := es.NewSliceIterator(envs).All(t.Context())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != len(envs) {
		t.Fatalf("expected %d envelopes, got %d", len(envs), len(got))
	}
	for i := range envs {
		if got[i].Version != uint64(i+1) {
			t.Errorf("index %d: expected version %d, got %d", i, i+1, got[i].Version)
		}
	}
}

func TestIteratorEOFIsNotAnError(t *testing.T) {
	iter := es.NewIteratorFunc(func(ctx context.Context) (int, error) {
		return 0, io.EOF
	})

	if iter.Next(t.Context()) {
		t.Fatal("expected Next() to return false on EOF")
	}
	if iter.Err() != nil {
		t.Fatalf("expected Err() to be nil on EOF, got %v", iter.Err())
	}
}

func TestIteratorPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	iter := es.NewIteratorFunc(func(ctx context.Context) (int, error) {
		return 0, boom
	})

	if iter.Next(t.Context()) {
		t.Fatal("expected Next() to return false on error")
	}
	if !errors.Is(iter.Err(), boom) {
		t.Fatalf("expected Err() to be %v, got %v", boom, iter.Err())
	}
}

func TestIteratorStopsCallingAfterEOF(t *testing.T) {
	calls := 0
	iter := es.NewIteratorFunc(func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 1, nil
		}
		return 0, io.EOF
	})

	for i := 0; i < 5; i++ {
		iter.Next(t.Context())
	}
	if calls != 2 {
		t.Fatalf("expected nextFunc to be called exactly twice, got %d", calls)
	}
}

func TestSliceIteratorHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	iter := es.NewSliceIterator([]int{1, 2})
	if iter.Next(ctx) {
		t.Fatal("expected Next() to return false on cancelled context")
	}
	if !errors.Is(iter.Err(), context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", iter.Err())
	}
}

func BenchmarkSliceIterator(b *testing.B) {
	ctx := b.Context()
	items := make([]*es.Envelope, 64)
	for i := range items {
		items[i] = &es.Envelope{Version: uint64(i + 1)}
	}

	for n := 0; n < b.N; n++ {
		iter := es.NewSliceIterator(items)
		for iter.Next(ctx) {
			_ = iter.Value()
		}
	}
}
