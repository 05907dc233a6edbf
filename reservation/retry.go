package reservation

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultBackOff retries conflicts quickly for a few seconds at most.
func DefaultBackOff(maxElapsed time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	b.MaxElapsedTime = maxElapsed
	return b
}

// RetryOnConflict runs fn again while it fails with ErrConcurrencyConflict.
// fn must reload the reservation on every attempt. Any other error ends the
// retries and is returned as is.
func RetryOnConflict[T any](ctx context.Context, b backoff.BackOff, fn func(ctx context.Context) (T, error)) (T, error) {
	return backoff.RetryWithData[T](func() (T, error) {
		result, err := fn(ctx)
		if err != nil && !errors.Is(err, ErrConcurrencyConflict) {
			return result, backoff.Permanent(err)
		}
		return result, err
	}, backoff.WithContext(b, ctx))
}
