package store

import (
	"context"
	"errors"
	"time"
)

// Retrier re-runs a unit of work while it fails with ErrStoreConflict.
type Retrier struct {
	// Attempts is the total number of tries, including the first one.
	Attempts int
	// Backoff is the fixed delay between tries.
	Backoff time.Duration
	// OnRetry, if set, is called before each retry with the attempt that just failed.
	OnRetry func(attempt int, err error)
}

// NewRetrier builds a Retrier, clamping attempts to at least one.
func NewRetrier(attempts int, backoff time.Duration) Retrier {
	if attempts < 1 {
		attempts = 1
	}
	return Retrier{Attempts: attempts, Backoff: backoff}
}

// Do calls fn until it succeeds, fails with a non-conflict error, or the attempts run out.
// The last conflict is returned once the attempts are exhausted.
func (r Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil || !errors.Is(err, ErrStoreConflict) {
			return err
		}
		if attempt == attempts {
			break
		}
		if r.OnRetry != nil {
			r.OnRetry(attempt, err)
		}

		timer := time.NewTimer(r.Backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}
