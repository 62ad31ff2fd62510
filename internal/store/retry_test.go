package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestRetrier_RetriesConflictsUntilSuccess(t *testing.T) {
	retrier := NewRetrier(3, time.Millisecond)
	var retried []int
	retrier.OnRetry = func(attempt int, err error) { retried = append(retried, attempt) }

	calls := 0
	err := retrier.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("%w: serialization failure", ErrStoreConflict)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if len(retried) != 2 || retried[0] != 1 || retried[1] != 2 {
		t.Fatalf("unexpected retry callbacks: %v", retried)
	}
}

func TestRetrier_SurfacesConflictAfterAttempts(t *testing.T) {
	retrier := NewRetrier(2, time.Millisecond)
	calls := 0
	err := retrier.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return ErrStoreConflict
	})
	if !errors.Is(err, ErrStoreConflict) {
		t.Fatalf("expected ErrStoreConflict, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestRetrier_DoesNotRetryOtherErrors(t *testing.T) {
	retrier := NewRetrier(5, time.Millisecond)
	calls := 0
	err := retrier.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return ErrInsufficientFunds
	})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
}

func TestRetrier_StopsOnContextCancel(t *testing.T) {
	retrier := NewRetrier(5, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := retrier.Do(ctx, func(ctx context.Context) error {
		calls++
		cancel()
		return ErrStoreConflict
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestNewRetrier_ClampsAttempts(t *testing.T) {
	if got := NewRetrier(0, 0).Attempts; got != 1 {
		t.Fatalf("expected attempts to clamp to 1, got %d", got)
	}
}
