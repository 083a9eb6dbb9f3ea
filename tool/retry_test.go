package tool

import (
	"context"
	"errors"
	"testing"
	"time"
)

type recordingObserver struct {
	NoopObserver
	retries []RetryObservation
}

func (o *recordingObserver) ObserveRetry(observation RetryObservation) {
	o.retries = append(o.retries, observation)
}

func TestWithRetryRetriesRetryableErrors(t *testing.T) {
	attempts := 0
	observer := &recordingObserver{}
	out, attemptCount, err := withRetry(context.Background(), RetryPolicy{
		MaxAttempts: 3,
	}, observer, retryMeta{server: "alpha", operation: "discover"}, func(ctx context.Context, attempt int) (string, error) {
		attempts++
		if attempt < 3 {
			return "", NewError(ErrorCodeTransportFailure, "transient", true, nil)
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("withRetry() error = %v, want nil", err)
	}
	if attemptCount != 3 {
		t.Fatalf("attemptCount = %d, want 3", attemptCount)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
	if out != "ok" {
		t.Fatalf("out = %q, want ok", out)
	}
	if len(observer.retries) != 2 {
		t.Fatalf("retry observations = %d, want 2", len(observer.retries))
	}
	if observer.retries[0].Server != "alpha" || observer.retries[0].ErrorCode != ErrorCodeTransportFailure {
		t.Fatalf("retry observation = %+v", observer.retries[0])
	}
}

func TestWithRetryStopsOnNonRetryableError(t *testing.T) {
	attempts := 0
	_, attemptCount, err := withRetry(context.Background(), RetryPolicy{
		MaxAttempts: 5,
	}, nil, retryMeta{}, func(ctx context.Context, attempt int) (int, error) {
		attempts++
		return 0, NewError(ErrorCodeDiscoveryFailure, "permanent", false, nil)
	})
	if err == nil {
		t.Fatal("withRetry() error = nil, want non-nil")
	}
	if attemptCount != 1 || attempts != 1 {
		t.Fatalf("attemptCount=%d attempts=%d, want 1/1", attemptCount, attempts)
	}
}

func TestWithRetryRetriesOnDeadlineExceeded(t *testing.T) {
	attempts := 0
	_, attemptCount, err := withRetry(context.Background(), RetryPolicy{
		MaxAttempts: 2,
	}, nil, retryMeta{}, func(ctx context.Context, attempt int) (int, error) {
		attempts++
		return 0, context.DeadlineExceeded
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want context.DeadlineExceeded", err)
	}
	if attemptCount != 2 || attempts != 2 {
		t.Fatalf("attemptCount=%d attempts=%d, want 2/2", attemptCount, attempts)
	}
}

func TestWithRetryStopsWhenContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, _, err := withRetry(ctx, RetryPolicy{
		MaxAttempts: 3,
		Backoff:     time.Second,
	}, nil, retryMeta{}, func(ctx context.Context, attempt int) (int, error) {
		return 0, NewError(ErrorCodeTransportFailure, "transient", true, nil)
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want context.DeadlineExceeded", err)
	}
}

func TestRetryBackoffDurationIsLinear(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, Backoff: 100 * time.Millisecond}
	if got := retryBackoffDuration(policy, 1); got != 100*time.Millisecond {
		t.Fatalf("attempt 1 backoff = %v", got)
	}
	if got := retryBackoffDuration(policy, 3); got != 300*time.Millisecond {
		t.Fatalf("attempt 3 backoff = %v", got)
	}
	if got := retryBackoffDuration(RetryPolicy{}, 2); got != 0 {
		t.Fatalf("zero policy backoff = %v, want 0", got)
	}
}
