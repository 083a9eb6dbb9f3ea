package tool

import (
	"context"
	"errors"
	"net"
	"time"
)

// RetryPolicy bounds retries of idempotent requests. Tool submissions are
// never retried.
type RetryPolicy struct {
	MaxAttempts int           `json:"max_attempts" yaml:"max_attempts"`
	Backoff     time.Duration `json:"backoff" yaml:"backoff"`
}

// DefaultDiscoveryRetry is used when HandlerOptions leaves DiscoveryRetry unset.
var DefaultDiscoveryRetry = RetryPolicy{MaxAttempts: 2, Backoff: 250 * time.Millisecond}

type retryMeta struct {
	server    string
	operation string
	protocol  ProtocolType
}

func withRetry[T any](ctx context.Context, policy RetryPolicy, observer Observer, meta retryMeta, fn func(ctx context.Context, attempt int) (T, error)) (T, int, error) {
	normalized := normalizeRetryPolicy(policy)
	var (
		zero    T
		lastErr error
	)

	for attempt := 1; attempt <= normalized.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, attempt, err
		}

		out, err := fn(ctx, attempt)
		if err == nil {
			return out, attempt, nil
		}
		lastErr = err
		if attempt == normalized.MaxAttempts || !isRetryableError(err) {
			return zero, attempt, err
		}
		if observer != nil {
			observer.ObserveRetry(RetryObservation{
				Server:    meta.server,
				Operation: meta.operation,
				Protocol:  meta.protocol,
				Attempt:   attempt,
				ErrorCode: ErrorCodeOrDefault(err, ErrorCodeTransportFailure),
			})
		}

		wait := retryBackoffDuration(normalized, attempt)
		if wait <= 0 {
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, attempt, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, normalized.MaxAttempts, lastErr
}

func normalizeRetryPolicy(policy RetryPolicy) RetryPolicy {
	out := policy
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = 1
	}
	if out.Backoff < 0 {
		out.Backoff = 0
	}
	return out
}

// retryBackoffDuration grows linearly with the attempt number.
func retryBackoffDuration(policy RetryPolicy, attempt int) time.Duration {
	if policy.Backoff <= 0 || attempt <= 0 {
		return 0
	}
	return policy.Backoff * time.Duration(attempt)
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if toolErr, ok := AsToolError(err); ok {
		return toolErr.Retryable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
