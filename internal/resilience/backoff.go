package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrRetryExhausted is returned by [Retry] when every attempt allowed by the
// [Backoff] policy has failed. The last attempt's error is wrapped alongside.
var ErrRetryExhausted = errors.New("retry budget exhausted")

// Backoff is a retry schedule. It is either an explicit list of waits
// ([DelayList]) or an exponential schedule ([Exponential]). The zero value
// allows no retries.
type Backoff struct {
	delays []time.Duration

	initial    time.Duration
	max        time.Duration
	multiplier float64
	retries    int
}

// DelayList returns a policy that waits delays[i] before retry i+1. The
// number of retries equals len(delays).
func DelayList(delays ...time.Duration) Backoff {
	return Backoff{delays: append([]time.Duration(nil), delays...)}
}

// Exponential returns a policy that waits initial before the first retry and
// doubles the wait after every further failure, capped at max.
func Exponential(initial, max time.Duration, retries int) Backoff {
	if max < initial {
		max = initial
	}
	return Backoff{initial: initial, max: max, multiplier: 2, retries: retries}
}

// Retries reports how many retries follow the first attempt.
func (b Backoff) Retries() int {
	if b.delays != nil {
		return len(b.delays)
	}
	return max(b.retries, 0)
}

// Delay returns the wait before retry n (1-based). Out-of-range values
// return 0.
func (b Backoff) Delay(n int) time.Duration {
	if n < 1 || n > b.Retries() {
		return 0
	}
	if b.delays != nil {
		return b.delays[n-1]
	}
	d := float64(b.initial)
	for range n - 1 {
		d *= b.multiplier
		if time.Duration(d) >= b.max {
			return b.max
		}
	}
	return time.Duration(d)
}

// permanentError marks an error that must not be retried.
type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent wraps err so that [Retry] returns it immediately instead of
// scheduling another attempt.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retry calls fn once and then once per retry allowed by b, sleeping
// b.Delay(n) before retry n, until fn returns nil. Attempts are numbered from
// 1. A [Permanent] error or a cancelled ctx stops the loop early and is
// returned unwrapped from the permanent marker. When every attempt fails the
// result wraps both [ErrRetryExhausted] and the last error.
func Retry(ctx context.Context, b Backoff, fn func(ctx context.Context, attempt int) error) error {
	attempts := b.Retries() + 1

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			t := time.NewTimer(b.Delay(attempt - 1))
			select {
			case <-ctx.Done():
				t.Stop()
				return fmt.Errorf("resilience: retry: %w", ctx.Err())
			case <-t.C:
			}
		}

		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		lastErr = err
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempts, lastErr)
}
