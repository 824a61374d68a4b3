package unifiedllm

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy configures how failed model calls are retried.
type RetryPolicy struct {
	MaxRetries int // attempts after the first
	BaseDelay  time.Duration
	MaxDelay   time.Duration // caps backoff; zero means uncapped
	Multiplier float64
	Jitter     bool // scale each delay by a random factor in [0.5, 1.5)

	// OnRetry is called before sleeping. attempt is the attempt that
	// just failed, counting from 1.
	OnRetry func(err error, attempt int, delay time.Duration)
}

// DefaultRetryPolicy returns two retries with jittered exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		BaseDelay:  time.Second,
		MaxDelay:   time.Minute,
		Multiplier: 2,
		Jitter:     true,
	}
}

// Delay returns the backoff before retry n, counting from 0.
func (p RetryPolicy) Delay(n int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(n))
	if p.MaxDelay > 0 {
		d = math.Min(d, float64(p.MaxDelay))
	}
	if p.Jitter {
		d *= 0.5 + rand.Float64()
	}
	return time.Duration(d)
}

// Retry calls fn until it succeeds, fails with an error IsRetryable
// rejects, or the policy runs out. It returns the number of attempts made.
// A rate limit asking for a longer wait than MaxDelay is returned at once.
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, int, error) {
	var zero T
	for attempt := 1; ; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, attempt, nil
		}
		if attempt > policy.MaxRetries || !IsRetryable(err) {
			return zero, attempt, err
		}

		delay := policy.Delay(attempt - 1)
		var rl *RateLimitError
		if errors.As(err, &rl) && rl.RetryAfter > 0 {
			if policy.MaxDelay > 0 && rl.RetryAfter > policy.MaxDelay {
				return zero, attempt, err
			}
			delay = rl.RetryAfter
		}

		if policy.OnRetry != nil {
			policy.OnRetry(err, attempt, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, attempt, &AbortError{SDKError: SDKError{Message: "request cancelled during retry", Cause: ctx.Err()}}
		case <-timer.C:
		}
	}
}
