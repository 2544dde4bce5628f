package backoff

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

const maxShift = 62

// ErrPermanent marks an error Retry must not retry.
var ErrPermanent = errors.New("permanent failure")

// Exponential returns base * 2^attempt, saturating at math.MaxInt64.
// Negative attempts count as 0.
func Exponential(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}

	attempt = min(max(attempt, 0), maxShift)
	multiplier := int64(1) << attempt

	if int64(base) > math.MaxInt64/multiplier {
		return time.Duration(math.MaxInt64)
	}

	return base * time.Duration(multiplier)
}

// FullJitter returns a random duration in [0, delay).
func FullJitter(delay time.Duration) time.Duration {
	if delay <= 0 {
		return 0
	}

	return time.Duration(rand.Int64N(int64(delay))) // #nosec G404 -- jitter does not need crypto randomness
}

// ExponentialWithJitter returns a random duration in [0, base * 2^attempt).
func ExponentialWithJitter(base time.Duration, attempt int) time.Duration {
	return FullJitter(Exponential(base, attempt))
}

// SleepWithContext sleeps for duration or until ctx is done.
func SleepWithContext(ctx context.Context, duration time.Duration) error {
	if duration <= 0 {
		return nil
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("context done: %w", ctx.Err())
	}
}

// Policy bounds a retry loop.
type Policy struct {
	Initial     time.Duration
	Max         time.Duration
	MaxAttempts int
}

// DefaultPolicy is used when a zero Policy is given to Retry.
var DefaultPolicy = Policy{Initial: 100 * time.Millisecond, Max: 5 * time.Second, MaxAttempts: 5}

// Delay returns the jittered wait before retry number attempt, capped at Max.
func (p Policy) Delay(attempt int) time.Duration {
	delay := ExponentialWithJitter(p.Initial, attempt)
	if p.Max > 0 && delay > p.Max {
		return FullJitter(p.Max)
	}

	return delay
}

// Permanent wraps err so that Retry returns it without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// Retry calls fn until it succeeds, returns a Permanent error, ctx is done or
// the attempts run out. onRetry, when set, observes each failed attempt
// before the wait.
func Retry(ctx context.Context, policy Policy, fn func(ctx context.Context) error, onRetry func(attempt int, err error, wait time.Duration)) error {
	if policy.MaxAttempts <= 0 {
		policy = DefaultPolicy
	}

	var err error

	for attempt := range policy.MaxAttempts {
		if err = fn(ctx); err == nil {
			return nil
		}

		if errors.Is(err, ErrPermanent) || attempt == policy.MaxAttempts-1 {
			break
		}

		wait := policy.Delay(attempt)
		if onRetry != nil {
			onRetry(attempt+1, err, wait)
		}

		if sleepErr := SleepWithContext(ctx, wait); sleepErr != nil {
			return fmt.Errorf("retry aborted after %d attempts: %w", attempt+1, errors.Join(err, sleepErr))
		}
	}

	return err
}
