// Package retry provides bounded exponential backoff on top of
// cenkalti/backoff. Next exposes the same decision as a pure function of the
// attempt count and elapsed time.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// unbounded stands in for a zero limit.
const unbounded = time.Duration(math.MaxInt64 / 2)

// Policy holds backoff settings.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// InitialBackoff is the wait after the first failed attempt.
	InitialBackoff time.Duration
	// MaxBackoff caps a single wait.
	MaxBackoff time.Duration
	// Multiplier grows the wait after each failure.
	Multiplier float64
	// MaxElapsed stops retrying once the total time would exceed it. Zero
	// disables the limit.
	MaxElapsed time.Duration
}

// DefaultPolicy returns the policy used for API rate limits.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    4,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
		MaxElapsed:     2 * time.Minute,
	}
}

// Backoff returns the wait after the given failed attempt (1-based).
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.InitialBackoff) * math.Pow(mult, float64(attempt-1))
	if p.MaxBackoff > 0 && d > float64(p.MaxBackoff) {
		return p.MaxBackoff
	}
	return time.Duration(d)
}

// Next decides whether to try again after attempt failed attempts, given the
// time spent so far. It returns the wait before the next attempt.
func (p Policy) Next(attempt int, elapsed time.Duration) (time.Duration, bool) {
	if attempt >= p.MaxAttempts {
		return 0, false
	}
	wait := p.Backoff(attempt)
	if p.MaxElapsed > 0 && elapsed+wait > p.MaxElapsed {
		return 0, false
	}
	return wait, true
}

// Classifier reports whether an error is worth retrying.
type Classifier func(error) bool

// ExhaustedError is returned when a retryable error persists past the policy.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Do calls fn until it succeeds, returns a non-retryable error, or the policy
// gives up. A nil classifier retries nothing.
func Do(ctx context.Context, p Policy, retryable Classifier, fn func(context.Context) error) error {
	attempts := 0
	operation := func() (struct{}, error) {
		attempts++
		err := fn(ctx)
		if err != nil && (retryable == nil || !retryable(err)) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, operation, p.options()...)
	var permanent *backoff.PermanentError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &permanent):
		return permanent.Err
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return &ExhaustedError{Attempts: attempts, Err: err}
	}
}

func (p Policy) options() []backoff.RetryOption {
	maxElapsed := p.MaxElapsed
	if maxElapsed <= 0 {
		maxElapsed = unbounded
	}
	return []backoff.RetryOption{
		backoff.WithBackOff(p.exponential()),
		backoff.WithMaxTries(uint(max(p.MaxAttempts, 1))),
		backoff.WithMaxElapsedTime(maxElapsed),
	}
}

// exponential maps the policy onto the library's backoff without jitter, so
// the waits match Backoff.
func (p Policy) exponential() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.RandomizationFactor = 0
	bo.Multiplier = max(p.Multiplier, 1)
	bo.MaxInterval = p.MaxBackoff
	if bo.MaxInterval <= 0 {
		bo.MaxInterval = unbounded
	}
	bo.InitialInterval = min(p.InitialBackoff, bo.MaxInterval)
	bo.Reset()
	return bo
}
