// Package retry runs idempotent upstream calls with exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// Policy controls how many times and how quickly a call is retried. The
// zero value makes a single attempt.
type Policy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
	Jitter         bool
}

// DefaultPolicy suits calls made while a reporter is waiting on the response.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:     2,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		BackoffFactor:  2.0,
		Jitter:         true,
	}
}

// Error marks a failure as transient. Errors not wrapped in one are returned
// immediately.
type Error struct {
	Err        error
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%v (retry after %v)", e.Err, e.RetryAfter)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Transient wraps err so Do retries it.
func Transient(err error) error {
	return &Error{Err: err}
}

// After wraps err so Do retries it no sooner than delay.
func After(err error, delay time.Duration) error {
	return &Error{Err: err, RetryAfter: delay}
}

// IsTransient reports whether err was marked retryable.
func IsTransient(err error) bool {
	var re *Error
	return errors.As(err, &re)
}

// Do calls fn until it succeeds, returns a permanent error, the attempts run
// out or ctx is done.
func Do(ctx context.Context, policy Policy, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		var re *Error
		if !errors.As(err, &re) {
			return err
		}
		if attempt == policy.MaxRetries {
			break
		}

		wait := policy.backoff(attempt)
		if re.RetryAfter > 0 {
			wait = re.RetryAfter
			if policy.MaxBackoff > 0 && wait > policy.MaxBackoff {
				wait = policy.MaxBackoff
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}

	if policy.MaxRetries == 0 {
		return lastErr
	}
	return fmt.Errorf("giving up after %d attempts: %w", policy.MaxRetries+1, lastErr)
}

func (p Policy) backoff(attempt int) time.Duration {
	factor := p.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	d := float64(p.InitialBackoff) * math.Pow(factor, float64(attempt))
	if p.MaxBackoff > 0 && d > float64(p.MaxBackoff) {
		d = float64(p.MaxBackoff)
	}
	if p.Jitter {
		// +/-10%
		d += d * 0.1 * (2*rand.Float64() - 1)
	}
	return time.Duration(d)
}
