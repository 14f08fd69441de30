// Package resilience retries operations that fail for transient reasons:
// a locked mapset or a dropped database connection.
package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Policy controls exponential backoff between attempts.
type Policy struct {
	// Attempts is the total number of tries; 1 disables retries.
	Attempts       int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// Jitter is the random fraction added to or removed from each delay.
	Jitter float64

	// Retryable decides whether an error is worth another attempt. IsTransient
	// is used when nil.
	Retryable func(error) bool
	// OnRetry runs before each sleep.
	OnRetry func(attempt int, err error)
}

// DefaultPolicy returns three attempts starting at one second.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:       3,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		Jitter:         0.2,
	}
}

// FromConfig builds a policy from configured values; zero values keep the
// defaults.
func FromConfig(attempts, initialBackoffMs, maxBackoffMs int) Policy {
	p := DefaultPolicy()
	if attempts > 0 {
		p.Attempts = attempts
	}
	if initialBackoffMs > 0 {
		p.InitialBackoff = time.Duration(initialBackoffMs) * time.Millisecond
	}
	if maxBackoffMs > 0 {
		p.MaxBackoff = time.Duration(maxBackoffMs) * time.Millisecond
	}
	return p
}

// Do runs fn until it succeeds, fails with a non-retryable error, runs out
// of attempts, or ctx is done. The last error is returned.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransient
	}
	attempts := max(p.Attempts, 1)

	var zero T
	for attempt := 1; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if attempt >= attempts || ctx.Err() != nil || !retryable(err) {
			return zero, err
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}

		timer := time.NewTimer(p.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, err
		case <-timer.C:
		}
	}
}

// delay is the wait after the given failed attempt (1-based).
func (p Policy) delay(attempt int) time.Duration {
	d := float64(p.InitialBackoff) * math.Pow(2, float64(attempt-1))
	if p.MaxBackoff > 0 && d > float64(p.MaxBackoff) {
		d = float64(p.MaxBackoff)
	}
	if p.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * p.Jitter
	}
	return time.Duration(max(d, 0))
}

// LogRetries returns an OnRetry callback logging each retry of operation.
func LogRetries(operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
