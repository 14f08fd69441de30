package engine

import (
	"context"
	"strings"

	"github.com/estimap/recreation/internal/resilience"
)

// Messages of a mapset held by another session. Concurrent batch runs
// can hit them while another command holds the lock.
var lockMessages = []string{
	"unable to lock",
	"is currently running",
	"mapset is in use",
	"concurrent mapset locking",
}

// IsLocked reports whether err came from a command refused because the
// mapset was locked.
func IsLocked(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range lockMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// RetryRunner retries commands refused by a mapset lock.
type RetryRunner struct {
	next   Runner
	policy resilience.Policy
}

// NewRetryRunner wraps next. The policy's Retryable is replaced by IsLocked.
func NewRetryRunner(next Runner, p resilience.Policy) *RetryRunner {
	p.Retryable = IsLocked
	if p.OnRetry == nil {
		p.OnRetry = resilience.LogRetries("engine command")
	}
	return &RetryRunner{next: next, policy: p}
}

// Run implements Runner.
func (r *RetryRunner) Run(ctx context.Context, c Command) (string, error) {
	return resilience.Do(ctx, r.policy, func(ctx context.Context) (string, error) {
		return r.next.Run(ctx, c)
	})
}
