// Package retry holds the shared retry schedule for upstream AI calls.
package retry

import (
	"context"
	"net/http"
	"time"
)

// IsRetryableStatus reports whether an upstream status code indicates a
// transient overload that is safe to retry.
func IsRetryableStatus(status int) bool {
	return status == http.StatusServiceUnavailable || status == http.StatusTooManyRequests
}

// Policy is a fixed, ordered backoff schedule consumed one delay per retry
// attempt. It is stateless and shared between callers; nobody tracks per-caller
// history.
type Policy struct {
	Delays []time.Duration
}

// DefaultPolicy retries three times with 5s, 15s and 30s backoff.
func DefaultPolicy() Policy {
	return Policy{Delays: []time.Duration{5 * time.Second, 15 * time.Second, 30 * time.Second}}
}

// MaxAttempts is the number of retries, equal to the schedule length.
func (p Policy) MaxAttempts() int {
	return len(p.Delays)
}

// Sleep waits for the attempt's scheduled delay (0-based) or until the context
// is cancelled.
func (p Policy) Sleep(ctx context.Context, attempt int) error {
	if attempt < 0 || attempt >= len(p.Delays) {
		return nil
	}
	timer := time.NewTimer(p.Delays[attempt])
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
