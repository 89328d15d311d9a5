// Package ratelimit bounds request volume per client identity over a fixed
// window. It is a volume control, independent of usage cost.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Decision is the outcome of one admission check
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is how long a denied caller should wait, rounded up to a second
func (d Decision) RetryAfter(now time.Time) time.Duration {
	wait := d.ResetAt.Sub(now)
	if wait <= 0 {
		return 0
	}
	return wait.Truncate(time.Second) + time.Second
}

// Limiter admits or denies a request for an identity
type Limiter interface {
	Allow(ctx context.Context, identity string) (Decision, error)
}

// Window is the counting state of one identity
type Window struct {
	Count     int
	ResetTime time.Time
}

func remaining(limit, count int) int {
	if count >= limit {
		return 0
	}
	return limit - count
}

// ExceededError reports a denied request and the window that denied it
type ExceededError struct {
	Identity string
	Decision Decision
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("rate limit of %d requests exceeded for %s until %s",
		e.Decision.Limit, e.Identity, e.Decision.ResetAt.UTC().Format(time.RFC3339))
}
