package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MemoryLimiter keeps fixed windows in process memory
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*Window
	limit   int
	window  time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

// MemoryOption configures a MemoryLimiter
type MemoryOption func(*MemoryLimiter)

// WithClock replaces the wall clock, for tests
func WithClock(now func() time.Time) MemoryOption {
	return func(l *MemoryLimiter) {
		l.now = now
	}
}

// NewMemoryLimiter creates a limiter admitting limit requests per window
func NewMemoryLimiter(limit int, window time.Duration, logger *zap.Logger, opts ...MemoryOption) *MemoryLimiter {
	l := &MemoryLimiter{
		windows: make(map[string]*Window),
		limit:   limit,
		window:  window,
		now:     time.Now,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow counts a request against identity's window.
// A denied request does not change the window.
func (l *MemoryLimiter) Allow(_ context.Context, identity string) (Decision, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[identity]
	if !ok || !now.Before(w.ResetTime) {
		w = &Window{Count: 1, ResetTime: now.Add(l.window)}
		l.windows[identity] = w
		return Decision{Allowed: true, Limit: l.limit, Remaining: remaining(l.limit, 1), ResetAt: w.ResetTime}, nil
	}

	if w.Count >= l.limit {
		l.logger.Debug("Rate limit exceeded",
			zap.String("identity", identity),
			zap.Int("count", w.Count),
			zap.Time("reset_at", w.ResetTime))
		return Decision{Allowed: false, Limit: l.limit, Remaining: 0, ResetAt: w.ResetTime}, nil
	}

	w.Count++
	return Decision{Allowed: true, Limit: l.limit, Remaining: remaining(l.limit, w.Count), ResetAt: w.ResetTime}, nil
}

// Sweep drops windows that have expired by now and returns how many it removed
func (l *MemoryLimiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for id, w := range l.windows {
		if !now.Before(w.ResetTime) {
			delete(l.windows, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked identities
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}
