package ratelimit

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func TestMemoryLimiter_DeniesAfterCeiling(t *testing.T) {
	clock := newClock()
	l := NewMemoryLimiter(10, time.Minute, zap.NewNop(), WithClock(clock.Now))
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		d, err := l.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d", i)
		assert.Equal(t, 10-i, d.Remaining)
		clock.Advance(time.Second)
	}

	d, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, time.Date(2024, 6, 1, 12, 1, 0, 0, time.UTC), d.ResetAt)

	other, err := l.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, other.Allowed, "identities are counted independently")
}

func TestMemoryLimiter_ResetsAtResetTime(t *testing.T) {
	clock := newClock()
	l := NewMemoryLimiter(2, time.Minute, zap.NewNop(), WithClock(clock.Now))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, _ := l.Allow(ctx, "a")
		require.True(t, d.Allowed)
	}
	clock.Advance(59 * time.Second)
	d, _ := l.Allow(ctx, "a")
	require.False(t, d.Allowed)

	clock.Advance(time.Second)
	d, err := l.Allow(ctx, "a")
	require.NoError(t, err)
	assert.True(t, d.Allowed, "request at resetTime opens a new window")
	assert.Equal(t, 1, d.Remaining)
	assert.Equal(t, clock.Now().Add(time.Minute), d.ResetAt)
}

func TestMemoryLimiter_DenialDoesNotExtendWindow(t *testing.T) {
	clock := newClock()
	l := NewMemoryLimiter(1, time.Minute, zap.NewNop(), WithClock(clock.Now))
	ctx := context.Background()

	first, _ := l.Allow(ctx, "a")
	for i := 0; i < 5; i++ {
		clock.Advance(10 * time.Second)
		d, _ := l.Allow(ctx, "a")
		assert.False(t, d.Allowed)
		assert.Equal(t, first.ResetAt, d.ResetAt)
	}
}

func TestMemoryLimiter_ConcurrentAdmissionsNeverExceedLimit(t *testing.T) {
	l := NewMemoryLimiter(50, time.Hour, zap.NewNop())
	var allowed int64
	var wg sync.WaitGroup

	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := l.Allow(context.Background(), "shared")
			if err == nil && d.Allowed {
				atomic.AddInt64(&allowed, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), allowed)
}

func TestMemoryLimiter_Sweep(t *testing.T) {
	clock := newClock()
	l := NewMemoryLimiter(5, time.Minute, zap.NewNop(), WithClock(clock.Now))
	ctx := context.Background()

	_, _ = l.Allow(ctx, "old")
	clock.Advance(30 * time.Second)
	_, _ = l.Allow(ctx, "new")
	require.Equal(t, 2, l.Len())

	removed := l.Sweep(clock.Now().Add(30 * time.Second))
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, l.Len())
}

func TestDecision_RetryAfter(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d := Decision{ResetAt: now.Add(1500 * time.Millisecond)}
	assert.Equal(t, 2*time.Second, d.RetryAfter(now))
	assert.Equal(t, time.Duration(0), d.RetryAfter(now.Add(time.Hour)))
}

func TestIdentity(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"forwarded chain uses first hop", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, "203.0.113.7"},
		{"real ip fallback", map[string]string{"X-Real-IP": "198.51.100.2"}, "198.51.100.2"},
		{"forwarded wins over real ip", map[string]string{"X-Forwarded-For": "203.0.113.7", "X-Real-IP": "198.51.100.2"}, "203.0.113.7"},
		{"no headers", nil, LocalIdentity},
		{"blank forwarded entry", map[string]string{"X-Forwarded-For": " , 10.0.0.1"}, LocalIdentity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for k, v := range tt.headers {
				h.Set(k, v)
			}
			assert.Equal(t, tt.want, Identity(h))
		})
	}
}
