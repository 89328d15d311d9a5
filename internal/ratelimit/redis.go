package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// allowLua checks the counter before incrementing so a denial leaves the
// window untouched. The TTL is set only when the window opens.
var allowLua = redis.NewScript(`
	local count = tonumber(redis.call('GET', KEYS[1]) or '0')
	local limit = tonumber(ARGV[1])
	if count >= limit then
		return {count, redis.call('PTTL', KEYS[1]), 0}
	end
	count = redis.call('INCR', KEYS[1])
	local ttl = redis.call('PTTL', KEYS[1])
	if count == 1 or ttl < 0 then
		redis.call('PEXPIRE', KEYS[1], ARGV[2])
		ttl = tonumber(ARGV[2])
	end
	return {count, ttl, 1}
`)

// RedisLimiter shares fixed windows across instances through Redis
type RedisLimiter struct {
	client    redis.UniversalClient
	limit     int
	window    time.Duration
	keyPrefix string
	logger    *zap.Logger
}

// NewRedisLimiter creates a limiter backed by client
func NewRedisLimiter(client redis.UniversalClient, limit int, window time.Duration, keyPrefix string, logger *zap.Logger) *RedisLimiter {
	return &RedisLimiter{
		client:    client,
		limit:     limit,
		window:    window,
		keyPrefix: keyPrefix,
		logger:    logger,
	}
}

// Allow runs the fixed-window check atomically on the server
func (l *RedisLimiter) Allow(ctx context.Context, identity string) (Decision, error) {
	key := l.keyPrefix + identity
	res, err := allowLua.Run(ctx, l.client, []string{key}, l.limit, l.window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: redis check: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("ratelimit: unexpected script reply of length %d", len(res))
	}

	count, ttl, allowed := int(res[0]), time.Duration(res[1])*time.Millisecond, res[2] == 1
	if ttl < 0 {
		ttl = l.window
	}
	d := Decision{
		Allowed:   allowed,
		Limit:     l.limit,
		Remaining: remaining(l.limit, count),
		ResetAt:   time.Now().Add(ttl),
	}
	if !allowed {
		l.logger.Debug("Rate limit exceeded", zap.String("identity", identity), zap.Int("count", count))
	}
	return d, nil
}

// Ping verifies the backend is reachable
func (l *RedisLimiter) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
