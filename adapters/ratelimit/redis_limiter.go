package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/layer-3/walletauth/ports"
	"github.com/redis/go-redis/v9"
)

// incrWindow counts an attempt and starts the window in the same call. A key
// left without a TTL gets one on its next attempt.
var incrWindow = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if redis.call('PTTL', KEYS[1]) < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// RedisLimiter is a fixed-window counter shared by all instances
type RedisLimiter struct {
	client *redis.Client
	prefix string
	limit  int64
	window time.Duration
}

// NewRedisLimiter allows limit attempts per key in every window
func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) ports.RateLimiter {
	return &RedisLimiter{
		client: client,
		prefix: "walletauth:rl:",
		limit:  int64(limit),
		window: window,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	count, err := incrWindow.Run(ctx, l.client, []string{l.prefix + key}, l.window.Milliseconds()).Int64()
	if err != nil {
		return true, fmt.Errorf("failed to count attempt: %w", err)
	}

	return count <= l.limit, nil
}
