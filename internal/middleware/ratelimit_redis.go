package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// fixedWindow increments the window counter, arms its expiry on first use and
// reports the count and remaining ttl in milliseconds.
var fixedWindow = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return {n, redis.call('PTTL', KEYS[1])}
`)

// RedisLimiter is a fixed-window limiter shared by every API instance.
type RedisLimiter struct {
	client *redis.Client
	prefix string
}

// NewRedisLimiter connects to the Redis server at url (redis://...).
func NewRedisLimiter(ctx context.Context, url string) (*RedisLimiter, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisLimiter{client: client, prefix: "canvas:ratelimit:"}, nil
}

// Allow implements Limiter.
func (l *RedisLimiter) Allow(ctx context.Context, policy Policy, key string) (Decision, error) {
	res, err := fixedWindow.Run(ctx, l.client, []string{l.prefix + policy.Name + ":" + key}, policy.Window.Milliseconds()).Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("redis rate limit: %w", err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("redis rate limit: unexpected reply %v", res)
	}
	count, _ := res[0].(int64)
	ttl, _ := res[1].(int64)
	if count <= int64(policy.Limit) {
		return Decision{Allowed: true}, nil
	}
	retry := time.Duration(ttl) * time.Millisecond
	if retry <= 0 {
		retry = policy.Window
	}
	return Decision{RetryAfter: retry}, nil
}

func (l *RedisLimiter) Name() string { return "redis-limiter" }

func (l *RedisLimiter) Start(context.Context) error { return nil }

// Stop closes the client connection pool.
func (l *RedisLimiter) Stop(context.Context) error {
	return l.client.Close()
}
