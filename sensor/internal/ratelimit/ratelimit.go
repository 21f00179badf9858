package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/telhawk-systems/proximity-stack/sensor/internal/metrics"
)

type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Close() error
}

// slidingWindow trims entries older than the window, then admits the
// request if fewer than limit remain.
var slidingWindow = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local ttl = tonumber(ARGV[4])
	local member = ARGV[5]

	redis.call('ZREMRANGEBYSCORE', key, 0, window_start)

	local current = redis.call('ZCARD', key)
	if current < limit then
		redis.call('ZADD', key, now, member)
		redis.call('EXPIRE', key, ttl)
		return 1
	end
	return 0
`)

type redisRateLimiter struct {
	client   *redis.Client
	limit    int64
	window   time.Duration
	endpoint string
}

// NewRedisRateLimiter connects to redisURL and limits each key to limit
// requests per window.
func NewRedisRateLimiter(redisURL string, limit int, window time.Duration, endpoint string) (RateLimiter, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return NewWithClient(client, limit, window, endpoint), nil
}

// NewWithClient wraps an existing client. The limiter owns it and closes it
// on Close.
func NewWithClient(client *redis.Client, limit int, window time.Duration, endpoint string) RateLimiter {
	return &redisRateLimiter{
		client:   client,
		limit:    int64(limit),
		window:   window,
		endpoint: endpoint,
	}
}

// Allow implements sliding window rate limiting using Redis
func (r *redisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := time.Now().UnixNano()
	windowStart := now - r.window.Nanoseconds()
	ttl := int64(r.window/time.Second) + 1

	result, err := slidingWindow.Run(ctx, r.client,
		[]string{"sensor:ratelimit:" + r.endpoint + ":" + key},
		now, windowStart, r.limit, ttl, uuid.NewString(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}

	allowed := result == 1
	if !allowed {
		metrics.RateLimitHits.WithLabelValues(r.endpoint).Inc()
	}

	return allowed, nil
}

func (r *redisRateLimiter) Close() error {
	return r.client.Close()
}

// NoOpRateLimiter always allows requests (for testing or disabled rate limiting)
type NoOpRateLimiter struct{}

func (n *NoOpRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return true, nil
}

func (n *NoOpRateLimiter) Close() error {
	return nil
}
