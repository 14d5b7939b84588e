package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter enforces a fixed-window request budget per client identifier,
// backed by INCR + EXPIRE so multiple service instances share one budget.
type RateLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

func NewRateLimiter(client *redis.Client, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{client: client, limit: limit, window: window}
}

// Allow reports whether the client may proceed. When the budget is exhausted
// it returns the interval after which the caller should retry.
func (l *RateLimiter) Allow(ctx context.Context, clientID string) (bool, time.Duration, error) {
	key := "ratelimit:" + clientID

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, err
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return false, 0, err
		}
	}
	if count > int64(l.limit) {
		ttl, err := l.client.TTL(ctx, key).Result()
		if err != nil || ttl < 0 {
			ttl = l.window
		}
		return false, ttl, nil
	}
	return true, 0, nil
}
