package ratelimit

import (
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter decides whether one more event for key fits the current window.
type Limiter interface {
	Allow(key string) bool
}

// Unlimited allows everything.
type Unlimited struct{}

func (Unlimited) Allow(string) bool { return true }

// New picks the Redis limiter when a client is given and the in-memory
// limiter otherwise. A non-positive limit disables limiting.
func New(client *redis.Client, prefix string, limit int, window time.Duration) Limiter {
	if limit <= 0 {
		return Unlimited{}
	}
	if client != nil {
		limiter, err := NewRedisLimiter(RedisOptions{Client: client, Prefix: prefix, Limit: limit, Window: window})
		if err == nil {
			return limiter
		}
		slog.Warn("redis rate limiter unavailable, using memory", "prefix", prefix, "error", err)
	}
	return NewMemoryLimiter(limit, window, defaultMaxKeys)
}
