package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// windowScript counts one event and pins the counter's expiry to the end of
// its window, so a counter never outlives the slot it belongs to.
var windowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIREAT", KEYS[1], ARGV[1])
end
return count
`)

const defaultRedisTimeout = 2 * time.Second

// RedisOptions configures a RedisLimiter. Client is shared and owned by the
// caller.
type RedisOptions struct {
	Client  *redis.Client
	Prefix  string
	Limit   int
	Window  time.Duration
	Timeout time.Duration
}

// RedisLimiter is a fixed window limiter whose counters live in Redis, so all
// gateway instances draw from one budget per key.
type RedisLimiter struct {
	client  *redis.Client
	prefix  string
	limit   int64
	window  time.Duration
	timeout time.Duration
	now     func() time.Time
}

func NewRedisLimiter(opts RedisOptions) (*RedisLimiter, error) {
	if opts.Client == nil {
		return nil, errors.New("rate limiter: redis client is required")
	}
	if opts.Limit <= 0 || opts.Window < time.Millisecond {
		return nil, errors.New("rate limiter: limit and window must be positive")
	}
	prefix := strings.Trim(strings.TrimSpace(opts.Prefix), ":")
	if prefix == "" {
		prefix = "chat:ratelimit"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultRedisTimeout
	}
	return &RedisLimiter{
		client:  opts.Client,
		prefix:  prefix,
		limit:   int64(opts.Limit),
		window:  opts.Window,
		timeout: opts.Timeout,
		now:     time.Now,
	}, nil
}

// Allow fails closed when Redis is unreachable.
func (l *RedisLimiter) Allow(key string) bool {
	key = strings.TrimSpace(key)
	if key == "" {
		key = "unknown"
	}

	windowMs := l.window.Milliseconds()
	slot := l.now().UnixMilli() / windowMs
	expireAt := (slot + 1) * windowMs

	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()
	count, err := windowScript.Run(ctx, l.client, []string{l.counterKey(key, slot)}, expireAt).Int64()
	if err != nil {
		slog.Warn("rate limiter unavailable, rejecting", "prefix", l.prefix, "error", err)
		return false
	}
	return count <= l.limit
}

// counterKey is prefix:key:slot.
func (l *RedisLimiter) counterKey(key string, slot int64) string {
	var b strings.Builder
	b.Grow(len(l.prefix) + len(key) + 22)
	b.WriteString(l.prefix)
	b.WriteByte(':')
	b.WriteString(key)
	b.WriteByte(':')
	b.WriteString(strconv.FormatInt(slot, 10))
	return b.String()
}
