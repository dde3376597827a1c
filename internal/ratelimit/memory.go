package ratelimit

import (
	"strings"
	"sync"
	"time"
)

const defaultMaxKeys = 100_000

type memoryBucket struct {
	slot  int64
	count int
}

// MemoryLimiter is a per-process fixed window limiter. The key table is capped;
// once full, stale windows are swept and new keys are rejected if none expired.
type MemoryLimiter struct {
	limit   int
	window  time.Duration
	maxKeys int
	now     func() time.Time

	mu      sync.Mutex
	buckets map[string]*memoryBucket
}

func NewMemoryLimiter(limit int, window time.Duration, maxKeys int) *MemoryLimiter {
	if maxKeys <= 0 {
		maxKeys = defaultMaxKeys
	}
	if window <= 0 {
		window = time.Minute
	}
	return &MemoryLimiter{
		limit:   limit,
		window:  window,
		maxKeys: maxKeys,
		now:     time.Now,
		buckets: map[string]*memoryBucket{},
	}
}

func (l *MemoryLimiter) Allow(key string) bool {
	key = strings.TrimSpace(key)
	if key == "" {
		key = "unknown"
	}
	slot := l.now().UnixMilli() / l.window.Milliseconds()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		if len(l.buckets) >= l.maxKeys {
			l.sweep(slot)
			if len(l.buckets) >= l.maxKeys {
				return false
			}
		}
		b = &memoryBucket{slot: slot}
		l.buckets[key] = b
	}
	if b.slot != slot {
		b.slot = slot
		b.count = 0
	}
	b.count++
	return b.count <= l.limit
}

func (l *MemoryLimiter) sweep(slot int64) {
	for key, b := range l.buckets {
		if b.slot != slot {
			delete(l.buckets, key)
		}
	}
}
