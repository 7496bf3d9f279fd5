package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/suPer8Hu/gopherchat/internal/store/redisstore"
)

// Result of one Allow call. RetryAfter is only meaningful when !Allowed.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds up so clients never retry too early.
func (r Result) RetryAfterSeconds() int {
	secs := int(math.Ceil(r.RetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Limiter is a fixed-window hard cap per key.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

type RedisLimiter struct {
	store  *redisstore.Store
	prefix string
	limit  int
	window time.Duration
}

func NewRedisLimiter(store *redisstore.Store, prefix string, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{store: store, prefix: prefix, limit: limit, window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	count, ttl, err := l.store.IncrWindow(ctx, "ratelimit:"+l.prefix+":"+key, l.window)
	if err != nil {
		return Result{}, err
	}
	return decide(count, l.limit, ttl), nil
}

func decide(count int64, limit int, resetIn time.Duration) Result {
	if count > int64(limit) {
		return Result{Allowed: false, RetryAfter: resetIn}
	}
	return Result{Allowed: true, Remaining: limit - int(count)}
}

type window struct {
	count   int64
	resetAt time.Time
}

// MemoryLimiter keeps counters in process. Use it for single-replica
// deployments and tests.
type MemoryLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	buckets map[string]*window
	now     func() time.Time
}

func NewMemoryLimiter(limit int, win time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limit:   limit,
		window:  win,
		buckets: make(map[string]*window),
		now:     time.Now,
	}
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string) (Result, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok || !now.Before(b.resetAt) {
		b = &window{resetAt: now.Add(l.window)}
		l.buckets[key] = b
		l.sweep(now)
	}
	b.count++
	return decide(b.count, l.limit, b.resetAt.Sub(now)), nil
}

// sweep drops expired windows; called only when a new window opens.
func (l *MemoryLimiter) sweep(now time.Time) {
	if len(l.buckets) < 1024 {
		return
	}
	for k, b := range l.buckets {
		if !now.Before(b.resetAt) {
			delete(l.buckets, k)
		}
	}
}
