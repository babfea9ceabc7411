package ratelimit

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"prekeyd/internal/domain"
)

// Config sizes a Limiter's token buckets.
type Config struct {
	// BucketSize is how many requests a key may make in a burst.
	BucketSize int
	// LeakPerMinute is how many tokens each bucket regains per minute.
	LeakPerMinute float64
	// CacheSize bounds how many keys are tracked at once. When full, a bucket
	// that has refilled is forgotten before the least recently used one, so
	// eviction only hands out a fresh burst once every tracked key is busy.
	CacheSize int
}

// evictionScan is how many of the least recently used buckets are checked
// for a refilled one before the oldest is dropped.
const evictionScan = 16

// Limiter keeps one token bucket per key.
type Limiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	size    int
	buckets *lru.Cache
	now     func() time.Time
}

// New returns a Limiter for cfg.
func New(cfg Config) (*Limiter, error) {
	if cfg.BucketSize <= 0 {
		return nil, errors.Errorf("rate limit bucket size must be positive, got %d", cfg.BucketSize)
	}
	if cfg.LeakPerMinute < 0 {
		return nil, errors.Errorf("rate limit leak rate must not be negative, got %v", cfg.LeakPerMinute)
	}
	cache, err := lru.New(cfg.CacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "rate limit cache")
	}
	return &Limiter{
		limit:   rate.Limit(cfg.LeakPerMinute / 60),
		burst:   cfg.BucketSize,
		size:    cfg.CacheSize,
		buckets: cache,
		now:     time.Now,
	}, nil
}

// Allow takes one token from key's bucket and reports whether one was there.
func (l *Limiter) Allow(key string) bool {
	return l.bucket(key).AllowN(l.now(), 1)
}

func (l *Limiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets.Get(key); ok {
		return b.(*rate.Limiter)
	}
	if l.buckets.Len() >= l.size {
		l.evict()
	}
	b := rate.NewLimiter(l.limit, l.burst)
	l.buckets.Add(key, b)
	return b
}

// evict drops a refilled bucket if one is among the oldest, else the oldest.
func (l *Limiter) evict() {
	now := l.now()
	keys := l.buckets.Keys()
	if len(keys) > evictionScan {
		keys = keys[:evictionScan]
	}
	for _, k := range keys {
		if b, ok := l.buckets.Peek(k); ok && b.(*rate.Limiter).TokensAt(now) >= float64(l.burst) {
			l.buckets.Remove(k)
			return
		}
	}
	l.buckets.RemoveOldest()
}

// Unlimited allows every request.
type Unlimited struct{}

// Allow always returns true.
func (Unlimited) Allow(string) bool { return true }

var (
	_ domain.RateLimiter = (*Limiter)(nil)
	_ domain.RateLimiter = Unlimited{}
)
