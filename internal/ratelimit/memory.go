package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vyrodovalexey/tenantgw/internal/observability"
)

// Memory limiter defaults.
const (
	DefaultCleanupInterval = 5 * time.Minute
	DefaultBucketTTL       = 10 * time.Minute
)

var _ Limiter = (*MemoryLimiter)(nil)

// MemoryLimiter is a per-key token bucket held in process memory. Idle
// buckets are dropped by a background cleanup loop; call Close to stop it.
type MemoryLimiter struct {
	rate   rate.Limit
	burst  int
	logger observability.Logger
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket

	cleanupInterval time.Duration
	bucketTTL       time.Duration
	stopCleanup     chan struct{}
	cleanupOnce     sync.Once
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryOption is a functional option for the memory limiter.
type MemoryOption func(*MemoryLimiter)

// WithMemoryLogger sets the logger.
func WithMemoryLogger(logger observability.Logger) MemoryOption {
	return func(l *MemoryLimiter) {
		l.logger = logger
	}
}

// WithCleanup sets how often idle buckets are swept and how long a bucket
// may stay idle.
func WithCleanup(interval, ttl time.Duration) MemoryOption {
	return func(l *MemoryLimiter) {
		if interval > 0 {
			l.cleanupInterval = interval
		}
		if ttl > 0 {
			l.bucketTTL = ttl
		}
	}
}

// withClock is used by tests.
func withClock(now func() time.Time) MemoryOption {
	return func(l *MemoryLimiter) {
		l.now = now
	}
}

// NewMemoryLimiter creates a token bucket limiter refilling at rps with
// the given burst. A burst below 1 becomes ceil(rps).
func NewMemoryLimiter(rps float64, burst int, opts ...MemoryOption) *MemoryLimiter {
	if burst < 1 {
		burst = int(math.Max(1, math.Ceil(rps)))
	}

	l := &MemoryLimiter{
		rate:            rate.Limit(rps),
		burst:           burst,
		logger:          observability.NopLogger(),
		now:             time.Now,
		buckets:         make(map[string]*bucket),
		cleanupInterval: DefaultCleanupInterval,
		bucketTTL:       DefaultBucketTTL,
		stopCleanup:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}

	go l.startCleanupLoop()

	return l
}

// Allow takes one token from key's bucket.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (*Result, error) {
	now := l.now()

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	res := &Result{Limit: l.burst}

	r := b.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		res.RetryAfter = delay
		return res, nil
	}

	res.Allowed = true
	res.Remaining = int(math.Max(0, math.Floor(b.limiter.TokensAt(now))))
	return res, nil
}

// Cleanup drops buckets idle for longer than ttl and returns how many were
// removed.
func (l *MemoryLimiter) Cleanup(ttl time.Duration) int {
	cutoff := l.now().Add(-ttl)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of live buckets.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *MemoryLimiter) startCleanupLoop() {
	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := l.Cleanup(l.bucketTTL); n > 0 {
				l.logger.Debug("removed idle rate limit buckets", zap.Int("count", n))
			}
		case <-l.stopCleanup:
			return
		}
	}
}

// Close stops the cleanup loop. Safe to call multiple times.
func (l *MemoryLimiter) Close() error {
	l.cleanupOnce.Do(func() {
		close(l.stopCleanup)
	})
	return nil
}
