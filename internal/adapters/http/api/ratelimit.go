package api

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// userLimiter holds the token bucket of a single caller.
type userLimiter struct {
	limiter    *rate.Limiter
	lastActive time.Time
}

// UserRateLimiter keeps one token bucket per caller identity.
type UserRateLimiter struct {
	rps   rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*userLimiter

	cleanupInterval time.Duration
	maxIdleTime     time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// NewUserRateLimiter creates a limiter allowing rps sustained requests per
// caller with the given burst. A burst below one is raised to one.
func NewUserRateLimiter(rps float64, burst int) *UserRateLimiter {
	if burst < 1 {
		burst = 1
	}
	l := &UserRateLimiter{
		rps:             rate.Limit(rps),
		burst:           burst,
		limiters:        make(map[string]*userLimiter),
		cleanupInterval: 5 * time.Minute,
		maxIdleTime:     10 * time.Minute,
		stopCleanup:     make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Allow reports whether key may make another request now.
func (l *UserRateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	ul, ok := l.limiters[key]
	if !ok {
		ul = &userLimiter{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.limiters[key] = ul
	}
	ul.lastActive = now
	return ul.limiter.AllowN(now, 1)
}

// Len returns the number of callers currently tracked.
func (l *UserRateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// Close stops the background cleanup goroutine.
func (l *UserRateLimiter) Close() {
	l.stopOnce.Do(func() { close(l.stopCleanup) })
}

func (l *UserRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup(time.Now())
		case <-l.stopCleanup:
			return
		}
	}
}

// cleanup drops buckets idle for longer than maxIdleTime.
func (l *UserRateLimiter) cleanup(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, ul := range l.limiters {
		if now.Sub(ul.lastActive) > l.maxIdleTime {
			delete(l.limiters, key)
		}
	}
}
