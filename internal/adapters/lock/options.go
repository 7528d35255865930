package lock

import (
	"time"

	"github.com/okian/gubs/pkg/logger"
)

// Defaults for the per-user lock.
const (
	DefaultTTL      = 8 * time.Second
	DefaultAttempts = 80
	DefaultBackoff  = 75 * time.Millisecond
)

// Option applies a configuration option to the Locker.
type Option func(*Locker)

// WithTTL sets how long an acquired lock stays valid.
func WithTTL(ttl time.Duration) Option {
	return func(l *Locker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithAttempts sets the acquisition attempt budget.
func WithAttempts(n int) Option {
	return func(l *Locker) {
		if n > 0 {
			l.attempts = n
		}
	}
}

// WithBackoff sets the fixed pause between attempts.
func WithBackoff(d time.Duration) Option {
	return func(l *Locker) {
		if d >= 0 {
			l.backoff = d
		}
	}
}

// WithLogger sets the logger for release failures.
func WithLogger(log logger.Logger) Option {
	return func(l *Locker) {
		if log != nil {
			l.log = log
		}
	}
}
