package repository

import (
	"time"

	"github.com/okian/gubs/pkg/logger"
)

const (
	defaultMaxRetries   = 25
	defaultConflictBase = 2 * time.Millisecond
	defaultConflictMax  = 100 * time.Millisecond
	defaultGCInterval = 5 * time.Minute
	defaultGCRatio    = 0.5
)

type options struct {
	clock      func() int64
	maxRetries int
	logger     logger.Logger

	// badger only
	path         string
	inMemory     bool
	syncWrites   bool
	gcInterval   time.Duration
	gcRatio      float64
	conflictBase time.Duration
	conflictMax  time.Duration
}

func defaultOptions() options {
	return options{
		clock:      func() int64 { return time.Now().UnixMilli() },
		maxRetries: defaultMaxRetries,
		syncWrites: true,
		gcInterval: defaultGCInterval,
		gcRatio:    defaultGCRatio,

		conflictBase: defaultConflictBase,
		conflictMax:  defaultConflictMax,
	}
}

// Option applies a configuration option to a store.
type Option func(*options)

// WithClock overrides the store timestamp source (milliseconds).
func WithClock(clock func() int64) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithMaxRetries sets how many times a conflicting transaction is re-run.
func WithMaxRetries(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxRetries = n
		}
	}
}

// WithLogger sets the logger used by the store.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithPath sets the badger data directory.
func WithPath(path string) Option {
	return func(o *options) {
		o.path = path
	}
}

// WithInMemory keeps badger data in memory only.
func WithInMemory(inMemory bool) Option {
	return func(o *options) {
		o.inMemory = inMemory
	}
}

// WithSyncWrites toggles fsync on every badger commit.
func WithSyncWrites(sync bool) Option {
	return func(o *options) {
		o.syncWrites = sync
	}
}

// WithGC sets the badger value-log GC interval and discard ratio. A zero
// interval disables GC.
func WithGC(interval time.Duration, ratio float64) Option {
	return func(o *options) {
		if interval >= 0 {
			o.gcInterval = interval
		}
		if ratio > 0 && ratio < 1 {
			o.gcRatio = ratio
		}
	}
}

// WithConflictBackoff sets the first and the largest delay between re-runs
// of a conflicting badger transaction.
func WithConflictBackoff(base, maxDelay time.Duration) Option {
	return func(o *options) {
		if base > 0 {
			o.conflictBase = base
		}
		if maxDelay >= o.conflictBase {
			o.conflictMax = maxDelay
		}
	}
}
