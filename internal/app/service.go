// Package service implements the gubs economy: syncing clicks, buying
// generators and upgrades, profiles, admin overrides and leaderboard reads.
// All coordination lives in the ledger store; the service itself holds no
// per-user state.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/okian/gubs/internal/adapters/lock"
	auditqueue "github.com/okian/gubs/internal/adapters/mq/queue"
	auditworker "github.com/okian/gubs/internal/adapters/mq/worker"
	"github.com/okian/gubs/internal/adapters/repository"
	"github.com/okian/gubs/internal/domain/catalog"
	"github.com/okian/gubs/internal/domain/fault"
	"github.com/okian/gubs/internal/domain/model"
	"github.com/okian/gubs/internal/domain/offline"
	"github.com/okian/gubs/pkg/logger"
	"github.com/okian/gubs/pkg/metrics"
)

// Strategy selects how purchases keep the ledger and inventory consistent.
type Strategy string

const (
	// StrategyMerged runs each operation as one multi-path transaction.
	StrategyMerged Strategy = "merged"
	// StrategySaga takes the per-user lock and runs deduct/credit steps
	// with a refund compensation.
	StrategySaga Strategy = "saga"
)

// Defaults.
const (
	DefaultMaxSyncDelta        = 1e12
	DefaultMaxLeaderboardLimit = 100
	DefaultLeaderboardLimit    = 10
	defaultAuditQueueSize      = 1024
	defaultAuditWorkers        = 2
	defaultRefundRetries       = 5
	stopTimeout                = 10 * time.Second
)

// Service implements the economy operations over a ledger store.
type Service struct {
	mu sync.RWMutex

	// Core components
	store    repository.Store
	multi    repository.MultiTransactor
	catalog  *catalog.Catalog
	locker   *lock.Locker
	audit    *auditqueue.InMemoryQueue
	writers  *auditworker.Pool
	validate *validator.Validate

	// Configuration
	strategy            Strategy
	offlineRate         float64
	maxSyncDelta        float64
	maxLeaderboardLimit int
	auditQueueSize      int
	auditWorkers        int
	refundRetries       int
	refundInitial       time.Duration

	// State
	started bool

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithCatalog sets the item and upgrade tables.
func WithCatalog(c *catalog.Catalog) Option {
	return func(s *Service) {
		if c != nil {
			s.catalog = c
		}
	}
}

// WithStrategy selects the purchase strategy.
func WithStrategy(st Strategy) Option {
	return func(s *Service) {
		if st != "" {
			s.strategy = st
		}
	}
}

// WithLocker sets the per-user locker used by the saga strategy.
func WithLocker(l *lock.Locker) Option {
	return func(s *Service) {
		if l != nil {
			s.locker = l
		}
	}
}

// WithOfflineRate sets the fraction of the passive rate paid while away.
func WithOfflineRate(rate float64) Option {
	return func(s *Service) {
		if rate >= 0 {
			s.offlineRate = rate
		}
	}
}

// WithMaxSyncDelta caps the clicks a single sync may report.
func WithMaxSyncDelta(limit float64) Option {
	return func(s *Service) {
		if limit > 0 {
			s.maxSyncDelta = limit
		}
	}
}

// WithMaxLeaderboardLimit caps TopN.
func WithMaxLeaderboardLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxLeaderboardLimit = n
		}
	}
}

// WithAuditQueueSize sets the capacity of the audit queue.
func WithAuditQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.auditQueueSize = size
		}
	}
}

// WithAuditWorkers sets the number of audit writers.
func WithAuditWorkers(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.auditWorkers = count
		}
	}
}

// WithRefundRetries sets how many times a failed refund is retried.
func WithRefundRetries(n int, initial time.Duration) Option {
	return func(s *Service) {
		if n >= 0 {
			s.refundRetries = n
		}
		if initial > 0 {
			s.refundInitial = initial
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.logger = log
		}
	}
}

// New constructs a Service over store. The merged strategy requires a store
// that implements repository.MultiTransactor.
func New(store repository.Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, ErrNoStore
	}
	s := &Service{
		store:               store,
		strategy:            StrategyMerged,
		offlineRate:         offline.DefaultRate,
		maxSyncDelta:        DefaultMaxSyncDelta,
		maxLeaderboardLimit: DefaultMaxLeaderboardLimit,
		auditQueueSize:      defaultAuditQueueSize,
		auditWorkers:        defaultAuditWorkers,
		refundRetries:       defaultRefundRetries,
		refundInitial:       20 * time.Millisecond,
		validate:            newValidator(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("economy")
	}
	if s.catalog == nil {
		s.catalog = catalog.Default()
	}
	if s.locker == nil {
		s.locker = lock.New(store, lock.WithLogger(s.logger.Named("lock")))
	}

	switch s.strategy {
	case StrategyMerged:
		mt, ok := store.(repository.MultiTransactor)
		if !ok {
			return nil, fmt.Errorf("%w: %T", ErrMultiPathUnsupported, store)
		}
		s.multi = mt
	case StrategySaga:
		s.multi, _ = store.(repository.MultiTransactor)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, s.strategy)
	}

	s.audit = s.newAuditQueue()
	return s, nil
}

func (s *Service) newAuditQueue() *auditqueue.InMemoryQueue {
	return auditqueue.NewInMemoryQueue(
		auditqueue.WithCapacity(s.auditQueueSize),
		auditqueue.WithBufferSize(s.auditQueueSize),
	)
}

// Start launches the audit writers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting economy service...")

	// a stopped service closed its queue
	if s.audit.IsClosed() {
		s.audit = s.newAuditQueue()
	}
	s.writers = auditworker.NewPool(s.auditWorkers, s.audit, s.store,
		auditworker.WithLogger(s.logger.Named("audit")),
	)
	s.writers.Start(context.WithoutCancel(ctx))

	s.started = true
	s.logger.Info(ctx, "economy service started",
		logger.String("strategy", string(s.strategy)),
		logger.Int("auditWorkers", s.auditWorkers),
		logger.Int("auditQueueSize", s.auditQueueSize),
		logger.Int("items", len(s.catalog.Items)),
		logger.Int("upgrades", len(s.catalog.Upgrades)),
	)
	return nil
}

// Stop flushes pending audit entries and stops the writers. The store is
// owned by the caller and stays open.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	s.logger.Info(ctx, "stopping economy service...")
	if err := s.writers.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "audit writers did not drain", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "economy service stopped")
}

// Strategy returns the configured purchase strategy.
func (s *Service) Strategy() Strategy { return s.strategy }

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":        s.started,
		"strategy":       string(s.strategy),
		"auditWorkers":   s.auditWorkers,
		"auditQueueSize": s.auditQueueSize,
		"lockTTL":        s.locker.TTL().String(),
		"items":          len(s.catalog.Items),
		"upgrades":       len(s.catalog.Upgrades),
	}

	if s.started {
		pending := s.audit.Len(ctx)
		stats["auditPending"] = pending
		metrics.UpdateAuditQueueSize(pending)
	}

	return stats
}

// finish records the outcome of op and converts err into the fault
// taxonomy. Failures are logged and queued for the server error log.
func (s *Service) finish(ctx context.Context, op, uid string, start time.Time, err error) error {
	metrics.RecordOperationDuration(op, time.Since(start).Seconds())
	if err == nil {
		metrics.RecordOperation(op, "ok")
		return nil
	}

	err = classify(op, err)
	code := fault.Code(err)
	metrics.RecordOperation(op, code)

	if errors.Is(err, fault.ErrInternal) {
		metrics.RecordErrorByComponent("economy", code)
		s.logger.Error(ctx, op+".error", logger.String("uid", uid), logger.Error(err))
	} else {
		s.logger.Debug(ctx, op+".rejected", logger.String("uid", uid), logger.String("code", code),
			logger.String("message", fault.Message(err)))
	}

	if !errors.Is(err, fault.ErrUnauthenticated) {
		s.record(ctx, model.AuditEntry{
			Collection: model.LogServer,
			Function:   op,
			UID:        uid,
			Message:    fault.Message(err),
			Details:    map[string]any{"code": code},
		})
	}
	return err
}

// classify maps store and lock failures onto the fault taxonomy.
func classify(op string, err error) error {
	var fe *fault.Error
	switch {
	case errors.As(err, &fe):
		return err
	case errors.Is(err, lock.ErrBusy), errors.Is(err, repository.ErrTxConflict):
		return fault.Aborted(op, msgBusy, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fault.Aborted(op, msgCancelled, err)
	default:
		return fault.Internal(op, "", err)
	}
}

// record queues an audit entry. It never blocks; a full queue drops it.
func (s *Service) record(ctx context.Context, e model.AuditEntry) {
	s.mu.RLock()
	q := s.audit
	s.mu.RUnlock()
	if !q.Enqueue(context.WithoutCancel(ctx), e) {
		s.logger.Debug(ctx, "audit entry dropped",
			logger.String("collection", e.Collection),
			logger.String("function", e.Function),
		)
	}
}

// requireUID rejects anonymous and malformed caller identities.
func requireUID(op, uid string) error {
	if uid == "" {
		return fault.New(op, fault.ErrUnauthenticated, msgUnauthenticated)
	}
	if !model.ValidSegment(uid) {
		return fault.InvalidArgument(op, "Invalid user id")
	}
	return nil
}
