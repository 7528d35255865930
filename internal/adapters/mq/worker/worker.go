// Package worker drains the audit queue into the ledger store under
// logs/{collection}/{id}.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/gubs/internal/adapters/mq/queue"
	"github.com/okian/gubs/internal/domain/model"
	"github.com/okian/gubs/pkg/logger"
	"github.com/okian/gubs/pkg/metrics"
)

const (
	defaultWorkerCount    = 2
	defaultWriteTimeout   = 5 * time.Second
	metricsUpdateInterval = 5 * time.Second
	poolShutdownTimeout   = 30 * time.Second
)

// Entry is the unit workers persist.
type Entry = queue.Entry

// Writer is the part of the ledger store workers need.
type Writer interface {
	Update(ctx context.Context, values map[string]any) error
	Now() int64
}

// Queue defines how workers receive entries.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Entry
}

// Worker persists audit entries.
type Worker interface {
	// Run consumes entries until the queue closes or ctx is cancelled.
	Run(ctx context.Context)

	// Shutdown waits for Run to return. Entries still queued are written
	// first when the queue has been closed.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue        Queue
	writer       Writer
	name         string
	writeTimeout time.Duration
	busy         *atomic.Int64

	done     chan struct{}
	doneOnce sync.Once

	logger logger.Logger
}

// NewInMemoryWorker creates a worker reading q and writing to w.
func NewInMemoryWorker(q Queue, w Writer, opts ...Option) *InMemoryWorker {
	wk := &InMemoryWorker{
		queue:        q,
		writer:       w,
		name:         "audit-writer",
		writeTimeout: defaultWriteTimeout,
		busy:         new(atomic.Int64),
		done:         make(chan struct{}),
		logger:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(wk)
	}
	wk.logger = wk.logger.Named(wk.name)
	return wk
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer w.doneOnce.Do(func() { close(w.done) })

	entries := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-entries:
			if !ok {
				return
			}
			if err := w.write(ctx, e); err != nil {
				w.logger.Error(ctx, "audit write failed",
					logger.String("collection", e.Collection),
					logger.String("function", e.Function),
					logger.Error(err),
				)
			}
		}
	}
}

// Shutdown waits for the worker to finish or ctx to expire.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// write persists one entry under a fresh time-ordered id.
func (w *InMemoryWorker) write(ctx context.Context, e Entry) error { //nolint:gocritic // hugeParam: entries travel by value over the channel
	w.busy.Add(1)
	start := time.Now()
	defer func() {
		w.busy.Add(-1)
		metrics.RecordWorkerProcessingLatency(time.Since(start))
	}()

	id, err := uuid.NewV7()
	if err != nil {
		metrics.RecordAuditWriteError()
		return fmt.Errorf("audit id: %w", err)
	}
	if e.Collection == "" {
		e.Collection = model.LogServer
	}
	if e.Timestamp == 0 {
		e.Timestamp = w.writer.Now()
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.writeTimeout)
	defer cancel()
	path := model.LogPath(e.Collection, id.String())
	if err := w.writer.Update(wctx, map[string]any{path: e.Value()}); err != nil {
		metrics.RecordAuditWriteError()
		metrics.RecordErrorByComponent("audit", "write_error")
		return fmt.Errorf("write %s: %w", path, err)
	}
	metrics.RecordAuditWritten()
	return nil
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	busy    *atomic.Int64

	stopMetrics chan struct{}
	stopOnce    sync.Once

	logger logger.Logger
}

// NewPool creates workerCount workers. opts apply to each of them.
func NewPool(workerCount int, q Queue, w Writer, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}

	busy := new(atomic.Int64)
	pool := &Pool{
		workers:     make([]*InMemoryWorker, workerCount),
		queue:       q,
		busy:        busy,
		stopMetrics: make(chan struct{}),
	}

	for i := 0; i < workerCount; i++ {
		wopts := append(append([]Option{}, opts...), WithName("audit-writer-"+strconv.Itoa(i)))
		wk := NewInMemoryWorker(q, w, wopts...)
		wk.busy = busy
		pool.workers[i] = wk
	}
	cfg := &InMemoryWorker{logger: logger.Nop()}
	for _, opt := range opts {
		opt(cfg)
	}
	pool.logger = cfg.logger.Named("audit-pool")

	metrics.UpdateWorkerActiveCount(0)
	metrics.UpdateWorkerIdleCount(workerCount)

	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, wk := range p.workers {
		go wk.Run(ctx)
	}
	go p.startMetricsUpdater(ctx)
}

func (p *Pool) startMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopMetrics:
			return
		case <-ticker.C:
			p.updateMetrics(ctx)
		}
	}
}

func (p *Pool) updateMetrics(ctx context.Context) {
	active := int(p.busy.Load())
	metrics.UpdateWorkerActiveCount(active)
	metrics.UpdateWorkerIdleCount(len(p.workers) - active)
	if l, ok := p.queue.(interface{ Len(context.Context) int }); ok {
		metrics.UpdateAuditQueueSize(l.Len(ctx))
	}
}

// Shutdown closes the queue, lets the workers drain it, and waits for them
// until ctx or the pool timeout expires.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	p.stopOnce.Do(func() { close(p.stopMetrics) })

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut int
	for i, wk := range p.workers {
		if err := wk.Shutdown(shutdownCtx); err != nil {
			timedOut++
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	if timedOut > 0 {
		return fmt.Errorf("%d audit writers did not stop: %w", timedOut, shutdownCtx.Err())
	}
	return nil
}
