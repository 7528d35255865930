package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/gubs/internal/domain/model"
	"github.com/okian/gubs/pkg/metrics"
)

// Entry is one audit record waiting to be written.
type Entry = model.AuditEntry

const defaultCapacity = 1024

// InMemoryQueue is a bounded FIFO of audit entries. Producers never block:
// an entry offered to a full or closed queue is dropped and counted.
type InMemoryQueue struct {
	mu         sync.RWMutex
	entries    chan Entry
	capacity   int
	bufferSize int
	closed     bool
}

// NewInMemoryQueue creates a queue with the given options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity:   defaultCapacity,
		bufferSize: defaultCapacity,
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.bufferSize < q.capacity {
		q.bufferSize = q.capacity
	}
	q.entries = make(chan Entry, q.bufferSize)
	metrics.UpdateAuditQueueCapacity(q.capacity)
	return q
}

// Enqueue offers e without blocking and reports whether it was accepted.
func (q *InMemoryQueue) Enqueue(ctx context.Context, e Entry) bool {
	return q.TryEnqueue(ctx, e) == nil
}

// TryEnqueue is Enqueue with the reason for a rejection.
func (q *InMemoryQueue) TryEnqueue(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		metrics.RecordAuditDropped()
		return err
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		metrics.RecordAuditDropped()
		return ErrClosed
	}
	if len(q.entries) >= q.capacity {
		metrics.RecordAuditDropped()
		return fmt.Errorf("%w: %d pending", ErrFull, len(q.entries))
	}

	select {
	case q.entries <- e:
		metrics.RecordAuditEnqueued()
		metrics.UpdateAuditQueueSize(len(q.entries))
		return nil
	default:
		metrics.RecordAuditDropped()
		return ErrFull
	}
}

// Dequeue returns the channel consumers read from. It is closed once the
// queue is closed and drained.
func (q *InMemoryQueue) Dequeue(_ context.Context) <-chan Entry {
	return q.entries
}

// Len returns the number of pending entries.
func (q *InMemoryQueue) Len(_ context.Context) int {
	return len(q.entries)
}

// Capacity returns the configured bound.
func (q *InMemoryQueue) Capacity() int {
	return q.capacity
}

// Close stops accepting entries. Pending entries stay readable.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.entries)
	metrics.UpdateAuditQueueSize(len(q.entries))
	return nil
}

// IsClosed reports whether Close has been called.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
