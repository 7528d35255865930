package repository

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"time"

	"github.com/okian/gubs/pkg/metrics"
)

// MemoryStore is an in-process Store. Transactions snapshot the target,
// run fn without holding the lock, and commit only if the target is still
// equal to the snapshot (compare-and-swap); otherwise fn is re-run.
type MemoryStore struct {
	mu     sync.RWMutex
	root   any
	closed bool
	opts   options
}

var (
	_ Store           = (*MemoryStore)(nil)
	_ MultiTransactor = (*MemoryStore)(nil)
)

// NewMemoryStore constructs an empty memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &MemoryStore{opts: o}
}

// Now returns the store clock in milliseconds.
func (s *MemoryStore) Now() int64 { return s.opts.clock() }

// Close marks the store closed; later calls fail with ErrClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Read implements Store.
func (s *MemoryStore) Read(ctx context.Context, path string) (any, error) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return clone(getAt(s.root, segs)), nil
}

// Transact implements Store.
func (s *MemoryStore) Transact(ctx context.Context, path string, fn TxFunc) (TxResult, error) {
	res, err := s.TransactMulti(ctx, []string{path}, func(cur []any) ([]any, error) {
		next, err := fn(cur[0])
		if err != nil {
			return nil, err
		}
		return []any{next}, nil
	})
	out := TxResult{Committed: res.Committed}
	if len(res.Values) == 1 {
		out.Value = res.Values[0]
	}
	return out, err
}

// TransactMulti implements MultiTransactor.
func (s *MemoryStore) TransactMulti(ctx context.Context, paths []string, fn MultiTxFunc) (MultiResult, error) {
	segs, err := splitAll(paths)
	if err != nil {
		return MultiResult{}, err
	}

	for attempt := 0; attempt < s.opts.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return MultiResult{}, err
		}

		snapshot, err := s.snapshot(segs)
		if err != nil {
			return MultiResult{}, err
		}
		input := make([]any, len(snapshot))
		for i, v := range snapshot {
			input[i] = clone(v)
		}

		next, err := fn(input)
		if errors.Is(err, ErrAbort) {
			return MultiResult{Committed: false, Values: snapshot}, nil
		}
		if err != nil {
			return MultiResult{Values: snapshot}, err
		}
		if len(next) != len(paths) {
			return MultiResult{Values: snapshot}, ErrArity
		}

		committed, err := s.compareAndSwap(segs, snapshot, next)
		if err != nil {
			return MultiResult{}, err
		}
		if committed {
			out := make([]any, len(next))
			for i, v := range next {
				out[i] = clone(v)
			}
			return MultiResult{Committed: true, Values: out}, nil
		}
		metrics.RecordStoreConflict("memory")
	}
	return MultiResult{}, ErrTxConflict
}

func (s *MemoryStore) snapshot(segs [][]string) ([]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make([]any, len(segs))
	for i, p := range segs {
		out[i] = clone(getAt(s.root, p))
	}
	return out, nil
}

func (s *MemoryStore) compareAndSwap(segs [][]string, expect, next []any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	for i, p := range segs {
		if !reflect.DeepEqual(clone(getAt(s.root, p)), expect[i]) {
			return false, nil
		}
	}
	for i, p := range segs {
		if reflect.DeepEqual(next[i], expect[i]) {
			continue
		}
		s.root = setAt(s.root, p, clone(next[i]))
	}
	return true, nil
}

// Update implements Store.
func (s *MemoryStore) Update(ctx context.Context, values map[string]any) error {
	paths := make([]string, 0, len(values))
	for p := range values {
		paths = append(paths, p)
	}
	segs, err := splitAll(paths)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for i, p := range segs {
		s.root = setAt(s.root, p, clone(values[paths[i]]))
	}
	return nil
}

// Query implements Store.
func (s *MemoryStore) Query(ctx context.Context, path string, q Query) ([]Child, error) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := selectChildren(getAt(s.root, segs), q)
	metrics.RecordStoreQueryDuration("memory", time.Since(start).Seconds())
	return out, nil
}
