package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dgraph-io/badger/v4"

	"github.com/okian/gubs/pkg/logger"
	"github.com/okian/gubs/pkg/metrics"
)

// docDepth is the number of leading path segments that name one badger
// key. Everything below is stored inside that key's JSON document, so
// "shop/u1/gubmill" lives in the document "shop/u1". Log collections are
// append-only and keep one document per entry.
const docDepth = 2

func depthOf(root string) int {
	if root == "logs" {
		return docDepth + 1
	}
	return docDepth
}

// BadgerStore persists the tree in badger, one JSON document per
// two-segment prefix. badger's optimistic transactions detect conflicting
// writers; a conflicting transaction is re-run up to the retry budget.
type BadgerStore struct {
	db   *badger.DB
	opts options
	log  logger.Logger

	stopGC chan struct{}
	gcDone chan struct{}
	once   sync.Once
}

var (
	_ Store           = (*BadgerStore)(nil)
	_ MultiTransactor = (*BadgerStore)(nil)
)

type badgerLogger struct {
	log logger.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Error(context.Background(), strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warn(context.Background(), strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Debug(context.Background(), strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Debug(context.Background(), strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// OpenBadger opens (or creates) a badger-backed store.
func OpenBadger(opts ...Option) (*BadgerStore, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if !o.inMemory && o.path == "" {
		return nil, errors.New("badger: path is required for persistent store")
	}

	var bo badger.Options
	if o.inMemory {
		bo = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(o.path, 0o750); err != nil {
			return nil, fmt.Errorf("badger: create directory %s: %w", o.path, err)
		}
		bo = badger.DefaultOptions(o.path)
	}
	bo = bo.WithSyncWrites(o.syncWrites && !o.inMemory).WithNumVersionsToKeep(1)
	if o.logger != nil {
		bo = bo.WithLogger(&badgerLogger{log: o.logger})
	} else {
		bo = bo.WithLogger(nil)
	}

	db, err := badger.Open(bo)
	if err != nil {
		return nil, fmt.Errorf("badger: open: %w", err)
	}

	s := &BadgerStore{db: db, opts: o, log: o.logger}
	if s.log == nil {
		s.log = logger.Nop()
	}
	if o.gcInterval > 0 && !o.inMemory {
		s.stopGC = make(chan struct{})
		s.gcDone = make(chan struct{})
		go s.runGC()
	}
	return s, nil
}

func (s *BadgerStore) runGC() {
	defer close(s.gcDone)
	ticker := time.NewTicker(s.opts.gcInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			if err := s.db.RunValueLogGC(s.opts.gcRatio); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				s.log.Warn(context.Background(), "badger value log gc failed", logger.Error(err))
			}
		}
	}
}

// Close stops GC and closes the database.
func (s *BadgerStore) Close() error {
	var err error
	s.once.Do(func() {
		if s.stopGC != nil {
			close(s.stopGC)
			<-s.gcDone
		}
		err = s.db.Close()
	})
	return err
}

// Now returns the store clock in milliseconds.
func (s *BadgerStore) Now() int64 { return s.opts.clock() }

type docPath struct {
	key  []byte
	rest []string
}

func toDocPath(segs []string) (docPath, error) {
	depth := depthOf(segs[0])
	if len(segs) < depth {
		return docPath{}, fmt.Errorf("%w: %q", ErrShallowPath, strings.Join(segs, "/"))
	}
	return docPath{
		key:  []byte(strings.Join(segs[:depth], "/")),
		rest: segs[depth:],
	}, nil
}

func loadDoc(txn *badger.Txn, key []byte) (any, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var doc any
	err = item.Value(func(val []byte) error {
		var derr error
		doc, derr = decodeDoc(val)
		return derr
	})
	return doc, err
}

func decodeDoc(val []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(val))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("badger: decode document: %w", err)
	}
	return doc, nil
}

func saveDoc(txn *badger.Txn, key []byte, doc any) error {
	if doc == nil {
		return txn.Delete(key)
	}
	val, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("badger: encode document: %w", err)
	}
	return txn.Set(key, val)
}

// Read implements Store. A one-segment path assembles its children from
// every document under that prefix.
func (s *BadgerStore) Read(ctx context.Context, path string) (any, error) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out any
	err = s.db.View(func(txn *badger.Txn) error {
		if len(segs) < depthOf(segs[0]) {
			node, err := s.scan(txn, segs)
			out = node
			return err
		}
		dp, _ := toDocPath(segs)
		doc, err := loadDoc(txn, dp.key)
		if err != nil {
			return err
		}
		out = getAt(doc, dp.rest)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// scan assembles the subtree at segs from every document below it.
func (s *BadgerStore) scan(txn *badger.Txn, segs []string) (any, error) {
	prefix := []byte(strings.Join(segs, "/") + "/")
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	var node any
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		rel := strings.Split(strings.TrimPrefix(string(item.Key()), string(prefix)), "/")
		err := item.Value(func(val []byte) error {
			doc, err := decodeDoc(val)
			if err != nil {
				return err
			}
			node = setAt(node, rel, doc)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return node, nil
}

// Transact implements Store.
func (s *BadgerStore) Transact(ctx context.Context, path string, fn TxFunc) (TxResult, error) {
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

// TransactMulti implements MultiTransactor. All documents touched by paths
// are read and written in one badger transaction.
func (s *BadgerStore) TransactMulti(ctx context.Context, paths []string, fn MultiTxFunc) (MultiResult, error) {
	segs, err := splitAll(paths)
	if err != nil {
		return MultiResult{}, err
	}
	dps := make([]docPath, len(segs))
	for i, sg := range segs {
		if dps[i], err = toDocPath(sg); err != nil {
			return MultiResult{}, err
		}
	}

	retry := s.conflictBackOff(ctx)
	for {
		if err := ctx.Err(); err != nil {
			return MultiResult{}, err
		}

		var observed, next []any
		var aborted bool
		err := s.db.Update(func(txn *badger.Txn) error {
			docs := make(map[string]any, len(dps))
			observed = make([]any, len(dps))
			for i, dp := range dps {
				k := string(dp.key)
				if _, ok := docs[k]; !ok {
					doc, err := loadDoc(txn, dp.key)
					if err != nil {
						return err
					}
					docs[k] = doc
				}
				observed[i] = clone(getAt(docs[k], dp.rest))
			}

			input := make([]any, len(observed))
			for i, v := range observed {
				input[i] = clone(v)
			}
			var err error
			next, err = fn(input)
			if errors.Is(err, ErrAbort) {
				aborted = true
				return nil
			}
			if err != nil {
				return err
			}
			if len(next) != len(dps) {
				return ErrArity
			}

			dirty := make(map[string]bool, len(docs))
			for i, dp := range dps {
				if reflect.DeepEqual(next[i], observed[i]) {
					continue
				}
				k := string(dp.key)
				docs[k] = setAt(docs[k], dp.rest, clone(next[i]))
				dirty[k] = true
			}
			for k := range dirty {
				if err := saveDoc(txn, []byte(k), docs[k]); err != nil {
					return err
				}
			}
			return nil
		})
		switch {
		case errors.Is(err, badger.ErrConflict):
			metrics.RecordStoreConflict("badger")
			if err := waitRetry(ctx, retry); err != nil {
				return MultiResult{}, err
			}
			continue
		case err != nil:
			return MultiResult{Values: observed}, err
		case aborted:
			return MultiResult{Committed: false, Values: observed}, nil
		}
		out := make([]any, len(next))
		for i, v := range next {
			out[i] = clone(v)
		}
		return MultiResult{Committed: true, Values: out}, nil
	}
}

// conflictBackOff spaces re-runs of a conflicting transaction with jittered
// exponential delays, allowing maxRetries attempts in total.
func (s *BadgerStore) conflictBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.conflictBase
	b.MaxInterval = s.opts.conflictMax
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.opts.maxRetries-1)), ctx)
}

// waitRetry sleeps for the next delay of b. It returns ErrTxConflict once
// the budget is spent and ctx.Err() if ctx ends first.
func waitRetry(ctx context.Context, b backoff.BackOff) error {
	d := b.NextBackOff()
	if d == backoff.Stop {
		if err := ctx.Err(); err != nil {
			return err
		}
		return ErrTxConflict
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Update implements Store.
func (s *BadgerStore) Update(ctx context.Context, values map[string]any) error {
	paths := make([]string, 0, len(values))
	for p := range values {
		paths = append(paths, p)
	}
	_, err := s.TransactMulti(ctx, paths, func([]any) ([]any, error) {
		next := make([]any, len(paths))
		for i, p := range paths {
			next[i] = values[p]
		}
		return next, nil
	})
	return err
}

// Query implements Store.
func (s *BadgerStore) Query(ctx context.Context, path string, q Query) ([]Child, error) {
	start := time.Now()
	node, err := s.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	out := selectChildren(node, q)
	metrics.RecordStoreQueryDuration("badger", time.Since(start).Seconds())
	return out, nil
}
