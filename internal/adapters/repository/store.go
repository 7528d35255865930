// Package repository defines the ledger store interface and its
// implementations. A store is a tree of JSON-like values addressed by
// "/"-separated paths (for example "leaderboard/u1/score").
//
// Stored values are map[string]any for objects and scalars (int64,
// float64, json.Number, string, bool). Empty objects do not exist: writing
// one deletes the path, and parents left empty are pruned.
package repository

import "context"

// TxFunc computes the next value at a path from the current one. Returning
// ErrAbort cancels the transaction without error; returning a nil value
// deletes the path. The store may call fn more than once, so fn must not
// have side effects beyond its return value.
type TxFunc func(current any) (next any, err error)

// MultiTxFunc is TxFunc over several paths read and written together.
// It must return one value per path, in order. A value returned unchanged
// is only read: the store checks it for conflicts but does not rewrite it.
type MultiTxFunc func(current []any) (next []any, err error)

// TxResult is the outcome of Transact.
type TxResult struct {
	Committed bool
	Value     any // the committed value, or the last observed one on abort
}

// MultiResult is the outcome of TransactMulti.
type MultiResult struct {
	Committed bool
	Values    []any
}

// Query selects the children of a node.
type Query struct {
	// OrderByChild orders children by the value of this child key. Empty
	// orders by key.
	OrderByChild string
	// EqualTo keeps only children whose ordering value equals it.
	EqualTo any
	// Limit caps the number of results; 0 means no limit.
	Limit int
	// Descending returns the last Limit children in descending order.
	Descending bool
}

// Child is one query result.
type Child struct {
	Key   string
	Value any
}

// Store is the ledger store consumed by the economy operations.
type Store interface {
	// Read returns the value at path, or nil when absent.
	Read(ctx context.Context, path string) (any, error)
	// Transact runs an optimistic read-modify-write on path. Conflicts are
	// retried up to the store's budget; exhausting it returns ErrTxConflict.
	Transact(ctx context.Context, path string, fn TxFunc) (TxResult, error)
	// Update writes several paths atomically. A nil value deletes. Paths
	// must not overlap.
	Update(ctx context.Context, values map[string]any) error
	// Query returns the children of path ordered and filtered by q.
	Query(ctx context.Context, path string, q Query) ([]Child, error)
	// Now is the store-assigned timestamp in milliseconds.
	Now() int64
	Close() error
}

// MultiTransactor is implemented by stores that can transact over several
// paths at once.
type MultiTransactor interface {
	TransactMulti(ctx context.Context, paths []string, fn MultiTxFunc) (MultiResult, error)
}
