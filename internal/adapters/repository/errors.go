package repository

import "errors"

// Sentinel kinds for store errors.
var (
	// ErrAbort is returned by a TxFunc to cancel a transaction.
	ErrAbort            = errors.New("transaction aborted")
	ErrTxConflict       = errors.New("transaction conflict: retry budget exhausted")
	ErrInvalidPath      = errors.New("invalid store path")
	ErrOverlappingPaths = errors.New("overlapping paths in one write")
	ErrShallowPath      = errors.New("path is shallower than a document")
	ErrArity            = errors.New("transaction returned wrong number of values")
	ErrClosed           = errors.New("store is closed")
	ErrUnknownDriver    = errors.New("unknown store driver")
)
