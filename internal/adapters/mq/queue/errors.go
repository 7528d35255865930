package queue

import "errors"

// Sentinel kinds for queue errors.
var (
	ErrClosed = errors.New("audit queue closed")
	ErrFull   = errors.New("audit queue full")
)
