package lock

import "errors"

// Sentinel kinds for lock errors.
var (
	// ErrBusy is returned when the attempt budget is exhausted.
	ErrBusy = errors.New("lock busy")
	// ErrNotHeld is returned by Release when the lock belongs to someone else
	// or is already gone.
	ErrNotHeld  = errors.New("lock not held by owner")
	ErrBadOwner = errors.New("lock owner tag is empty")
)
