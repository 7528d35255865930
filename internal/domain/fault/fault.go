// Package fault defines the error taxonomy surfaced to callers of the economy
// operations. Each error carries a kind (one of the sentinels below) and a
// short human-readable message that clients can render as is.
package fault

import (
	"errors"
	"fmt"
)

// Sentinel kinds.
var (
	ErrInvalidArgument    = errors.New("invalid-argument")
	ErrFailedPrecondition = errors.New("failed-precondition")
	ErrAborted            = errors.New("aborted")
	ErrNotFound           = errors.New("not-found")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrPermissionDenied   = errors.New("permission-denied")
	ErrResourceExhausted  = errors.New("resource-exhausted")
	ErrInternal           = errors.New("internal")
)

var kinds = []error{
	ErrInvalidArgument,
	ErrFailedPrecondition,
	ErrAborted,
	ErrNotFound,
	ErrUnauthenticated,
	ErrPermissionDenied,
	ErrResourceExhausted,
	ErrInternal,
}

// Error is an operation failure with a kind and a user-visible message.
type Error struct {
	Op   string // operation name, e.g. "purchaseItem"
	Kind error  // one of the sentinel kinds
	Msg  string // user-visible reason
	Err  error  // underlying cause, not shown to users
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

// Unwrap exposes both the kind and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// New returns an error of the given kind.
func New(op string, kind error, msg string) *Error {
	return &Error{Op: op, Kind: kind, Msg: msg}
}

// Wrap returns an error of the given kind around cause.
func Wrap(op string, kind error, msg string, cause error) *Error {
	return &Error{Op: op, Kind: kind, Msg: msg, Err: cause}
}

// InvalidArgument reports malformed or out-of-range input.
func InvalidArgument(op, format string, args ...any) *Error {
	return New(op, ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// FailedPrecondition reports a rule violated by the current state.
func FailedPrecondition(op, format string, args ...any) *Error {
	return New(op, ErrFailedPrecondition, fmt.Sprintf(format, args...))
}

// Aborted reports transient contention; the caller may retry the whole call.
func Aborted(op, msg string, cause error) *Error {
	return Wrap(op, ErrAborted, msg, cause)
}

// NotFound reports a missing target.
func NotFound(op, msg string) *Error {
	return New(op, ErrNotFound, msg)
}

// Internal reports an unexpected failure.
func Internal(op, msg string, cause error) *Error {
	return Wrap(op, ErrInternal, msg, cause)
}

// KindOf returns the sentinel kind of err. Errors outside the taxonomy are
// ErrInternal; nil is nil.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) && fe.Kind != nil {
		return fe.Kind
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return ErrInternal
}

// Code returns the wire code of err, e.g. "failed-precondition".
func Code(err error) string {
	if k := KindOf(err); k != nil {
		return k.Error()
	}
	return ""
}

// Message returns the user-visible reason for err. Internal failures without
// a message never leak their cause.
func Message(err error) string {
	var fe *Error
	if errors.As(err, &fe) && fe.Msg != "" {
		return fe.Msg
	}
	if k := KindOf(err); k != nil && k != ErrInternal {
		return k.Error()
	}
	return "Internal error"
}
