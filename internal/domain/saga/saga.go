// Package saga runs a sequence of forward steps, each paired with an
// optional compensation. When a step fails, the compensations of every
// step that already completed run in reverse order before Run returns.
package saga

import (
	"context"
	"errors"
	"fmt"
)

// ErrCompensationFailed marks a saga whose rollback did not complete.
var ErrCompensationFailed = errors.New("saga compensation failed")

// Step is one forward action and its undo.
type Step struct {
	Name       string
	Forward    func(ctx context.Context) error
	Compensate func(ctx context.Context) error // nil when nothing needs undoing
}

// Phase identifies what an observer is being told about.
type Phase int

const (
	PhaseForward Phase = iota
	PhaseCompensate
)

func (p Phase) String() string {
	if p == PhaseCompensate {
		return "compensate"
	}
	return "forward"
}

// Observer is notified after each forward and compensating action.
type Observer func(ctx context.Context, step string, phase Phase, err error)

// Error reports which step failed and whether rollback succeeded.
type Error struct {
	Step            string
	Err             error
	CompensationErr error
}

func (e *Error) Error() string {
	if e.CompensationErr != nil {
		return fmt.Sprintf("saga step %q: %v (compensation: %v)", e.Step, e.Err, e.CompensationErr)
	}
	return fmt.Sprintf("saga step %q: %v", e.Step, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.CompensationErr == nil {
		return []error{e.Err}
	}
	return []error{e.Err, ErrCompensationFailed, e.CompensationErr}
}

// Compensated reports whether every completed step was undone.
func (e *Error) Compensated() bool { return e.CompensationErr == nil }

// Saga executes steps. The zero value is usable.
type Saga struct {
	observer Observer
	// compensations run with a context detached from the caller's
	// cancellation so a cancelled request still rolls back.
	detach bool
}

// Option applies a configuration option to the Saga.
type Option func(*Saga)

// WithObserver registers a callback for step outcomes.
func WithObserver(o Observer) Option {
	return func(s *Saga) {
		s.observer = o
	}
}

// WithDetachedCompensation runs compensations on a context that ignores
// the caller's cancellation.
func WithDetachedCompensation() Option {
	return func(s *Saga) {
		s.detach = true
	}
}

// New constructs a Saga.
func New(opts ...Option) *Saga {
	s := &Saga{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes steps in order. It returns nil when all forward steps
// succeed, otherwise a *Error wrapping the failing step's error.
func (s *Saga) Run(ctx context.Context, steps ...Step) error {
	for i, st := range steps {
		err := st.Forward(ctx)
		s.notify(ctx, st.Name, PhaseForward, err)
		if err == nil {
			continue
		}
		return &Error{Step: st.Name, Err: err, CompensationErr: s.rollback(ctx, steps[:i])}
	}
	return nil
}

func (s *Saga) rollback(ctx context.Context, done []Step) error {
	if s.detach {
		ctx = context.WithoutCancel(ctx)
	}
	var errs []error
	for i := len(done) - 1; i >= 0; i-- {
		st := done[i]
		if st.Compensate == nil {
			continue
		}
		err := st.Compensate(ctx)
		s.notify(ctx, st.Name, PhaseCompensate, err)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", st.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Saga) notify(ctx context.Context, step string, phase Phase, err error) {
	if s.observer != nil {
		s.observer(ctx, step, phase, err)
	}
}

// Run executes steps with a default Saga.
func Run(ctx context.Context, steps ...Step) error {
	return New().Run(ctx, steps...)
}
