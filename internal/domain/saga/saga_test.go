package saga_test

import (
	"context"
	"errors"
	"testing"

	"github.com/okian/gubs/internal/domain/saga"
	. "github.com/smartystreets/goconvey/convey"
)

func recorder(trace *[]string, name string, err error) func(context.Context) error {
	return func(context.Context) error {
		*trace = append(*trace, name)
		return err
	}
}

func TestRun(t *testing.T) {
	Convey("Given a three step saga", t, func() {
		var trace []string
		boom := errors.New("boom")
		ctx := context.Background()

		Convey("When every step succeeds", func() {
			err := saga.Run(ctx,
				saga.Step{Name: "a", Forward: recorder(&trace, "a", nil), Compensate: recorder(&trace, "undo-a", nil)},
				saga.Step{Name: "b", Forward: recorder(&trace, "b", nil), Compensate: recorder(&trace, "undo-b", nil)},
			)

			Convey("Then no compensation runs", func() {
				So(err, ShouldBeNil)
				So(trace, ShouldResemble, []string{"a", "b"})
			})
		})

		Convey("When the last step fails", func() {
			err := saga.Run(ctx,
				saga.Step{Name: "a", Forward: recorder(&trace, "a", nil), Compensate: recorder(&trace, "undo-a", nil)},
				saga.Step{Name: "b", Forward: recorder(&trace, "b", nil)},
				saga.Step{Name: "c", Forward: recorder(&trace, "c", boom), Compensate: recorder(&trace, "undo-c", nil)},
			)

			Convey("Then completed steps are undone in reverse and the failed one is not", func() {
				So(trace, ShouldResemble, []string{"a", "b", "c", "undo-a"})
				So(errors.Is(err, boom), ShouldBeTrue)

				var se *saga.Error
				So(errors.As(err, &se), ShouldBeTrue)
				So(se.Step, ShouldEqual, "c")
				So(se.Compensated(), ShouldBeTrue)
				So(errors.Is(err, saga.ErrCompensationFailed), ShouldBeFalse)
			})
		})

		Convey("When a compensation fails too", func() {
			refund := errors.New("refund lost")
			err := saga.Run(ctx,
				saga.Step{Name: "deduct", Forward: recorder(&trace, "deduct", nil), Compensate: recorder(&trace, "refund", refund)},
				saga.Step{Name: "credit", Forward: recorder(&trace, "credit", boom)},
			)

			Convey("Then the error reports both failures", func() {
				So(errors.Is(err, boom), ShouldBeTrue)
				So(errors.Is(err, refund), ShouldBeTrue)
				So(errors.Is(err, saga.ErrCompensationFailed), ShouldBeTrue)
			})
		})
	})
}

func TestObserverAndDetachedContext(t *testing.T) {
	Convey("Given a saga with an observer and detached compensation", t, func() {
		type event struct {
			step  string
			phase saga.Phase
			ok    bool
		}
		var events []event
		s := saga.New(
			saga.WithObserver(func(_ context.Context, step string, phase saga.Phase, err error) {
				events = append(events, event{step, phase, err == nil})
			}),
			saga.WithDetachedCompensation(),
		)

		ctx, cancel := context.WithCancel(context.Background())
		var compensateCtxErr error
		err := s.Run(ctx,
			saga.Step{
				Name:       "deduct",
				Forward:    func(context.Context) error { return nil },
				Compensate: func(c context.Context) error { compensateCtxErr = c.Err(); return nil },
			},
			saga.Step{
				Name:    "credit",
				Forward: func(context.Context) error { cancel(); return context.Canceled },
			},
		)

		So(errors.Is(err, context.Canceled), ShouldBeTrue)
		So(compensateCtxErr, ShouldBeNil)
		So(events, ShouldResemble, []event{
			{"deduct", saga.PhaseForward, true},
			{"credit", saga.PhaseForward, false},
			{"deduct", saga.PhaseCompensate, true},
		})
		So(saga.PhaseCompensate.String(), ShouldEqual, "compensate")
	})
}
