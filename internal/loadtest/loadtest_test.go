package loadtest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/okian/gubs/internal/adapters/http/api"
	"github.com/okian/gubs/internal/adapters/lock"
	"github.com/okian/gubs/internal/adapters/repository"
	service "github.com/okian/gubs/internal/app"
	"github.com/okian/gubs/internal/domain/model"
	"github.com/okian/gubs/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

const testAdmin = "load-admin"

func newBackend(t *testing.T, st service.Strategy) *httptest.Server {
	t.Helper()
	store := repository.NewMemoryStore(repository.WithMaxRetries(500))
	if err := store.Update(context.Background(), map[string]any{model.AdminPath(testAdmin): true}); err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	svc, err := service.New(store,
		service.WithLogger(logger.Nop()),
		service.WithStrategy(st),
		service.WithLocker(lock.New(store, lock.WithAttempts(5000), lock.WithBackoff(time.Millisecond))),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	srv := api.NewServer(svc, svc)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return ts
}

func TestRunSync(t *testing.T) {
	Convey("Given a running gubs server", t, func() {
		ts := newBackend(t, service.StrategyMerged)
		ctx := context.Background()

		Convey("When players sync concurrently", func() {
			stats, err := RunSync(ctx, Config{BaseURL: ts.URL, Users: 3, Calls: 10, Delta: 5, Workers: 8})

			Convey("Then every accepted sync is reflected in the score", func() {
				So(err, ShouldBeNil)
				So(stats.Users, ShouldEqual, 3)
				So(stats.Calls, ShouldEqual, 30)
				So(stats.Succeeded+stats.Rejected+stats.Failed, ShouldEqual, stats.Calls)
				So(stats.Failed, ShouldEqual, 0)
				So(stats.Mismatches, ShouldEqual, 0)
				So(stats.Duration, ShouldBeGreaterThan, 0)
			})
		})

		Convey("When the server is unreachable", func() {
			url := ts.URL
			ts.Close()
			_, err := RunSync(ctx, Config{BaseURL: url, Timeout: time.Second})
			So(errors.Is(err, ErrUnhealthy), ShouldBeTrue)
		})
	})
}

func TestRunPurchase(t *testing.T) {
	Convey("Given a running gubs server", t, func() {
		ctx := context.Background()

		Convey("When players race purchases with merged transactions", func() {
			ts := newBackend(t, service.StrategyMerged)
			stats, err := RunPurchase(ctx, Config{
				BaseURL: ts.URL, AdminUID: testAdmin, Users: 3, Calls: 8, Fund: 2_000,
			})

			Convey("Then gubs and inventory are conserved", func() {
				So(err, ShouldBeNil)
				So(stats.Calls, ShouldEqual, 24)
				So(stats.Succeeded, ShouldBeGreaterThan, 0)
				So(stats.Failed, ShouldEqual, 0)
				So(stats.Mismatches, ShouldEqual, 0)
			})
		})

		Convey("When players race purchases through the saga", func() {
			ts := newBackend(t, service.StrategySaga)
			stats, err := RunPurchase(ctx, Config{
				BaseURL: ts.URL, AdminUID: testAdmin, Users: 2, Calls: 6, Fund: 1_000,
			})

			Convey("Then contention is rejected, never lost", func() {
				So(err, ShouldBeNil)
				So(stats.Failed, ShouldEqual, 0)
				So(stats.Mismatches, ShouldEqual, 0)
			})
		})

		Convey("When no admin is configured", func() {
			_, err := RunPurchase(ctx, Config{BaseURL: "http://127.0.0.1:1"})
			So(errors.Is(err, ErrNoAdmin), ShouldBeTrue)
		})

		Convey("When the admin uid lacks rights", func() {
			ts := newBackend(t, service.StrategyMerged)
			_, err := RunPurchase(ctx, Config{BaseURL: ts.URL, AdminUID: "nobody", Users: 1, Calls: 1})

			var apiErr *APIError
			So(errors.As(err, &apiErr), ShouldBeTrue)
			So(apiErr.Status, ShouldEqual, http.StatusForbidden)
			So(apiErr.Code, ShouldEqual, "permission-denied")
		})
	})
}

func TestHelpers(t *testing.T) {
	Convey("Given load helpers", t, func() {
		Convey("Then generated usernames survive sanitizing", func() {
			for _, uid := range newPlayers(5) {
				So(model.ValidSegment(uid), ShouldBeTrue)
				name := usernameFor(uid)
				So(service.SanitizeUsername(name), ShouldEqual, name)
			}
		})

		Convey("Then defaults fill an empty config", func() {
			c := (&Config{Users: 4}).withDefaults()
			So(c.BaseURL, ShouldEqual, DefaultBaseURL)
			So(c.Workers, ShouldEqual, 4)
			So(c.Item, ShouldEqual, DefaultItem)
			So(c.Delta, ShouldEqual, DefaultDelta)
		})

		Convey("Then contention errors count as rejections", func() {
			So(classify(&APIError{Status: http.StatusConflict, Code: "aborted"}), ShouldBeTrue)
			So(classify(&APIError{Status: http.StatusPreconditionFailed, Code: "failed-precondition"}), ShouldBeTrue)
			So(classify(&APIError{Status: http.StatusInternalServerError, Code: "internal"}), ShouldBeFalse)
			So(classify(errors.New("dial tcp: refused")), ShouldBeFalse)
		})

		Convey("Then a mismatch wraps ErrMismatch", func() {
			So(mismatchError(&Stats{}), ShouldBeNil)
			So(errors.Is(mismatchError(&Stats{Users: 2, Mismatches: 1}), ErrMismatch), ShouldBeTrue)
		})
	})
}
