package worker_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/gubs/internal/adapters/mq/queue"
	"github.com/okian/gubs/internal/adapters/mq/worker"
	"github.com/okian/gubs/internal/adapters/repository"
	"github.com/okian/gubs/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

type failingWriter struct {
	calls atomic.Int64
}

func (f *failingWriter) Update(context.Context, map[string]any) error {
	f.calls.Add(1)
	return errors.New("disk full")
}

func (f *failingWriter) Now() int64 { return 1 }

func logsOf(ctx context.Context, s repository.Store, collection string) map[string]any {
	v, _ := s.Read(ctx, model.Join(model.RootLogs, collection))
	m, _ := v.(map[string]any)
	return m
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker over a memory store", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore(repository.WithClock(func() int64 { return 42 }))
		q := queue.NewInMemoryQueue(queue.WithCapacity(8))
		w := worker.NewInMemoryWorker(q, store, worker.WithName("test-writer"))
		go w.Run(ctx)

		convey.Convey("When entries are queued and the queue closes", func() {
			q.Enqueue(ctx, queue.Entry{Collection: model.LogServer, Function: "syncGubs", UID: "u1", Message: "Invalid delta"})
			q.Enqueue(ctx, queue.Entry{Collection: model.LogAdmin, Function: "deleteUser", UID: "u2", Message: "deleted", Timestamp: 7})
			q.Enqueue(ctx, queue.Entry{Function: "purchaseItem", Message: "no collection"})
			convey.So(q.Close(), convey.ShouldBeNil)

			sctx, cancel := context.WithTimeout(ctx, time.Second)
			defer cancel()
			convey.So(w.Shutdown(sctx), convey.ShouldBeNil)

			convey.Convey("Then each entry is persisted under its collection", func() {
				server := logsOf(ctx, store, model.LogServer)
				convey.So(len(server), convey.ShouldEqual, 2)
				for _, raw := range server {
					rec := raw.(map[string]any)
					convey.So(rec["timestamp"], convey.ShouldEqual, int64(42))
				}

				admin := logsOf(ctx, store, model.LogAdmin)
				convey.So(len(admin), convey.ShouldEqual, 1)
				for _, raw := range admin {
					rec := raw.(map[string]any)
					convey.So(rec["timestamp"], convey.ShouldEqual, int64(7))
					convey.So(rec["uid"], convey.ShouldEqual, "u2")
				}
			})
		})
	})

	convey.Convey("Given a worker whose writes fail", t, func() {
		ctx := context.Background()
		fw := &failingWriter{}
		q := queue.NewInMemoryQueue()
		w := worker.NewInMemoryWorker(q, fw)
		go w.Run(ctx)

		q.Enqueue(ctx, queue.Entry{Function: "syncGubs"})
		q.Enqueue(ctx, queue.Entry{Function: "syncGubs"})
		convey.So(q.Close(), convey.ShouldBeNil)

		sctx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()

		convey.Convey("Then the worker keeps going and still stops cleanly", func() {
			convey.So(w.Shutdown(sctx), convey.ShouldBeNil)
			convey.So(fw.calls.Load(), convey.ShouldEqual, 2)
		})
	})

	convey.Convey("Given a worker whose context is cancelled", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		w := worker.NewInMemoryWorker(queue.NewInMemoryQueue(), &failingWriter{})
		go w.Run(ctx)
		cancel()

		sctx, scancel := context.WithTimeout(context.Background(), time.Second)
		defer scancel()
		convey.So(w.Shutdown(sctx), convey.ShouldBeNil)
	})

	convey.Convey("Given a worker that never starts", t, func() {
		w := worker.NewInMemoryWorker(queue.NewInMemoryQueue(), &failingWriter{})
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		convey.So(errors.Is(w.Shutdown(sctx), context.DeadlineExceeded), convey.ShouldBeTrue)
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a pool of writers", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		q := queue.NewInMemoryQueue(queue.WithCapacity(256))

		convey.Convey("When created with a non-positive count", func() {
			pool := worker.NewPool(0, q, store)
			convey.So(pool.Size(), convey.ShouldBeGreaterThan, 0)
		})

		convey.Convey("When it drains a burst and shuts down", func() {
			pool := worker.NewPool(4, q, store, worker.WithWriteTimeout(time.Second))
			pool.Start(ctx)
			const n = 100
			for i := 0; i < n; i++ {
				convey.So(q.Enqueue(ctx, queue.Entry{Collection: model.LogServer, Function: "purchaseItem"}), convey.ShouldBeTrue)
			}

			sctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			err := pool.Shutdown(sctx)

			convey.Convey("Then nothing is lost", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(len(logsOf(ctx, store, model.LogServer)), convey.ShouldEqual, n)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})
	})
}
