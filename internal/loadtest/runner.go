package loadtest

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/okian/gubs/pkg/logger"
)

// PercentageMultiplier converts ratios to percentages.
const PercentageMultiplier = 100

// counters accumulates call outcomes across goroutines.
type counters struct {
	calls     atomic.Int64
	succeeded atomic.Int64
	rejected  atomic.Int64
	failed    atomic.Int64
}

func (c *counters) observe(err error) {
	c.calls.Add(1)
	switch {
	case err == nil:
		c.succeeded.Add(1)
	case classify(err):
		c.rejected.Add(1)
	default:
		c.failed.Add(1)
	}
}

func (c *counters) into(stats *Stats) {
	stats.Calls = c.calls.Load()
	stats.Succeeded = c.succeeded.Load()
	stats.Rejected = c.rejected.Load()
	stats.Failed = c.failed.Load()
}

// newPlayers returns n fresh load-test uids.
func newPlayers(n int) []string {
	uids := make([]string, n)
	for i := range uids {
		uids[i] = "load-" + uuid.NewString()
	}
	return uids
}

// usernameFor derives a sanitizable, unique display name from uid.
func usernameFor(uid string) string {
	id := strings.ReplaceAll(strings.TrimPrefix(uid, "load-"), "-", "")
	if len(id) > 12 {
		id = id[:12]
	}
	return "load_" + id
}

// fanOut runs calls per player with at most workers requests in flight.
// fn errors are observed, never returned; only ctx cancellation stops the run.
func fanOut(ctx context.Context, workers int, players []string, calls int,
	c *counters, fn func(ctx context.Context, idx int, uid string) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, uid := range players {
		for range calls {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				c.observe(fn(gctx, i, uid))
				return nil
			})
		}
	}
	return g.Wait()
}

func finish(stats *Stats) {
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
}

// displayFinalStats logs the run statistics.
func displayFinalStats(ctx context.Context, mode string, stats *Stats) {
	var successRate, callsPerSecond float64
	if stats.Calls > 0 {
		successRate = float64(stats.Succeeded) / float64(stats.Calls) * PercentageMultiplier
	}
	if stats.Duration > 0 {
		callsPerSecond = float64(stats.Calls) / stats.Duration.Seconds()
	}

	logger.Get().Info(ctx, "final statistics",
		logger.String("mode", mode),
		logger.Int("users", stats.Users),
		logger.Int64("calls", stats.Calls),
		logger.Int64("succeeded", stats.Succeeded),
		logger.Int64("rejected", stats.Rejected),
		logger.Int64("failed", stats.Failed),
		logger.Int("mismatches", stats.Mismatches),
		logger.Duration("duration", stats.Duration),
		logger.Float64("successRate", successRate),
		logger.Float64("callsPerSecond", callsPerSecond),
	)
}

func mismatchError(stats *Stats) error {
	if stats.Mismatches == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d of %d players", ErrMismatch, stats.Mismatches, stats.Users)
}
