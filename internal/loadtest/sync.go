package loadtest

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/okian/gubs/pkg/logger"
)

// RunSync fires cfg.Calls concurrent syncs of cfg.Delta clicks for each of
// cfg.Users fresh players, then checks every final score equals the sum of
// its accepted syncs.
func RunSync(ctx context.Context, cfg Config) (*Stats, error) {
	c := cfg.withDefaults()
	log := logger.Get().Named("loadtest")
	client := NewClient(c.BaseURL, c.UIDHeader, c.Timeout)

	if err := client.Health(ctx); err != nil {
		return nil, err
	}

	players := newPlayers(c.Users)
	accepted := make([]atomic.Int64, len(players))
	stats := &Stats{Users: c.Users, StartTime: time.Now()}

	log.Info(ctx, "starting sync run",
		logger.String("url", c.BaseURL),
		logger.Int("users", c.Users),
		logger.Int("calls", c.Calls),
		logger.Int64("delta", c.Delta),
		logger.Int("workers", c.Workers),
	)

	var cnt counters
	err := fanOut(ctx, c.Workers, players, c.Calls, &cnt, func(ctx context.Context, idx int, uid string) error {
		_, err := client.Sync(ctx, uid, c.Delta)
		if err == nil {
			accepted[idx].Add(1)
		} else if c.Verbose {
			log.Debug(ctx, "sync failed", logger.String("uid", uid), logger.Error(err))
		}
		return err
	})
	cnt.into(stats)
	if err != nil {
		finish(stats)
		return stats, err
	}

	for i, uid := range players {
		st, err := client.State(ctx, uid)
		if err != nil {
			finish(stats)
			return stats, err
		}
		want := accepted[i].Load() * c.Delta
		if st.Score != want {
			stats.Mismatches++
			log.Warn(ctx, "score mismatch",
				logger.String("uid", uid),
				logger.Int64("want", want),
				logger.Int64("got", st.Score),
			)
		}
	}

	finish(stats)
	displayFinalStats(ctx, "sync", stats)
	return stats, mismatchError(stats)
}
