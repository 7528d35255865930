package loadtest

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/okian/gubs/pkg/logger"
)

// RunPurchase funds cfg.Users fresh players with cfg.Fund gubs through the
// admin API, races cfg.Calls single-unit purchases of cfg.Item per player and
// checks that score plus spent equals the fund and that inventory matches the
// accepted purchases.
func RunPurchase(ctx context.Context, cfg Config) (*Stats, error) {
	c := cfg.withDefaults()
	if c.AdminUID == "" {
		return nil, ErrNoAdmin
	}
	log := logger.Get().Named("loadtest")
	client := NewClient(c.BaseURL, c.UIDHeader, c.Timeout)

	if err := client.Health(ctx); err != nil {
		return nil, err
	}

	uids := newPlayers(c.Users)
	for _, uid := range uids {
		name := usernameFor(uid)
		if err := client.SetUsername(ctx, uid, name); err != nil {
			return nil, err
		}
		if err := client.SetScore(ctx, c.AdminUID, name, c.Fund); err != nil {
			return nil, err
		}
	}

	succeeded := make([]atomic.Int64, len(uids))
	spent := make([]atomic.Int64, len(uids))
	stats := &Stats{Users: c.Users, StartTime: time.Now()}

	log.Info(ctx, "starting purchase run",
		logger.String("url", c.BaseURL),
		logger.String("item", c.Item),
		logger.Int("users", c.Users),
		logger.Int("calls", c.Calls),
		logger.Int64("fund", c.Fund),
		logger.Int("workers", c.Workers),
	)

	var cnt counters
	err := fanOut(ctx, c.Workers, uids, c.Calls, &cnt, func(ctx context.Context, idx int, uid string) error {
		res, err := client.Purchase(ctx, uid, c.Item, 1)
		if err == nil {
			succeeded[idx].Add(1)
			spent[idx].Add(res.Cost)
		} else if c.Verbose {
			log.Debug(ctx, "purchase failed", logger.String("uid", uid), logger.Error(err))
		}
		return err
	})
	cnt.into(stats)
	if err != nil {
		finish(stats)
		return stats, err
	}

	for i, uid := range uids {
		st, err := client.State(ctx, uid)
		if err != nil {
			finish(stats)
			return stats, err
		}
		p := Player{
			UID:       uid,
			Succeeded: succeeded[i].Load(),
			Spent:     spent[i].Load(),
			Score:     st.Score,
			Owned:     st.Owned[c.Item],
		}
		if p.Score+p.Spent != c.Fund || p.Owned != p.Succeeded {
			stats.Mismatches++
			log.Warn(ctx, "ledger mismatch",
				logger.String("uid", uid),
				logger.Int64("fund", c.Fund),
				logger.Int64("score", p.Score),
				logger.Int64("spent", p.Spent),
				logger.Int64("owned", p.Owned),
				logger.Int64("succeeded", p.Succeeded),
			)
		}
	}

	finish(stats)
	displayFinalStats(ctx, "purchase", stats)
	return stats, mismatchError(stats)
}
