package service

import (
	"context"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/gubs/internal/domain/fault"
	"github.com/okian/gubs/internal/domain/model"
	"github.com/okian/gubs/internal/domain/offline"
	"github.com/okian/gubs/pkg/logger"
	"github.com/okian/gubs/pkg/metrics"
)

const opSync = "syncGubs"

// SyncGubs credits clicks reported by the client and, when asked, the
// offline earnings accrued since the last sync.
func (s *Service) SyncGubs(ctx context.Context, uid string, req SyncRequest) (res SyncResult, err error) {
	start := time.Now()
	defer func() { err = s.finish(ctx, opSync, uid, start, err) }()

	if err := requireUID(opSync, uid); err != nil {
		return SyncResult{}, err
	}
	if err := s.check(opSync, req); err != nil {
		return SyncResult{}, err
	}
	if req.Delta > s.maxSyncDelta {
		return SyncResult{}, fault.InvalidArgument(opSync, "Invalid delta")
	}
	delta := int64(math.Floor(req.Delta))

	if s.strategy == StrategySaga {
		res, err = s.syncLocked(ctx, uid, delta, req.Offline)
	} else {
		res, err = s.syncMerged(ctx, uid, delta, req.Offline)
	}
	if err != nil {
		return SyncResult{}, err
	}

	metrics.AddGubsEarned(delta)
	metrics.AddOfflineEarned(res.OfflineEarned)
	s.logger.Info(ctx, opSync+".success",
		logger.String("uid", uid),
		logger.Int64("delta", delta),
		logger.Int64("offlineEarned", res.OfflineEarned),
		logger.Int64("score", res.Score),
	)
	return res, nil
}

// accrue applies delta and offline earnings to a ledger value.
func (s *Service) accrue(cur any, delta int64, withOffline bool, rate float64) (model.Ledger, int64) {
	led := model.LedgerFrom(cur)
	now := s.store.Now()
	var earned int64
	if withOffline {
		last := led.LastUpdated
		if last == 0 {
			last = now
		}
		earned = offline.EarnedAt(s.offlineRate, rate, last, now)
	}
	led.Score = model.AddSat(model.AddSat(led.Score, delta), earned)
	led.LastUpdated = now
	return led, earned
}

// syncMerged reads the inventory inside the same transaction as the ledger
// so the offline rate matches what the user owns at commit time. The
// inventory is returned unchanged, so the store only rewrites the ledger.
// Without offline accrual the rate is irrelevant and only the ledger is read.
func (s *Service) syncMerged(ctx context.Context, uid string, delta int64, withOffline bool) (SyncResult, error) {
	var out SyncResult
	if !withOffline {
		_, err := s.store.Transact(ctx, model.LedgerPath(uid), func(cur any) (any, error) {
			led, _ := s.accrue(cur, delta, false, 0)
			out = SyncResult{Score: led.Score}
			return led.Value(), nil
		})
		return out, err
	}

	paths := []string{model.LedgerPath(uid), model.ShopPath(uid), model.UpgradesPath(uid)}
	_, err := s.multi.TransactMulti(ctx, paths, func(cur []any) ([]any, error) {
		rate := s.catalog.PassiveRate(model.OwnedFrom(cur[1]), model.UpgradesFrom(cur[2]))
		led, earned := s.accrue(cur[0], delta, true, rate)
		out = SyncResult{Score: led.Score, OfflineEarned: earned}
		return []any{led.Value(), cur[1], cur[2]}, nil
	})
	return out, err
}

// syncLocked holds the user lock so no purchase changes the inventory
// between reading the rate and crediting the ledger.
func (s *Service) syncLocked(ctx context.Context, uid string, delta int64, withOffline bool) (SyncResult, error) {
	var out SyncResult
	err := s.locker.WithLock(ctx, uid, opSync, func(ctx context.Context) error {
		var rate float64
		if withOffline {
			owned, upgrades, err := s.readInventory(ctx, uid)
			if err != nil {
				return err
			}
			rate = s.catalog.PassiveRate(owned, upgrades)
		}
		_, err := s.store.Transact(ctx, model.LedgerPath(uid), func(cur any) (any, error) {
			led, earned := s.accrue(cur, delta, withOffline, rate)
			out = SyncResult{Score: led.Score, OfflineEarned: earned}
			return led.Value(), nil
		})
		return err
	})
	return out, err
}

// readInventory loads the shop and upgrade subtrees of uid in parallel.
func (s *Service) readInventory(ctx context.Context, uid string) (map[string]int64, map[string]bool, error) {
	var shop, upgrades any
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		shop, err = s.store.Read(gctx, model.ShopPath(uid))
		return err
	})
	g.Go(func() error {
		var err error
		upgrades, err = s.store.Read(gctx, model.UpgradesPath(uid))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return model.OwnedFrom(shop), model.UpgradesFrom(upgrades), nil
}
