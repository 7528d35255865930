package service

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/gubs/internal/adapters/repository"
	"github.com/okian/gubs/internal/domain/catalog"
	"github.com/okian/gubs/internal/domain/fault"
	"github.com/okian/gubs/internal/domain/model"
	"github.com/okian/gubs/internal/domain/saga"
	"github.com/okian/gubs/pkg/logger"
	"github.com/okian/gubs/pkg/metrics"
)

const opPurchaseUpgrade = "purchaseUpgrade"

// PurchaseUpgrade buys a one-time multiplier once its target generator
// count reaches the unlock threshold.
func (s *Service) PurchaseUpgrade(ctx context.Context, uid string, req PurchaseUpgradeRequest) (res PurchaseUpgradeResult, err error) {
	start := time.Now()
	defer func() { err = s.finish(ctx, opPurchaseUpgrade, uid, start, err) }()

	if err := requireUID(opPurchaseUpgrade, uid); err != nil {
		return PurchaseUpgradeResult{}, err
	}
	if err := s.check(opPurchaseUpgrade, req); err != nil {
		return PurchaseUpgradeResult{}, err
	}
	upg, ok := s.catalog.Upgrade(req.Upgrade)
	if !ok || !model.ValidSegment(req.Upgrade) {
		return PurchaseUpgradeResult{}, fault.InvalidArgument(opPurchaseUpgrade, "Unknown upgrade")
	}

	if s.strategy == StrategySaga {
		res, err = s.purchaseUpgradeSaga(ctx, uid, req, upg)
	} else {
		res, err = s.purchaseUpgradeMerged(ctx, uid, req, upg)
	}
	if err != nil {
		return PurchaseUpgradeResult{}, err
	}

	if !req.DryRun {
		metrics.AddGubsSpent(res.Cost)
		metrics.RecordUpgradePurchased(req.Upgrade)
	}
	s.logger.Info(ctx, opPurchaseUpgrade+".success",
		logger.String("uid", uid),
		logger.String("upgrade", req.Upgrade),
		logger.Int64("cost", res.Cost),
		logger.Int64("score", res.Score),
		logger.Bool("dryRun", req.DryRun),
	)
	return res, nil
}

// gate applies the purchase rules in order: not yet owned, unlocked, and
// affordable.
func gate(upg catalog.Upgrade, owned bool, targetCount, score int64) error {
	switch {
	case owned:
		return fault.FailedPrecondition(opPurchaseUpgrade, msgUpgradeOwned)
	case targetCount < upg.UnlockAt:
		return fault.FailedPrecondition(opPurchaseUpgrade, "Need %d %s to unlock", upg.UnlockAt, upg.Target)
	case score < upg.Cost:
		return notEnough(opPurchaseUpgrade, score, upg.Cost)
	}
	return nil
}

func (s *Service) purchaseUpgradeMerged(ctx context.Context, uid string, req PurchaseUpgradeRequest, upg catalog.Upgrade) (PurchaseUpgradeResult, error) {
	paths := []string{
		model.LedgerPath(uid),
		model.UpgradePath(uid, req.Upgrade),
		model.ItemPath(uid, upg.Target),
	}
	var out PurchaseUpgradeResult
	_, err := s.multi.TransactMulti(ctx, paths, func(cur []any) ([]any, error) {
		led := model.LedgerFrom(cur[0])
		if err := gate(upg, model.AsBool(cur[1]), ownedCount(cur[2]), led.Score); err != nil {
			return nil, err
		}
		if req.DryRun {
			out = PurchaseUpgradeResult{Score: led.Score, Owned: false, Cost: upg.Cost}
			return nil, repository.ErrAbort
		}
		led.Score -= upg.Cost
		led.LastUpdated = s.store.Now()
		out = PurchaseUpgradeResult{Score: led.Score, Owned: true, Cost: upg.Cost}
		return []any{led.Value(), true, cur[2]}, nil
	})
	return out, err
}

func (s *Service) purchaseUpgradeSaga(ctx context.Context, uid string, req PurchaseUpgradeRequest, upg catalog.Upgrade) (PurchaseUpgradeResult, error) {
	out := PurchaseUpgradeResult{Cost: upg.Cost}
	err := s.locker.WithLock(ctx, uid, opPurchaseUpgrade, func(ctx context.Context) error {
		var flag, target any
		var led model.Ledger
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			flag, err = s.store.Read(gctx, model.UpgradePath(uid, req.Upgrade))
			return err
		})
		g.Go(func() error {
			var err error
			target, err = s.store.Read(gctx, model.ItemPath(uid, upg.Target))
			return err
		})
		g.Go(func() error {
			var err error
			led, err = s.readLedger(gctx, uid)
			return err
		})
		if err := g.Wait(); err != nil {
			return err
		}
		if err := gate(upg, model.AsBool(flag), ownedCount(target), led.Score); err != nil {
			return err
		}
		if req.DryRun {
			out.Score = led.Score
			return nil
		}

		deduct, refund := s.deductSteps(uid, opPurchaseUpgrade, upg.Cost, &out.Score)
		return s.runSaga(ctx, opPurchaseUpgrade, msgPurchaseFailed, saga.Step{
			Name:       stepDeduct,
			Forward:    deduct,
			Compensate: refund,
		}, saga.Step{
			Name: stepGrant,
			Forward: func(ctx context.Context) error {
				_, err := s.store.Transact(ctx, model.UpgradePath(uid, req.Upgrade), func(cur any) (any, error) {
					if model.AsBool(cur) {
						return nil, fault.FailedPrecondition(opPurchaseUpgrade, msgUpgradeOwned)
					}
					return true, nil
				})
				if err == nil {
					out.Owned = true
				}
				return err
			},
		})
	})
	return out, err
}
