package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/okian/gubs/internal/adapters/repository"
	"github.com/okian/gubs/internal/domain/catalog"
	"github.com/okian/gubs/internal/domain/fault"
	"github.com/okian/gubs/internal/domain/model"
	"github.com/okian/gubs/internal/domain/pricing"
	"github.com/okian/gubs/internal/domain/saga"
	"github.com/okian/gubs/pkg/logger"
	"github.com/okian/gubs/pkg/metrics"
)

const opPurchaseItem = "purchaseItem"

// Saga step names.
const (
	stepDeduct = "deduct"
	stepCredit = "credit"
	stepGrant  = "grant"
	stepClaim  = "claim"
	stepRename = "rename"
)

// errPriceMoved aborts a credit whose inventory changed after the quote.
var errPriceMoved = errors.New("inventory changed since the price was quoted")

// PurchaseItem buys req.Quantity units of req.Item at the geometric price
// implied by the inventory at commit time.
func (s *Service) PurchaseItem(ctx context.Context, uid string, req PurchaseItemRequest) (res PurchaseItemResult, err error) {
	start := time.Now()
	defer func() { err = s.finish(ctx, opPurchaseItem, uid, start, err) }()

	if err := requireUID(opPurchaseItem, uid); err != nil {
		return PurchaseItemResult{}, err
	}
	if err := s.check(opPurchaseItem, req); err != nil {
		return PurchaseItemResult{}, err
	}
	item, ok := s.catalog.Item(req.Item)
	if !ok || !model.ValidSegment(req.Item) {
		return PurchaseItemResult{}, fault.InvalidArgument(opPurchaseItem, "Unknown item")
	}

	if s.strategy == StrategySaga {
		res, err = s.purchaseItemSaga(ctx, uid, req, item)
	} else {
		res, err = s.purchaseItemMerged(ctx, uid, req, item)
	}
	if err != nil {
		return PurchaseItemResult{}, err
	}

	if !req.DryRun {
		metrics.AddGubsSpent(res.Cost)
		metrics.RecordItemsPurchased(req.Item, req.Quantity)
	}
	s.logger.Info(ctx, opPurchaseItem+".success",
		logger.String("uid", uid),
		logger.String("item", req.Item),
		logger.Int64("quantity", req.Quantity),
		logger.Int64("cost", res.Cost),
		logger.Int64("owned", res.Owned),
		logger.Int64("score", res.Score),
		logger.Bool("dryRun", req.DryRun),
	)
	return res, nil
}

func notEnough(op string, have, need int64) error {
	return fault.FailedPrecondition(op, "Not enough gubs: have %d, need %d", have, need)
}

func ownedCount(v any) int64 {
	n, _ := model.AsInt64(v)
	if n < 0 {
		return 0
	}
	return n
}

// quote is a dry-run result for a balance of score against owned units.
func quote(item catalog.Item, score, owned, cost int64) PurchaseItemResult {
	n := pricing.MaxAffordable(item.BaseCost, owned, score, item.CostMultiplier)
	return PurchaseItemResult{Score: score, Owned: owned, Cost: cost, Affordable: min(n, MaxQuantity)}
}

// purchaseItemMerged deducts and credits in one transaction, so the cost is
// always computed from the inventory it increments.
func (s *Service) purchaseItemMerged(ctx context.Context, uid string, req PurchaseItemRequest, item catalog.Item) (PurchaseItemResult, error) {
	paths := []string{model.LedgerPath(uid), model.ItemPath(uid, req.Item)}
	var out PurchaseItemResult
	_, err := s.multi.TransactMulti(ctx, paths, func(cur []any) ([]any, error) {
		led := model.LedgerFrom(cur[0])
		owned := ownedCount(cur[1])
		cost := pricing.TotalCost(item.BaseCost, owned, req.Quantity, item.CostMultiplier)
		if led.Score < cost {
			return nil, notEnough(opPurchaseItem, led.Score, cost)
		}
		if req.DryRun {
			out = quote(item, led.Score, owned, cost)
			return nil, repository.ErrAbort
		}
		led.Score -= cost
		led.LastUpdated = s.store.Now()
		out = PurchaseItemResult{Score: led.Score, Owned: model.AddSat(owned, req.Quantity), Cost: cost}
		return []any{led.Value(), out.Owned}, nil
	})
	return out, err
}

// purchaseItemSaga quotes under the user lock, then deducts and credits in
// separate transactions. A failed credit refunds the deduction.
func (s *Service) purchaseItemSaga(ctx context.Context, uid string, req PurchaseItemRequest, item catalog.Item) (PurchaseItemResult, error) {
	var out PurchaseItemResult
	err := s.locker.WithLock(ctx, uid, opPurchaseItem, func(ctx context.Context) error {
		raw, err := s.store.Read(ctx, model.ItemPath(uid, req.Item))
		if err != nil {
			return err
		}
		owned := ownedCount(raw)
		cost := pricing.TotalCost(item.BaseCost, owned, req.Quantity, item.CostMultiplier)

		if req.DryRun {
			led, err := s.readLedger(ctx, uid)
			if err != nil {
				return err
			}
			if led.Score < cost {
				return notEnough(opPurchaseItem, led.Score, cost)
			}
			out = quote(item, led.Score, owned, cost)
			return nil
		}

		deduct, refund := s.deductSteps(uid, opPurchaseItem, cost, &out.Score)
		err = s.runSaga(ctx, opPurchaseItem, msgPurchaseFailed, saga.Step{
			Name:       stepDeduct,
			Forward:    deduct,
			Compensate: refund,
		}, saga.Step{
			Name: stepCredit,
			Forward: func(ctx context.Context) error {
				_, err := s.store.Transact(ctx, model.ItemPath(uid, req.Item), func(cur any) (any, error) {
					now := ownedCount(cur)
					if now != owned {
						return nil, errPriceMoved
					}
					out.Owned = model.AddSat(now, req.Quantity)
					return out.Owned, nil
				})
				return err
			},
		})
		out.Cost = cost
		return err
	})
	return out, err
}

// deductSteps returns a forward step that takes cost from the ledger and
// its refund. score receives the balance after the deduction.
func (s *Service) deductSteps(uid, op string, cost int64, score *int64) (forward, refund func(context.Context) error) {
	forward = func(ctx context.Context) error {
		_, err := s.store.Transact(ctx, model.LedgerPath(uid), func(cur any) (any, error) {
			led := model.LedgerFrom(cur)
			if led.Score < cost {
				return nil, notEnough(op, led.Score, cost)
			}
			led.Score -= cost
			led.LastUpdated = s.store.Now()
			*score = led.Score
			return led.Value(), nil
		})
		return err
	}
	refund = func(ctx context.Context) error {
		return s.refund(ctx, uid, op, cost)
	}
	return forward, refund
}

// refund credits cost back to uid, retrying with exponential backoff.
func (s *Service) refund(ctx context.Context, uid, op string, cost int64) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.refundInitial
	policy.MaxElapsedTime = 0

	attempt := func() error {
		_, err := s.store.Transact(ctx, model.LedgerPath(uid), func(cur any) (any, error) {
			led := model.LedgerFrom(cur)
			led.Score = model.AddSat(led.Score, cost)
			return led.Value(), nil
		})
		return err
	}
	err := backoff.Retry(attempt, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(s.refundRetries)), ctx))
	if err != nil {
		metrics.RecordRefundFailure()
		s.logger.Error(ctx, op+".refundFailed",
			logger.String("uid", uid),
			logger.Int64("amount", cost),
			logger.Error(err),
		)
		return fmt.Errorf("refund %d to %s: %w", cost, uid, err)
	}
	metrics.RecordRefund()
	s.logger.Warn(ctx, op+".refunded", logger.String("uid", uid), logger.Int64("amount", cost))
	return nil
}

// runSaga executes steps and maps a failure to what the caller sees: the
// first step's own error, Aborted after a clean rollback, or Internal when
// the rollback itself failed.
func (s *Service) runSaga(ctx context.Context, op, failMsg string, steps ...saga.Step) error {
	sg := saga.New(
		saga.WithDetachedCompensation(),
		saga.WithObserver(func(ctx context.Context, step string, phase saga.Phase, err error) {
			metrics.RecordSagaStep(step, phase.String(), err == nil)
		}),
	)
	err := sg.Run(ctx, steps...)
	if err == nil {
		return nil
	}

	var se *saga.Error
	if !errors.As(err, &se) {
		return err
	}
	if se.Step == steps[0].Name {
		return se.Err
	}
	var fe *fault.Error
	if se.Compensated() && errors.As(se.Err, &fe) {
		return se.Err
	}
	s.logger.Warn(ctx, op+".rollback",
		logger.String("step", se.Step),
		logger.Bool("compensated", se.Compensated()),
		logger.Error(err),
	)
	if !se.Compensated() {
		return fault.Internal(op, failMsg, err)
	}
	return fault.Aborted(op, failMsg, err)
}

func (s *Service) readLedger(ctx context.Context, uid string) (model.Ledger, error) {
	raw, err := s.store.Read(ctx, model.LedgerPath(uid))
	if err != nil {
		return model.Ledger{}, err
	}
	return model.LedgerFrom(raw), nil
}
