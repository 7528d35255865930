// Package lock implements a TTL-based per-user mutual exclusion on top of
// a ledger store transaction at locks/{uid}.
//
// A lock is free when absent or expired. Holders that crash leave the
// record behind; the TTL makes it available again.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/okian/gubs/internal/adapters/repository"
	"github.com/okian/gubs/internal/domain/model"
	"github.com/okian/gubs/pkg/logger"
	"github.com/okian/gubs/pkg/metrics"
)

// Locker acquires and releases per-user locks.
type Locker struct {
	store    repository.Store
	ttl      time.Duration
	attempts int
	backoff  time.Duration
	log      logger.Logger
}

// New constructs a Locker over store.
func New(store repository.Store, opts ...Option) *Locker {
	l := &Locker{
		store:    store,
		ttl:      DefaultTTL,
		attempts: DefaultAttempts,
		backoff:  DefaultBackoff,
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// OwnerTag returns a unique owner tag for one operation attempt.
func OwnerTag(op string) string {
	return op + ":" + uuid.NewString()
}

// TryAcquire makes one attempt to take the lock for uid. It succeeds when
// the lock is absent, expired, or already held by owner.
func (l *Locker) TryAcquire(ctx context.Context, uid, owner string) (bool, error) {
	if owner == "" {
		return false, ErrBadOwner
	}
	ttl := l.ttl.Milliseconds()
	res, err := l.store.Transact(ctx, model.LockPath(uid), func(cur any) (any, error) {
		now := l.store.Now()
		if rec, ok := model.LockFrom(cur); ok && rec.Held(now) && rec.Owner != owner {
			return nil, repository.ErrAbort
		}
		return model.LockRecord{Owner: owner, Since: now, Expires: now + ttl}.Value(), nil
	})
	if err != nil {
		return false, err
	}
	return res.Committed, nil
}

// Acquire retries TryAcquire with a constant backoff until it succeeds, the
// attempt budget runs out (ErrBusy), or ctx ends.
func (l *Locker) Acquire(ctx context.Context, uid, owner string) error {
	start := time.Now()
	op := func() error {
		metrics.RecordLockAttempt()
		ok, err := l.TryAcquire(ctx, uid, owner)
		switch {
		case errors.Is(err, repository.ErrTxConflict):
			return err
		case err != nil:
			return backoff.Permanent(err)
		case !ok:
			return ErrBusy
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(l.backoff), uint64(l.attempts-1)),
		ctx,
	)
	if err := backoff.Retry(op, policy); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if errors.Is(err, ErrBusy) || errors.Is(err, repository.ErrTxConflict) {
			metrics.RecordLockBusy()
			return fmt.Errorf("%w: %s after %d attempts", ErrBusy, uid, l.attempts)
		}
		return err
	}
	metrics.RecordLockAcquired(time.Since(start))
	return nil
}

// Release deletes the lock if owner still holds it. It returns ErrNotHeld
// when the lock expired and was taken over, or is already gone.
func (l *Locker) Release(ctx context.Context, uid, owner string) error {
	res, err := l.store.Transact(ctx, model.LockPath(uid), func(cur any) (any, error) {
		if rec, ok := model.LockFrom(cur); ok && rec.Owner == owner {
			return nil, nil
		}
		return nil, repository.ErrAbort
	})
	if err != nil {
		return err
	}
	if !res.Committed {
		return ErrNotHeld
	}
	return nil
}

// WithLock runs fn while holding the lock for uid. Release is best effort:
// a failure is logged and counted, never returned.
func (l *Locker) WithLock(ctx context.Context, uid, op string, fn func(ctx context.Context) error) error {
	owner := OwnerTag(op)
	if err := l.Acquire(ctx, uid, owner); err != nil {
		return err
	}
	defer func() {
		rctx := context.WithoutCancel(ctx)
		if err := l.Release(rctx, uid, owner); err != nil {
			metrics.RecordLockReleaseError()
			l.log.Warn(rctx, "lock release failed",
				logger.String("uid", uid),
				logger.String("owner", owner),
				logger.Error(err),
			)
		}
	}()
	return fn(ctx)
}

// TTL returns the configured lock lifetime.
func (l *Locker) TTL() time.Duration { return l.ttl }
