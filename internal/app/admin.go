package service

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/gubs/internal/adapters/repository"
	"github.com/okian/gubs/internal/domain/fault"
	"github.com/okian/gubs/internal/domain/model"
	"github.com/okian/gubs/pkg/logger"
)

const (
	opUpdateUserScore = "updateUserScore"
	opDeleteUser      = "deleteUser"
)

// requireAdmin checks admins/{uid}.
func (s *Service) requireAdmin(ctx context.Context, op, uid string) error {
	if err := requireUID(op, uid); err != nil {
		return err
	}
	v, err := s.store.Read(ctx, model.AdminPath(uid))
	if err != nil {
		return err
	}
	if !model.AsBool(v) {
		return fault.New(op, fault.ErrPermissionDenied, msgNotAdmin)
	}
	return nil
}

// findUser resolves a username to its uid through an equality read on the
// leaderboard.
func (s *Service) findUser(ctx context.Context, op, username string) (string, model.Ledger, error) {
	name := SanitizeUsername(username)
	if name == "" {
		return "", model.Ledger{}, fault.NotFound(op, msgUserNotFound)
	}
	hits, err := s.store.Query(ctx, model.RootLeaderboard, repository.Query{
		OrderByChild: model.UsernameChild,
		EqualTo:      name,
		Limit:        1,
	})
	if err != nil {
		return "", model.Ledger{}, err
	}
	if len(hits) == 0 {
		return "", model.Ledger{}, fault.NotFound(op, msgUserNotFound)
	}
	return hits[0].Key, model.LedgerFrom(hits[0].Value), nil
}

// UpdateUserScore overwrites the score of the user called req.Username.
// It bypasses the user lock.
func (s *Service) UpdateUserScore(ctx context.Context, adminUID string, req AdminScoreRequest) (res AdminResult, err error) {
	start := time.Now()
	defer func() { err = s.finish(ctx, opUpdateUserScore, adminUID, start, err) }()

	if err := s.requireAdmin(ctx, opUpdateUserScore, adminUID); err != nil {
		return AdminResult{}, err
	}
	if err := s.check(opUpdateUserScore, req); err != nil {
		return AdminResult{}, err
	}
	uid, _, err := s.findUser(ctx, opUpdateUserScore, req.Username)
	if err != nil {
		return AdminResult{}, err
	}

	var previous int64
	var name string
	_, err = s.store.Transact(ctx, model.LedgerPath(uid), func(cur any) (any, error) {
		led := model.LedgerFrom(cur)
		previous = led.Score
		name = led.Username
		led.Score = req.Score
		led.LastUpdated = s.store.Now()
		return led.Value(), nil
	})
	if err != nil {
		return AdminResult{}, err
	}

	s.record(ctx, model.AuditEntry{
		Collection: model.LogAdmin,
		Function:   opUpdateUserScore,
		UID:        adminUID,
		Message:    fmt.Sprintf("Set score of %s to %d", name, req.Score),
		Details:    map[string]any{"target": uid, "previous": previous, "score": req.Score},
	})
	s.logger.Info(ctx, opUpdateUserScore+".success",
		logger.String("admin", adminUID),
		logger.String("uid", uid),
		logger.Int64("previous", previous),
		logger.Int64("score", req.Score),
	)
	return AdminResult{UID: uid, Username: name, Score: req.Score}, nil
}

// DeleteUser removes the ledger, inventory, upgrades, lock and username
// claim of the user called req.Username in one multi-path update.
func (s *Service) DeleteUser(ctx context.Context, adminUID string, req AdminDeleteRequest) (res AdminResult, err error) {
	start := time.Now()
	defer func() { err = s.finish(ctx, opDeleteUser, adminUID, start, err) }()

	if err := s.requireAdmin(ctx, opDeleteUser, adminUID); err != nil {
		return AdminResult{}, err
	}
	if err := s.check(opDeleteUser, req); err != nil {
		return AdminResult{}, err
	}
	uid, led, err := s.findUser(ctx, opDeleteUser, req.Username)
	if err != nil {
		return AdminResult{}, err
	}

	updates := map[string]any{
		model.LedgerPath(uid):   nil,
		model.ShopPath(uid):     nil,
		model.UpgradesPath(uid): nil,
		model.LockPath(uid):     nil,
	}
	if led.Username != "" {
		updates[model.UsernamePath(led.Username)] = nil
	}
	if err := s.store.Update(ctx, updates); err != nil {
		return AdminResult{}, err
	}

	s.record(ctx, model.AuditEntry{
		Collection: model.LogAdmin,
		Function:   opDeleteUser,
		UID:        adminUID,
		Message:    "Deleted user " + led.Username,
		Details:    map[string]any{"target": uid, "score": led.Score},
	})
	s.logger.Info(ctx, opDeleteUser+".success",
		logger.String("admin", adminUID),
		logger.String("uid", uid),
		logger.String("username", led.Username),
	)
	return AdminResult{UID: uid, Username: led.Username, Score: led.Score}, nil
}
