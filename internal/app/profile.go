package service

import (
	"context"
	"strings"
	"time"

	"github.com/okian/gubs/internal/adapters/repository"
	"github.com/okian/gubs/internal/domain/fault"
	"github.com/okian/gubs/internal/domain/model"
	"github.com/okian/gubs/internal/domain/saga"
	"github.com/okian/gubs/pkg/logger"
)

const (
	opSetUsername = "setUsername"

	minUsernameLen = 3
	maxUsernameLen = 20
)

// SanitizeUsername lowercases name, keeps only [a-z0-9_] and truncates it
// to the maximum length.
func SanitizeUsername(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if b.Len() == maxUsernameLen {
			break
		}
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SetUsername claims a unique display name for uid and releases the one it
// held before.
func (s *Service) SetUsername(ctx context.Context, uid string, req UsernameRequest) (res Profile, err error) {
	start := time.Now()
	defer func() { err = s.finish(ctx, opSetUsername, uid, start, err) }()

	if err := requireUID(opSetUsername, uid); err != nil {
		return Profile{}, err
	}
	if err := s.check(opSetUsername, req); err != nil {
		return Profile{}, err
	}
	name := SanitizeUsername(req.Username)
	if len(name) < minUsernameLen {
		return Profile{}, fault.InvalidArgument(opSetUsername, "Username must be at least %d characters", minUsernameLen)
	}

	// prev is the name stored when the rename commits, so overlapping renames
	// from one uid each release the claim they actually replaced.
	var prev string
	var held bool
	err = s.runSaga(ctx, opSetUsername, msgRenameFailed, saga.Step{
		Name: stepClaim,
		Forward: func(ctx context.Context) error {
			_, err := s.store.Transact(ctx, model.UsernamePath(name), func(cur any) (any, error) {
				owner, _ := cur.(string)
				if owner != "" && owner != uid {
					return nil, fault.FailedPrecondition(opSetUsername, msgUsernameTaken)
				}
				held = owner == uid
				return uid, nil
			})
			return err
		},
		Compensate: func(ctx context.Context) error {
			if held {
				return nil
			}
			return s.releaseUsername(ctx, uid, name)
		},
	}, saga.Step{
		Name: stepRename,
		Forward: func(ctx context.Context) error {
			_, err := s.store.Transact(ctx, model.LedgerPath(uid), func(cur any) (any, error) {
				led := model.LedgerFrom(cur)
				prev = led.Username
				led.Username = name
				return led.Value(), nil
			})
			return err
		},
	})
	if err != nil {
		return Profile{}, err
	}

	if prev != "" && prev != name {
		if err := s.releaseUsername(ctx, uid, prev); err != nil {
			s.logger.Warn(ctx, "previous username not released",
				logger.String("uid", uid),
				logger.String("username", prev),
				logger.Error(err),
			)
		}
	}

	s.logger.Info(ctx, opSetUsername+".success",
		logger.String("uid", uid),
		logger.String("username", name),
		logger.String("previous", prev),
	)
	return Profile{UID: uid, Username: name}, nil
}

// releaseUsername deletes the claim on name if uid still holds it.
func (s *Service) releaseUsername(ctx context.Context, uid, name string) error {
	_, err := s.store.Transact(ctx, model.UsernamePath(name), func(cur any) (any, error) {
		if owner, _ := cur.(string); owner != uid {
			return nil, repository.ErrAbort
		}
		return nil, nil
	})
	return err
}
