package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/mailer-backend/internal/cache"
	appErrors "github.com/unclebandit/mailer-backend/internal/errors"
	"github.com/unclebandit/mailer-backend/internal/repository"
)

// ActivationService flips is_active on every mailing a user owns.
// Both directions are idempotent and touch no other column.
type ActivationService struct {
	Users    repository.UserRepositoryInterface
	Mailings repository.MailingRepositoryInterface
	Stats    cache.StatsCache
}

func (s *ActivationService) Activate(ctx context.Context, userID int) error {
	return s.setActive(ctx, userID, true)
}

func (s *ActivationService) Deactivate(ctx context.Context, userID int) error {
	return s.setActive(ctx, userID, false)
}

// setActive treats a missing user as terminal: it is logged and swallowed so
// the queue does not retry a task that can never succeed.
func (s *ActivationService) setActive(ctx context.Context, userID int, active bool) error {
	log := logrus.WithFields(logrus.Fields{"user_id": userID, "active": active})

	if _, err := s.Users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, appErrors.ErrUserNotFound) {
			log.Error("user does not exist, activation dropped")
			return nil
		}
		return fmt.Errorf("load user %d: %w", userID, err)
	}

	n, err := s.Mailings.SetActiveByOwner(ctx, userID, active)
	if err != nil {
		return fmt.Errorf("set is_active=%t for user %d: %w", active, userID, err)
	}
	invalidateStats(ctx, s.Stats, userID)

	log.WithField("mailings", n).Info("mailings activation updated")
	return nil
}

func invalidateStats(ctx context.Context, c cache.StatsCache, ownerID int) {
	if c == nil {
		return
	}
	if err := c.Invalidate(ctx, ownerID); err != nil {
		logrus.WithError(err).WithField("user_id", ownerID).Warn("invalidate mailing stats")
	}
}
