package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/mailer-backend/internal/cache"
	appErrors "github.com/unclebandit/mailer-backend/internal/errors"
	"github.com/unclebandit/mailer-backend/internal/model"
	"github.com/unclebandit/mailer-backend/internal/repository"
)

// Enqueuer is the producer side of the activation queue.
type Enqueuer interface {
	EnqueueActivate(ctx context.Context, userID int) error
	EnqueueDeactivate(ctx context.Context, userID int) error
}

type MailingService struct {
	Mailings repository.MailingRepositoryInterface
	Clients  repository.ClientRepositoryInterface
	Messages repository.MessageRepositoryInterface
	Logs     repository.DeliveryLogRepositoryInterface
	Stats    cache.StatsCache
	Queue    Enqueuer

	Location *time.Location
	Now      func() time.Time
}

type CreateMailingInput struct {
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Periodicity string    `json:"periodicity"`
	MessageID   int       `json:"message_id"`
	ClientIDs   []int     `json:"client_ids"`
}

type MailingList struct {
	Mailings []*model.Mailing   `json:"mailings"`
	Stats    model.MailingStats `json:"stats"`
}

type LogPage struct {
	Logs     []model.DeliveryLog `json:"logs"`
	Stats    model.LogStats      `json:"stats"`
	Page     int                 `json:"page"`
	PageSize int                 `json:"page_size"`
}

func (s *MailingService) now() time.Time {
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	if s.Location != nil {
		now = now.In(s.Location)
	}
	return now
}

func owned(ownerID, resourceOwner int) error {
	if ownerID != resourceOwner {
		return appErrors.ErrForbidden
	}
	return nil
}

// CreateMailing stores a new, inactive mailing. The message and every client
// must belong to the caller.
func (s *MailingService) CreateMailing(ctx context.Context, ownerID int, in CreateMailingInput) (*model.Mailing, error) {
	periodicity, err := model.ParsePeriodicity(in.Periodicity)
	if err != nil {
		return nil, err
	}

	msg, err := s.Messages.GetByID(ctx, in.MessageID)
	if err != nil {
		return nil, err
	}
	if err := owned(ownerID, msg.OwnerID); err != nil {
		return nil, err
	}
	for _, id := range in.ClientIDs {
		c, err := s.Clients.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := owned(ownerID, c.OwnerID); err != nil {
			return nil, err
		}
	}

	m := &model.Mailing{
		StartTime:   in.StartTime,
		EndTime:     in.EndTime,
		Periodicity: periodicity,
		Status:      model.StatusCreated,
		OwnerID:     ownerID,
		MessageID:   &msg.ID,
		ClientIDs:   in.ClientIDs,
	}
	if err := s.Mailings.Create(ctx, m); err != nil {
		return nil, err
	}
	invalidateStats(ctx, s.Stats, ownerID)
	return m, nil
}

func (s *MailingService) GetMailing(ctx context.Context, ownerID, id int) (*model.Mailing, error) {
	m, err := s.Mailings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := owned(ownerID, m.OwnerID); err != nil {
		return nil, err
	}
	return m, nil
}

// ListMailings returns the caller's mailings and closes the ones whose window
// has passed before returning them.
func (s *MailingService) ListMailings(ctx context.Context, ownerID int) (*MailingList, error) {
	mailings, err := s.Mailings.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	reconciled := 0
	for _, m := range mailings {
		if m.Status == model.StatusCompleted || !m.Expired(now) {
			continue
		}
		if err := s.Mailings.UpdateStatus(ctx, m.ID, model.StatusCompleted); err != nil {
			return nil, fmt.Errorf("complete expired mailing %d: %w", m.ID, err)
		}
		m.Status = model.StatusCompleted
		reconciled++
	}
	if reconciled > 0 {
		logrus.WithFields(logrus.Fields{"user_id": ownerID, "mailings": reconciled}).Info("expired mailings completed")
		invalidateStats(ctx, s.Stats, ownerID)
	}

	stats, err := s.stats(ctx, ownerID, mailings)
	if err != nil {
		return nil, err
	}
	return &MailingList{Mailings: mailings, Stats: *stats}, nil
}

func (s *MailingService) stats(ctx context.Context, ownerID int, mailings []*model.Mailing) (*model.MailingStats, error) {
	if s.Stats != nil {
		cached, ok, err := s.Stats.Get(ctx, ownerID)
		if err != nil {
			logrus.WithError(err).WithField("user_id", ownerID).Warn("read mailing stats cache")
		} else if ok {
			return cached, nil
		}
	}

	clients, err := s.Mailings.CountDistinctRecipients(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("count recipients: %w", err)
	}
	stats := &model.MailingStats{All: len(mailings), ClientsCount: clients}
	for _, m := range mailings {
		if m.IsActive {
			stats.Active++
		}
	}

	if s.Stats != nil {
		if err := s.Stats.Set(ctx, ownerID, stats); err != nil {
			logrus.WithError(err).WithField("user_id", ownerID).Warn("write mailing stats cache")
		}
	}
	return stats, nil
}

// EnableMailing starts a single mailing. Only a mailing whose window contains
// now can be enabled.
func (s *MailingService) EnableMailing(ctx context.Context, ownerID, id int) (*model.Mailing, error) {
	m, err := s.GetMailing(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if !m.InWindow(s.now()) {
		return nil, appErrors.ErrOutsideWindow
	}
	if err := s.Mailings.SetActiveAndStatus(ctx, id, true, model.StatusStarted); err != nil {
		return nil, err
	}
	m.IsActive, m.Status = true, model.StatusStarted
	invalidateStats(ctx, s.Stats, ownerID)
	return m, nil
}

func (s *MailingService) DisableMailing(ctx context.Context, ownerID, id int) (*model.Mailing, error) {
	m, err := s.GetMailing(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if err := s.Mailings.SetActiveAndStatus(ctx, id, false, model.StatusCompleted); err != nil {
		return nil, err
	}
	m.IsActive, m.Status = false, model.StatusCompleted
	invalidateStats(ctx, s.Stats, ownerID)
	return m, nil
}

func (s *MailingService) DeleteMailing(ctx context.Context, ownerID, id int) error {
	if _, err := s.GetMailing(ctx, ownerID, id); err != nil {
		return err
	}
	if err := s.Mailings.Delete(ctx, id); err != nil {
		return err
	}
	invalidateStats(ctx, s.Stats, ownerID)
	return nil
}

// StartAll and StopAll only enqueue; the worker applies the change.
func (s *MailingService) StartAll(ctx context.Context, ownerID int) error {
	return s.Queue.EnqueueActivate(ctx, ownerID)
}

func (s *MailingService) StopAll(ctx context.Context, ownerID int) error {
	return s.Queue.EnqueueDeactivate(ctx, ownerID)
}

// Logout stops the user's mailings on the way out.
func (s *MailingService) Logout(ctx context.Context, ownerID int) error {
	return s.Queue.EnqueueDeactivate(ctx, ownerID)
}

// ListLogs pages through the caller's delivery logs, newest first.
func (s *MailingService) ListLogs(ctx context.Context, ownerID, page, pageSize int) (*LogPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	logs, err := s.Logs.ListByOwner(ctx, ownerID, offset, pageSize)
	if err != nil {
		return nil, err
	}
	stats, err := s.Logs.Stats(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return &LogPage{Logs: logs, Stats: *stats, Page: page, PageSize: pageSize}, nil
}
