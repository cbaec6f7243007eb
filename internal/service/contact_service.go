package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/unclebandit/mailer-backend/internal/cache"
	appErrors "github.com/unclebandit/mailer-backend/internal/errors"
	"github.com/unclebandit/mailer-backend/internal/model"
	"github.com/unclebandit/mailer-backend/internal/repository"
)

// ContactService manages the clients and messages mailings are built from.
type ContactService struct {
	Clients  repository.ClientRepositoryInterface
	Messages repository.MessageRepositoryInterface
	Stats    cache.StatsCache
}

func (s *ContactService) CreateClient(ctx context.Context, ownerID int, c *model.Client) error {
	c.FullName = strings.TrimSpace(c.FullName)
	addr, err := mail.ParseAddress(strings.TrimSpace(c.Email))
	if err != nil {
		return fmt.Errorf("%w: email %q", appErrors.ErrValidation, c.Email)
	}
	if c.FullName == "" {
		return fmt.Errorf("%w: full_name is required", appErrors.ErrValidation)
	}
	c.Email = addr.Address
	c.OwnerID = ownerID
	return s.Clients.Create(ctx, c)
}

func (s *ContactService) ListClients(ctx context.Context, ownerID int) ([]model.Client, error) {
	return s.Clients.ListByOwner(ctx, ownerID)
}

func (s *ContactService) GetClient(ctx context.Context, ownerID, id int) (*model.Client, error) {
	c, err := s.Clients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := owned(ownerID, c.OwnerID); err != nil {
		return nil, err
	}
	return c, nil
}

// DeleteClient also drops the client from every mailing, so the cached
// recipient count goes stale.
func (s *ContactService) DeleteClient(ctx context.Context, ownerID, id int) error {
	if _, err := s.GetClient(ctx, ownerID, id); err != nil {
		return err
	}
	if err := s.Clients.Delete(ctx, id); err != nil {
		return err
	}
	invalidateStats(ctx, s.Stats, ownerID)
	return nil
}

func (s *ContactService) CreateMessage(ctx context.Context, ownerID int, m *model.Message) error {
	m.Title = strings.TrimSpace(m.Title)
	if m.Title == "" {
		return fmt.Errorf("%w: title is required", appErrors.ErrValidation)
	}
	if strings.TrimSpace(m.Text) == "" {
		return fmt.Errorf("%w: text is required", appErrors.ErrValidation)
	}
	m.OwnerID = ownerID
	return s.Messages.Create(ctx, m)
}

func (s *ContactService) ListMessages(ctx context.Context, ownerID int) ([]model.Message, error) {
	return s.Messages.ListByOwner(ctx, ownerID)
}

func (s *ContactService) GetMessage(ctx context.Context, ownerID, id int) (*model.Message, error) {
	m, err := s.Messages.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := owned(ownerID, m.OwnerID); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *ContactService) UpdateMessage(ctx context.Context, ownerID int, m *model.Message) error {
	if _, err := s.GetMessage(ctx, ownerID, m.ID); err != nil {
		return err
	}
	m.Title = strings.TrimSpace(m.Title)
	if m.Title == "" || strings.TrimSpace(m.Text) == "" {
		return fmt.Errorf("%w: title and text are required", appErrors.ErrValidation)
	}
	m.OwnerID = ownerID
	return s.Messages.Update(ctx, m)
}

// DeleteMessage cascades to the mailings that use it.
func (s *ContactService) DeleteMessage(ctx context.Context, ownerID, id int) error {
	if _, err := s.GetMessage(ctx, ownerID, id); err != nil {
		return err
	}
	if err := s.Messages.Delete(ctx, id); err != nil {
		return err
	}
	invalidateStats(ctx, s.Stats, ownerID)
	return nil
}
