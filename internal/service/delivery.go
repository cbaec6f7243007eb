package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	appErrors "github.com/unclebandit/mailer-backend/internal/errors"
	"github.com/unclebandit/mailer-backend/internal/events"
	"github.com/unclebandit/mailer-backend/internal/mail"
	"github.com/unclebandit/mailer-backend/internal/model"
	"github.com/unclebandit/mailer-backend/internal/repository"
)

const defaultSendTimeout = 30 * time.Second

// Executor runs one mailing once: every recipient gets one send attempt and
// one delivery log row. It does not look at periodicity, status or is_active;
// callers decide which mailings to hand it.
type Executor struct {
	Mailings repository.MailingRepositoryInterface
	Messages repository.MessageRepositoryInterface
	Logs     repository.DeliveryLogRepositoryInterface
	Sender   mail.Sender
	Events   events.DeliveryPublisher

	From        string
	SendTimeout time.Duration
	Location    *time.Location
	Now         func() time.Time
}

func (e *Executor) now() time.Time {
	now := time.Now()
	if e.Now != nil {
		now = e.Now()
	}
	if e.Location != nil {
		now = now.In(e.Location)
	}
	return now
}

// Dispatch sends the mailing's message to all of its clients when now is
// inside the window, or marks the mailing completed when it is not.
func (e *Executor) Dispatch(ctx context.Context, m *model.Mailing) error {
	log := logrus.WithFields(logrus.Fields{"mailing_id": m.ID, "user_id": m.OwnerID})
	now := e.now()

	if !m.InWindow(now) {
		if err := e.Mailings.UpdateStatus(ctx, m.ID, model.StatusCompleted); err != nil {
			return fmt.Errorf("complete mailing %d: %w", m.ID, err)
		}
		log.WithField("now", now).Info("mailing outside its window, marked completed")
		return nil
	}

	if m.MessageID == nil {
		return appErrors.ErrMailingHasNoMessage
	}
	msg, err := e.Messages.GetByID(ctx, *m.MessageID)
	if err != nil {
		return fmt.Errorf("load message %d: %w", *m.MessageID, err)
	}
	clients, err := e.Mailings.ListRecipients(ctx, m.ID)
	if err != nil {
		return fmt.Errorf("load recipients of mailing %d: %w", m.ID, err)
	}

	var sent, failed int
	var storeErrs []error
	for _, c := range clients {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(storeErrs, err)...)
		}
		entry := e.deliver(ctx, m, msg, c)
		if err := e.Logs.Append(ctx, &entry); err != nil {
			log.WithError(err).WithField("recipient", c.Email).Error("append delivery log")
			storeErrs = append(storeErrs, fmt.Errorf("append delivery log for %s: %w", c.Email, err))
		}
		if entry.Status {
			sent++
		} else {
			failed++
		}
		if e.Events != nil {
			if err := e.Events.PublishDelivery(ctx, entry); err != nil {
				log.WithError(err).Warn("publish delivery event")
			}
		}
	}

	log.WithFields(logrus.Fields{"sent": sent, "failed": failed}).Info("mailing dispatched")
	return errors.Join(storeErrs...)
}

// deliver makes one bounded send attempt and describes it as a log row.
func (e *Executor) deliver(ctx context.Context, m *model.Mailing, msg *model.Message, c model.Client) model.DeliveryLog {
	timeout := e.SendTimeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	sendCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entry := model.DeliveryLog{
		Time:           m.StartTime,
		Status:         true,
		ServerResponse: model.ServerResponseOK,
		Recipient:      c.Email,
		MailingID:      m.ID,
		OwnerID:        m.OwnerID,
	}

	err := e.Sender.Send(sendCtx, mail.Envelope{
		From:    e.From,
		To:      c.Email,
		Subject: msg.Title,
		Body:    msg.Text,
	})
	if err != nil {
		entry.Status = false
		entry.ServerResponse = err.Error()
		logrus.WithError(err).WithFields(logrus.Fields{
			"mailing_id": m.ID,
			"recipient":  c.Email,
		}).Warn("delivery failed")
	}
	return entry
}
