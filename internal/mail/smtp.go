package mail

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	gomail "gopkg.in/mail.v2"

	"github.com/unclebandit/mailer-backend/internal/config"
)

// SMTPSender sends plain-text mail through one SMTP relay.
type SMTPSender struct {
	dialer *gomail.Dialer
}

func NewSMTPSender(cfg config.SMTPConfig, timeout time.Duration) *SMTPSender {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.SSL = cfg.UseSSL
	if timeout > 0 {
		d.Timeout = timeout
	}
	return &SMTPSender{dialer: d}
}

// Send dials, sends and hangs up. A ctx deadline that fires first reports a
// TransportError without waiting for the dial. The abandoned SMTP session is
// not interrupted and may still hand the mail to the relay, so a failed
// result means "not confirmed", not "not delivered". The session itself is
// bounded by the dialer timeout.
func (s *SMTPSender) Send(ctx context.Context, env Envelope) error {
	m := gomail.NewMessage()
	m.SetHeader("From", env.From)
	m.SetHeader("To", env.To)
	m.SetHeader("Subject", env.Subject)
	m.SetBody("text/plain", env.Body)

	done := make(chan error, 1)
	go func() {
		done <- s.dialer.DialAndSend(m)
	}()

	select {
	case err := <-done:
		if err != nil {
			return &TransportError{Recipient: env.To, Err: err}
		}
		logrus.WithField("recipient", env.To).Debug("mail sent")
		return nil
	case <-ctx.Done():
		return &TransportError{Recipient: env.To, Err: ctx.Err()}
	}
}

var _ Sender = (*SMTPSender)(nil)
