// internal/model/mailing.go
package model

import (
	"strings"
	"time"

	appErrors "github.com/unclebandit/mailer-backend/internal/errors"
)

type Periodicity string

const (
	PeriodicityDaily   Periodicity = "daily"
	PeriodicityWeekly  Periodicity = "weekly"
	PeriodicityMonthly Periodicity = "monthly"
)

// ParsePeriodicity validates a periodicity tag coming from the API or the queue.
func ParsePeriodicity(s string) (Periodicity, error) {
	switch p := Periodicity(strings.ToLower(strings.TrimSpace(s))); p {
	case PeriodicityDaily, PeriodicityWeekly, PeriodicityMonthly:
		return p, nil
	}
	return "", appErrors.NewInvalidValue(appErrors.ErrInvalidPeriodicity, s)
}

type Status string

const (
	StatusCreated   Status = "created"
	StatusStarted   Status = "started"
	StatusCompleted Status = "completed"
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusCreated, StatusStarted, StatusCompleted:
		return st, nil
	}
	return "", appErrors.NewInvalidValue(appErrors.ErrInvalidStatus, s)
}

// Mailing is the scheduling unit: a message sent to a set of clients on a
// cadence while now is inside [StartTime, EndTime].
//
// IsActive and Status are independent. IsActive is flipped in bulk per owner
// by activation tasks, Status is advanced per mailing by dispatch.
type Mailing struct {
	ID          int         `db:"id" json:"id"`
	StartTime   time.Time   `db:"start_time" json:"start_time"`
	EndTime     time.Time   `db:"end_time" json:"end_time"`
	Periodicity Periodicity `db:"periodicity" json:"periodicity"`
	Status      Status      `db:"status" json:"status"`
	IsActive    bool        `db:"is_active" json:"is_active"`
	OwnerID     int         `db:"owner_id" json:"owner_id"`
	MessageID   *int        `db:"message_id" json:"message_id,omitempty"`
	ClientIDs   []int       `json:"client_ids"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt   *time.Time  `db:"updated_at" json:"updated_at,omitempty"`
}

// InWindow reports whether now falls inside the inclusive validity window.
func (m *Mailing) InWindow(now time.Time) bool {
	return !now.Before(m.StartTime) && !now.After(m.EndTime)
}

// Expired reports whether the window has already closed.
func (m *Mailing) Expired(now time.Time) bool {
	return now.After(m.EndTime)
}

// Validate checks the invariants a mailing must satisfy before it is stored.
func (m *Mailing) Validate() error {
	if _, err := ParsePeriodicity(string(m.Periodicity)); err != nil {
		return err
	}
	if _, err := ParseStatus(string(m.Status)); err != nil {
		return err
	}
	if m.StartTime.IsZero() || m.EndTime.IsZero() {
		return appErrors.ErrInvalidWindow
	}
	if m.EndTime.Before(m.StartTime) {
		return appErrors.ErrInvalidWindow
	}
	return nil
}

// MailingStats are the aggregate counts shown next to a user's mailing list.
type MailingStats struct {
	All          int `json:"all"`
	Active       int `json:"active"`
	ClientsCount int `json:"clients_count"`
}
