// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrClientNotFound      = errors.New("client not found")
	ErrMessageNotFound     = errors.New("message not found")
	ErrInvalidPeriodicity  = errors.New("invalid periodicity")
	ErrInvalidStatus       = errors.New("invalid mailing status")
	ErrInvalidWindow       = errors.New("mailing end_time must not precede start_time")
	ErrOutsideWindow       = errors.New("mailing is outside its start/end window")
	ErrMailingHasNoMessage = errors.New("mailing has no message")
	ErrForbidden           = errors.New("resource belongs to another user")
	ErrValidation          = errors.New("validation failed")
)

// ErrMailingNotFound is returned when a mailing id has no row
type ErrMailingNotFound struct {
	MailingID int
}

func (e *ErrMailingNotFound) Error() string {
	return fmt.Sprintf("mailing with ID %d not found", e.MailingID)
}

// Helper constructor
func NewMailingNotFound(id int) error {
	return &ErrMailingNotFound{MailingID: id}
}

// IsNotFound matches every not-found error of the store.
func IsNotFound(err error) bool {
	var mnf *ErrMailingNotFound
	return errors.As(err, &mnf) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrClientNotFound) ||
		errors.Is(err, ErrMessageNotFound)
}

// InvalidValueError carries the rejected input alongside the sentinel it wraps.
type InvalidValueError struct {
	Kind  error
	Value string
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("%v: %q", e.Kind, e.Value)
}

func (e *InvalidValueError) Unwrap() error { return e.Kind }

func NewInvalidValue(kind error, value string) error {
	return &InvalidValueError{Kind: kind, Value: value}
}
