package mail

import (
	"context"
	"fmt"
)

// Envelope is one outgoing message to a single recipient.
type Envelope struct {
	From    string
	To      string
	Subject string
	Body    string
}

// Sender delivers an envelope over some messaging transport.
type Sender interface {
	Send(ctx context.Context, env Envelope) error
}

// TransportError is returned when the transport refused or failed to deliver.
// Its text ends up in the delivery log's server_response.
type TransportError struct {
	Recipient string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("send to %s: %v", e.Recipient, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// SenderFunc adapts a plain function to Sender.
type SenderFunc func(ctx context.Context, env Envelope) error

func (f SenderFunc) Send(ctx context.Context, env Envelope) error { return f(ctx, env) }
