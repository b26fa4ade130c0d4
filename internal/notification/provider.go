// Package notification delivers one message per subscriber over a mail
// transport session and reports how the fan-out went.
package notification

import (
	"context"
	"fmt"
)

// Recipient is one addressee of a fan-out.
type Recipient struct {
	Address string
	Name    string
}

// Content is what every recipient receives.
type Content struct {
	Subject string
	Body    string
}

// Message is a single outbound message.
type Message struct {
	To      Recipient
	Subject string
	Body    string
}

// Transport opens delivery sessions.
type Transport interface {
	// Name returns the transport identifier (e.g. "smtp").
	Name() string
	// Open connects and returns a session ready to send.
	Open(ctx context.Context) (Session, error)
}

// Session is one connected transport session.
type Session interface {
	// Send delivers one message.
	Send(ctx context.Context, msg Message) error
	// Close disconnects the session.
	Close() error
}

// TransportSendError reports a failed delivery to one recipient.
type TransportSendError struct {
	Address string
	Err     error
}

func (e *TransportSendError) Error() string {
	return fmt.Sprintf("sending to %q: %v", e.Address, e.Err)
}

func (e *TransportSendError) Unwrap() error { return e.Err }
