// Package relay delivers outgoing mail to recipients that are not wallet
// addresses.
package relay

import (
	"context"
	"errors"
)

// ErrInvalidRecipient means the relay cannot address the recipient.
var ErrInvalidRecipient = errors.New("relay cannot deliver to this recipient")

// Message is one outgoing message.
type Message struct {
	// From is the sender's wallet address.
	From     string
	FromName string

	To      string
	Subject string

	// Text is the body as typed; HTML is the rendered body stored on the
	// sent copy.
	Text string
	HTML string

	// PinCode is set for verification messages.
	PinCode string
}

// Relay hands a message to an external delivery system.
type Relay interface {
	Deliver(ctx context.Context, msg Message) error
}

// Func adapts a function to Relay.
type Func func(ctx context.Context, msg Message) error

func (f Func) Deliver(ctx context.Context, msg Message) error { return f(ctx, msg) }
