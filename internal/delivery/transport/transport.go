// Package transport hands rendered messages to a mail server.
package transport

import (
	"context"

	"ndaflow/internal/delivery/message"
)

// Transport sends one rendered message. It returns the message id the server
// accepted. Errors coded CodePermanentFailure must not be retried.
type Transport interface {
	Send(ctx context.Context, env message.Envelope, raw []byte) (string, error)
}
