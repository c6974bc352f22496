package mailer

import "context"

// Transport delivers one message to one recipient.
type Transport interface {
	Name() string
	Send(ctx context.Context, m Message) error
}
