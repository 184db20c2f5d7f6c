package reconciliation

import (
	"context"
	"time"
)

// Message is one unread notification e-mail.
type Message struct {
	UID     uint32
	Subject string
	Date    time.Time
	Body    string
}

// Mailbox is an open session against the notification mailbox.
type Mailbox interface {
	Unread(ctx context.Context, subject string) ([]Message, error)
	MarkRead(ctx context.Context, uids ...uint32) error
	Close() error
}

// Dialer opens a mailbox session for one job run.
type Dialer interface {
	Dial(ctx context.Context) (Mailbox, error)
	Configured() bool
}
