package port

import (
	"context"
	"io"
)

// MailMessage is an outbound email.
type MailMessage struct {
	To      string
	Subject string
	HTML    string
}

// Mailer delivers emails.
type Mailer interface {
	Send(ctx context.Context, msg MailMessage) error
}

// SubmissionStore persists uploaded work. Put replaces any previous upload for the account
// and returns the location it was written to.
type SubmissionStore interface {
	Put(ctx context.Context, accountID string, body io.Reader, size int64) (string, error)
}
