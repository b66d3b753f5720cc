package adapter

import "context"

// Mailer sends notification email. Callers treat delivery as best-effort:
// failures are logged, never surfaced to the financial flow.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}
