// Package email delivers incident notifications for the audit trail over
// SMTP. It is the out-of-band channel used when the integrity sweep confirms
// a chain failure: at that point the in-band record can no longer be trusted,
// so the alert leaves the system entirely.
package email

import "context"

// Sender delivers a plain-text notification email.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}
