// Package mailer sends transactional notification emails. It backs the
// email arm of the messaging channel: job workers hand it rendered
// messages and it delivers them through Postmark, or drops them to disk
// in development.
package mailer

import (
	"context"
	"fmt"
	"regexp"
)

// Sender delivers one email message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Message is a single outbound email.
type Message struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	BodyHTML string `json:"body_html"`
	Tag      string `json:"tag,omitempty"`
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// ValidAddress reports whether s looks like a deliverable email address.
func ValidAddress(s string) bool {
	return emailRegex.MatchString(s)
}

// Validate checks the message is deliverable.
func (m Message) Validate() error {
	if m.To == "" || !emailRegex.MatchString(m.To) {
		return fmt.Errorf("%w: recipient %q is not a valid email address", ErrInvalidMessage, m.To)
	}
	if m.Subject == "" {
		return fmt.Errorf("%w: subject is required", ErrInvalidMessage)
	}
	if m.BodyHTML == "" {
		return fmt.Errorf("%w: body is required", ErrInvalidMessage)
	}
	return nil
}

// Config holds mailer settings loaded from the environment. Tokens are
// optional so development environments can run without Postmark; the
// wiring falls back to a file drop or simulated sends when they are
// absent.
type Config struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"MAILER_SENDER_EMAIL"`
	SupportEmail         string `env:"MAILER_SUPPORT_EMAIL"`
	DropDir              string `env:"MAILER_DROP_DIR" envDefault:"./tmp/emails"`
}

// Configured reports whether the config carries enough to send real email.
func (c Config) Configured() bool {
	return c.PostmarkServerToken != "" && c.PostmarkAccountToken != "" && c.SenderEmail != ""
}
