package jobs

import (
	"context"
	"fmt"
	"html"

	"github.com/ispkit/notify/pkg/mailer"
)

// EmailMessenger delivers messaging-channel sends as transactional
// email. Recipients that are not email addresses fall through to the
// fallback transport, so OTP jobs addressed to phone numbers keep
// flowing when only email is configured.
type EmailMessenger struct {
	Sender   mailer.Sender
	Fallback Messenger
}

func (m EmailMessenger) Send(ctx context.Context, recipient, title, body string) error {
	if !mailer.ValidAddress(recipient) {
		if m.Fallback != nil {
			return m.Fallback.Send(ctx, recipient, title, body)
		}
		return fmt.Errorf("recipient %q is not an email address and no fallback transport is configured", recipient)
	}

	subject := title
	if subject == "" {
		subject = "Notification"
	}

	return m.Sender.Send(ctx, mailer.Message{
		To:       recipient,
		Subject:  subject,
		BodyHTML: fmt.Sprintf("<p>%s</p>", html.EscapeString(body)),
		Tag:      "notification",
	})
}
