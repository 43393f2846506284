package mailer

import "errors"

var (
	// ErrInvalidConfig is returned when sender configuration is incomplete.
	ErrInvalidConfig = errors.New("invalid mailer configuration")

	// ErrInvalidMessage is returned when a message fails validation.
	ErrInvalidMessage = errors.New("invalid email message")

	// ErrSendFailed is returned when the delivery backend rejects a message.
	ErrSendFailed = errors.New("failed to send email")
)
