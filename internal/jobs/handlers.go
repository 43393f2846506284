// Package jobs wires the messaging-channel job handlers processed by the
// delivery queue workers.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ispkit/notify/pkg/dispatch"
	"github.com/ispkit/notify/pkg/jobqueue"
	"github.com/ispkit/notify/pkg/logger"
)

// Messenger sends one message over the external messaging transport.
type Messenger interface {
	Send(ctx context.Context, recipient, title, body string) error
}

// SimulatedMessenger logs sends instead of delivering them. Used when no
// messaging transport is configured so the full job lifecycle still runs.
type SimulatedMessenger struct {
	Log *slog.Logger
}

func (m SimulatedMessenger) Send(ctx context.Context, recipient, title, _ string) error {
	log := m.Log
	if log == nil {
		log = slog.Default()
	}
	log.InfoContext(ctx, "messaging transport not configured; delivery simulated",
		slog.String("recipient", recipient),
		slog.String("title", title))
	return nil
}

// Handlers builds the four messaging job handlers. Group jobs expand
// their role through the resolver; per-recipient failures are collected
// so one bad recipient fails the job without hiding the others.
func Handlers(messenger Messenger, resolver dispatch.RecipientResolver, log *slog.Logger) []jobqueue.Handler {
	if messenger == nil {
		messenger = SimulatedMessenger{Log: log}
	}
	if log == nil {
		log = slog.Default()
	}

	sendOTP := func(ctx context.Context, p jobqueue.OTPPayload) error {
		if p.Recipient == "" || p.Code == "" {
			return errors.New("otp job requires recipient and code")
		}
		body := fmt.Sprintf("Your verification code is %s", p.Code)
		if err := messenger.Send(ctx, p.Recipient, p.Purpose, body); err != nil {
			return fmt.Errorf("failed to send otp to %s: %w", p.Recipient, err)
		}
		return nil
	}

	sendNotification := func(ctx context.Context, p jobqueue.NotificationPayload) error {
		if p.UserID == "" {
			return errors.New("notification job requires a user id")
		}
		if err := messenger.Send(ctx, p.UserID, p.Title, p.Message); err != nil {
			return fmt.Errorf("failed to notify %s: %w", p.UserID, err)
		}
		return nil
	}

	sendGroup := func(ctx context.Context, p jobqueue.GroupPayload) error {
		if resolver == nil {
			return errors.New("group job requires a recipient resolver")
		}
		members, err := resolver.ResolveRole(ctx, p.Role)
		if err != nil {
			return fmt.Errorf("failed to resolve role %q: %w", p.Role, err)
		}
		return sendToAll(ctx, messenger, log, members, p.Title, p.Message)
	}

	sendBulk := func(ctx context.Context, p jobqueue.BulkPayload) error {
		return sendToAll(ctx, messenger, log, p.UserIDs, p.Title, p.Message)
	}

	return []jobqueue.Handler{
		jobqueue.NewHandler(jobqueue.JobTypeSendOTP, sendOTP),
		jobqueue.NewHandler(jobqueue.JobTypeSendNotification, sendNotification),
		jobqueue.NewHandler(jobqueue.JobTypeSendGroup, sendGroup),
		jobqueue.NewHandler(jobqueue.JobTypeSendBulk, sendBulk),
	}
}

func sendToAll(ctx context.Context, messenger Messenger, log *slog.Logger, recipients []string, title, body string) error {
	var errs []error
	for _, recipient := range recipients {
		if err := messenger.Send(ctx, recipient, title, body); err != nil {
			log.WarnContext(ctx, "messaging send failed",
				logger.UserID(recipient),
				logger.Error(err))
			errs = append(errs, fmt.Errorf("recipient %s: %w", recipient, err))
		}
	}
	return errors.Join(errs...)
}
