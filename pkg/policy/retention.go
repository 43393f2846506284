package policy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ispkit/notify/pkg/logger"
)

// RetentionEnabled reports whether a notification record store is wired
// in. Callers scheduling the sweep should skip it when this is false,
// since the sweep has nothing to act on.
func (e *Engine) RetentionEnabled() bool {
	return e.retention != nil
}

// RetentionSweep walks every user with a settings row and applies their
// auto-archive and auto-delete windows to the notification record store.
// Users with neither window set are skipped. Per-user failures are logged
// and do not abort the sweep.
func (e *Engine) RetentionSweep(ctx context.Context) error {
	if e.retention == nil {
		return nil
	}

	userIDs, err := e.store.ListUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users for retention sweep: %w", err)
	}

	now := e.now()
	for _, userID := range userIDs {
		settings, err := e.store.GetSettings(ctx, userID)
		if err != nil {
			e.logger.Error("retention sweep: failed to load settings",
				logger.UserID(userID),
				logger.Error(err))
			continue
		}

		if settings.AutoArchiveAfterDays != nil {
			cutoff := now.AddDate(0, 0, -*settings.AutoArchiveAfterDays)
			n, err := e.retention.ArchiveRead(ctx, userID, cutoff)
			if err != nil {
				e.logger.Error("retention sweep: archive failed",
					logger.UserID(userID),
					logger.Error(err))
			} else if n > 0 {
				e.logger.Info("archived read notifications",
					logger.UserID(userID),
					slog.Int("count", n))
			}
		}

		if settings.AutoDeleteAfterDays != nil {
			cutoff := now.AddDate(0, 0, -*settings.AutoDeleteAfterDays)
			n, err := e.retention.DeleteExpired(ctx, userID, cutoff)
			if err != nil {
				e.logger.Error("retention sweep: delete failed",
					logger.UserID(userID),
					logger.Error(err))
			} else if n > 0 {
				e.logger.Info("deleted expired notifications",
					logger.UserID(userID),
					slog.Int("count", n))
			}
		}
	}

	return nil
}

// RetentionTask adapts the sweep for the periodic scheduler.
func (e *Engine) RetentionTask() func(ctx context.Context) error {
	return func(ctx context.Context) error {
		start := time.Now()
		if err := e.RetentionSweep(ctx); err != nil {
			return err
		}
		e.logger.Debug("retention sweep finished", logger.Duration(time.Since(start)))
		return nil
	}
}
