package policy

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrSettingsNotFound is returned by stores when no row exists for a user.
	ErrSettingsNotFound = errors.New("notification settings not found")

	// ErrStoreNil is returned when an engine is created without a store.
	ErrStoreNil = errors.New("settings store cannot be nil")
)

// SettingsStore persists one settings row per user with upsert semantics.
// Rows are only ever mutated scoped to a single user, so implementations
// need no cross-user locking.
type SettingsStore interface {
	// GetSettings returns a user's row or ErrSettingsNotFound.
	GetSettings(ctx context.Context, userID string) (*UserNotificationSettings, error)

	// UpsertSettings inserts or replaces the user's row.
	UpsertSettings(ctx context.Context, settings *UserNotificationSettings) error

	// ListUserIDs returns every user with a settings row, for sweeps.
	ListUserIDs(ctx context.Context) ([]string, error)
}

// RetentionStore is the notification record store boundary used by the
// auto-archive/auto-delete sweep. The record store itself is an external
// collaborator; only these two operations are needed here.
type RetentionStore interface {
	// ArchiveRead marks read notifications created before cutoff as archived.
	ArchiveRead(ctx context.Context, userID string, cutoff time.Time) (int, error)

	// DeleteExpired permanently deletes archived-or-read notifications
	// created before cutoff.
	DeleteExpired(ctx context.Context, userID string, cutoff time.Time) (int, error)
}
