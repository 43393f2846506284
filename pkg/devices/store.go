package devices

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrDeviceNotFound is returned when a device token or id does not exist.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrLogNotFound is returned when a delivery log row does not exist.
	ErrLogNotFound = errors.New("push delivery log not found")

	// ErrStoreNil is returned when a registry is created without a store.
	ErrStoreNil = errors.New("device store cannot be nil")

	// ErrInvalidDeviceType is returned for device types outside android/ios/web.
	ErrInvalidDeviceType = errors.New("invalid device type")

	// ErrStatusNotAdvancing is returned when a log status update would
	// regress or repeat the delivery lifecycle.
	ErrStatusNotAdvancing = errors.New("delivery status transition does not advance the lifecycle")
)

// Store persists devices and push delivery logs. Device rows are keyed
// uniquely by token, so concurrent registrations of one token serialize
// through the upsert's conflict resolution.
type Store interface {
	// UpsertDevice inserts a device or, when the token already exists,
	// re-binds it to the given user and reactivates it.
	UpsertDevice(ctx context.Context, device *Device) (*Device, error)

	// GetDeviceByToken returns a device by token or ErrDeviceNotFound.
	GetDeviceByToken(ctx context.Context, token string) (*Device, error)

	// DeactivateDevice soft-deactivates a device by token.
	DeactivateDevice(ctx context.Context, token string) error

	// ListActiveDevices returns a user's active devices,
	// most recently active first.
	ListActiveDevices(ctx context.Context, userID string) ([]Device, error)

	// DeleteInactive hard-deletes devices whose LastActiveAt is before
	// cutoff. Returns the number deleted.
	DeleteInactive(ctx context.Context, cutoff time.Time) (int, error)

	// CreateLog appends a push delivery log row.
	CreateLog(ctx context.Context, log *PushDeliveryLog) error

	// UpdateLogStatus advances a log row's status, stamping the
	// corresponding timestamp on first entry into that status.
	// Non-advancing transitions return ErrStatusNotAdvancing.
	UpdateLogStatus(ctx context.Context, notificationID string, deviceID uuid.UUID, status DeliveryStatus, errorMessage string) error

	// ListLogs returns the delivery log rows for a notification.
	ListLogs(ctx context.Context, notificationID string) ([]PushDeliveryLog, error)
}
