package devices

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ispkit/notify/pkg/logger"
)

// DefaultInactiveWindow is how long a device may stay inactive before the
// periodic sweep hard-deletes it.
const DefaultInactiveWindow = 90 * 24 * time.Hour

// Transport delivers a push notification to a single device. FCM, APNs or
// a stub; the registry does not care.
type Transport interface {
	Send(ctx context.Context, device Device, notif PushNotification) error
}

// Registry tracks push-capable devices per user and fans pushes out to
// them, recording per-device outcomes in the delivery log.
type Registry struct {
	store     Store
	transport Transport
	logger    *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithTransport wires a real push transport. Without one the registry
// still runs the full fan-out flow with simulated outcomes.
func WithTransport(t Transport) RegistryOption {
	return func(r *Registry) {
		r.transport = t
	}
}

// WithRegistryLogger sets the logger for the registry.
func WithRegistryLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry creates a device registry over the given store.
func NewRegistry(store Store, opts ...RegistryOption) (*Registry, error) {
	if store == nil {
		return nil, ErrStoreNil
	}

	r := &Registry{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Register upserts a device by token. A token collision re-binds the
// device to the registering user and marks it active.
func (r *Registry) Register(ctx context.Context, userID string, input RegisterInput) (*Device, error) {
	if input.DeviceToken == "" {
		return nil, fmt.Errorf("device token is required")
	}
	if !input.DeviceType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDeviceType, input.DeviceType)
	}

	now := time.Now()
	device := &Device{
		ID:           uuid.New(),
		DeviceToken:  input.DeviceToken,
		UserID:       userID,
		DeviceType:   input.DeviceType,
		DeviceName:   input.DeviceName,
		DeviceModel:  input.DeviceModel,
		OSVersion:    input.OSVersion,
		AppVersion:   input.AppVersion,
		IsActive:     true,
		LastActiveAt: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	registered, err := r.store.UpsertDevice(ctx, device)
	if err != nil {
		return nil, fmt.Errorf("failed to register device: %w", err)
	}

	r.logger.Info("device registered",
		logger.UserID(userID),
		logger.DeviceID(registered.ID),
		slog.String("device_type", string(registered.DeviceType)))

	return registered, nil
}

// Unregister soft-deactivates a device by token.
func (r *Registry) Unregister(ctx context.Context, token string) error {
	if err := r.store.DeactivateDevice(ctx, token); err != nil {
		return fmt.Errorf("failed to unregister device: %w", err)
	}
	return nil
}

// UserDevices returns the user's active devices, most recently active first.
func (r *Registry) UserDevices(ctx context.Context, userID string) ([]Device, error) {
	return r.store.ListActiveDevices(ctx, userID)
}

// SendPush fans a notification out to every active device of the user.
// Per-device failures are isolated and recorded individually; one bad
// device never aborts delivery to the others.
//
// Without a configured transport the flow still runs end to end, logging
// a simulated-send marker per device so callers observe identical
// behavior either way.
func (r *Registry) SendPush(ctx context.Context, userID string, notif PushNotification) (Result, error) {
	devices, err := r.store.ListActiveDevices(ctx, userID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to list devices for user %s: %w", userID, err)
	}

	result := Result{Total: len(devices)}
	for _, device := range devices {
		if err := r.sendToDevice(ctx, device, notif); err != nil {
			result.Failed++
			continue
		}
		result.Sent++
	}

	return result, nil
}

func (r *Registry) sendToDevice(ctx context.Context, device Device, notif PushNotification) error {
	if r.transport == nil {
		r.logDelivery(ctx, notif.ID, device.ID, StatusSent, "push transport not configured; delivery simulated")
		return nil
	}

	if err := r.transport.Send(ctx, device, notif); err != nil {
		r.logger.Warn("push delivery failed",
			logger.UserID(device.UserID),
			logger.DeviceID(device.ID),
			logger.Error(err))
		r.logDelivery(ctx, notif.ID, device.ID, StatusFailed, err.Error())
		return err
	}

	r.logDelivery(ctx, notif.ID, device.ID, StatusSent, "")
	return nil
}

// logDelivery appends a delivery log row; log failures are reported but
// never fail the send itself.
func (r *Registry) logDelivery(ctx context.Context, notificationID string, deviceID uuid.UUID, status DeliveryStatus, errorMessage string) {
	entry := &PushDeliveryLog{
		ID:             uuid.New(),
		NotificationID: notificationID,
		DeviceID:       deviceID,
		Status:         status,
		CreatedAt:      time.Now(),
	}
	entry.stamp(status, entry.CreatedAt)
	if errorMessage != "" {
		entry.ErrorMessage = &errorMessage
	}

	if err := r.store.CreateLog(ctx, entry); err != nil {
		r.logger.Error("failed to record push delivery log",
			logger.DeviceID(deviceID),
			logger.Error(err))
	}
}

// SendBulkPush fans a notification out to multiple users and aggregates
// the results. Per-user failures do not abort the rest.
func (r *Registry) SendBulkPush(ctx context.Context, userIDs []string, notif PushNotification) (Result, error) {
	var total Result
	for _, userID := range userIDs {
		res, err := r.SendPush(ctx, userID, notif)
		if err != nil {
			r.logger.Error("bulk push failed for user",
				logger.UserID(userID),
				logger.Error(err))
			continue
		}
		total.add(res)
	}
	return total, nil
}

// LogDelivery records a delivery status progression reported by a client
// or transport callback. Transitions are monotonic: sent -> delivered ->
// clicked, with failed only reachable from sent.
func (r *Registry) LogDelivery(ctx context.Context, notificationID string, deviceID uuid.UUID, status DeliveryStatus, errorMessage string) error {
	return r.store.UpdateLogStatus(ctx, notificationID, deviceID, status, errorMessage)
}

// DeliveryLogs returns the per-device delivery rows for a notification.
func (r *Registry) DeliveryLogs(ctx context.Context, notificationID string) ([]PushDeliveryLog, error) {
	return r.store.ListLogs(ctx, notificationID)
}

// CleanupInactive hard-deletes devices inactive for longer than the given
// window (DefaultInactiveWindow when zero). Returns the number deleted.
func (r *Registry) CleanupInactive(ctx context.Context, window time.Duration) (int, error) {
	if window <= 0 {
		window = DefaultInactiveWindow
	}

	deleted, err := r.store.DeleteInactive(ctx, time.Now().Add(-window))
	if err != nil {
		return 0, fmt.Errorf("failed to delete inactive devices: %w", err)
	}

	if deleted > 0 {
		r.logger.Info("deleted inactive devices", slog.Int("count", deleted))
	}
	return deleted, nil
}

// CleanupTask adapts CleanupInactive for the periodic scheduler.
func (r *Registry) CleanupTask(window time.Duration) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		_, err := r.CleanupInactive(ctx, window)
		return err
	}
}
