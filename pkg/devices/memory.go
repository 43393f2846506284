package devices

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for testing and local development.
type MemoryStore struct {
	mu      sync.RWMutex
	byToken map[string]*Device
	logs    []*PushDeliveryLog
}

// NewMemoryStore creates an empty in-memory device store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byToken: make(map[string]*Device),
	}
}

func (ms *MemoryStore) UpsertDevice(ctx context.Context, device *Device) (*Device, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	if existing, ok := ms.byToken[device.DeviceToken]; ok {
		// Token collision: re-bind to the registering user and reactivate.
		existing.UserID = device.UserID
		existing.DeviceType = device.DeviceType
		existing.DeviceName = device.DeviceName
		existing.DeviceModel = device.DeviceModel
		existing.OSVersion = device.OSVersion
		existing.AppVersion = device.AppVersion
		existing.IsActive = true
		existing.LastActiveAt = now
		existing.UpdatedAt = now

		deviceCopy := *existing
		return &deviceCopy, nil
	}

	deviceCopy := *device
	ms.byToken[device.DeviceToken] = &deviceCopy

	result := deviceCopy
	return &result, nil
}

func (ms *MemoryStore) GetDeviceByToken(ctx context.Context, token string) (*Device, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	device, ok := ms.byToken[token]
	if !ok {
		return nil, ErrDeviceNotFound
	}

	deviceCopy := *device
	return &deviceCopy, nil
}

func (ms *MemoryStore) DeactivateDevice(ctx context.Context, token string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	device, ok := ms.byToken[token]
	if !ok {
		return ErrDeviceNotFound
	}

	device.IsActive = false
	device.UpdatedAt = time.Now()
	return nil
}

func (ms *MemoryStore) ListActiveDevices(ctx context.Context, userID string) ([]Device, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var devices []Device
	for _, d := range ms.byToken {
		if d.UserID == userID && d.IsActive {
			devices = append(devices, *d)
		}
	}

	sort.Slice(devices, func(i, j int) bool {
		return devices[i].LastActiveAt.After(devices[j].LastActiveAt)
	})

	return devices, nil
}

func (ms *MemoryStore) DeleteInactive(ctx context.Context, cutoff time.Time) (int, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	deleted := 0
	for token, d := range ms.byToken {
		if d.LastActiveAt.Before(cutoff) {
			delete(ms.byToken, token)
			deleted++
		}
	}
	return deleted, nil
}

func (ms *MemoryStore) CreateLog(ctx context.Context, log *PushDeliveryLog) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	logCopy := *log
	ms.logs = append(ms.logs, &logCopy)
	return nil
}

func (ms *MemoryStore) UpdateLogStatus(ctx context.Context, notificationID string, deviceID uuid.UUID, status DeliveryStatus, errorMessage string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	for _, l := range ms.logs {
		if l.NotificationID != notificationID || l.DeviceID != deviceID {
			continue
		}

		if !advances(l.Status, status) {
			return ErrStatusNotAdvancing
		}

		l.Status = status
		l.stamp(status, time.Now())
		if errorMessage != "" {
			msg := errorMessage
			l.ErrorMessage = &msg
		}
		return nil
	}

	return ErrLogNotFound
}

func (ms *MemoryStore) ListLogs(ctx context.Context, notificationID string) ([]PushDeliveryLog, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var logs []PushDeliveryLog
	for _, l := range ms.logs {
		if l.NotificationID == notificationID {
			logs = append(logs, *l)
		}
	}
	return logs, nil
}
