package policy

import (
	"context"
	"maps"
	"sync"
)

// MemoryStore is an in-memory SettingsStore for testing and local development.
type MemoryStore struct {
	mu       sync.RWMutex
	settings map[string]*UserNotificationSettings
}

// NewMemoryStore creates an empty in-memory settings store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		settings: make(map[string]*UserNotificationSettings),
	}
}

func (ms *MemoryStore) GetSettings(ctx context.Context, userID string) (*UserNotificationSettings, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	settings, exists := ms.settings[userID]
	if !exists {
		return nil, ErrSettingsNotFound
	}

	return cloneSettings(settings), nil
}

func (ms *MemoryStore) UpsertSettings(ctx context.Context, settings *UserNotificationSettings) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.settings[settings.UserID] = cloneSettings(settings)
	return nil
}

func (ms *MemoryStore) ListUserIDs(ctx context.Context) ([]string, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	ids := make([]string, 0, len(ms.settings))
	for id := range ms.settings {
		ids = append(ids, id)
	}
	return ids, nil
}

// cloneSettings deep-copies a row so callers never share mutable state
// with the store.
func cloneSettings(s *UserNotificationSettings) *UserNotificationSettings {
	c := *s
	if s.TypeSettings != nil {
		c.TypeSettings = maps.Clone(s.TypeSettings)
	}
	if s.DNDUntil != nil {
		t := *s.DNDUntil
		c.DNDUntil = &t
	}
	if s.AutoArchiveAfterDays != nil {
		v := *s.AutoArchiveAfterDays
		c.AutoArchiveAfterDays = &v
	}
	if s.AutoDeleteAfterDays != nil {
		v := *s.AutoDeleteAfterDays
		c.AutoDeleteAfterDays = &v
	}
	return &c
}
