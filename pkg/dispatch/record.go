package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ispkit/notify/pkg/policy"
)

// RecordStatus classifies the outcome of one (recipient, channel) attempt.
type RecordStatus string

const (
	// RecordSent means the channel accepted the event for delivery.
	RecordSent RecordStatus = "sent"

	// RecordSuppressed means the policy engine blocked the event for
	// this recipient. A deliberate outcome, not a failure.
	RecordSuppressed RecordStatus = "suppressed"

	// RecordFailed means the channel dispatch errored.
	RecordFailed RecordStatus = "failed"
)

// DeliveryRecord is the audit row persisted per recipient and channel.
// Suppressed and offline deliveries stay inspectable through these rows
// even though no live signal was sent.
type DeliveryRecord struct {
	ID        uuid.UUID       `json:"id"`
	EventType string          `json:"event_type"`
	Priority  policy.Priority `json:"priority"`
	UserID    string          `json:"user_id"`
	Channel   string          `json:"channel"`
	Status    RecordStatus    `json:"status"`
	Reason    string          `json:"reason,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// RecordStore persists delivery outcome records.
type RecordStore interface {
	Append(ctx context.Context, rec DeliveryRecord) error
	ListByUser(ctx context.Context, userID string, limit int) ([]DeliveryRecord, error)
	ListByStatus(ctx context.Context, status RecordStatus, limit int) ([]DeliveryRecord, error)
}

// MemoryRecordStore keeps delivery records in memory, newest first.
type MemoryRecordStore struct {
	mu      sync.RWMutex
	records []DeliveryRecord
}

// NewMemoryRecordStore creates an empty in-memory record store.
func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{}
}

func (s *MemoryRecordStore) Append(_ context.Context, rec DeliveryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *MemoryRecordStore) ListByUser(_ context.Context, userID string, limit int) ([]DeliveryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter(limit, func(rec DeliveryRecord) bool { return rec.UserID == userID }), nil
}

func (s *MemoryRecordStore) ListByStatus(_ context.Context, status RecordStatus, limit int) ([]DeliveryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter(limit, func(rec DeliveryRecord) bool { return rec.Status == status }), nil
}

// filter expects s.mu to be held. Scans newest first.
func (s *MemoryRecordStore) filter(limit int, match func(DeliveryRecord) bool) []DeliveryRecord {
	if limit <= 0 {
		limit = 100
	}
	out := make([]DeliveryRecord, 0, limit)
	for i := len(s.records) - 1; i >= 0 && len(out) < limit; i-- {
		if match(s.records[i]) {
			out = append(out, s.records[i])
		}
	}
	return out
}
