package devices

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryStatus is a push delivery lifecycle stage.
type DeliveryStatus string

const (
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusClicked   DeliveryStatus = "clicked"
	StatusFailed    DeliveryStatus = "failed"
)

// statusRank orders the success lifecycle sent -> delivered -> clicked.
var statusRank = map[DeliveryStatus]int{
	StatusSent:      1,
	StatusDelivered: 2,
	StatusClicked:   3,
}

// advances reports whether moving from cur to next is a legal, forward
// transition. Failed is terminal and only reachable from sent; the
// success chain never regresses or repeats a stage.
func advances(cur, next DeliveryStatus) bool {
	if cur == StatusFailed {
		return false
	}
	if next == StatusFailed {
		return cur == StatusSent
	}
	return statusRank[next] > statusRank[cur]
}

// PushDeliveryLog is one row per (notification, device) push attempt.
// The per-stage timestamps are set exactly once, on the first transition
// into that status.
type PushDeliveryLog struct {
	ID             uuid.UUID      `json:"id"`
	NotificationID string         `json:"notification_id"`
	DeviceID       uuid.UUID      `json:"device_id"`
	Status         DeliveryStatus `json:"status"`
	SentAt         *time.Time     `json:"sent_at,omitempty"`
	DeliveredAt    *time.Time     `json:"delivered_at,omitempty"`
	ClickedAt      *time.Time     `json:"clicked_at,omitempty"`
	ErrorMessage   *string        `json:"error_message,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// stamp sets the timestamp field for the given status if not already set.
func (l *PushDeliveryLog) stamp(status DeliveryStatus, at time.Time) {
	switch status {
	case StatusSent:
		if l.SentAt == nil {
			l.SentAt = &at
		}
	case StatusDelivered:
		if l.DeliveredAt == nil {
			l.DeliveredAt = &at
		}
	case StatusClicked:
		if l.ClickedAt == nil {
			l.ClickedAt = &at
		}
	}
}
