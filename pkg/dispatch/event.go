package dispatch

import (
	"errors"
	"time"

	"github.com/ispkit/notify/pkg/policy"
)

var (
	// ErrUnknownEventType is returned when an event's type was never
	// registered with the dispatcher.
	ErrUnknownEventType = errors.New("unknown notification event type")

	// ErrInvalidPriority is returned for priorities outside low/normal/high/urgent.
	ErrInvalidPriority = errors.New("invalid notification priority")

	// ErrNoTarget is returned when an event names neither a user nor a role.
	ErrNoTarget = errors.New("notification event has no target")

	// ErrNoRecipients is returned when a role target resolves to nobody.
	ErrNoRecipients = errors.New("no recipients resolved for event")
)

// NotificationEvent is the unit of work entering the delivery pipeline.
// It is immutable once created and owned by the dispatcher for its
// lifetime. Target names a single user, a role, or both.
type NotificationEvent struct {
	Type      string          `json:"type"`
	Priority  policy.Priority `json:"priority"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Payload   map[string]any  `json:"payload,omitempty"`
	Target    Target          `json:"target"`
	CreatedAt time.Time       `json:"created_at"`
}

// Target addresses the recipients of an event.
type Target struct {
	UserID string `json:"user_id,omitempty"`
	Role   string `json:"role,omitempty"`
}

// NewEvent assembles a validated notification event.
func NewEvent(eventType string, priority policy.Priority, title, message string, payload map[string]any, target Target) (NotificationEvent, error) {
	if !priority.Valid() {
		return NotificationEvent{}, ErrInvalidPriority
	}
	if target.UserID == "" && target.Role == "" {
		return NotificationEvent{}, ErrNoTarget
	}

	return NotificationEvent{
		Type:      eventType,
		Priority:  priority,
		Title:     title,
		Message:   message,
		Payload:   payload,
		Target:    target,
		CreatedAt: time.Now(),
	}, nil
}

// defaultEventTypes are the event tags producers emit out of the box.
// Additional types are registered on the dispatcher at wiring time.
var defaultEventTypes = []string{
	"notification",
	"new_ticket",
	"ticket_assigned",
	"ticket_updated",
	"dashboard_update",
	"otp_requested",
	"invoice_created",
	"payment_received",
	"user_registered",
}
