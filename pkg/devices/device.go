package devices

import (
	"time"

	"github.com/google/uuid"
)

// DeviceType is the platform a device runs on.
type DeviceType string

const (
	DeviceTypeAndroid DeviceType = "android"
	DeviceTypeIOS     DeviceType = "ios"
	DeviceTypeWeb     DeviceType = "web"
)

// Valid reports whether t is a known device type.
func (t DeviceType) Valid() bool {
	switch t {
	case DeviceTypeAndroid, DeviceTypeIOS, DeviceTypeWeb:
		return true
	}
	return false
}

// Device is a push-capable endpoint owned by a user. Tokens are unique:
// registering an existing token re-binds the device to the registering
// user and reactivates it.
type Device struct {
	ID           uuid.UUID  `json:"id"`
	DeviceToken  string     `json:"device_token"`
	UserID       string     `json:"user_id"`
	DeviceType   DeviceType `json:"device_type"`
	DeviceName   string     `json:"device_name,omitempty"`
	DeviceModel  string     `json:"device_model,omitempty"`
	OSVersion    string     `json:"os_version,omitempty"`
	AppVersion   string     `json:"app_version,omitempty"`
	IsActive     bool       `json:"is_active"`
	LastActiveAt time.Time  `json:"last_active_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// RegisterInput is the client-supplied device data for registration.
type RegisterInput struct {
	DeviceToken string     `json:"device_token"`
	DeviceType  DeviceType `json:"device_type"`
	DeviceName  string     `json:"device_name,omitempty"`
	DeviceModel string     `json:"device_model,omitempty"`
	OSVersion   string     `json:"os_version,omitempty"`
	AppVersion  string     `json:"app_version,omitempty"`
}

// PushNotification is the payload handed to the push transport.
type PushNotification struct {
	ID      string         `json:"id"`
	Title   string         `json:"title"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// Result aggregates the outcome of a push fan-out.
type Result struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
	Total  int `json:"total"`
}

func (r *Result) add(other Result) {
	r.Sent += other.Sent
	r.Failed += other.Failed
	r.Total += other.Total
}
