package policy

import "time"

// Priority is the urgency of a notification event.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Channel is one delivery medium.
type Channel string

const (
	ChannelWeb    Channel = "web"
	ChannelMobile Channel = "mobile"
	ChannelEmail  Channel = "email"
	ChannelSMS    Channel = "sms"
)

// TypeSetting is a per-event-type override.
type TypeSetting struct {
	Enabled bool `json:"enabled"`
}

// UserNotificationSettings is one row per user, created lazily with
// defaults on first access and mutated only through explicit updates.
type UserNotificationSettings struct {
	UserID string `json:"user_id"`

	// Channel toggles.
	Web        bool `json:"web"`
	MobilePush bool `json:"mobile_push"`
	Email      bool `json:"email"`
	SMS        bool `json:"sms"`

	// Quiet hours: a recurring daily suppression window in the user's
	// local time. The window may wrap past midnight.
	QuietHoursEnabled  bool   `json:"quiet_hours_enabled"`
	QuietHoursStart    string `json:"quiet_hours_start"`
	QuietHoursEnd      string `json:"quiet_hours_end"`
	QuietHoursTimezone string `json:"quiet_hours_timezone"`

	// Do-not-disturb: unset DNDUntil means indefinite.
	DNDEnabled bool       `json:"dnd_enabled"`
	DNDUntil   *time.Time `json:"dnd_until,omitempty"`

	// Priority visibility flags.
	ShowLowPriority    bool `json:"show_low_priority"`
	ShowNormalPriority bool `json:"show_normal_priority"`
	ShowHighPriority   bool `json:"show_high_priority"`
	ShowUrgentPriority bool `json:"show_urgent_priority"`

	// Per-event-type overrides.
	TypeSettings map[string]TypeSetting `json:"type_settings,omitempty"`

	// Batching.
	BatchNotifications bool `json:"batch_notifications"`
	BatchInterval      int  `json:"batch_interval"`

	// Retention, in days. Nil disables the corresponding sweep.
	AutoArchiveAfterDays *int `json:"auto_archive_after_days,omitempty"`
	AutoDeleteAfterDays  *int `json:"auto_delete_after_days,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultSettings returns the settings row created on first access.
func DefaultSettings(userID string) *UserNotificationSettings {
	now := time.Now()
	return &UserNotificationSettings{
		UserID:             userID,
		Web:                true,
		MobilePush:         true,
		Email:              true,
		SMS:                false,
		QuietHoursTimezone: "UTC",
		ShowLowPriority:    true,
		ShowNormalPriority: true,
		ShowHighPriority:   true,
		ShowUrgentPriority: true,
		BatchInterval:      15,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// showsPriority returns the visibility flag for the given priority.
// Unknown priorities are visible so new event grades are never dropped
// by stale settings rows.
func (s *UserNotificationSettings) showsPriority(p Priority) bool {
	switch p {
	case PriorityLow:
		return s.ShowLowPriority
	case PriorityNormal:
		return s.ShowNormalPriority
	case PriorityHigh:
		return s.ShowHighPriority
	case PriorityUrgent:
		return s.ShowUrgentPriority
	}
	return true
}

// SettingsPatch is a partial settings update: only non-nil fields overwrite.
type SettingsPatch struct {
	Web        *bool `json:"web,omitempty"`
	MobilePush *bool `json:"mobile_push,omitempty"`
	Email      *bool `json:"email,omitempty"`
	SMS        *bool `json:"sms,omitempty"`

	QuietHoursEnabled  *bool   `json:"quiet_hours_enabled,omitempty"`
	QuietHoursStart    *string `json:"quiet_hours_start,omitempty"`
	QuietHoursEnd      *string `json:"quiet_hours_end,omitempty"`
	QuietHoursTimezone *string `json:"quiet_hours_timezone,omitempty"`

	DNDEnabled *bool      `json:"dnd_enabled,omitempty"`
	DNDUntil   *time.Time `json:"dnd_until,omitempty"`
	ClearDND   bool       `json:"clear_dnd_until,omitempty"`

	ShowLowPriority    *bool `json:"show_low_priority,omitempty"`
	ShowNormalPriority *bool `json:"show_normal_priority,omitempty"`
	ShowHighPriority   *bool `json:"show_high_priority,omitempty"`
	ShowUrgentPriority *bool `json:"show_urgent_priority,omitempty"`

	BatchNotifications *bool `json:"batch_notifications,omitempty"`
	BatchInterval      *int  `json:"batch_interval,omitempty"`

	AutoArchiveAfterDays *int `json:"auto_archive_after_days,omitempty"`
	AutoDeleteAfterDays  *int `json:"auto_delete_after_days,omitempty"`
}

// apply copies the supplied fields of the patch onto s.
func (p SettingsPatch) apply(s *UserNotificationSettings) {
	if p.Web != nil {
		s.Web = *p.Web
	}
	if p.MobilePush != nil {
		s.MobilePush = *p.MobilePush
	}
	if p.Email != nil {
		s.Email = *p.Email
	}
	if p.SMS != nil {
		s.SMS = *p.SMS
	}
	if p.QuietHoursEnabled != nil {
		s.QuietHoursEnabled = *p.QuietHoursEnabled
	}
	if p.QuietHoursStart != nil {
		s.QuietHoursStart = *p.QuietHoursStart
	}
	if p.QuietHoursEnd != nil {
		s.QuietHoursEnd = *p.QuietHoursEnd
	}
	if p.QuietHoursTimezone != nil {
		s.QuietHoursTimezone = *p.QuietHoursTimezone
	}
	if p.DNDEnabled != nil {
		s.DNDEnabled = *p.DNDEnabled
	}
	if p.DNDUntil != nil {
		s.DNDUntil = p.DNDUntil
	}
	if p.ClearDND {
		s.DNDUntil = nil
	}
	if p.ShowLowPriority != nil {
		s.ShowLowPriority = *p.ShowLowPriority
	}
	if p.ShowNormalPriority != nil {
		s.ShowNormalPriority = *p.ShowNormalPriority
	}
	if p.ShowHighPriority != nil {
		s.ShowHighPriority = *p.ShowHighPriority
	}
	if p.ShowUrgentPriority != nil {
		s.ShowUrgentPriority = *p.ShowUrgentPriority
	}
	if p.BatchNotifications != nil {
		s.BatchNotifications = *p.BatchNotifications
	}
	if p.BatchInterval != nil {
		s.BatchInterval = *p.BatchInterval
	}
	if p.AutoArchiveAfterDays != nil {
		s.AutoArchiveAfterDays = p.AutoArchiveAfterDays
	}
	if p.AutoDeleteAfterDays != nil {
		s.AutoDeleteAfterDays = p.AutoDeleteAfterDays
	}
}

// TypeSettingPatch is a partial per-type override update.
type TypeSettingPatch struct {
	Enabled *bool `json:"enabled,omitempty"`
}
