package policy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ispkit/notify/pkg/logger"
)

// Reason explains why an eligibility check blocked delivery.
type Reason string

const (
	ReasonDND              Reason = "dnd_enabled"
	ReasonQuietHours       Reason = "quiet_hours"
	ReasonPriorityFiltered Reason = "priority_filtered"
	ReasonTypeDisabled     Reason = "type_disabled"
)

// Decision is the outcome of an eligibility check. A block is a deliberate
// suppression, not an error.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason,omitempty"`
}

func allow() Decision {
	return Decision{Allowed: true}
}

func block(r Reason) Decision {
	return Decision{Allowed: false, Reason: r}
}

// Engine evaluates per-user delivery policy: whether a notification should
// be delivered at all, and over which channels.
type Engine struct {
	store     SettingsStore
	retention RetentionStore
	now       func() time.Time
	logger    *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEngineLogger sets the logger for the engine.
func WithEngineLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithRetentionStore wires the notification record store used by the
// auto-archive/auto-delete sweep.
func WithRetentionStore(rs RetentionStore) EngineOption {
	return func(e *Engine) {
		e.retention = rs
	}
}

// WithClock overrides the time source, used by quiet-hours and DND checks.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates a policy engine over the given settings store.
func NewEngine(store SettingsStore, opts ...EngineOption) (*Engine, error) {
	if store == nil {
		return nil, ErrStoreNil
	}

	e := &Engine{
		store:  store,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Settings returns the user's settings, creating the default row on first access.
func (e *Engine) Settings(ctx context.Context, userID string) (*UserNotificationSettings, error) {
	settings, err := e.store.GetSettings(ctx, userID)
	if err == nil {
		return settings, nil
	}
	if !errors.Is(err, ErrSettingsNotFound) {
		return nil, fmt.Errorf("failed to load settings for user %s: %w", userID, err)
	}

	settings = DefaultSettings(userID)
	if err := e.store.UpsertSettings(ctx, settings); err != nil {
		return nil, fmt.Errorf("failed to create default settings for user %s: %w", userID, err)
	}
	return settings, nil
}

// UpdateSettings applies a partial update: only supplied fields overwrite.
func (e *Engine) UpdateSettings(ctx context.Context, userID string, patch SettingsPatch) (*UserNotificationSettings, error) {
	settings, err := e.Settings(ctx, userID)
	if err != nil {
		return nil, err
	}

	patch.apply(settings)
	settings.UpdatedAt = e.now()

	if err := e.store.UpsertSettings(ctx, settings); err != nil {
		return nil, fmt.Errorf("failed to update settings for user %s: %w", userID, err)
	}
	return settings, nil
}

// UpdateTypeSettings updates the per-event-type override for one type.
func (e *Engine) UpdateTypeSettings(ctx context.Context, userID, eventType string, patch TypeSettingPatch) (*UserNotificationSettings, error) {
	settings, err := e.Settings(ctx, userID)
	if err != nil {
		return nil, err
	}

	if settings.TypeSettings == nil {
		settings.TypeSettings = make(map[string]TypeSetting)
	}
	ts := settings.TypeSettings[eventType]
	if patch.Enabled != nil {
		ts.Enabled = *patch.Enabled
	}
	settings.TypeSettings[eventType] = ts
	settings.UpdatedAt = e.now()

	if err := e.store.UpsertSettings(ctx, settings); err != nil {
		return nil, fmt.Errorf("failed to update type settings for user %s: %w", userID, err)
	}
	return settings, nil
}

// ShouldReceive evaluates eligibility in a fixed rule order; the first
// blocking rule wins. The order matters: the more permissive urgent/high
// bypasses must short-circuit before the stricter filters.
func (e *Engine) ShouldReceive(ctx context.Context, userID, eventType string, priority Priority) (Decision, error) {
	settings, err := e.Settings(ctx, userID)
	if err != nil {
		return Decision{}, err
	}

	now := e.now()

	// 1. DND blocks everything below urgent while enabled. An elapsed
	// dnd_until means DND has expired even if the flag is still set.
	if settings.DNDEnabled && priority != PriorityUrgent {
		if settings.DNDUntil == nil || settings.DNDUntil.After(now) {
			return block(ReasonDND), nil
		}
	}

	// 2. Quiet hours block everything below high.
	if settings.QuietHoursEnabled && priority != PriorityUrgent && priority != PriorityHigh {
		within, err := inQuietHours(settings.QuietHoursStart, settings.QuietHoursEnd, settings.QuietHoursTimezone, now)
		if err != nil {
			// Malformed quiet-hours settings fail open: delivery beats
			// silently losing notifications to a bad timezone string.
			e.logger.Warn("skipping unparsable quiet hours",
				logger.UserID(userID),
				logger.Error(err))
		} else if within {
			return block(ReasonQuietHours), nil
		}
	}

	// 3. Priority visibility flags.
	if !settings.showsPriority(priority) {
		return block(ReasonPriorityFiltered), nil
	}

	// 4. Per-type overrides.
	if ts, ok := settings.TypeSettings[eventType]; ok && !ts.Enabled {
		return block(ReasonTypeDisabled), nil
	}

	return allow(), nil
}

// AllowedChannels returns the channels whose toggle is on. Eligibility
// gates whether a notification is delivered; this gates where.
func (e *Engine) AllowedChannels(ctx context.Context, userID string) ([]Channel, error) {
	settings, err := e.Settings(ctx, userID)
	if err != nil {
		return nil, err
	}

	channels := make([]Channel, 0, 4)
	if settings.Web {
		channels = append(channels, ChannelWeb)
	}
	if settings.MobilePush {
		channels = append(channels, ChannelMobile)
	}
	if settings.Email {
		channels = append(channels, ChannelEmail)
	}
	if settings.SMS {
		channels = append(channels, ChannelSMS)
	}
	return channels, nil
}

// inQuietHours reports whether now falls within [start, end) in the given
// timezone. When start > end the window wraps past midnight; equal bounds
// mean an empty window.
func inQuietHours(start, end, tz string, now time.Time) (bool, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return false, fmt.Errorf("invalid quiet hours timezone %q: %w", tz, err)
	}

	startMin, err := parseClock(start)
	if err != nil {
		return false, err
	}
	endMin, err := parseClock(end)
	if err != nil {
		return false, err
	}

	local := now.In(loc)
	cur := local.Hour()*60 + local.Minute()

	switch {
	case startMin < endMin:
		return cur >= startMin && cur < endMin, nil
	case startMin > endMin:
		return cur >= startMin || cur < endMin, nil
	default:
		return false, nil
	}
}

// parseClock parses a "HH:MM" time-of-day string into minutes past midnight.
func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}
