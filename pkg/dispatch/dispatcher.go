package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ispkit/notify/pkg/devices"
	"github.com/ispkit/notify/pkg/fanout"
	"github.com/ispkit/notify/pkg/jobqueue"
	"github.com/ispkit/notify/pkg/logger"
	"github.com/ispkit/notify/pkg/policy"
)

// Record channel names. The policy channel marks per-recipient outcomes
// decided before any real channel was invoked.
const (
	ChannelWeb       = "web"
	ChannelMobile    = "mobile"
	ChannelMessaging = "messaging"
	ChannelPolicy    = "policy"
)

// Broadcaster pushes an event to a room of live connections.
type Broadcaster interface {
	BroadcastToRoom(ctx context.Context, room, event string, payload any)
}

// Pusher fans a push notification out to a user's active devices.
type Pusher interface {
	SendPush(ctx context.Context, userID string, notif devices.PushNotification) (devices.Result, error)
}

// Enqueuer hands a messaging-channel job to the delivery queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobType jobqueue.JobType, payload any, opts ...jobqueue.EnqueueOption) (*jobqueue.Job, error)
}

// PolicyEngine decides eligibility and channel routing per recipient.
type PolicyEngine interface {
	ShouldReceive(ctx context.Context, userID, eventType string, priority policy.Priority) (policy.Decision, error)
	AllowedChannels(ctx context.Context, userID string) ([]policy.Channel, error)
}

// RecipientResolver expands a role into the user ids holding it.
// Backed by the platform's user directory, which lives outside this core.
type RecipientResolver interface {
	ResolveRole(ctx context.Context, role string) ([]string, error)
}

// StaticResolver is a fixed role-to-users mapping for tests and
// single-tenant deployments without a user directory.
type StaticResolver struct {
	mu    sync.RWMutex
	roles map[string][]string
}

// NewStaticResolver creates an empty static resolver.
func NewStaticResolver() *StaticResolver {
	return &StaticResolver{roles: make(map[string][]string)}
}

// SetRole replaces the members of a role.
func (r *StaticResolver) SetRole(role string, userIDs ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roles[role] = append([]string(nil), userIDs...)
}

func (r *StaticResolver) ResolveRole(_ context.Context, role string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.roles[role]...), nil
}

// Summary aggregates the outcome of one dispatched event.
type Summary struct {
	Recipients int `json:"recipients"`
	Delivered  int `json:"delivered"`
	Suppressed int `json:"suppressed"`
	Failed     int `json:"failed"`
}

// Dispatcher drives each notification event through policy evaluation
// and channel fan-out, persisting a delivery record per recipient and
// channel along the way.
type Dispatcher struct {
	policy   PolicyEngine
	hub      Broadcaster
	registry Pusher
	queue    Enqueuer
	records  RecordStore
	resolver RecipientResolver
	log      *slog.Logger

	mu         sync.RWMutex
	eventTypes map[string]struct{}
	routes     map[string]jobqueue.JobType
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithResolver sets the role-to-users resolver.
func WithResolver(r RecipientResolver) DispatcherOption {
	return func(d *Dispatcher) {
		if r != nil {
			d.resolver = r
		}
	}
}

// WithDispatcherLogger sets the dispatcher logger.
func WithDispatcherLogger(log *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if log != nil {
			d.log = log
		}
	}
}

// WithMessagingRoute maps an event type onto a messaging-channel job
// type. Routed event types are enqueued for every eligible recipient,
// independent of the recipient's channel toggles.
func WithMessagingRoute(eventType string, jobType jobqueue.JobType) DispatcherOption {
	return func(d *Dispatcher) {
		d.routes[eventType] = jobType
	}
}

// WithEventTypes registers additional accepted event types.
func WithEventTypes(types ...string) DispatcherOption {
	return func(d *Dispatcher) {
		for _, t := range types {
			d.eventTypes[t] = struct{}{}
		}
	}
}

// NewDispatcher wires the orchestrator over its collaborators. Any of
// hub, registry or queue may be nil; the corresponding channel is then
// skipped, keeping the others functional when one backend is down.
func NewDispatcher(engine PolicyEngine, hub Broadcaster, registry Pusher, queue Enqueuer, records RecordStore, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		policy:     engine,
		hub:        hub,
		registry:   registry,
		queue:      queue,
		records:    records,
		resolver:   NewStaticResolver(),
		log:        slog.Default(),
		eventTypes: make(map[string]struct{}),
		routes: map[string]jobqueue.JobType{
			"otp_requested":   jobqueue.JobTypeSendOTP,
			"ticket_assigned": jobqueue.JobTypeSendNotification,
		},
	}
	for _, t := range defaultEventTypes {
		d.eventTypes[t] = struct{}{}
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch runs the per-event state machine: resolve recipients, gate
// each through the policy engine, fan out over the allowed channels, and
// record every outcome. Failures for one recipient or channel never
// abort the others.
func (d *Dispatcher) Dispatch(ctx context.Context, event NotificationEvent) (Summary, error) {
	d.mu.RLock()
	_, known := d.eventTypes[event.Type]
	d.mu.RUnlock()
	if !known {
		return Summary{}, ErrUnknownEventType
	}

	recipients, err := d.resolveRecipients(ctx, event.Target)
	if err != nil {
		return Summary{}, err
	}
	if len(recipients) == 0 {
		return Summary{}, ErrNoRecipients
	}

	var summary Summary
	summary.Recipients = len(recipients)

	for _, userID := range recipients {
		d.dispatchTo(ctx, userID, event, &summary)
	}

	d.log.InfoContext(ctx, "event dispatched",
		logger.EventType(event.Type),
		slog.Int("recipients", summary.Recipients),
		slog.Int("delivered", summary.Delivered),
		slog.Int("suppressed", summary.Suppressed),
		slog.Int("failed", summary.Failed))

	return summary, nil
}

func (d *Dispatcher) resolveRecipients(ctx context.Context, target Target) ([]string, error) {
	if target.UserID == "" && target.Role == "" {
		return nil, ErrNoTarget
	}

	var recipients []string
	seen := make(map[string]struct{})
	if target.UserID != "" {
		recipients = append(recipients, target.UserID)
		seen[target.UserID] = struct{}{}
	}
	if target.Role != "" {
		members, err := d.resolver.ResolveRole(ctx, target.Role)
		if err != nil {
			return nil, err
		}
		for _, id := range members {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			recipients = append(recipients, id)
		}
	}
	return recipients, nil
}

func (d *Dispatcher) dispatchTo(ctx context.Context, userID string, event NotificationEvent, summary *Summary) {
	decision, err := d.policy.ShouldReceive(ctx, userID, event.Type, event.Priority)
	if err != nil {
		summary.Failed++
		d.record(ctx, userID, event, ChannelPolicy, RecordFailed, "", err)
		d.log.ErrorContext(ctx, "policy evaluation failed",
			logger.UserID(userID),
			logger.EventType(event.Type),
			logger.Error(err))
		return
	}
	if !decision.Allowed {
		summary.Suppressed++
		d.record(ctx, userID, event, ChannelPolicy, RecordSuppressed, string(decision.Reason), nil)
		d.log.DebugContext(ctx, "notification suppressed",
			logger.UserID(userID),
			logger.EventType(event.Type),
			slog.String("reason", string(decision.Reason)))
		return
	}

	channels, err := d.policy.AllowedChannels(ctx, userID)
	if err != nil {
		summary.Failed++
		d.record(ctx, userID, event, ChannelPolicy, RecordFailed, "", err)
		return
	}

	delivered := false
	for _, channel := range channels {
		switch channel {
		case policy.ChannelWeb:
			if d.hub == nil {
				continue
			}
			d.hub.BroadcastToRoom(ctx, fanout.UserRoom(userID), "notification", d.webPayload(userID, event))
			d.record(ctx, userID, event, ChannelWeb, RecordSent, "", nil)
			delivered = true
		case policy.ChannelMobile:
			if d.registry == nil {
				continue
			}
			if err := d.pushTo(ctx, userID, event); err != nil {
				summary.Failed++
				d.record(ctx, userID, event, ChannelMobile, RecordFailed, "", err)
				continue
			}
			d.record(ctx, userID, event, ChannelMobile, RecordSent, "", nil)
			delivered = true
		}
	}

	// Messaging-channel routing is keyed by event type and ignores the
	// recipient's channel toggles.
	d.mu.RLock()
	jobType, routed := d.routes[event.Type]
	d.mu.RUnlock()
	if routed && d.queue != nil {
		if err := d.enqueueFor(ctx, userID, event, jobType); err != nil {
			summary.Failed++
			d.record(ctx, userID, event, ChannelMessaging, RecordFailed, "", err)
		} else {
			d.record(ctx, userID, event, ChannelMessaging, RecordSent, "", nil)
			delivered = true
		}
	}

	if delivered {
		summary.Delivered++
	}
}

// webPayload is the frame body live web clients receive.
func (d *Dispatcher) webPayload(userID string, event NotificationEvent) map[string]any {
	return map[string]any{
		"type":       event.Type,
		"priority":   event.Priority,
		"title":      event.Title,
		"message":    event.Message,
		"data":       event.Payload,
		"user_id":    userID,
		"created_at": event.CreatedAt,
	}
}

func (d *Dispatcher) pushTo(ctx context.Context, userID string, event NotificationEvent) error {
	notif := devices.PushNotification{
		ID:      uuid.New().String(),
		Title:   event.Title,
		Message: event.Message,
		Data:    event.Payload,
	}
	res, err := d.registry.SendPush(ctx, userID, notif)
	if err != nil {
		return err
	}
	if res.Failed > 0 {
		d.log.WarnContext(ctx, "push delivery partially failed",
			logger.UserID(userID),
			slog.Int("sent", res.Sent),
			slog.Int("failed", res.Failed))
	}
	return nil
}

func (d *Dispatcher) enqueueFor(ctx context.Context, userID string, event NotificationEvent, jobType jobqueue.JobType) error {
	var payload any
	switch jobType {
	case jobqueue.JobTypeSendOTP:
		payload = jobqueue.OTPPayload{
			Recipient: stringField(event.Payload, "recipient", userID),
			Code:      stringField(event.Payload, "code", ""),
			Purpose:   stringField(event.Payload, "purpose", event.Type),
		}
	default:
		payload = jobqueue.NotificationPayload{
			UserID:  userID,
			Title:   event.Title,
			Message: event.Message,
			Data:    event.Payload,
		}
	}

	_, err := d.queue.Enqueue(ctx, jobType, payload)
	return err
}

func (d *Dispatcher) record(ctx context.Context, userID string, event NotificationEvent, channel string, status RecordStatus, reason string, cause error) {
	if d.records == nil {
		return
	}

	rec := DeliveryRecord{
		ID:        uuid.New(),
		EventType: event.Type,
		Priority:  event.Priority,
		UserID:    userID,
		Channel:   channel,
		Status:    status,
		Reason:    reason,
		CreatedAt: time.Now(),
	}
	if cause != nil {
		rec.Error = cause.Error()
	}

	if err := d.records.Append(ctx, rec); err != nil {
		// Audit trail loss is logged, never propagated to delivery.
		d.log.ErrorContext(ctx, "failed to persist delivery record",
			logger.UserID(userID),
			logger.EventType(event.Type),
			logger.Channel(channel),
			logger.Error(err))
	}
}

func stringField(payload map[string]any, key, fallback string) string {
	if payload != nil {
		if v, ok := payload[key].(string); ok && v != "" {
			return v
		}
	}
	return fallback
}
