package dispatch_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ispkit/notify/pkg/devices"
	"github.com/ispkit/notify/pkg/dispatch"
	"github.com/ispkit/notify/pkg/fanout"
	"github.com/ispkit/notify/pkg/jobqueue"
	"github.com/ispkit/notify/pkg/policy"
)

type broadcastCall struct {
	Room  string
	Event string
}

type fakeBroadcaster struct {
	mu    sync.Mutex
	calls []broadcastCall
}

func (f *fakeBroadcaster) BroadcastToRoom(_ context.Context, room, event string, _ any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, broadcastCall{Room: room, Event: event})
}

type fakePusher struct {
	mu    sync.Mutex
	err   error
	users []string
}

func (f *fakePusher) SendPush(_ context.Context, userID string, _ devices.PushNotification) (devices.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return devices.Result{}, f.err
	}
	f.users = append(f.users, userID)
	return devices.Result{Sent: 1, Total: 1}, nil
}

type enqueueCall struct {
	JobType jobqueue.JobType
	Payload any
}

type fakeEnqueuer struct {
	mu    sync.Mutex
	err   error
	calls []enqueueCall
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, jobType jobqueue.JobType, payload any, _ ...jobqueue.EnqueueOption) (*jobqueue.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.calls = append(f.calls, enqueueCall{JobType: jobType, Payload: payload})
	return &jobqueue.Job{Type: jobType}, nil
}

// fakePolicy allows everything on web and mobile unless configured
// per user.
type fakePolicy struct {
	blocked     map[string]policy.Reason
	decisionErr map[string]error
	channels    []policy.Channel
	channelsErr error
}

func newFakePolicy() *fakePolicy {
	return &fakePolicy{
		blocked:     make(map[string]policy.Reason),
		decisionErr: make(map[string]error),
		channels:    []policy.Channel{policy.ChannelWeb, policy.ChannelMobile},
	}
}

func (f *fakePolicy) ShouldReceive(_ context.Context, userID, _ string, _ policy.Priority) (policy.Decision, error) {
	if err, ok := f.decisionErr[userID]; ok {
		return policy.Decision{}, err
	}
	if reason, ok := f.blocked[userID]; ok {
		return policy.Decision{Allowed: false, Reason: reason}, nil
	}
	return policy.Decision{Allowed: true}, nil
}

func (f *fakePolicy) AllowedChannels(_ context.Context, _ string) ([]policy.Channel, error) {
	if f.channelsErr != nil {
		return nil, f.channelsErr
	}
	return f.channels, nil
}

type testRig struct {
	dispatcher  *dispatch.Dispatcher
	policy      *fakePolicy
	broadcaster *fakeBroadcaster
	pusher      *fakePusher
	enqueuer    *fakeEnqueuer
	records     *dispatch.MemoryRecordStore
	resolver    *dispatch.StaticResolver
}

func newTestRig(t *testing.T, opts ...dispatch.DispatcherOption) *testRig {
	t.Helper()

	rig := &testRig{
		policy:      newFakePolicy(),
		broadcaster: &fakeBroadcaster{},
		pusher:      &fakePusher{},
		enqueuer:    &fakeEnqueuer{},
		records:     dispatch.NewMemoryRecordStore(),
		resolver:    dispatch.NewStaticResolver(),
	}
	opts = append([]dispatch.DispatcherOption{dispatch.WithResolver(rig.resolver)}, opts...)
	rig.dispatcher = dispatch.NewDispatcher(rig.policy, rig.broadcaster, rig.pusher, rig.enqueuer, rig.records, opts...)
	return rig
}

func mustEvent(t *testing.T, eventType string, priority policy.Priority, target dispatch.Target, payload map[string]any) dispatch.NotificationEvent {
	t.Helper()

	event, err := dispatch.NewEvent(eventType, priority, "Title", "Message", payload, target)
	require.NoError(t, err)
	return event
}

func TestNewEvent(t *testing.T) {
	t.Parallel()

	t.Run("invalid priority", func(t *testing.T) {
		t.Parallel()
		_, err := dispatch.NewEvent("new_ticket", policy.Priority("asap"), "t", "m", nil, dispatch.Target{UserID: "u-1"})
		assert.ErrorIs(t, err, dispatch.ErrInvalidPriority)
	})

	t.Run("missing target", func(t *testing.T) {
		t.Parallel()
		_, err := dispatch.NewEvent("new_ticket", policy.PriorityNormal, "t", "m", nil, dispatch.Target{})
		assert.ErrorIs(t, err, dispatch.ErrNoTarget)
	})
}

func TestDispatcher_Dispatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("delivers to web and mobile", func(t *testing.T) {
		t.Parallel()
		rig := newTestRig(t)

		event := mustEvent(t, "new_ticket", policy.PriorityNormal, dispatch.Target{UserID: "u-1"}, nil)
		summary, err := rig.dispatcher.Dispatch(ctx, event)
		require.NoError(t, err)
		assert.Equal(t, dispatch.Summary{Recipients: 1, Delivered: 1}, summary)

		require.Len(t, rig.broadcaster.calls, 1)
		assert.Equal(t, fanout.UserRoom("u-1"), rig.broadcaster.calls[0].Room)
		assert.Equal(t, "notification", rig.broadcaster.calls[0].Event)
		assert.Equal(t, []string{"u-1"}, rig.pusher.users)

		recs, err := rig.records.ListByUser(ctx, "u-1", 10)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		for _, rec := range recs {
			assert.Equal(t, dispatch.RecordSent, rec.Status)
			assert.Equal(t, "new_ticket", rec.EventType)
		}
	})

	t.Run("unknown event type", func(t *testing.T) {
		t.Parallel()
		rig := newTestRig(t)

		event := mustEvent(t, "new_ticket", policy.PriorityNormal, dispatch.Target{UserID: "u-1"}, nil)
		event.Type = "carrier_pigeon_arrived"
		_, err := rig.dispatcher.Dispatch(ctx, event)
		assert.ErrorIs(t, err, dispatch.ErrUnknownEventType)
	})

	t.Run("registered extra event type", func(t *testing.T) {
		t.Parallel()
		rig := newTestRig(t, dispatch.WithEventTypes("outage_detected"))

		event := mustEvent(t, "outage_detected", policy.PriorityUrgent, dispatch.Target{UserID: "u-1"}, nil)
		_, err := rig.dispatcher.Dispatch(ctx, event)
		assert.NoError(t, err)
	})

	t.Run("role target resolves members", func(t *testing.T) {
		t.Parallel()
		rig := newTestRig(t)
		rig.resolver.SetRole("technician", "u-1", "u-2")

		event := mustEvent(t, "new_ticket", policy.PriorityHigh, dispatch.Target{Role: "technician"}, nil)
		summary, err := rig.dispatcher.Dispatch(ctx, event)
		require.NoError(t, err)
		assert.Equal(t, 2, summary.Recipients)
		assert.Equal(t, 2, summary.Delivered)
		assert.ElementsMatch(t, []string{"u-1", "u-2"}, rig.pusher.users)
	})

	t.Run("user and role overlap dedupes", func(t *testing.T) {
		t.Parallel()
		rig := newTestRig(t)
		rig.resolver.SetRole("admin", "u-1", "u-2")

		event := mustEvent(t, "new_ticket", policy.PriorityNormal, dispatch.Target{UserID: "u-1", Role: "admin"}, nil)
		summary, err := rig.dispatcher.Dispatch(ctx, event)
		require.NoError(t, err)
		assert.Equal(t, 2, summary.Recipients, "u-1 counted once")
	})

	t.Run("empty role", func(t *testing.T) {
		t.Parallel()
		rig := newTestRig(t)

		event := mustEvent(t, "new_ticket", policy.PriorityNormal, dispatch.Target{Role: "nobody"}, nil)
		_, err := rig.dispatcher.Dispatch(ctx, event)
		assert.ErrorIs(t, err, dispatch.ErrNoRecipients)
	})

	t.Run("suppression is recorded not failed", func(t *testing.T) {
		t.Parallel()
		rig := newTestRig(t)
		rig.policy.blocked["u-1"] = policy.ReasonDND

		event := mustEvent(t, "new_ticket", policy.PriorityNormal, dispatch.Target{UserID: "u-1"}, nil)
		summary, err := rig.dispatcher.Dispatch(ctx, event)
		require.NoError(t, err)
		assert.Equal(t, dispatch.Summary{Recipients: 1, Suppressed: 1}, summary)
		assert.Empty(t, rig.broadcaster.calls)
		assert.Empty(t, rig.pusher.users)

		recs, err := rig.records.ListByStatus(ctx, dispatch.RecordSuppressed, 10)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, "policy", recs[0].Channel)
		assert.Equal(t, string(policy.ReasonDND), recs[0].Reason)
	})

	t.Run("per recipient policy outcomes are independent", func(t *testing.T) {
		t.Parallel()
		rig := newTestRig(t)
		rig.resolver.SetRole("technician", "u-ok", "u-dnd", "u-broken")
		rig.policy.blocked["u-dnd"] = policy.ReasonDND
		rig.policy.decisionErr["u-broken"] = errors.New("settings store down")

		event := mustEvent(t, "new_ticket", policy.PriorityNormal, dispatch.Target{Role: "technician"}, nil)
		summary, err := rig.dispatcher.Dispatch(ctx, event)
		require.NoError(t, err)
		assert.Equal(t, dispatch.Summary{Recipients: 3, Delivered: 1, Suppressed: 1, Failed: 1}, summary)
		assert.Equal(t, []string{"u-ok"}, rig.pusher.users)
	})

	t.Run("channel toggles gate fan-out", func(t *testing.T) {
		t.Parallel()
		rig := newTestRig(t)
		rig.policy.channels = []policy.Channel{policy.ChannelWeb}

		event := mustEvent(t, "new_ticket", policy.PriorityNormal, dispatch.Target{UserID: "u-1"}, nil)
		summary, err := rig.dispatcher.Dispatch(ctx, event)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Delivered)
		assert.Len(t, rig.broadcaster.calls, 1)
		assert.Empty(t, rig.pusher.users, "mobile toggled off")
	})

	t.Run("push failure fails only the mobile channel", func(t *testing.T) {
		t.Parallel()
		rig := newTestRig(t)
		rig.pusher.err = errors.New("push gateway unreachable")

		event := mustEvent(t, "new_ticket", policy.PriorityNormal, dispatch.Target{UserID: "u-1"}, nil)
		summary, err := rig.dispatcher.Dispatch(ctx, event)
		require.NoError(t, err)
		// Web still went out, so the recipient counts as delivered.
		assert.Equal(t, dispatch.Summary{Recipients: 1, Delivered: 1, Failed: 1}, summary)

		recs, err := rig.records.ListByStatus(ctx, dispatch.RecordFailed, 10)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, "mobile", recs[0].Channel)
		assert.Contains(t, recs[0].Error, "push gateway unreachable")
	})
}

func TestDispatcher_MessagingRoute(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("otp events enqueue otp jobs", func(t *testing.T) {
		t.Parallel()
		rig := newTestRig(t)

		event := mustEvent(t, "otp_requested", policy.PriorityUrgent, dispatch.Target{UserID: "u-1"},
			map[string]any{"recipient": "+380501234567", "code": "482916"})
		_, err := rig.dispatcher.Dispatch(ctx, event)
		require.NoError(t, err)

		require.Len(t, rig.enqueuer.calls, 1)
		assert.Equal(t, jobqueue.JobTypeSendOTP, rig.enqueuer.calls[0].JobType)
		payload, ok := rig.enqueuer.calls[0].Payload.(jobqueue.OTPPayload)
		require.True(t, ok)
		assert.Equal(t, "+380501234567", payload.Recipient)
		assert.Equal(t, "482916", payload.Code)
		assert.Equal(t, "otp_requested", payload.Purpose)
	})

	t.Run("assignments enqueue notification jobs", func(t *testing.T) {
		t.Parallel()
		rig := newTestRig(t)

		event := mustEvent(t, "ticket_assigned", policy.PriorityHigh, dispatch.Target{UserID: "u-1"}, nil)
		_, err := rig.dispatcher.Dispatch(ctx, event)
		require.NoError(t, err)

		require.Len(t, rig.enqueuer.calls, 1)
		assert.Equal(t, jobqueue.JobTypeSendNotification, rig.enqueuer.calls[0].JobType)
		payload, ok := rig.enqueuer.calls[0].Payload.(jobqueue.NotificationPayload)
		require.True(t, ok)
		assert.Equal(t, "u-1", payload.UserID)
	})

	t.Run("route ignores channel toggles", func(t *testing.T) {
		t.Parallel()
		rig := newTestRig(t)
		rig.policy.channels = nil

		event := mustEvent(t, "otp_requested", policy.PriorityUrgent, dispatch.Target{UserID: "u-1"},
			map[string]any{"code": "111111"})
		summary, err := rig.dispatcher.Dispatch(ctx, event)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Delivered)
		assert.Len(t, rig.enqueuer.calls, 1)
	})

	t.Run("custom route", func(t *testing.T) {
		t.Parallel()
		rig := newTestRig(t, dispatch.WithMessagingRoute("invoice_created", jobqueue.JobTypeSendNotification))

		event := mustEvent(t, "invoice_created", policy.PriorityNormal, dispatch.Target{UserID: "u-1"}, nil)
		_, err := rig.dispatcher.Dispatch(ctx, event)
		require.NoError(t, err)
		require.Len(t, rig.enqueuer.calls, 1)
	})

	t.Run("enqueue failure recorded", func(t *testing.T) {
		t.Parallel()
		rig := newTestRig(t)
		rig.enqueuer.err = errors.New("queue unavailable")

		event := mustEvent(t, "otp_requested", policy.PriorityUrgent, dispatch.Target{UserID: "u-1"},
			map[string]any{"code": "222222"})
		summary, err := rig.dispatcher.Dispatch(ctx, event)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Failed)

		recs, err := rig.records.ListByStatus(ctx, dispatch.RecordFailed, 10)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, "messaging", recs[0].Channel)
	})
}

func TestDispatcher_NilCollaborators(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("nil hub skips web only", func(t *testing.T) {
		t.Parallel()
		pusher := &fakePusher{}
		records := dispatch.NewMemoryRecordStore()
		d := dispatch.NewDispatcher(newFakePolicy(), nil, pusher, nil, records)

		event := mustEvent(t, "new_ticket", policy.PriorityNormal, dispatch.Target{UserID: "u-1"}, nil)
		summary, err := d.Dispatch(ctx, event)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Delivered)
		assert.Equal(t, []string{"u-1"}, pusher.users)
	})

	t.Run("all channels down yields zero deliveries", func(t *testing.T) {
		t.Parallel()
		d := dispatch.NewDispatcher(newFakePolicy(), nil, nil, nil, nil)

		event := mustEvent(t, "new_ticket", policy.PriorityNormal, dispatch.Target{UserID: "u-1"}, nil)
		summary, err := d.Dispatch(ctx, event)
		require.NoError(t, err)
		assert.Equal(t, dispatch.Summary{Recipients: 1}, summary)
	})
}

func TestMemoryRecordStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := dispatch.NewMemoryRecordStore()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Append(ctx, dispatch.DeliveryRecord{
			UserID:  "u-1",
			Channel: dispatch.ChannelWeb,
			Status:  dispatch.RecordSent,
			Reason:  string(rune('a' + i)),
		}))
	}
	require.NoError(t, store.Append(ctx, dispatch.DeliveryRecord{
		UserID: "u-2",
		Status: dispatch.RecordSuppressed,
	}))

	t.Run("list by user newest first", func(t *testing.T) {
		t.Parallel()
		recs, err := store.ListByUser(ctx, "u-1", 2)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, "c", recs[0].Reason)
		assert.Equal(t, "b", recs[1].Reason)
	})

	t.Run("list by status", func(t *testing.T) {
		t.Parallel()
		recs, err := store.ListByStatus(ctx, dispatch.RecordSuppressed, 0)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, "u-2", recs[0].UserID)
	})
}
