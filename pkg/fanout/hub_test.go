package fanout_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ispkit/notify/pkg/fanout"
)

func newTestHub(t *testing.T, opts ...fanout.HubOption) *fanout.Hub {
	t.Helper()

	hub, err := fanout.NewHub(fanout.NewMemoryBridge(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = hub.Close() })
	return hub
}

// recvFrame waits for the next frame on the session or fails the test.
func recvFrame(t *testing.T, sess *fanout.Session) fanout.Frame {
	t.Helper()

	select {
	case frame, ok := <-sess.Receive():
		require.True(t, ok, "session channel closed")
		return frame
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
		return fanout.Frame{}
	}
}

// assertNoFrame asserts the session receives nothing for a short window.
func assertNoFrame(t *testing.T, sess *fanout.Session) {
	t.Helper()

	select {
	case frame := <-sess.Receive():
		t.Fatalf("unexpected frame: %s", frame.Event)
	case <-time.After(50 * time.Millisecond):
	}
}

func decodePayload(t *testing.T, raw json.RawMessage) map[string]any {
	t.Helper()

	var payload map[string]any
	require.NoError(t, json.Unmarshal(raw, &payload))
	return payload
}

func TestNewHub(t *testing.T) {
	t.Parallel()

	hub, err := fanout.NewHub(nil)
	assert.ErrorIs(t, err, fanout.ErrBridgeNil)
	assert.Nil(t, hub)
}

func TestHub_Connect(t *testing.T) {
	t.Parallel()

	t.Run("registers an anonymous session", func(t *testing.T) {
		t.Parallel()
		hub := newTestHub(t)

		sess, err := hub.Connect()
		require.NoError(t, err)
		assert.False(t, sess.Authenticated())
		assert.Equal(t, 1, hub.SessionCount())
	})

	t.Run("refuses after close", func(t *testing.T) {
		t.Parallel()
		hub := newTestHub(t)
		require.NoError(t, hub.Close())

		_, err := hub.Connect()
		assert.ErrorIs(t, err, fanout.ErrHubClosed)
	})
}

func TestHub_Authenticate(t *testing.T) {
	t.Parallel()

	t.Run("joins user and role rooms and acks", func(t *testing.T) {
		t.Parallel()
		hub := newTestHub(t)

		sess, err := hub.Connect()
		require.NoError(t, err)
		require.NoError(t, hub.Authenticate(sess, "u-1", "admin", "alice"))

		assert.True(t, sess.Authenticated())
		assert.Equal(t, 1, hub.RoomSize(fanout.UserRoom("u-1")))
		assert.Equal(t, 1, hub.RoomSize(fanout.RoleRoom("admin")))

		ack := recvFrame(t, sess)
		assert.Equal(t, fanout.EventAuthenticated, ack.Event)
		payload := decodePayload(t, ack.Payload)
		assert.Equal(t, "u-1", payload["user_id"])
		assert.NotEmpty(t, payload["connection_id"])
		assert.Len(t, payload["rooms"], 2)
	})

	t.Run("no role joins only the user room", func(t *testing.T) {
		t.Parallel()
		hub := newTestHub(t)

		sess, err := hub.Connect()
		require.NoError(t, err)
		require.NoError(t, hub.Authenticate(sess, "u-1", "", ""))
		assert.Equal(t, []string{fanout.UserRoom("u-1")}, sess.Rooms())
	})

	t.Run("empty user id", func(t *testing.T) {
		t.Parallel()
		hub := newTestHub(t)

		sess, err := hub.Connect()
		require.NoError(t, err)
		err = hub.Authenticate(sess, "", "admin", "alice")
		assert.ErrorIs(t, err, fanout.ErrInvalidIdentity)
		assert.False(t, sess.Authenticated())
	})
}

func TestHub_JoinLeave(t *testing.T) {
	t.Parallel()

	t.Run("requires authentication", func(t *testing.T) {
		t.Parallel()
		hub := newTestHub(t)

		sess, err := hub.Connect()
		require.NoError(t, err)
		assert.ErrorIs(t, hub.Join(sess, "ops"), fanout.ErrNotAuthenticated)
		assert.ErrorIs(t, hub.Leave(sess, "ops"), fanout.ErrNotAuthenticated)
	})

	t.Run("user rooms are joinable by their owner only", func(t *testing.T) {
		t.Parallel()
		hub := newTestHub(t)

		sess, err := hub.Connect()
		require.NoError(t, err)
		require.NoError(t, hub.Authenticate(sess, "u-1", "", ""))
		recvFrame(t, sess)

		assert.ErrorIs(t, hub.Join(sess, fanout.UserRoom("u-2")), fanout.ErrRoomForbidden)
		assert.Zero(t, hub.RoomSize(fanout.UserRoom("u-2")))

		require.NoError(t, hub.Join(sess, fanout.UserRoom("u-1")))
		assert.Equal(t, fanout.EventRoomJoined, recvFrame(t, sess).Event)
	})

	t.Run("rejects a disconnected session", func(t *testing.T) {
		t.Parallel()
		hub := newTestHub(t)

		sess, err := hub.Connect()
		require.NoError(t, err)
		require.NoError(t, hub.Authenticate(sess, "u-1", "", ""))
		recvFrame(t, sess)

		hub.Disconnect(sess)

		assert.ErrorIs(t, hub.Join(sess, "ops"), fanout.ErrSessionNotFound)
		assert.Zero(t, hub.RoomSize("ops"))
	})

	t.Run("join then leave stops delivery", func(t *testing.T) {
		t.Parallel()
		hub := newTestHub(t)
		ctx := context.Background()

		sess, err := hub.Connect()
		require.NoError(t, err)
		require.NoError(t, hub.Authenticate(sess, "u-1", "", ""))
		recvFrame(t, sess) // auth ack

		require.NoError(t, hub.Join(sess, "ops"))
		assert.Equal(t, fanout.EventRoomJoined, recvFrame(t, sess).Event)

		hub.BroadcastToRoom(ctx, "ops", "dashboard_update", map[string]int{"open": 3})
		assert.Equal(t, "dashboard_update", recvFrame(t, sess).Event)

		require.NoError(t, hub.Leave(sess, "ops"))
		assert.Equal(t, fanout.EventRoomLeft, recvFrame(t, sess).Event)
		assert.Zero(t, hub.RoomSize("ops"))

		hub.BroadcastToRoom(ctx, "ops", "dashboard_update", nil)
		assertNoFrame(t, sess)
	})
}

func TestHub_BroadcastToRoom(t *testing.T) {
	t.Parallel()
	hub := newTestHub(t)
	ctx := context.Background()

	alice, err := hub.Connect()
	require.NoError(t, err)
	require.NoError(t, hub.Authenticate(alice, "u-1", "admin", "alice"))
	recvFrame(t, alice)

	bob, err := hub.Connect()
	require.NoError(t, err)
	require.NoError(t, hub.Authenticate(bob, "u-2", "technician", "bob"))
	recvFrame(t, bob)

	// User rooms are private to one user.
	hub.BroadcastToRoom(ctx, fanout.UserRoom("u-1"), "notification", map[string]string{"title": "hi"})

	frame := recvFrame(t, alice)
	assert.Equal(t, "notification", frame.Event)
	assert.Equal(t, "hi", decodePayload(t, frame.Payload)["title"])
	assertNoFrame(t, bob)

	// Role rooms reach every member of the role.
	hub.BroadcastToRoom(ctx, fanout.RoleRoom("technician"), "new_ticket", nil)
	assert.Equal(t, "new_ticket", recvFrame(t, bob).Event)
	assertNoFrame(t, alice)
}

func TestHub_Broadcast(t *testing.T) {
	t.Parallel()
	hub := newTestHub(t)

	authed, err := hub.Connect()
	require.NoError(t, err)
	require.NoError(t, hub.Authenticate(authed, "u-1", "", ""))
	recvFrame(t, authed)

	anon, err := hub.Connect()
	require.NoError(t, err)

	hub.Broadcast(context.Background(), "maintenance", map[string]string{"window": "02:00"})
	assert.Equal(t, "maintenance", recvFrame(t, authed).Event)
	assert.Equal(t, "maintenance", recvFrame(t, anon).Event, "broadcasts reach anonymous connections too")
}

func TestHub_CrossProcessDelivery(t *testing.T) {
	t.Parallel()

	// Two hubs on one bridge model two processes sharing the bus.
	bridge := fanout.NewMemoryBridge()
	hubA, err := fanout.NewHub(bridge)
	require.NoError(t, err)
	hubB, err := fanout.NewHub(bridge)
	require.NoError(t, err)
	t.Cleanup(func() { _ = hubA.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = hubA.Run(ctx) }()
	go func() { _ = hubB.Run(ctx) }()

	local, err := hubA.Connect()
	require.NoError(t, err)
	require.NoError(t, hubA.Authenticate(local, "u-1", "", ""))
	recvFrame(t, local)

	remote, err := hubB.Connect()
	require.NoError(t, err)
	require.NoError(t, hubB.Authenticate(remote, "u-1", "", ""))
	recvFrame(t, remote)

	// Give both subscriptions time to attach before publishing.
	require.Eventually(t, func() bool {
		hubA.BroadcastToRoom(ctx, fanout.UserRoom("u-1"), "probe", nil)
		select {
		case <-remote.Receive():
			return true
		default:
			return false
		}
	}, time.Second, 20*time.Millisecond)

	// Drain whatever the probe loop queued on both sides.
	for len(local.Receive()) > 0 {
		<-local.Receive()
	}
	for len(remote.Receive()) > 0 {
		<-remote.Receive()
	}

	hubA.BroadcastToRoom(ctx, fanout.UserRoom("u-1"), "notification", map[string]string{"n": "1"})

	assert.Equal(t, "notification", recvFrame(t, local).Event)
	assert.Equal(t, "notification", recvFrame(t, remote).Event)

	// The publishing hub must not redeliver its own bus echo.
	assertNoFrame(t, local)
}

func TestHub_DisconnectPresence(t *testing.T) {
	t.Parallel()
	hub := newTestHub(t)

	leaving, err := hub.Connect()
	require.NoError(t, err)
	require.NoError(t, hub.Authenticate(leaving, "u-1", "admin", "alice"))
	recvFrame(t, leaving)

	watcher, err := hub.Connect()
	require.NoError(t, err)
	require.NoError(t, hub.Authenticate(watcher, "u-2", "admin", "bob"))
	recvFrame(t, watcher)

	hub.Disconnect(leaving)

	frame := recvFrame(t, watcher)
	assert.Equal(t, fanout.EventUserOffline, frame.Event)
	payload := decodePayload(t, frame.Payload)
	assert.Equal(t, "u-1", payload["user_id"])
	assert.Equal(t, "alice", payload["username"])

	assert.Equal(t, 1, hub.SessionCount())
	assert.Zero(t, hub.RoomSize(fanout.UserRoom("u-1")))

	select {
	case <-leaving.Done():
	case <-time.After(time.Second):
		t.Fatal("session not closed on disconnect")
	}
}

func TestHub_DisconnectIdempotent(t *testing.T) {
	t.Parallel()
	hub := newTestHub(t)

	leaving, err := hub.Connect()
	require.NoError(t, err)
	require.NoError(t, hub.Authenticate(leaving, "u-1", "admin", "alice"))
	recvFrame(t, leaving)

	watcher, err := hub.Connect()
	require.NoError(t, err)
	require.NoError(t, hub.Authenticate(watcher, "u-2", "admin", "bob"))
	recvFrame(t, watcher)

	// Eviction and handler teardown can both tear down the same
	// connection; only one presence signal may reach the role room.
	hub.Disconnect(leaving)
	hub.Disconnect(leaving)

	assert.Equal(t, fanout.EventUserOffline, recvFrame(t, watcher).Event)
	assertNoFrame(t, watcher)
}

func TestHub_SlowConsumerEviction(t *testing.T) {
	t.Parallel()
	hub := newTestHub(t, fanout.WithSessionBuffer(1))
	ctx := context.Background()

	sess, err := hub.Connect()
	require.NoError(t, err)

	// Never drain: the first broadcast fills the buffer, the second
	// overflows it and triggers eviction.
	hub.Broadcast(ctx, "tick", nil)
	hub.Broadcast(ctx, "tick", nil)

	require.Eventually(t, func() bool {
		return hub.SessionCount() == 0
	}, time.Second, 10*time.Millisecond)

	select {
	case <-sess.Done():
	case <-time.After(time.Second):
		t.Fatal("evicted session not closed")
	}
}

func TestMemoryBridge(t *testing.T) {
	t.Parallel()

	bridge := fanout.NewMemoryBridge()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	received := make(chan fanout.Envelope, 1)
	go func() {
		_ = bridge.Subscribe(ctx, func(env fanout.Envelope) {
			received <- env
		})
	}()

	require.Eventually(t, func() bool {
		err := bridge.Publish(ctx, fanout.Envelope{Room: "r", Event: "e", Origin: "o"})
		if err != nil {
			return false
		}
		select {
		case env := <-received:
			return env.Event == "e" && env.Room == "r"
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, bridge.Close())
}
