package fanout

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/ispkit/notify/pkg/logger"
)

// DefaultSessionBuffer is the per-connection outbound frame buffer.
// A full buffer marks the connection as a slow consumer and evicts it.
const DefaultSessionBuffer = 64

// Hub owns the live connections of one process and their room
// memberships. Broadcasts are routed through the Bridge so they reach
// connections on every process; each hub re-emits bus envelopes only to
// its own local connections.
type Hub struct {
	id     string
	bridge Bridge
	log    *slog.Logger

	bufferSize int

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	rooms    map[string]map[uuid.UUID]*Session
	closed   bool
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithSessionBuffer sets the outbound buffer size per connection.
func WithSessionBuffer(size int) HubOption {
	return func(h *Hub) {
		if size > 0 {
			h.bufferSize = size
		}
	}
}

// WithHubLogger sets the hub logger.
func WithHubLogger(log *slog.Logger) HubOption {
	return func(h *Hub) {
		if log != nil {
			h.log = log
		}
	}
}

// NewHub creates a hub over the given bridge.
func NewHub(bridge Bridge, opts ...HubOption) (*Hub, error) {
	if bridge == nil {
		return nil, ErrBridgeNil
	}

	h := &Hub{
		id:         uuid.New().String(),
		bridge:     bridge,
		log:        slog.Default(),
		bufferSize: DefaultSessionBuffer,
		sessions:   make(map[uuid.UUID]*Session),
		rooms:      make(map[string]map[uuid.UUID]*Session),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Run subscribes the hub to the shared bus and blocks until ctx is
// cancelled. Local delivery keeps working if the subscription drops; the
// hub only loses cross-process envelopes until Run is restarted.
func (h *Hub) Run(ctx context.Context) error {
	err := h.bridge.Subscribe(ctx, h.handleEnvelope)
	if err != nil && ctx.Err() == nil {
		h.log.ErrorContext(ctx, "fanout bus subscription lost, cross-process delivery disabled",
			logger.Error(err))
	}
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Connect registers a new anonymous connection and returns its session.
func (h *Hub) Connect() (*Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}

	sess := newSession(h.bufferSize)
	h.sessions[sess.ID] = sess

	h.log.Debug("connection opened", logger.ConnectionID(sess.ID))
	return sess, nil
}

// Authenticate binds an identity to a connection, joins its user room
// and role room, and echoes an acknowledgement frame carrying the
// connection id and joined rooms back to the client.
func (h *Hub) Authenticate(sess *Session, userID, role, username string) error {
	if userID == "" {
		return ErrInvalidIdentity
	}

	sess.setIdentity(userID, role, username)

	if err := h.joinLocked(sess, UserRoom(userID)); err != nil {
		return err
	}
	if role != "" {
		if err := h.joinLocked(sess, RoleRoom(role)); err != nil {
			return err
		}
	}

	ack := marshalPayload(map[string]any{
		"connection_id": sess.ID.String(),
		"user_id":       userID,
		"rooms":         sess.Rooms(),
	})
	sess.deliver(Frame{Event: EventAuthenticated, Payload: ack})

	h.log.Info("connection authenticated",
		logger.ConnectionID(sess.ID),
		logger.UserID(userID),
		logger.Role(role))
	return nil
}

// Join adds an authenticated connection to a room. User rooms are
// private; a connection may only join its own.
func (h *Hub) Join(sess *Session, room string) error {
	if !sess.Authenticated() {
		return ErrNotAuthenticated
	}
	if IsUserRoom(room) {
		if userID, _, _ := sess.Identity(); room != UserRoom(userID) {
			return ErrRoomForbidden
		}
	}
	if err := h.joinLocked(sess, room); err != nil {
		return err
	}
	sess.deliver(Frame{Event: EventRoomJoined, Payload: marshalPayload(map[string]string{"room": room})})
	return nil
}

// Leave removes a connection from a room.
func (h *Hub) Leave(sess *Session, room string) error {
	if !sess.Authenticated() {
		return ErrNotAuthenticated
	}
	h.leaveLocked(sess, room)
	sess.deliver(Frame{Event: EventRoomLeft, Payload: marshalPayload(map[string]string{"room": room})})
	return nil
}

// Disconnect tears down a session, leaving all of its rooms. If the
// connection was authenticated, its role room receives a presence signal
// naming the departing identity.
func (h *Hub) Disconnect(sess *Session) {
	if sess == nil {
		return
	}

	userID, role, username := sess.Identity()
	rooms := sess.Rooms()

	h.mu.Lock()
	_, wasLive := h.sessions[sess.ID]
	if wasLive {
		delete(h.sessions, sess.ID)
		for _, room := range rooms {
			h.removeFromRoom(sess, room)
		}
	}
	h.mu.Unlock()

	sess.close()

	// Eviction and handler teardown can both reach a departing session.
	// Only the call that actually removed it announces the departure.
	if !wasLive {
		return
	}

	if role != "" {
		offline := map[string]string{
			"user_id":  userID,
			"role":     role,
			"username": username,
		}
		h.BroadcastToRoom(context.Background(), RoleRoom(role), EventUserOffline, offline)
	}

	h.log.Debug("connection closed",
		logger.ConnectionID(sess.ID),
		logger.UserID(userID))
}

// Broadcast delivers an event to every live connection on every process.
// Delivery is best-effort and never blocks on recipients.
func (h *Hub) Broadcast(ctx context.Context, event string, payload any) {
	h.publish(ctx, Envelope{
		Event:   event,
		Payload: marshalPayload(payload),
		Origin:  h.id,
	})
}

// BroadcastToRoom delivers an event only to connections that joined room.
func (h *Hub) BroadcastToRoom(ctx context.Context, room, event string, payload any) {
	h.publish(ctx, Envelope{
		Room:    room,
		Event:   event,
		Payload: marshalPayload(payload),
		Origin:  h.id,
	})
}

// publish delivers locally first, then routes the envelope through the
// bus for the other processes. A bus outage degrades to local-only
// delivery with a logged warning; callers are never blocked or failed.
func (h *Hub) publish(ctx context.Context, env Envelope) {
	h.deliverLocal(env)

	if err := h.bridge.Publish(ctx, env); err != nil {
		h.log.WarnContext(ctx, "fanout bus publish failed, delivered to local connections only",
			logger.Error(err),
			logger.Room(env.Room),
			logger.EventType(env.Event))
	}
}

// handleEnvelope re-emits a bus envelope to local connections. Envelopes
// originating from this hub were already delivered locally at publish
// time, so their echo is skipped.
func (h *Hub) handleEnvelope(env Envelope) {
	if env.Origin == h.id {
		return
	}
	h.deliverLocal(env)
}

func (h *Hub) deliverLocal(env Envelope) {
	frame := Frame{Event: env.Event, Payload: env.Payload}

	h.mu.RLock()
	var targets []*Session
	if env.Room == "" {
		targets = make([]*Session, 0, len(h.sessions))
		for _, sess := range h.sessions {
			targets = append(targets, sess)
		}
	} else if members, ok := h.rooms[env.Room]; ok {
		targets = make([]*Session, 0, len(members))
		for _, sess := range members {
			targets = append(targets, sess)
		}
	}
	h.mu.RUnlock()

	for _, sess := range targets {
		if !sess.deliver(frame) {
			// Slow or already-closed consumers are evicted rather
			// than allowed to stall delivery for everyone else.
			go h.Disconnect(sess)
		}
	}
}

// RoomSize returns the number of local connections in a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// SessionCount returns the number of local live connections.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Close tears down every session and closes the bridge.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	sessions := make([]*Session, 0, len(h.sessions))
	for _, sess := range h.sessions {
		sessions = append(sessions, sess)
	}
	clear(h.sessions)
	clear(h.rooms)
	h.mu.Unlock()

	for _, sess := range sessions {
		sess.close()
	}
	return h.bridge.Close()
}

func (h *Hub) joinLocked(sess *Session, room string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHubClosed
	}
	// A disconnected session must not re-enter the room maps, or the
	// membership entry would outlive the connection.
	if _, live := h.sessions[sess.ID]; !live {
		return ErrSessionNotFound
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[uuid.UUID]*Session)
		h.rooms[room] = members
	}
	members[sess.ID] = sess
	sess.joinRoom(room)
	return nil
}

func (h *Hub) leaveLocked(sess *Session, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeFromRoom(sess, room)
}

// removeFromRoom expects h.mu to be held.
func (h *Hub) removeFromRoom(sess *Session, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, sess.ID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	sess.leaveRoom(room)
}
