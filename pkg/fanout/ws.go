package fanout

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ispkit/notify/pkg/logger"
)

// Connection liveness defaults. A connection that produces no reads
// (messages or pongs) within the idle timeout is forcibly closed.
const (
	DefaultIdleTimeout  = 60 * time.Second
	DefaultPingInterval = 25 * time.Second
	DefaultWriteTimeout = 10 * time.Second

	maxClientMessageSize = 4 << 10
)

// WSHandler upgrades HTTP requests to websocket connections and drives
// their session lifecycle against the hub.
type WSHandler struct {
	hub *Hub
	log *slog.Logger

	idleTimeout  time.Duration
	pingInterval time.Duration
	writeTimeout time.Duration
	upgrader     websocket.Upgrader
}

// WSOption configures a WSHandler.
type WSOption func(*WSHandler)

// WithIdleTimeout sets the read deadline window. Ping interval is kept
// below it so healthy clients always refresh the deadline in time.
func WithIdleTimeout(d time.Duration) WSOption {
	return func(h *WSHandler) {
		if d > 0 {
			h.idleTimeout = d
			h.pingInterval = d * 2 / 5
		}
	}
}

// WithWriteTimeout bounds each outbound frame write.
func WithWriteTimeout(d time.Duration) WSOption {
	return func(h *WSHandler) {
		if d > 0 {
			h.writeTimeout = d
		}
	}
}

// WithCheckOrigin overrides the websocket origin check.
func WithCheckOrigin(check func(*http.Request) bool) WSOption {
	return func(h *WSHandler) {
		if check != nil {
			h.upgrader.CheckOrigin = check
		}
	}
}

// WithWSLogger sets the handler logger.
func WithWSLogger(log *slog.Logger) WSOption {
	return func(h *WSHandler) {
		if log != nil {
			h.log = log
		}
	}
}

// NewWSHandler creates the websocket endpoint for the given hub.
func NewWSHandler(hub *Hub, opts ...WSOption) *WSHandler {
	h := &WSHandler{
		hub:          hub,
		log:          slog.Default(),
		idleTimeout:  DefaultIdleTimeout,
		pingInterval: DefaultPingInterval,
		writeTimeout: DefaultWriteTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		h.log.Warn("websocket upgrade failed", logger.Error(err))
		return
	}

	sess, err := h.hub.Connect()
	if err != nil {
		_ = conn.Close()
		return
	}

	go h.writePump(conn, sess)
	h.readLoop(conn, sess)

	h.hub.Disconnect(sess)
	_ = conn.Close()
}

// readLoop consumes client messages until the connection errors out or
// exceeds its idle timeout. Every successful read refreshes the deadline.
func (h *WSHandler) readLoop(conn *websocket.Conn, sess *Session) {
	conn.SetReadLimit(maxClientMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(h.idleTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.idleTimeout))
	})

	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug("websocket closed",
					logger.ConnectionID(sess.ID),
					logger.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(h.idleTimeout))

		h.handleMessage(sess, msg)
	}
}

func (h *WSHandler) handleMessage(sess *Session, msg clientMessage) {
	var err error
	switch msg.Action {
	case actionAuthenticate:
		err = h.hub.Authenticate(sess, msg.UserID, msg.Role, msg.Username)
	case actionJoinRoom:
		err = h.hub.Join(sess, msg.Room)
	case actionLeaveRoom:
		err = h.hub.Leave(sess, msg.Room)
	case actionHeartbeat:
		// Deadline already refreshed by the read itself.
	default:
		sess.deliver(Frame{
			Event:   EventError,
			Payload: marshalPayload(map[string]string{"error": "unknown action: " + msg.Action}),
		})
		return
	}

	if err != nil {
		sess.deliver(Frame{
			Event:   EventError,
			Payload: marshalPayload(map[string]string{"error": err.Error()}),
		})
	}
}

// writePump serializes all writes to the connection: queued frames plus
// periodic pings. It exits when the session's send channel closes, then
// closes the socket to unblock the read loop.
func (h *WSHandler) writePump(conn *websocket.Conn, sess *Session) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case frame, ok := <-sess.Receive():
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(h.writeTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}
