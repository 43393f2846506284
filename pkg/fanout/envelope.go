package fanout

import (
	"encoding/json"
	"strings"
)

// Room name prefixes. Every authenticated connection joins its user room
// and, when a role is supplied, its role room.
const (
	userRoomPrefix = "user_"
	roleRoomPrefix = "role_"
)

// UserRoom returns the room addressing all connections of one user.
func UserRoom(userID string) string {
	return userRoomPrefix + userID
}

// RoleRoom returns the room addressing all connections holding a role.
func RoleRoom(role string) string {
	return roleRoomPrefix + role
}

// IsUserRoom reports whether the room targets a single user.
func IsUserRoom(room string) bool {
	return strings.HasPrefix(room, userRoomPrefix)
}

// Envelope is the wire unit routed through the shared bus. An empty Room
// addresses every live connection. Origin carries the publishing hub's
// instance id so a hub can skip the echo of its own publishes.
type Envelope struct {
	Room    string          `json:"room,omitempty"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Origin  string          `json:"origin"`
}

// Frame is what a connected client actually receives.
type Frame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// clientMessage is a single inbound message from a live client.
type clientMessage struct {
	Action   string          `json:"action"`
	UserID   string          `json:"user_id,omitempty"`
	Role     string          `json:"role,omitempty"`
	Username string          `json:"username,omitempty"`
	Room     string          `json:"room,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// Client actions understood by the websocket endpoint.
const (
	actionAuthenticate = "authenticate"
	actionJoinRoom     = "join_room"
	actionLeaveRoom    = "leave_room"
	actionHeartbeat    = "heartbeat"
)

// Server-emitted event names for lifecycle signals.
const (
	EventAuthenticated = "authenticated"
	EventRoomJoined    = "room_joined"
	EventRoomLeft      = "room_left"
	EventUserOffline   = "user_disconnected"
	EventError         = "error"
)
