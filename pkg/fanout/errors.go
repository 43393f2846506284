package fanout

import "errors"

var (
	// ErrHubClosed is returned when operations are attempted on a closed hub.
	ErrHubClosed = errors.New("fanout hub is closed")

	// ErrBridgeNil is returned when a hub is created without a bridge.
	ErrBridgeNil = errors.New("fanout bridge cannot be nil")

	// ErrSessionNotFound is returned when a room operation targets a
	// connection that already disconnected.
	ErrSessionNotFound = errors.New("session not found")

	// ErrRoomForbidden is returned when a connection tries to join
	// another user's private room.
	ErrRoomForbidden = errors.New("room is not joinable by this connection")

	// ErrNotAuthenticated is returned when a room operation is attempted
	// before the connection has authenticated.
	ErrNotAuthenticated = errors.New("connection is not authenticated")

	// ErrInvalidIdentity is returned when an authenticate request is
	// missing its user id.
	ErrInvalidIdentity = errors.New("authentication requires a user id")

	// ErrBridgeUnavailable wraps publish failures on the shared bus.
	// Broadcasts degrade to local-only delivery when it occurs.
	ErrBridgeUnavailable = errors.New("fanout bridge unavailable")
)
