package fanout

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is the in-memory state of one live connection. It exists only
// for the lifetime of the connection and is discarded on disconnect.
type Session struct {
	ID          uuid.UUID
	ConnectedAt time.Time

	mu            sync.RWMutex
	userID        string
	role          string
	username      string
	rooms         map[string]struct{}
	authenticated bool
	closed        bool

	send      chan Frame
	closeOnce sync.Once
	done      chan struct{}
}

func newSession(bufferSize int) *Session {
	return &Session{
		ID:          uuid.New(),
		ConnectedAt: time.Now(),
		rooms:       make(map[string]struct{}),
		send:        make(chan Frame, bufferSize),
		done:        make(chan struct{}),
	}
}

// Identity returns the authenticated user id, role and username.
// All three are empty until the connection authenticates.
func (s *Session) Identity() (userID, role, username string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID, s.role, s.username
}

// Authenticated reports whether the connection has identified itself.
func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated
}

// Rooms returns a snapshot of the rooms this session has joined.
func (s *Session) Rooms() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rooms := make([]string, 0, len(s.rooms))
	for room := range s.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// Receive returns the channel of frames destined for this connection.
// The channel is closed when the session closes.
func (s *Session) Receive() <-chan Frame {
	return s.send
}

// Done is closed when the session is torn down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) setIdentity(userID, role, username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = userID
	s.role = role
	s.username = username
	s.authenticated = true
}

func (s *Session) joinRoom(room string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[room] = struct{}{}
}

func (s *Session) leaveRoom(room string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, room)
}

func (s *Session) inRoom(room string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rooms[room]
	return ok
}

// deliver queues a frame without blocking. A full buffer drops the frame
// and reports false so the hub can evict the slow consumer.
func (s *Session) deliver(frame Frame) bool {
	// Read lock keeps close from racing the channel send.
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false
	}

	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.done)
		close(s.send)
		s.mu.Unlock()
	})
}

func marshalPayload(payload any) json.RawMessage {
	if payload == nil {
		return nil
	}
	if raw, ok := payload.(json.RawMessage); ok {
		return raw
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return data
}
