package session

import (
	"log"
	"sync"
	"time"

	"gamelobby/pkg/types"
)

// Session is the coordinator's record of one live, authenticated connection
type Session struct {
	ConnectionID string
	Identity     types.Identity
	RoomID       string // empty while the player is in the lobby
	ConnectedAt  time.Time
}

// InRoom reports whether the session currently points at a room
func (s Session) InRoom() bool {
	return s.RoomID != ""
}

// Registry maps live connections to their sessions
// ARCHITECTURAL DISCOVERY: The registry only stores the room pointer. Keeping it in
// step with room membership is the caller's job, done as one unit of work
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session // connectionID -> Session
}

// NewRegistry creates an empty session registry
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// Register records a newly authenticated connection
func (r *Registry) Register(connectionID string, identity types.Identity) (Session, error) {
	if connectionID == "" {
		return Session{}, ErrInvalidConnectionID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[connectionID]; exists {
		return Session{}, ErrDuplicateConnection
	}

	session := &Session{
		ConnectionID: connectionID,
		Identity:     identity,
		ConnectedAt:  time.Now(),
	}
	r.sessions[connectionID] = session

	log.Printf("Session registered: connection=%s user=%s", connectionID, identity.Username)
	return *session, nil
}

// Lookup returns a copy of the session for connectionID
func (r *Registry) Lookup(connectionID string) (Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, exists := r.sessions[connectionID]
	if !exists {
		return Session{}, ErrSessionNotFound
	}
	return *session, nil
}

// SetRoom updates the session's room pointer; an empty roomID clears it
func (r *Registry) SetRoom(connectionID, roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, exists := r.sessions[connectionID]
	if !exists {
		return ErrSessionNotFound
	}
	session.RoomID = roomID
	return nil
}

// Unregister removes the session. If the session is still in a room, leave is
// invoked first so membership is cleaned up before the entry disappears.
// FUNCTIONAL DISCOVERY: leave runs without the registry lock held because it
// calls back into SetRoom
func (r *Registry) Unregister(connectionID string, leave func(Session)) (Session, error) {
	session, err := r.Lookup(connectionID)
	if err != nil {
		return Session{}, err
	}

	if session.InRoom() && leave != nil {
		leave(session)
	}

	r.mu.Lock()
	delete(r.sessions, connectionID)
	r.mu.Unlock()

	log.Printf("Session unregistered: connection=%s user=%s", connectionID, session.Identity.Username)
	return session, nil
}

// List returns a copy of all sessions
func (r *Registry) List() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		sessions = append(sessions, *session)
	}
	return sessions
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// GetStats returns registry statistics for the health endpoint
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inRooms := 0
	for _, session := range r.sessions {
		if session.InRoom() {
			inRooms++
		}
	}
	return map[string]int{
		"connected_sessions": len(r.sessions),
		"sessions_in_rooms":  inRooms,
	}
}
