package room

import (
	"fmt"
	"sync"
	"time"

	"gamelobby/pkg/types"
)

// DefaultCapacity is the fixed room size of the lobby
const DefaultCapacity = 4

// Member is one occupant of a room
type Member struct {
	ConnectionID string
	Identity     types.Identity
	JoinedAt     time.Time
}

// Room is a fixed-capacity group of players waiting to start a game.
// Membership keeps insertion order; the first member is the host.
type Room struct {
	mu        sync.RWMutex
	id        string
	name      string
	capacity  int
	members   []Member
	status    types.RoomStatus
	hostID    string // connection id of the host, empty once the room is empty
	createdAt time.Time
}

// New creates an empty room. Rooms are only observable through the Registry
// after their creator has been added.
func New(id, name string, capacity int) *Room {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Room{
		id:        id,
		name:      name,
		capacity:  capacity,
		members:   make([]Member, 0, capacity),
		status:    types.RoomStatusWaiting,
		createdAt: time.Now().UTC(),
	}
}

func (r *Room) ID() string { return r.id }

func (r *Room) Name() string { return r.name }

func (r *Room) Capacity() int { return r.capacity }

// AddPlayer appends a player to the membership.
// The checks and the append happen under one lock so two callers can never
// both take the last slot.
func (r *Room) AddPlayer(connectionID string, identity types.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.members) >= r.capacity {
		return ErrRoomFull
	}
	if r.status == types.RoomStatusInGame {
		return ErrRoomInGame
	}
	if r.indexOf(connectionID) >= 0 {
		return ErrAlreadyMember
	}

	r.members = append(r.members, Member{
		ConnectionID: connectionID,
		Identity:     identity,
		JoinedAt:     time.Now(),
	})
	if r.hostID == "" {
		r.hostID = connectionID
	}
	r.recomputeStatus()
	return nil
}

// RemovePlayer removes the player if present and reports whether anything
// changed. Repeated calls are no-ops.
// When the host leaves, the next member in join order becomes host.
func (r *Room) RemovePlayer(connectionID string) (Member, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexOf(connectionID)
	if idx < 0 {
		return Member{}, false
	}

	removed := r.members[idx]
	r.members = append(r.members[:idx], r.members[idx+1:]...)

	if r.hostID == connectionID {
		r.hostID = ""
		if len(r.members) > 0 {
			r.hostID = r.members[0].ConnectionID
		}
	}
	r.recomputeStatus()
	return removed, true
}

// StartGame moves the room to IN_GAME. Only the host may do this and the
// transition is terminal.
func (r *Room) StartGame(connectionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexOf(connectionID) < 0 {
		return ErrNotMember
	}
	if r.status == types.RoomStatusInGame {
		return ErrRoomInGame
	}
	if r.hostID != connectionID {
		return ErrNotHost
	}
	r.status = types.RoomStatusInGame
	return nil
}

func (r *Room) IsEmpty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members) == 0
}

func (r *Room) Status() types.RoomStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// Contains reports whether connectionID is a member
func (r *Room) Contains(connectionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.indexOf(connectionID) >= 0
}

// Host returns the current host, if the room has members
func (r *Room) Host() (Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx := r.indexOf(r.hostID)
	if idx < 0 {
		return Member{}, false
	}
	return r.members[idx], true
}

// Members returns a copy of the membership in join order
func (r *Room) Members() []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := make([]Member, len(r.members))
	copy(members, r.members)
	return members
}

// Snapshot returns the identity-scrubbed view sent to clients
func (r *Room) Snapshot() types.RoomSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.members))
	hostName := ""
	for i, m := range r.members {
		names[i] = m.Identity.Username
		if m.ConnectionID == r.hostID {
			hostName = m.Identity.Username
		}
	}

	return types.RoomSnapshot{
		ID:             r.id,
		Name:           r.name,
		MaxPlayers:     r.capacity,
		CurrentPlayers: len(r.members),
		PlayerNames:    names,
		Status:         r.status,
		HostName:       hostName,
		CreatedAt:      r.createdAt,
	}
}

// Verify checks the room's internal invariants. A failure means the
// single-writer discipline was broken somewhere.
func (r *Room) Verify() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.members) > r.capacity {
		return fmt.Errorf("%w: room %s has %d members, capacity %d", ErrInvariantViolation, r.id, len(r.members), r.capacity)
	}

	seen := make(map[string]bool, len(r.members))
	for _, m := range r.members {
		if seen[m.ConnectionID] {
			return fmt.Errorf("%w: room %s lists connection %s twice", ErrInvariantViolation, r.id, m.ConnectionID)
		}
		seen[m.ConnectionID] = true
	}

	if r.status != types.RoomStatusInGame {
		want := types.RoomStatusWaiting
		if len(r.members) == r.capacity {
			want = types.RoomStatusFull
		}
		if r.status != want {
			return fmt.Errorf("%w: room %s status %s with %d/%d members", ErrInvariantViolation, r.id, r.status, len(r.members), r.capacity)
		}
	}

	if len(r.members) > 0 && !seen[r.hostID] {
		return fmt.Errorf("%w: room %s host %q is not a member", ErrInvariantViolation, r.id, r.hostID)
	}
	return nil
}

// recomputeStatus never leaves IN_GAME. Caller holds the write lock.
func (r *Room) recomputeStatus() {
	if r.status == types.RoomStatusInGame {
		return
	}
	if len(r.members) >= r.capacity {
		r.status = types.RoomStatusFull
	} else {
		r.status = types.RoomStatusWaiting
	}
}

// indexOf requires the caller to hold the lock
func (r *Room) indexOf(connectionID string) int {
	if connectionID == "" {
		return -1
	}
	for i, m := range r.members {
		if m.ConnectionID == connectionID {
			return i
		}
	}
	return -1
}
