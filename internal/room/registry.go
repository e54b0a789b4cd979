package room

import (
	"log"
	"sync"

	"gamelobby/pkg/types"
	"github.com/google/uuid"
)

// Registry is the authoritative collection of rooms
// ARCHITECTURAL DISCOVERY: Insertion order is tracked separately from the map
// so room lists are stable between broadcasts
type Registry struct {
	mu            sync.RWMutex
	rooms         map[string]*Room
	order         []string
	capacity      int
	maxNameLength int
	newID         func() string
}

// NewRegistry creates an empty registry for rooms of the given capacity
func NewRegistry(capacity, maxNameLength int) *Registry {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Registry{
		rooms:         make(map[string]*Room),
		order:         make([]string, 0),
		capacity:      capacity,
		maxNameLength: maxNameLength,
		newID:         func() string { return uuid.New().String() },
	}
}

// Capacity returns the size of every room in this registry
func (r *Registry) Capacity() int {
	return r.capacity
}

// List returns room snapshots in creation order
func (r *Registry) List() []types.RoomSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshots := make([]types.RoomSnapshot, 0, len(r.order))
	for _, id := range r.order {
		snapshots = append(snapshots, r.rooms[id].Snapshot())
	}
	return snapshots
}

// Create builds a room with the creator as its first member and publishes it.
// A room is never visible with zero members.
func (r *Registry) Create(name, creatorConnectionID string, creator types.Identity) (*Room, error) {
	normalized, err := types.NormalizeRoomName(name, r.maxNameLength)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.newID()
	for _, taken := r.rooms[id]; taken; _, taken = r.rooms[id] {
		id = r.newID()
	}

	room := New(id, normalized, r.capacity)
	if err := room.AddPlayer(creatorConnectionID, creator); err != nil {
		return nil, err
	}

	r.rooms[id] = room
	r.order = append(r.order, id)

	log.Printf("Room created: id=%s name=%q host=%s", id, normalized, creator.Username)
	return room, nil
}

// Get returns the room with the given id
func (r *Registry) Get(roomID string) (*Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, exists := r.rooms[roomID]
	if !exists {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// Delete removes a room and reports whether it existed
func (r *Registry) Delete(roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, exists := r.rooms[roomID]
	if !exists {
		return false
	}
	delete(r.rooms, roomID)
	for i, id := range r.order {
		if id == roomID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	log.Printf("Room deleted: id=%s name=%q", roomID, room.Name())
	return true
}

// Rooms returns the live rooms in creation order
func (r *Registry) Rooms() []*Room {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make([]*Room, 0, len(r.order))
	for _, id := range r.order {
		rooms = append(rooms, r.rooms[id])
	}
	return rooms
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
