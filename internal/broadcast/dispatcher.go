package broadcast

import (
	"log"
	"sync"
	"sync/atomic"

	"gamelobby/pkg/interfaces"
	"gamelobby/pkg/types"
)

// Dispatcher delivers events to one connection, one room group or the lobby group
// ARCHITECTURAL DISCOVERY: Pure delivery without business logic; which events go
// where is decided by the coordinator
type Dispatcher struct {
	mu         sync.RWMutex                                // TECHNICAL DISCOVERY: RWMutex optimizes for read-heavy fan-out
	lobby      map[string]interfaces.Connection            // connectionID -> Connection, every connected session
	roomGroups map[string]map[string]interfaces.Connection // roomID -> connectionID -> Connection
	delivered  atomic.Int64
	failed     atomic.Int64
}

// NewDispatcher creates an empty dispatcher
// FUNCTIONAL DISCOVERY: Initialize all maps to prevent nil map writes during concurrent operations
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		lobby:      make(map[string]interfaces.Connection),
		roomGroups: make(map[string]map[string]interfaces.Connection),
	}
}

// AddConnection subscribes a connection to the lobby group
func (d *Dispatcher) AddConnection(conn interfaces.Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.lobby[conn.ID()]; exists {
		return ErrDuplicateConnection
	}
	d.lobby[conn.ID()] = conn
	return nil
}

// RemoveConnection drops the connection from the lobby and every room group.
// Idempotent.
func (d *Dispatcher) RemoveConnection(connectionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.lobby, connectionID)
	for roomID, members := range d.roomGroups {
		delete(members, connectionID)
		// TECHNICAL DISCOVERY: Clean up empty groups to prevent memory leaks
		if len(members) == 0 {
			delete(d.roomGroups, roomID)
		}
	}
}

// JoinRoomChannel subscribes a lobby connection to a room group
func (d *Dispatcher) JoinRoomChannel(connectionID, roomID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	conn, exists := d.lobby[connectionID]
	if !exists {
		return ErrUnknownConnection
	}
	if d.roomGroups[roomID] == nil {
		d.roomGroups[roomID] = make(map[string]interfaces.Connection)
	}
	d.roomGroups[roomID][connectionID] = conn
	return nil
}

// LeaveRoomChannel unsubscribes a connection from a room group. Idempotent.
func (d *Dispatcher) LeaveRoomChannel(connectionID, roomID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	members, exists := d.roomGroups[roomID]
	if !exists {
		return
	}
	delete(members, connectionID)
	if len(members) == 0 {
		delete(d.roomGroups, roomID)
	}
}

// ToConnection delivers an event to a single connection
func (d *Dispatcher) ToConnection(connectionID string, event *types.Event) {
	d.mu.RLock()
	conn, exists := d.lobby[connectionID]
	d.mu.RUnlock()

	if !exists {
		return // Already disconnected
	}
	d.deliver(conn, event)
}

// ToRoom delivers an event to every member of a room group
func (d *Dispatcher) ToRoom(roomID string, event *types.Event) {
	d.mu.RLock()
	recipients := make([]interfaces.Connection, 0, len(d.roomGroups[roomID]))
	for _, conn := range d.roomGroups[roomID] {
		recipients = append(recipients, conn)
	}
	d.mu.RUnlock()

	for _, conn := range recipients {
		d.deliver(conn, event)
	}
}

// ToLobby delivers an event to every connected session
func (d *Dispatcher) ToLobby(event *types.Event) {
	d.mu.RLock()
	recipients := make([]interfaces.Connection, 0, len(d.lobby))
	for _, conn := range d.lobby {
		recipients = append(recipients, conn)
	}
	d.mu.RUnlock()

	for _, conn := range recipients {
		d.deliver(conn, event)
	}
}

// RoomSubscribers returns the connection ids subscribed to a room group
func (d *Dispatcher) RoomSubscribers(roomID string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ids := make([]string, 0, len(d.roomGroups[roomID]))
	for id := range d.roomGroups[roomID] {
		ids = append(ids, id)
	}
	return ids
}

// GetStats returns dispatcher statistics for monitoring
func (d *Dispatcher) GetStats() map[string]int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return map[string]int{
		"total_connections": len(d.lobby),
		"room_groups":       len(d.roomGroups),
		"events_delivered":  int(d.delivered.Load()),
		"deliveries_failed": int(d.failed.Load()),
	}
}

// deliver is fire-and-forget: failures are logged and counted, never retried
func (d *Dispatcher) deliver(conn interfaces.Connection, event *types.Event) {
	if err := conn.WriteJSON(event); err != nil {
		d.failed.Add(1)
		log.Printf("Failed to deliver %s to connection %s: %v", event.Type, conn.ID(), err)
		return
	}
	d.delivered.Add(1)
}
