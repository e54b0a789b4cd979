package hub

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"gamelobby/internal/broadcast"
	"gamelobby/internal/room"
	"gamelobby/internal/session"
	"gamelobby/pkg/interfaces"
	"gamelobby/pkg/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "gamelobby/internal/hub"

// Hub is the single writer for lobby state
// ARCHITECTURAL DISCOVERY: Every command and every disconnect runs as one
// operation on the hub goroutine, so check-then-mutate sequences across the
// session registry, room registry and dispatcher are never interleaved
type Hub struct {
	operations      chan *operation // Unbuffered: an accepted operation is always executed
	shutdownChannel chan struct{}
	done            chan struct{}

	sessions   *session.Registry
	rooms      *room.Registry
	dispatcher *broadcast.Dispatcher
	recorder   interfaces.EventRecorder
	tracer     trace.Tracer

	running bool
	mu      sync.RWMutex
}

// operation is one unit of work executed by the hub goroutine
type operation struct {
	ctx          context.Context
	name         string
	connectionID string
	run          func() error
	result       chan error
}

// NewHub creates a hub over the given registries.
// recorder may be nil when the activity log is disabled.
func NewHub(sessions *session.Registry, rooms *room.Registry, dispatcher *broadcast.Dispatcher, recorder interfaces.EventRecorder) *Hub {
	return &Hub{
		operations:      make(chan *operation),
		shutdownChannel: make(chan struct{}),
		done:            make(chan struct{}),
		sessions:        sessions,
		rooms:           rooms,
		dispatcher:      dispatcher,
		recorder:        recorder,
		tracer:          otel.Tracer(tracerName),
	}
}

// Start begins hub processing
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrHubAlreadyRunning
	}
	select {
	case <-h.done:
		// A stopped hub cannot be restarted
		h.mu.Unlock()
		return ErrHubNotRunning
	default:
	}
	h.running = true
	h.mu.Unlock()

	log.Println("Starting lobby hub...")
	go h.run(ctx)
	return nil
}

// Stop shuts the hub down and waits for the in-flight operation to finish
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false

	log.Println("Stopping lobby hub...")

	// TECHNICAL DISCOVERY: Safe channel close using select to prevent panic
	select {
	case <-h.shutdownChannel:
	default:
		close(h.shutdownChannel)
	}
	h.mu.Unlock()

	<-h.done
	return nil
}

// IsRunning reports whether the hub accepts operations
func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

func (h *Hub) run(ctx context.Context) {
	defer close(h.done)
	defer log.Println("Hub processing stopped")

	for {
		select {
		case op := <-h.operations:
			op.result <- h.execute(op)

		case <-h.shutdownChannel:
			log.Println("Hub shutdown requested")
			return

		case <-ctx.Done():
			log.Println("Hub context cancelled")
			h.mu.Lock()
			h.running = false
			h.mu.Unlock()
			return
		}
	}
}

// execute runs one operation inside its own span
func (h *Hub) execute(op *operation) error {
	_, span := h.tracer.Start(op.ctx, "lobby."+op.name,
		trace.WithAttributes(
			attribute.String("lobby.command", op.name),
			attribute.String("lobby.connection_id", op.connectionID),
		))
	defer span.End()

	err := op.run()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// submit hands an operation to the hub goroutine and waits for its result
func (h *Hub) submit(ctx context.Context, name, connectionID string, fn func() error) error {
	if !h.IsRunning() {
		return ErrHubNotRunning
	}

	op := &operation{
		ctx:          ctx,
		name:         name,
		connectionID: connectionID,
		run:          fn,
		result:       make(chan error, 1),
	}

	select {
	case h.operations <- op:
	case <-h.done:
		return ErrHubNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}

	// Once accepted the operation always completes, so the result is awaited
	// even if ctx is cancelled meanwhile
	return <-op.result
}

// Connect registers an authenticated connection and subscribes it to the lobby group
func (h *Hub) Connect(ctx context.Context, conn interfaces.Connection) error {
	if conn == nil {
		return broadcast.ErrNilConnection
	}
	return h.submit(ctx, "connect", conn.ID(), func() error {
		if _, err := h.sessions.Register(conn.ID(), conn.Identity()); err != nil {
			return err
		}
		if err := h.dispatcher.AddConnection(conn); err != nil {
			_, _ = h.sessions.Unregister(conn.ID(), nil)
			return err
		}
		return nil
	})
}

// Disconnect runs the cleanup cascade for a closed connection.
// Safe to call after leaveRoom or more than once.
func (h *Hub) Disconnect(ctx context.Context, connectionID string) error {
	return h.submit(ctx, "disconnect", connectionID, func() error {
		defer h.dispatcher.RemoveConnection(connectionID)

		_, err := h.sessions.Unregister(connectionID, h.leave)
		if errors.Is(err, session.ErrSessionNotFound) {
			return nil
		}
		return err
	})
}

// ListRooms sends the current room list to the caller
func (h *Hub) ListRooms(ctx context.Context, connectionID string) error {
	return h.submit(ctx, types.CommandListRooms, connectionID, func() error {
		h.dispatcher.ToConnection(connectionID, types.NewEvent(types.EventRoomListUpdate, h.rooms.List()))
		return nil
	})
}

// CreateRoom creates a room with the caller as its first member and host
func (h *Hub) CreateRoom(ctx context.Context, connectionID, name string) error {
	return h.submit(ctx, types.CommandCreateRoom, connectionID, func() error {
		return h.reject(connectionID, h.createRoom(connectionID, name))
	})
}

func (h *Hub) createRoom(connectionID, name string) error {
	s, err := h.sessions.Lookup(connectionID)
	if err != nil {
		return err
	}
	if s.InRoom() {
		return ErrAlreadyInRoom
	}

	r, err := h.rooms.Create(name, connectionID, s.Identity)
	if err != nil {
		return err
	}
	if err := h.bind(connectionID, r.ID()); err != nil {
		return err
	}

	snapshot := r.Snapshot()
	h.record(types.LobbyEventRoomCreated, snapshot, s.Identity)

	h.dispatcher.ToConnection(connectionID, types.NewEvent(types.EventRoomCreated, snapshot))
	h.dispatcher.ToRoom(r.ID(), types.NewEvent(types.EventPlayerJoinedRoom, types.PlayerJoinedPayload{
		RoomData:             snapshot,
		JoinedPlayerUsername: s.Identity.Username,
	}))
	h.broadcastRoomList()
	return nil
}

// JoinRoom adds the caller to an existing room
func (h *Hub) JoinRoom(ctx context.Context, connectionID, roomID string) error {
	return h.submit(ctx, types.CommandJoinRoom, connectionID, func() error {
		return h.reject(connectionID, h.joinRoom(connectionID, roomID))
	})
}

func (h *Hub) joinRoom(connectionID, roomID string) error {
	if roomID == "" {
		return types.ErrMissingRoomID
	}
	s, err := h.sessions.Lookup(connectionID)
	if err != nil {
		return err
	}
	if s.InRoom() {
		return ErrAlreadyInRoom
	}

	r, err := h.rooms.Get(roomID)
	if err != nil {
		return err
	}
	if err := r.AddPlayer(connectionID, s.Identity); err != nil {
		return err
	}
	if err := h.bind(connectionID, roomID); err != nil {
		r.RemovePlayer(connectionID)
		return err
	}

	snapshot := r.Snapshot()
	log.Printf("Player joined: room=%s user=%s players=%d/%d", roomID, s.Identity.Username, snapshot.CurrentPlayers, snapshot.MaxPlayers)
	h.record(types.LobbyEventPlayerJoined, snapshot, s.Identity)

	h.dispatcher.ToConnection(connectionID, types.NewEvent(types.EventRoomJoined, snapshot))
	h.dispatcher.ToRoom(roomID, types.NewEvent(types.EventPlayerJoinedRoom, types.PlayerJoinedPayload{
		RoomData:             snapshot,
		JoinedPlayerUsername: s.Identity.Username,
	}))
	h.broadcastRoomList()
	return nil
}

// LeaveRoom removes the caller from their current room
func (h *Hub) LeaveRoom(ctx context.Context, connectionID string) error {
	return h.submit(ctx, types.CommandLeaveRoom, connectionID, func() error {
		s, err := h.sessions.Lookup(connectionID)
		if err == nil && !s.InRoom() {
			err = ErrNotInRoom
		}
		if err != nil {
			return h.reject(connectionID, err)
		}

		h.leave(s)
		h.dispatcher.ToConnection(connectionID, types.NewEvent(types.EventRoomLeft, types.MessagePayload{
			Message: "You have left the room",
		}))
		return nil
	})
}

// StartGame moves the caller's room to IN_GAME. Only the host may start.
func (h *Hub) StartGame(ctx context.Context, connectionID string) error {
	return h.submit(ctx, types.CommandStartGame, connectionID, func() error {
		return h.reject(connectionID, h.startGame(connectionID))
	})
}

func (h *Hub) startGame(connectionID string) error {
	s, err := h.sessions.Lookup(connectionID)
	if err != nil {
		return err
	}
	if !s.InRoom() {
		return ErrNotInRoom
	}
	r, err := h.rooms.Get(s.RoomID)
	if err != nil {
		return err
	}
	if err := r.StartGame(connectionID); err != nil {
		return err
	}

	snapshot := r.Snapshot()
	log.Printf("Game started: room=%s host=%s players=%d", r.ID(), s.Identity.Username, snapshot.CurrentPlayers)
	h.record(types.LobbyEventGameStarted, snapshot, s.Identity)

	h.dispatcher.ToRoom(r.ID(), types.NewEvent(types.EventGameStarted, types.GameStartedPayload{RoomData: snapshot}))
	h.broadcastRoomList()
	return nil
}

// Ping answers a liveness probe
func (h *Hub) Ping(ctx context.Context, connectionID string) error {
	return h.submit(ctx, types.CommandPing, connectionID, func() error {
		h.dispatcher.ToConnection(connectionID, types.NewEvent(types.EventPong, nil))
		return nil
	})
}

// RoomSnapshots returns the room list as seen between two operations
func (h *Hub) RoomSnapshots(ctx context.Context) ([]types.RoomSnapshot, error) {
	var snapshots []types.RoomSnapshot
	err := h.submit(ctx, "roomSnapshots", "", func() error {
		snapshots = h.rooms.List()
		return nil
	})
	return snapshots, err
}

// VerifyInvariants checks every room and cross-checks session room pointers
// against room membership
func (h *Hub) VerifyInvariants(ctx context.Context) error {
	return h.submit(ctx, "verifyInvariants", "", func() error {
		owner := make(map[string]string)
		for _, r := range h.rooms.Rooms() {
			if err := r.Verify(); err != nil {
				return err
			}
			if r.IsEmpty() {
				return fmt.Errorf("%w: empty room %s still registered", room.ErrInvariantViolation, r.ID())
			}
			for _, m := range r.Members() {
				if other, taken := owner[m.ConnectionID]; taken {
					return fmt.Errorf("%w: connection %s in rooms %s and %s", room.ErrInvariantViolation, m.ConnectionID, other, r.ID())
				}
				owner[m.ConnectionID] = r.ID()
			}
		}

		for _, s := range h.sessions.List() {
			if owner[s.ConnectionID] != s.RoomID {
				return fmt.Errorf("%w: session %s points at %q but is a member of %q",
					room.ErrInvariantViolation, s.ConnectionID, s.RoomID, owner[s.ConnectionID])
			}
			delete(owner, s.ConnectionID)
		}
		for connectionID, roomID := range owner {
			return fmt.Errorf("%w: room %s holds unknown connection %s", room.ErrInvariantViolation, roomID, connectionID)
		}
		return nil
	})
}

// leave removes the session from its room and runs the consequences:
// delete the room if it emptied, otherwise tell the remaining members.
// Both leaveRoom and the disconnect cascade converge here.
func (h *Hub) leave(s session.Session) {
	r, err := h.rooms.Get(s.RoomID)
	if err != nil {
		log.Printf("INVARIANT VIOLATION: session %s points at missing room %s", s.ConnectionID, s.RoomID)
		_ = h.sessions.SetRoom(s.ConnectionID, "")
		h.dispatcher.LeaveRoomChannel(s.ConnectionID, s.RoomID)
		return
	}

	_, removed := r.RemovePlayer(s.ConnectionID)
	_ = h.sessions.SetRoom(s.ConnectionID, "")
	h.dispatcher.LeaveRoomChannel(s.ConnectionID, r.ID())
	if !removed {
		return
	}

	snapshot := r.Snapshot()
	log.Printf("Player left: room=%s user=%s players=%d/%d", r.ID(), s.Identity.Username, snapshot.CurrentPlayers, snapshot.MaxPlayers)
	h.record(types.LobbyEventPlayerLeft, snapshot, s.Identity)

	// The room is gone before anything referencing it is broadcast
	if r.IsEmpty() {
		h.rooms.Delete(r.ID())
		h.record(types.LobbyEventRoomDeleted, snapshot, types.Identity{})
	} else {
		h.dispatcher.ToRoom(r.ID(), types.NewEvent(types.EventPlayerLeftRoom, types.PlayerLeftPayload{
			RoomData:           snapshot,
			LeftPlayerUsername: s.Identity.Username,
		}))
	}
	h.broadcastRoomList()
}

// bind points the session at roomID and subscribes it to the room group
func (h *Hub) bind(connectionID, roomID string) error {
	if err := h.sessions.SetRoom(connectionID, roomID); err != nil {
		return err
	}
	if err := h.dispatcher.JoinRoomChannel(connectionID, roomID); err != nil {
		log.Printf("Room channel subscription failed: connection=%s room=%s error=%v", connectionID, roomID, err)
	}
	return nil
}

func (h *Hub) broadcastRoomList() {
	h.dispatcher.ToLobby(types.NewEvent(types.EventRoomListUpdate, h.rooms.List()))
}

// reject reports a failed command to its caller and passes err through
func (h *Hub) reject(connectionID string, err error) error {
	if err == nil {
		return nil
	}
	code := ErrorCode(err)
	message := err.Error()
	if code == types.CodeInternal {
		message = "internal error"
	}
	log.Printf("Command rejected: connection=%s code=%s error=%v", connectionID, code, err)
	h.dispatcher.ToConnection(connectionID, types.NewEvent(types.EventRoomError, types.ErrorPayload{
		Message: message,
		Code:    code,
	}))
	return err
}

func (h *Hub) record(kind string, snapshot types.RoomSnapshot, who types.Identity) {
	if h.recorder == nil {
		return
	}
	h.recorder.Record(&types.LobbyEvent{
		Kind:      kind,
		RoomID:    snapshot.ID,
		RoomName:  snapshot.Name,
		UserID:    who.ID,
		Username:  who.Username,
		Players:   snapshot.CurrentPlayers,
		Timestamp: time.Now().UTC(),
	})
}

// ErrorCode maps a command error onto the client-facing error code
func ErrorCode(err error) types.ErrorCode {
	switch {
	case errors.Is(err, types.ErrBlankRoomName),
		errors.Is(err, types.ErrRoomNameTooLong),
		errors.Is(err, types.ErrMissingRoomID),
		errors.Is(err, types.ErrMalformedPayload):
		return types.CodeValidation
	case errors.Is(err, ErrAlreadyInRoom), errors.Is(err, room.ErrAlreadyMember):
		return types.CodeConflict
	case errors.Is(err, room.ErrRoomNotFound):
		return types.CodeNotFound
	case errors.Is(err, room.ErrRoomFull):
		return types.CodeCapacity
	case errors.Is(err, room.ErrRoomInGame):
		return types.CodeStatus
	case errors.Is(err, ErrNotInRoom), errors.Is(err, room.ErrNotMember):
		return types.CodeNotInRoom
	case errors.Is(err, room.ErrNotHost):
		return types.CodePermission
	case errors.Is(err, types.ErrUnknownCommand), errors.Is(err, types.ErrMalformedFrame):
		return types.CodeBadRequest
	default:
		return types.CodeInternal
	}
}
