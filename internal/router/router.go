package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"gamelobby/internal/hub"
	"gamelobby/pkg/interfaces"
	"gamelobby/pkg/types"
)

// Lobby is the set of coordinator commands a router can issue
type Lobby interface {
	ListRooms(ctx context.Context, connectionID string) error
	CreateRoom(ctx context.Context, connectionID, name string) error
	JoinRoom(ctx context.Context, connectionID, roomID string) error
	LeaveRoom(ctx context.Context, connectionID string) error
	StartGame(ctx context.Context, connectionID string) error
	Ping(ctx context.Context, connectionID string) error
}

// Router implements interfaces.CommandRouter
// ARCHITECTURAL DISCOVERY: Pure decoding and admission control; every state
// change is delegated to the lobby coordinator
type Router struct {
	lobby       Lobby
	rateLimiter *RateLimiter
}

var _ interfaces.CommandRouter = (*Router)(nil)

// NewRouter creates a router feeding lobby, limited to commandsPerMinute per connection
func NewRouter(lobby Lobby, commandsPerMinute int) *Router {
	return &Router{
		lobby:       lobby,
		rateLimiter: NewRateLimiter(commandsPerMinute),
	}
}

// Route decodes one inbound frame and runs the command it names.
// Frames rejected here never reach the coordinator; the client gets a roomError.
func (r *Router) Route(ctx context.Context, conn interfaces.Connection, data []byte) error {
	if conn == nil {
		return ErrNilConnection
	}
	connectionID := conn.ID()

	// TECHNICAL DISCOVERY: Rate limiting applied before decoding so floods of
	// garbage cost as little as valid commands
	if !r.rateLimiter.Allow(connectionID) {
		return r.reject(conn, ErrRateLimitExceeded)
	}

	var frame types.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return r.reject(conn, fmt.Errorf("%w: %v", types.ErrMalformedFrame, err))
	}
	if !types.IsValidCommandType(frame.Type) {
		return r.reject(conn, fmt.Errorf("%w: %q", types.ErrUnknownCommand, frame.Type))
	}

	switch frame.Type {
	case types.CommandListRooms:
		return r.lobby.ListRooms(ctx, connectionID)

	case types.CommandCreateRoom:
		name, err := decodeField(frame.Payload, func(p *types.CreateRoomPayload) string { return p.Name })
		if err != nil {
			return r.reject(conn, err)
		}
		return r.lobby.CreateRoom(ctx, connectionID, name)

	case types.CommandJoinRoom:
		roomID, err := decodeField(frame.Payload, func(p *types.JoinRoomPayload) string { return p.RoomID })
		if err != nil {
			return r.reject(conn, err)
		}
		return r.lobby.JoinRoom(ctx, connectionID, roomID)

	case types.CommandLeaveRoom:
		return r.lobby.LeaveRoom(ctx, connectionID)

	case types.CommandStartGame:
		return r.lobby.StartGame(ctx, connectionID)

	case types.CommandPing:
		return r.lobby.Ping(ctx, connectionID)
	}

	return r.reject(conn, types.ErrUnknownCommand)
}

// Forget drops per-connection state after disconnect
func (r *Router) Forget(connectionID string) {
	r.rateLimiter.Forget(connectionID)
}

// CleanupRateLimits removes idle rate limit entries
func (r *Router) CleanupRateLimits() {
	r.rateLimiter.Cleanup()
}

// reject answers the sender directly; nothing is shared with other clients
func (r *Router) reject(conn interfaces.Connection, err error) error {
	code := ErrorCode(err)
	log.Printf("Frame rejected: connection=%s code=%s error=%v", conn.ID(), code, err)
	event := types.NewEvent(types.EventRoomError, types.ErrorPayload{
		Message: err.Error(),
		Code:    code,
	})
	if writeErr := conn.WriteJSON(event); writeErr != nil {
		log.Printf("Failed to send roomError to %s: %v", conn.ID(), writeErr)
	}
	return err
}

// decodeField reads a single string argument. The payload may be the object
// form ({"name": "Alpha"}) or a bare JSON string ("Alpha"); a missing payload
// yields an empty value so the coordinator can report the precise problem.
func decodeField[T any](raw json.RawMessage, field func(*T) string) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}

	if raw[0] == '"' {
		var value string
		if err := json.Unmarshal(raw, &value); err != nil {
			return "", fmt.Errorf("%w: %v", types.ErrMalformedPayload, err)
		}
		return value, nil
	}

	var payload T
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrMalformedPayload, err)
	}
	return field(&payload), nil
}

// ErrorCode classifies router admission errors and falls back to the lobby's
// mapping for everything else
func ErrorCode(err error) types.ErrorCode {
	if errors.Is(err, ErrRateLimitExceeded) {
		return types.CodeRateLimited
	}
	return hub.ErrorCode(err)
}
