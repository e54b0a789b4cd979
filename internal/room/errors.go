package room

import "errors"

// Room lifecycle errors
var (
	ErrRoomFull           = errors.New("room is full")
	ErrRoomInGame         = errors.New("room game already started")
	ErrAlreadyMember      = errors.New("player is already in this room")
	ErrNotMember          = errors.New("player is not in this room")
	ErrNotHost            = errors.New("only the host can start the game")
	ErrRoomNotFound       = errors.New("room not found")
	ErrInvariantViolation = errors.New("room invariant violated")
)
