package types

import (
	"encoding/json"
	"time"
)

// Inbound command types sent by clients over the lobby connection
const (
	CommandListRooms  = "listRooms"
	CommandCreateRoom = "createRoom"
	CommandJoinRoom   = "joinRoom"
	CommandLeaveRoom  = "leaveRoom"
	CommandStartGame  = "startGame"
	CommandPing       = "ping"
)

// Outbound event types pushed by the coordinator
// ARCHITECTURAL DISCOVERY: Event names are part of the client contract and must not drift
const (
	EventRoomListUpdate   = "roomListUpdate"
	EventRoomCreated      = "roomCreated"
	EventRoomJoined       = "roomJoined"
	EventPlayerJoinedRoom = "playerJoinedRoom"
	EventPlayerLeftRoom   = "playerLeftRoom"
	EventRoomLeft         = "roomLeft"
	EventRoomError        = "roomError"
	EventGameStarted      = "gameStarted"
	EventPong             = "pong"
)

// RoomStatus is the lifecycle state of a room
type RoomStatus string

const (
	RoomStatusWaiting RoomStatus = "waiting"
	RoomStatusFull    RoomStatus = "full"
	RoomStatusInGame  RoomStatus = "in_game"
)

// Identity is the authenticated user attached to a connection.
// It is issued by the identity service and treated as opaque by the lobby.
type Identity struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	AccountID string `json:"accountId"`
}

// RoomSnapshot is the only room representation ever sent to clients.
// Connection identifiers and raw identities never leave the coordinator.
type RoomSnapshot struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	MaxPlayers     int        `json:"maxPlayers"`
	CurrentPlayers int        `json:"currentPlayers"`
	PlayerNames    []string   `json:"playerNames"`
	Status         RoomStatus `json:"status"`
	HostName       string     `json:"hostName,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// Frame is an inbound client message. Payload decoding is deferred until
// the command type is known.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Event is an outbound message
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// NewEvent builds an outbound event
func NewEvent(eventType string, payload interface{}) *Event {
	return &Event{Type: eventType, Payload: payload}
}

type CreateRoomPayload struct {
	Name string `json:"name"`
}

type JoinRoomPayload struct {
	RoomID string `json:"roomId"`
}

type PlayerJoinedPayload struct {
	RoomData             RoomSnapshot `json:"roomData"`
	JoinedPlayerUsername string       `json:"joinedPlayerUsername"`
}

type PlayerLeftPayload struct {
	RoomData           RoomSnapshot `json:"roomData"`
	LeftPlayerUsername string       `json:"leftPlayerUsername"`
}

type GameStartedPayload struct {
	RoomData RoomSnapshot `json:"roomData"`
}

type MessagePayload struct {
	Message string `json:"message"`
}

type ErrorPayload struct {
	Message string    `json:"message"`
	Code    ErrorCode `json:"code"`
}

// Lobby activity kinds recorded in the activity log
const (
	LobbyEventRoomCreated  = "room_created"
	LobbyEventPlayerJoined = "player_joined"
	LobbyEventPlayerLeft   = "player_left"
	LobbyEventRoomDeleted  = "room_deleted"
	LobbyEventGameStarted  = "game_started"
)

// LobbyEvent is one entry of the activity log.
// FUNCTIONAL DISCOVERY: The log is an audit trail only; rooms are never rebuilt from it
type LobbyEvent struct {
	ID        string    `json:"id" db:"id"`
	Kind      string    `json:"kind" db:"kind"`
	RoomID    string    `json:"room_id" db:"room_id"`
	RoomName  string    `json:"room_name" db:"room_name"`
	UserID    string    `json:"user_id,omitempty" db:"user_id"`
	Username  string    `json:"username,omitempty" db:"username"`
	Players   int       `json:"players" db:"players"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}
