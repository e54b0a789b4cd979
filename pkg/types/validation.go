package types

import (
	"strings"
	"unicode/utf8"
)

// NormalizeRoomName trims the name and checks it against the length limit.
// The trimmed name is what gets stored and shown to other players.
func NormalizeRoomName(name string, maxRunes int) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", ErrBlankRoomName
	}
	if maxRunes > 0 && utf8.RuneCountInString(trimmed) > maxRunes {
		return "", ErrRoomNameTooLong
	}
	return trimmed, nil
}

// Validate ensures the identity carries what the lobby displays and keys on
func (i Identity) Validate() error {
	if strings.TrimSpace(i.ID) == "" || strings.TrimSpace(i.Username) == "" {
		return ErrInvalidIdentity
	}
	return nil
}

// IsValidCommandType reports whether t is one of the inbound commands
func IsValidCommandType(t string) bool {
	switch t {
	case CommandListRooms, CommandCreateRoom, CommandJoinRoom, CommandLeaveRoom, CommandStartGame, CommandPing:
		return true
	default:
		return false
	}
}
