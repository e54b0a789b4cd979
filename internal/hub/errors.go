package hub

import "errors"

// Hub lifecycle and command precondition errors
var (
	ErrHubAlreadyRunning = errors.New("hub is already running")
	ErrHubNotRunning     = errors.New("hub is not running")
	ErrAlreadyInRoom     = errors.New("already in a room")
	ErrNotInRoom         = errors.New("not in a room")
)
