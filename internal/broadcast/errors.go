package broadcast

import "errors"

// Dispatcher errors
var (
	ErrNilConnection       = errors.New("connection cannot be nil")
	ErrDuplicateConnection = errors.New("connection already subscribed to the lobby")
	ErrUnknownConnection   = errors.New("connection is not subscribed to the lobby")
)
