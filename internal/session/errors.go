package session

import "errors"

// Session registry error types
var (
	ErrDuplicateConnection = errors.New("connection is already registered")
	ErrSessionNotFound     = errors.New("session not found")
	ErrInvalidConnectionID = errors.New("connection id cannot be empty")
)
