package interfaces

import "gamelobby/pkg/types"

// Connection represents one live, authenticated client connection
// ARCHITECTURAL DISCOVERY: Pure abstraction without transport details
// so the coordinator and dispatcher can be exercised with in-memory fakes
type Connection interface {
	// ID returns the server-assigned connection identifier
	ID() string

	// Identity returns the authenticated user bound at connect time
	Identity() types.Identity

	// WriteJSON queues a JSON message for the client (thread-safe).
	// FUNCTIONAL DISCOVERY: Implementations must not block the caller; the
	// coordinator calls this from its single writer goroutine
	WriteJSON(v interface{}) error

	// Close closes the connection and releases its resources
	Close() error
}
