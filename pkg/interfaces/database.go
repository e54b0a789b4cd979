package interfaces

import (
	"context"

	"gamelobby/pkg/types"
)

// EventRecorder accepts lobby activity for the audit log.
// FUNCTIONAL DISCOVERY: Record is called by the coordinator while it owns the
// registry, so it must never block on I/O
type EventRecorder interface {
	Record(event *types.LobbyEvent)
}

// EventStore is the activity log backend
type EventStore interface {
	EventRecorder

	// ListEvents returns the newest events first, optionally filtered by room
	ListEvents(ctx context.Context, roomID string, limit int) ([]*types.LobbyEvent, error)

	// HealthCheck verifies database connectivity
	HealthCheck(ctx context.Context) error

	// Close flushes pending writes and closes the database
	Close() error
}
