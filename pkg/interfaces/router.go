package interfaces

import "context"

// CommandRouter turns raw inbound frames into coordinator commands
type CommandRouter interface {
	// Route decodes and dispatches one inbound frame from conn.
	// Rejections are reported to the client; the returned error is for logging.
	Route(ctx context.Context, conn Connection, data []byte) error

	// Forget drops any per-connection routing state after disconnect
	Forget(connectionID string)
}
