package interfaces

import (
	"context"

	"gamelobby/pkg/types"
)

// Authenticator resolves an opaque credential into an identity.
// The identity service behind it owns registration, passwords and token issuance.
type Authenticator interface {
	// Authenticate returns the identity for credential or ErrAuthenticationFailed
	Authenticate(ctx context.Context, credential string) (types.Identity, error)
}
