package interfaces

import "errors"

// Common interface errors used across components
var (
	ErrMissingCredential    = errors.New("missing credential")
	ErrAuthenticationFailed = errors.New("authentication failed")
)
