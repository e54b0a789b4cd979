package auth

import "errors"

var (
	ErrMissingSecret = errors.New("token secret is required")
	ErrTokenExpired  = errors.New("token is expired")
	ErrTokenInvalid  = errors.New("token is invalid")
	ErrClaimsInvalid = errors.New("token claims do not describe a user")
)
