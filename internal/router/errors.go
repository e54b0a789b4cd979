package router

import "errors"

// Router-specific errors
var (
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrNilConnection     = errors.New("connection is nil")
)
