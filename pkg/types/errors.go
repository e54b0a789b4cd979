package types

import "errors"

// ErrorCode classifies a rejected command for the client
type ErrorCode string

const (
	CodeValidation  ErrorCode = "validation_error"
	CodeConflict    ErrorCode = "conflict_error"
	CodeNotFound    ErrorCode = "not_found_error"
	CodeCapacity    ErrorCode = "capacity_error"
	CodeStatus      ErrorCode = "status_error"
	CodeNotInRoom   ErrorCode = "not_in_room_error"
	CodePermission  ErrorCode = "permission_error"
	CodeAuthFailure ErrorCode = "auth_failure"
	CodeRateLimited ErrorCode = "rate_limited"
	CodeBadRequest  ErrorCode = "bad_request"
	CodeInternal    ErrorCode = "internal_error"
)

// ARCHITECTURAL DISCOVERY: Validation errors live with the wire types so every
// entry point (websocket, HTTP) rejects the same inputs the same way
var (
	ErrBlankRoomName    = errors.New("room name cannot be blank")
	ErrRoomNameTooLong  = errors.New("room name is too long")
	ErrMissingRoomID    = errors.New("room id is required")
	ErrInvalidIdentity  = errors.New("identity requires an id and a username")
	ErrUnknownCommand   = errors.New("unknown command type")
	ErrMalformedFrame   = errors.New("malformed message frame")
	ErrMalformedPayload = errors.New("malformed command payload")
)
