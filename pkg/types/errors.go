package types

import "errors"

// Domain errors for type validation
var (
	ErrInvalidMessageID = errors.New("invalid message ID")
	ErrMissingSender    = errors.New("message sender is required")
	ErrMissingChat      = errors.New("chat summary is required")
	ErrInvalidMode      = errors.New("invalid search mode")
	ErrInvalidField     = errors.New("invalid matched field")
	ErrInvalidScore     = errors.New("similarity must be between 0 and 1")
)
