package errors

import "errors"

var (
	ErrTimeout          = errors.New("timeout")
	ErrConnectionClosed = errors.New("connection closed")
	// ErrEmptyKey is returned when a primitive is built with an empty name.
	ErrEmptyKey = errors.New("empty key")
	// ErrDecode wraps failures to decode a stored payload.
	ErrDecode          = errors.New("decode failed")
	ErrInvalidConfig   = errors.New("invalid config")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnexpectedReply = errors.New("unexpected reply from store")
)
