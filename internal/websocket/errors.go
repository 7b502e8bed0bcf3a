package websocket

import "errors"

// Connection-related errors
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendBufferFull   = errors.New("send buffer full")
	ErrInvalidJSON      = errors.New("invalid JSON data")
)

// Registry and handler errors
var (
	ErrNilConnection = errors.New("connection cannot be nil")
	ErrNilDispatcher = errors.New("dispatcher cannot be nil")
)
