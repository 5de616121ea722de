package server

import (
	"errors"
	"fmt"
)

// Sentinel errors for connection and server error conditions.
var (
	// ErrConnectionClosed is returned when sending on a closed connection.
	ErrConnectionClosed = errors.New("server: connection closed")

	// ErrSendQueueFull is returned when a connection's outbound queue is full
	// and a message is dropped.
	ErrSendQueueFull = errors.New("server: send queue full")

	// ErrSecureCookiesRequired is returned when secure cookies are enabled
	// but the request did not arrive over TLS.
	ErrSecureCookiesRequired = errors.New("server: secure cookies require a TLS request")

	// ErrIdentify is returned when a cable request cannot be identified.
	ErrIdentify = errors.New("server: cannot identify connection")
)

// ConnError wraps an error with connection context for debugging.
type ConnError struct {
	ConnID string
	Op     string // Operation that failed
	Err    error  // Underlying error
}

// Error returns the error message with connection context.
func (e *ConnError) Error() string {
	if e.ConnID == "" {
		return fmt.Sprintf("server: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("server: conn %s: %s: %v", e.ConnID, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *ConnError) Unwrap() error {
	return e.Err
}
