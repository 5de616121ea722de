package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrInvalidInvocation matches every DecodeError.
	ErrInvalidInvocation = errors.New("protocol: invalid invocation")

	// ErrMaxDepthExceeded is returned when argument nesting exceeds MaxArgumentDepth.
	ErrMaxDepthExceeded = errors.New("protocol: maximum nesting depth exceeded")

	// ErrMissingTarget is returned when an invocation names no "Class#method" target.
	ErrMissingTarget = errors.New("protocol: target must have the form Class#method")
)

// DecodeError is returned when an inbound payload cannot be decoded into an
// Invocation. It is a transport-level failure and never produces a Message.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("protocol: invalid invocation: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is reports ErrInvalidInvocation as a match for every DecodeError.
func (e *DecodeError) Is(target error) bool {
	return target == ErrInvalidInvocation
}

// ErrorCode identifies the type of an ErrorFrame.
type ErrorCode string

const (
	CodeInvalidInvocation ErrorCode = "invalid_invocation" // Malformed payload
	CodeRateLimited       ErrorCode = "rate_limited"       // Too many invocations
	CodeMessageTooLarge   ErrorCode = "message_too_large"  // Payload above the size limit
	CodeServerError       ErrorCode = "server_error"       // Internal server error
	CodeNotAuthorized     ErrorCode = "not_authorized"     // Connection rejected
)

// ErrorFrame is sent to a single connection when a payload fails before it
// reaches a handler.
type ErrorFrame struct {
	Type    string    `json:"type"`
	Code    ErrorCode `json:"code"`
	Message string    `json:"message,omitempty"`
	CallID  string    `json:"callId,omitempty"`
	Fatal   bool      `json:"fatal,omitempty"`
}

const errorFrameType = "error"

// NewError creates a non-fatal ErrorFrame.
func NewError(code ErrorCode, message string) *ErrorFrame {
	return &ErrorFrame{Type: errorFrameType, Code: code, Message: message}
}

// NewFatalError creates an ErrorFrame after which the connection is closed.
func NewFatalError(code ErrorCode, message string) *ErrorFrame {
	return &ErrorFrame{Type: errorFrameType, Code: code, Message: message, Fatal: true}
}

// Encode returns the JSON encoding of the frame.
func (f *ErrorFrame) Encode() []byte {
	f.Type = errorFrameType
	data, _ := json.Marshal(f)
	return data
}

// Error implements the error interface.
func (f *ErrorFrame) Error() string {
	if f.Fatal {
		return "fatal: " + string(f.Code) + ": " + f.Message
	}
	return string(f.Code) + ": " + f.Message
}

// DecodeServerFrame decodes one server-to-client frame. Exactly one of the
// returned message and error frame is non-nil on success.
func DecodeServerFrame(data []byte) (*Message, *ErrorFrame, error) {
	var peek struct {
		Type       string `json:"type"`
		CableReady bool   `json:"cableReady"`
	}
	if err := json.Unmarshal(data, &peek); err != nil {
		return nil, nil, fmt.Errorf("protocol: decode frame: %w", err)
	}

	if peek.Type == errorFrameType {
		var f ErrorFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, nil, fmt.Errorf("protocol: decode error frame: %w", err)
		}
		return nil, &f, nil
	}
	if !peek.CableReady {
		return nil, nil, fmt.Errorf("protocol: unknown frame")
	}

	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, nil, err
	}
	return &m, nil, nil
}
