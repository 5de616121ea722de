package errors

import "fmt"

// Category represents the type of error.
type Category string

const (
	CategoryProtocol Category = "protocol"
	CategoryDispatch Category = "dispatch"
	CategoryRender   Category = "render"
	CategorySession  Category = "session"
	CategoryClient   Category = "client"
	CategoryConfig   Category = "config"
	CategoryCLI      Category = "cli"
)

// ReflexError is a structured error with a code, suggestions, and documentation.
type ReflexError struct {
	// Code is a unique error identifier (e.g., "R001").
	Code string

	// Category is the error type.
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// Example is a snippet showing the correct approach.
	Example string

	// DocURL is a link to documentation about this error.
	DocURL string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *ReflexError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *ReflexError) Unwrap() error {
	return e.Wrapped
}

// WithSuggestion adds a fix suggestion to the error.
func (e *ReflexError) WithSuggestion(s string) *ReflexError {
	e.Suggestion = s
	return e
}

// WithExample adds a code example to the error.
func (e *ReflexError) WithExample(ex string) *ReflexError {
	e.Example = ex
	return e
}

// WithDetail adds a detailed explanation to the error.
func (e *ReflexError) WithDetail(d string) *ReflexError {
	e.Detail = d
	return e
}

// Wrap wraps another error.
func (e *ReflexError) Wrap(err error) *ReflexError {
	e.Wrapped = err
	return e
}

// New creates a ReflexError from a registered error code.
func New(code string) *ReflexError {
	template, ok := registry[code]
	if !ok {
		return &ReflexError{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &ReflexError{
		Code:     code,
		Category: template.Category,
		Message:  template.Message,
		Detail:   template.Detail,
		DocURL:   template.DocURL,
	}
}

// Newf creates a new ReflexError with a formatted message (no code).
func Newf(category Category, format string, args ...any) *ReflexError {
	return &ReflexError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps a standard error in a ReflexError.
func FromError(err error, code string) *ReflexError {
	if err == nil {
		return nil
	}
	if re, ok := err.(*ReflexError); ok {
		return re
	}
	return New(code).Wrap(err)
}
