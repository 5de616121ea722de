package reflex

import (
	"errors"
	"fmt"
)

// Sentinel errors for dispatch conditions.
var (
	// ErrHalt aborts an action. Returning it is the same as calling Reflex.Halt.
	ErrHalt = errors.New("reflex: halted")

	// ErrUnknownHandler is returned when no factory is registered for a class.
	ErrUnknownHandler = errors.New("reflex: no handler registered")

	// ErrUnknownAction is returned when a handler has no action for a method.
	ErrUnknownAction = errors.New("reflex: undefined action")

	// ErrNoRenderer is returned when a page render is needed but no Renderer
	// was configured.
	ErrNoRenderer = errors.New("reflex: no renderer configured")

	// ErrRenderStatus is returned when a page render answers with an error status.
	ErrRenderStatus = errors.New("reflex: page render failed")
)

// RouteError is returned when the target names no resolvable handler or
// the page URL matches no route. It is logged and never broadcast.
type RouteError struct {
	Target string

	// URL is set when the page URL, not the target, failed to route.
	URL string
	Err error
}

func (e *RouteError) Error() string {
	return fmt.Sprintf("reflex: %s: %v", e.Target, e.Err)
}

func (e *RouteError) Unwrap() error {
	return e.Err
}

// ArityError is returned when the argument count does not fit the action's
// Signature.
type ArityError struct {
	Target   string
	Given    int
	Required int
	Optional int
	Variadic bool
}

func (e *ArityError) Error() string {
	return fmt.Sprintf("wrong number of arguments (given %d, expected %d, optional %d)",
		e.Given, e.Required, e.Optional)
}

// HandlerError wraps an error returned by an action or a panic raised by it.
type HandlerError struct {
	Target string
	Err    error
	Panic  any
	Stack  []byte

	// Frame is the file:line that raised the panic, when known.
	Frame string
}

func (e *HandlerError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("panic: %v", e.Panic)
	}
	return e.Err.Error()
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// ReconcileError wraps a failure that happened after the action completed,
// while rendering or comparing the page.
type ReconcileError struct {
	Target string
	Err    error
}

func (e *ReconcileError) Error() string {
	return e.Err.Error()
}

func (e *ReconcileError) Unwrap() error {
	return e.Err
}

// SessionCommitError is logged when the session cannot be persisted. The
// client never sees it.
type SessionCommitError struct {
	Err error
}

func (e *SessionCommitError) Error() string {
	return fmt.Sprintf("reflex: session commit: %v", e.Err)
}

func (e *SessionCommitError) Unwrap() error {
	return e.Err
}

// Code returns the error code logged for err, or "" when err carries none.
func Code(err error) string {
	var (
		route   *RouteError
		arity   *ArityError
		handler *HandlerError
		rec     *ReconcileError
		commit  *SessionCommitError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &commit):
		return "R006"
	case errors.As(err, &rec):
		return "R005"
	case errors.As(err, &arity):
		return "R003"
	case errors.As(err, &route) && route.URL != "":
		return "R008"
	case errors.Is(err, ErrUnknownHandler), errors.Is(err, ErrUnknownAction), route != nil:
		return "R002"
	case errors.As(err, &handler):
		return "R004"
	}
	return ""
}

// describe returns the client-facing failure text: the error message and,
// when known, the frame that raised it on the next line.
func describe(err error) string {
	var he *HandlerError
	if errors.As(err, &he) && he.Frame != "" {
		return err.Error() + "\n" + he.Frame
	}
	return err.Error()
}
