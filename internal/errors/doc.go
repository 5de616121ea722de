// Package errors provides structured, actionable error messages for reflex.
//
// Every error carries a stable code (e.g. "R002") that maps to a short
// message, a longer explanation and a documentation URL. Operator-facing
// failures such as an unroutable reflex target are reported with a
// suggestion on how to fix the setup.
//
// # Error Categories
//
//   - protocol: malformed invocation payloads, transport failures
//   - dispatch: handler resolution and argument binding
//   - render: re-rendering and reconciliation failures
//   - session: session persistence
//   - client: element resolution on the receiving page
//   - config: configuration loading and validation
//
// # Usage
//
//	err := errors.New("R002").
//	    WithDetail(`No handler is registered for "CounterReflex#increment"`).
//	    WithSuggestion("Register the handler with reflex.Registry.Register")
//
//	fmt.Println(err.Format())
package errors
