package reflex

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// ActionFunc runs one action. args is nil for actions bound with BindNone.
type ActionFunc func(ctx context.Context, r *Reflex, args []any) error

// Action is one invocable method of a handler.
type Action struct {
	Signature Signature
	Func      ActionFunc
}

// NoArgs declares an action without parameters.
func NoArgs(fn func(ctx context.Context, r *Reflex) error) Action {
	return Action{Func: func(ctx context.Context, r *Reflex, _ []any) error {
		return fn(ctx, r)
	}}
}

// Args declares an action with required and optional positional parameters.
func Args(required, optional int, fn ActionFunc) Action {
	return Action{Signature: Signature{Required: required, Optional: optional}, Func: fn}
}

// Variadic declares an action with required parameters and a variable tail.
func Variadic(required int, fn ActionFunc) Action {
	return Action{Signature: Signature{Required: required, Variadic: true}, Func: fn}
}

// Handler resolves the methods of one handler instance.
type Handler interface {
	Action(method string) (Action, bool)
}

// ErrorHandler is implemented by handlers that want to observe failures of
// their own invocations. OnError runs before the error message is broadcast.
type ErrorHandler interface {
	OnError(r *Reflex, err error)
}

// Actions is a Handler backed by a map of method names.
type Actions map[string]Action

// Action implements Handler.
func (a Actions) Action(method string) (Action, bool) {
	action, ok := a[method]
	return action, ok
}

// Factory builds the handler instance for one invocation.
type Factory func(r *Reflex) (Handler, error)

// Registry maps handler class names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register binds class to f, replacing any previous factory.
func (reg *Registry) Register(class string, f Factory) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.factories[class] = f
}

// Lookup returns the factory registered for class.
func (reg *Registry) Lookup(class string) (Factory, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	f, ok := reg.factories[class]
	return f, ok
}

// Classes returns the registered class names in order.
func (reg *Registry) Classes() []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]string, 0, len(reg.factories))
	for class := range reg.factories {
		out = append(out, class)
	}
	sort.Strings(out)
	return out
}

// create builds the handler for r. Every failure is a *RouteError.
func (reg *Registry) create(r *Reflex) (h Handler, err error) {
	target := r.Invocation.Target
	f, ok := reg.Lookup(r.Invocation.Class())
	if !ok {
		return nil, &RouteError{Target: target, Err: fmt.Errorf("%w for %q", ErrUnknownHandler, r.Invocation.Class())}
	}

	defer func() {
		if p := recover(); p != nil {
			h, err = nil, &RouteError{Target: target, Err: fmt.Errorf("panic: %v", p)}
		}
	}()
	h, err = f(r)
	if err != nil {
		return nil, &RouteError{Target: target, Err: err}
	}
	if h == nil {
		return nil, &RouteError{Target: target, Err: fmt.Errorf("%w: factory returned nil", ErrUnknownHandler)}
	}
	return h, nil
}
