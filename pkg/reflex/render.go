package reflex

import "context"

// Page is one full render of the page the invocation came from.
type Page struct {
	HTML       string
	Status     int
	Controller string
	Action     string
}

// Renderer re-renders the originating page from the current server state.
// It is called at most twice per invocation: once before the action runs
// when selectors are requested, and once after it.
type Renderer interface {
	Render(ctx context.Context, r *Reflex) (*Page, error)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(ctx context.Context, r *Reflex) (*Page, error)

// Render implements Renderer.
func (f RendererFunc) Render(ctx context.Context, r *Reflex) (*Page, error) {
	return f(ctx, r)
}

// RouteMatcher is implemented by renderers that can tell whether a page URL
// is routable before a handler is built. A failure is reported as a
// *RouteError.
type RouteMatcher interface {
	MatchRoute(url string) error
}
