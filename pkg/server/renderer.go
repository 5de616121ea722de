package server

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/vango-dev/reflex/pkg/reflex"
)

// forwardedHeaders are copied from the cable request to page renders.
var forwardedHeaders = []string{"Cookie", "Authorization", "Accept-Language", "User-Agent"}

// HTTPRenderer renders pages by running the application's http.Handler in
// process. It implements reflex.Renderer and, when the handler is a chi
// router, reflex.RouteMatcher.
type HTTPRenderer struct {
	// Handler serves the application's pages.
	Handler http.Handler

	// Routes resolves page URLs to route patterns. Optional.
	Routes chi.Routes
}

// NewHTTPRenderer creates a renderer for h. Route matching is enabled when
// h is a chi router.
func NewHTTPRenderer(h http.Handler) *HTTPRenderer {
	routes, _ := h.(chi.Routes)
	return &HTTPRenderer{Handler: h, Routes: routes}
}

// MatchRoute implements reflex.RouteMatcher.
func (h *HTTPRenderer) MatchRoute(rawURL string) error {
	if h.Routes == nil {
		return nil
	}
	_, err := h.match(rawURL)
	return err
}

func (h *HTTPRenderer) match(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid page url %q: %w", rawURL, err)
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if h.Routes == nil {
		return path, nil
	}
	rctx := chi.NewRouteContext()
	if !h.Routes.Match(rctx, http.MethodGet, path) {
		return "", fmt.Errorf("No route matches [GET] %q", path)
	}
	if pattern := rctx.RoutePattern(); pattern != "" {
		return pattern, nil
	}
	return path, nil
}

// Render implements reflex.Renderer. The page is requested with GET, the
// cable request's credentials and the invocation's session in the context.
func (h *HTTPRenderer) Render(ctx context.Context, r *reflex.Reflex) (*reflex.Page, error) {
	pattern, err := h.match(r.Invocation.URL)
	if err != nil {
		return nil, err
	}
	u, _ := url.Parse(r.Invocation.URL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.RequestURI(), nil)
	if err != nil {
		return nil, err
	}
	if u.Host != "" {
		req.Host = u.Host
	}
	if r.Request != nil {
		for _, name := range forwardedHeaders {
			if v := r.Request.Header.Values(name); len(v) > 0 {
				req.Header[name] = append([]string(nil), v...)
			}
		}
		req.RemoteAddr = r.Request.RemoteAddr
	}
	req.Header.Set("X-Reflex", "true")

	rctx := context.WithValue(req.Context(), renderKey, true)
	if r.Session != nil {
		rctx = WithSession(rctx, r.Session)
	}
	req = req.WithContext(rctx)

	rec := httptest.NewRecorder()
	h.Handler.ServeHTTP(rec, req)

	return &reflex.Page{
		HTML:       rec.Body.String(),
		Status:     rec.Code,
		Controller: pattern,
		Action:     http.MethodGet,
	}, nil
}
