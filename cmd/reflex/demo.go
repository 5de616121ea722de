package main

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/vango-dev/reflex/pkg/reflex"
	"github.com/vango-dev/reflex/pkg/server"
)

// demoPage is the counter page served by "reflex serve".
const demoPage = `<!DOCTYPE html>
<html>
<head><title>%s</title></head>
<body>
<h1>%s</h1>
<p>Count: <span id="count">%d</span></p>
<button id="decrement" data-reflex="click->Counter#decrement">-</button>
<button id="increment" data-reflex="click->Counter#increment" data-step="1">+</button>
<button id="reset" data-reflex="click->Counter#reset">reset</button>
<footer id="footer" data-reflex-permanent>rendered for %s</footer>
</body>
</html>
`

func sessionCount(s reflex.Session) int {
	if s == nil {
		return 0
	}
	switch v := s.Get("count").(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

// demoApp serves the counter page.
func demoApp(name string) http.Handler {
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		n := sessionCount(server.SessionFromContext(r.Context()))
		who := "a browser"
		if server.IsReflexRender(r) {
			who = "a reflex"
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		title := html.EscapeString(name)
		io.WriteString(w, fmt.Sprintf(demoPage, title, title, n, who))
	})
	return r
}

// demoRegistry registers the Counter handler.
func demoRegistry() *reflex.Registry {
	reg := reflex.NewRegistry()
	reg.Register("Counter", func(*reflex.Reflex) (reflex.Handler, error) {
		step := func(r *reflex.Reflex, by int) {
			r.Session.Set("count", sessionCount(r.Session)+by)
		}
		return reflex.Actions{
			"increment": reflex.NoArgs(func(_ context.Context, r *reflex.Reflex) error {
				step(r, 1)
				return nil
			}),
			"decrement": reflex.NoArgs(func(_ context.Context, r *reflex.Reflex) error {
				step(r, -1)
				return nil
			}),
			"add": reflex.Args(1, 0, func(_ context.Context, r *reflex.Reflex, args []any) error {
				n, ok := args[0].(float64)
				if !ok {
					return fmt.Errorf("add expects a number, got %T", args[0])
				}
				step(r, int(n))
				return nil
			}),
			"reset": reflex.NoArgs(func(_ context.Context, r *reflex.Reflex) error {
				r.Session.Set("count", 0)
				return nil
			}),
		}, nil
	})
	return reg
}
