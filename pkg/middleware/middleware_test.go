package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/vango-dev/reflex/pkg/protocol"
	"github.com/vango-dev/reflex/pkg/reflex"
)

type stubConn struct{}

func (stubConn) StreamName() string     { return "stream" }
func (stubConn) Request() *http.Request { return nil }

func (stubConn) Session(context.Context) (reflex.Session, error) { return nil, nil }

type sink struct {
	mu   sync.Mutex
	msgs []*protocol.Message
}

func (s *sink) Broadcast(_ context.Context, _ string, msg *protocol.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return nil
}

// newDispatcher builds a dispatcher with a "Counter" handler whose page
// shows the current count.
func newDispatcher(mw ...reflex.Middleware) *reflex.Dispatcher {
	count := 0
	var mu sync.Mutex

	reg := reflex.NewRegistry()
	reg.Register("Counter", func(*reflex.Reflex) (reflex.Handler, error) {
		return reflex.Actions{
			"increment": reflex.NoArgs(func(context.Context, *reflex.Reflex) error {
				mu.Lock()
				count++
				mu.Unlock()
				return nil
			}),
			"fail": reflex.NoArgs(func(context.Context, *reflex.Reflex) error {
				return errors.New("nope")
			}),
			"stop": reflex.NoArgs(func(_ context.Context, r *reflex.Reflex) error {
				r.Halt()
				return nil
			}),
		}, nil
	})
	renderer := reflex.RendererFunc(func(context.Context, *reflex.Reflex) (*reflex.Page, error) {
		mu.Lock()
		defer mu.Unlock()
		return &reflex.Page{
			HTML:   fmt.Sprintf(`<html><body><span id="count">%d</span></body></html>`, count),
			Status: http.StatusOK,
		}, nil
	})
	return reflex.NewDispatcher(reg, &sink{},
		reflex.WithRenderer(renderer),
		reflex.WithMiddleware(mw...),
		reflex.WithLogger(discard()),
	)
}

func invocation(target string, selectors ...string) []byte {
	data, _ := json.Marshal(map[string]any{
		"target":    target,
		"url":       "http://example.com/",
		"selectors": selectors,
		"callId":    "call-1",
	})
	return data
}
