package reflex

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/vango-dev/reflex/pkg/protocol"
)

// countingSession counts commits.
type countingSession struct {
	mu        sync.Mutex
	values    map[string]any
	commits   int
	commitErr error
}

func newCountingSession() *countingSession {
	return &countingSession{values: map[string]any{}}
}

func (s *countingSession) Get(key string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key]
}

func (s *countingSession) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

func (s *countingSession) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

func (s *countingSession) Commit(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commits++
	return s.commitErr
}

func (s *countingSession) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

type fakeConn struct {
	stream     string
	session    Session
	sessionErr error
	opened     int
}

func (c *fakeConn) StreamName() string     { return c.stream }
func (c *fakeConn) Request() *http.Request { return nil }

func (c *fakeConn) Session(context.Context) (Session, error) {
	c.opened++
	if c.sessionErr != nil {
		return nil, c.sessionErr
	}
	return c.session, nil
}

// recordingBroadcaster keeps every message.
type recordingBroadcaster struct {
	mu      sync.Mutex
	streams []string
	msgs    []*protocol.Message
	err     error
}

func (b *recordingBroadcaster) Broadcast(_ context.Context, stream string, msg *protocol.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.streams = append(b.streams, stream)
	b.msgs = append(b.msgs, msg)
	return nil
}

func (b *recordingBroadcaster) Messages() []*protocol.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*protocol.Message(nil), b.msgs...)
}

// counterPage renders the count kept in the session.
type counterPage struct {
	calls    int
	status   int
	failFrom int // fail every call from this one on, 0 disables
	body     func(count int) string
}

func (p *counterPage) Render(_ context.Context, r *Reflex) (*Page, error) {
	p.calls++
	if p.failFrom > 0 && p.calls >= p.failFrom {
		return nil, errors.New("template counter.html missing")
	}
	count, _ := r.Session.Get("count").(int)
	status := p.status
	if status == 0 {
		status = http.StatusOK
	}
	body := fmt.Sprintf(`<div id="count">%d</div><p id="static">hi</p>`, count)
	if p.body != nil {
		body = p.body(count)
	}
	return &Page{
		HTML:       "<html><body>" + body + "</body></html>",
		Status:     status,
		Controller: "PagesController",
		Action:     "counter",
	}, nil
}

// counter is a handler with an error hook.
type counter struct {
	hooked []error
}

func (c *counter) OnError(_ *Reflex, err error) {
	c.hooked = append(c.hooked, err)
}

func (c *counter) Action(method string) (Action, bool) {
	actions := Actions{
		"increment": Args(0, 1, func(_ context.Context, r *Reflex, args []any) error {
			step := 1
			if len(args) == 1 {
				f, _ := args[0].(float64)
				step = int(f)
			}
			count, _ := r.Session.Get("count").(int)
			r.Session.Set("count", count+step)
			return nil
		}),
		"reset": NoArgs(func(_ context.Context, r *Reflex) error {
			r.Session.Set("count", 0)
			return nil
		}),
		"halt": NoArgs(func(_ context.Context, r *Reflex) error {
			r.Session.Set("count", 99)
			r.Halt()
			return nil
		}),
		"halt_err": NoArgs(func(context.Context, *Reflex) error {
			return ErrHalt
		}),
		"boom": NoArgs(func(context.Context, *Reflex) error {
			return errors.New("kaboom")
		}),
		"explode": NoArgs(func(context.Context, *Reflex) error {
			panic("bad state")
		}),
		"morph": NoArgs(func(_ context.Context, r *Reflex) error {
			r.Morph("#foo", `<div id="foo"><div>bar</div><div>baz</div></div>`)
			return nil
		}),
	}
	return actions.Action(method)
}

type harness struct {
	registry *Registry
	handler  *counter
	session  *countingSession
	bcast    *recordingBroadcaster
	page     *counterPage
	logs     *bytes.Buffer
	conn     *fakeConn
}

func newHarness() *harness {
	h := &harness{
		registry: NewRegistry(),
		handler:  &counter{},
		session:  newCountingSession(),
		bcast:    &recordingBroadcaster{},
		page:     &counterPage{},
		logs:     &bytes.Buffer{},
	}
	h.registry.Register("Counter", func(*Reflex) (Handler, error) { return h.handler, nil })
	h.conn = &fakeConn{stream: "user-1", session: h.session}
	return h
}

func (h *harness) dispatcher(opts ...Option) *Dispatcher {
	logger := slog.New(slog.NewTextHandler(h.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	base := []Option{WithRenderer(h.page), WithLogger(logger)}
	return NewDispatcher(h.registry, h.bcast, append(base, opts...)...)
}

func payload(target string, extra string) []byte {
	if extra != "" {
		extra = "," + extra
	}
	return []byte(fmt.Sprintf(`{"target":%q,"url":"http://example.com/counter","callId":"call-1"%s}`, target, extra))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
