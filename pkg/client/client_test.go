package client_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vango-dev/reflex/pkg/broadcast"
	"github.com/vango-dev/reflex/pkg/client"
	"github.com/vango-dev/reflex/pkg/dom"
	"github.com/vango-dev/reflex/pkg/protocol"
	"github.com/vango-dev/reflex/pkg/reflex"
	"github.com/vango-dev/reflex/pkg/server"
	"github.com/vango-dev/reflex/pkg/session"
	"golang.org/x/time/rate"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func count(s reflex.Session) int {
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

func page(n int) string {
	return fmt.Sprintf(`<html><head></head><body>`+
		`<h1>Counter</h1>`+
		`<span id="count">%d</span>`+
		`<button id="inc" data-reflex="click->Counter#increment" data-step="1">+</button>`+
		`</body></html>`, n)
}

func newServer(t *testing.T, config *server.ServerConfig) *httptest.Server {
	t.Helper()

	app := chi.NewRouter()
	app.Get("/", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, page(count(server.SessionFromContext(r.Context()))))
	})

	hub := broadcast.NewHub(discard())
	reg := reflex.NewRegistry()
	reg.Register("Counter", func(*reflex.Reflex) (reflex.Handler, error) {
		return reflex.Actions{
			"increment": reflex.NoArgs(func(_ context.Context, r *reflex.Reflex) error {
				r.Session.Set("count", count(r.Session)+1)
				return nil
			}),
			"add": reflex.Args(1, 0, func(_ context.Context, r *reflex.Reflex, args []any) error {
				n, _ := args[0].(float64)
				r.Session.Set("count", count(r.Session)+int(n))
				return nil
			}),
			"stop": reflex.NoArgs(func(_ context.Context, r *reflex.Reflex) error {
				r.Halt()
				return nil
			}),
			"fail": reflex.NoArgs(func(context.Context, *reflex.Reflex) error {
				return errors.New("boom")
			}),
		}, nil
	})
	d := reflex.NewDispatcher(reg, hub,
		reflex.WithRenderer(server.NewHTTPRenderer(app)),
		reflex.WithLogger(discard()),
	)
	store := session.NewMemoryStore(session.WithCleanupInterval(0))
	t.Cleanup(func() { store.Close() })

	srv := server.New(config, d, hub,
		server.WithApp(app),
		server.WithSessionStore(store),
		server.WithLogger(discard()),
	)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts
}

func dial(t *testing.T, ts *httptest.Server, opts ...client.Option) *client.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cable := "ws" + strings.TrimPrefix(ts.URL, "http") + "/cable"
	opts = append([]client.Option{client.WithLogger(discard())}, opts...)
	c, err := client.Dial(ctx, cable, page(0), ts.URL+"/", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func invoke(t *testing.T, c *client.Client, target string, opts ...client.InvokeOption) *client.Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	button, err := c.Query("#inc")
	require.NoError(t, err)
	call, err := c.Invoke(ctx, target, button, opts...)
	require.NoError(t, err)
	res, err := call.Wait(ctx)
	require.NoError(t, err)
	return res
}

func TestInvokeSelectorUpdatesPage(t *testing.T) {
	c := dial(t, newServer(t, nil))

	res := invoke(t, c, "Counter#increment", client.WithSelectors("#count"))
	assert.Equal(t, protocol.SubjectSuccess, res.Subject())
	require.Len(t, res.Message.Operations, 1)
	assert.Equal(t, protocol.KindMorph, res.Message.Operations[0].Kind)

	text, err := c.Text("#count")
	require.NoError(t, err)
	assert.Equal(t, "1", text)

	require.NotNil(t, res.Element)
	assert.Equal(t, "inc", dom.Attr(res.Element, "id"))
}

func TestInvokeArguments(t *testing.T) {
	c := dial(t, newServer(t, nil))

	res := invoke(t, c, "Counter#add", client.WithArguments(5), client.WithSelectors("#count"))
	assert.Equal(t, protocol.SubjectSuccess, res.Subject())
	text, _ := c.Text("#count")
	assert.Equal(t, "5", text)

	res = invoke(t, c, "Counter#add", client.WithSelectors("#count"))
	assert.Equal(t, protocol.SubjectError, res.Subject())
	assert.Contains(t, res.Message.Body, "Reflex Counter#add failed")
	text, _ = c.Text("#count")
	assert.Equal(t, "5", text, "failed calls leave the page alone")
}

func TestInvokeFullPage(t *testing.T) {
	c := dial(t, newServer(t, nil))

	res := invoke(t, c, "Counter#increment")
	assert.Equal(t, protocol.SubjectSuccess, res.Subject())
	require.Len(t, res.Message.Operations, 1)
	op := res.Message.Operations[0]
	assert.Equal(t, "body", op.Selector)
	assert.True(t, op.ChildrenOnly)

	text, _ := c.Text("#count")
	assert.Equal(t, "1", text)
	assert.NotNil(t, res.Element, "the button is found again in the new body")
}

func TestInvokeHaltedAndFailed(t *testing.T) {
	c := dial(t, newServer(t, nil))

	res := invoke(t, c, "Counter#stop", client.WithSelectors("#count"))
	assert.Equal(t, protocol.SubjectHalted, res.Subject())
	assert.Empty(t, res.Message.Operations)
	assert.NotNil(t, res.Element)

	res = invoke(t, c, "Counter#fail", client.WithSelectors("#count"))
	assert.Equal(t, protocol.SubjectError, res.Subject())
	assert.Contains(t, res.Message.Body, "boom")
	assert.Contains(t, res.Message.Error, "boom")
}

func TestInvokeRateLimited(t *testing.T) {
	config := server.DefaultServerConfig()
	config.RateLimit = rate.Limit(0.001)
	config.RateBurst = 1
	c := dial(t, newServer(t, config))

	first := invoke(t, c, "Counter#increment", client.WithSelectors("#count"))
	assert.Equal(t, protocol.SubjectSuccess, first.Subject())

	second := invoke(t, c, "Counter#increment", client.WithSelectors("#count"))
	require.NotNil(t, second.Frame)
	assert.Equal(t, protocol.CodeRateLimited, second.Frame.Code)
	assert.Equal(t, protocol.SubjectError, second.Subject())
}

func TestInvokeOnMessage(t *testing.T) {
	seen := make(chan *protocol.Message, 1)
	c := dial(t, newServer(t, nil), client.WithOnMessage(func(m *protocol.Message) { seen <- m }))

	invoke(t, c, "Counter#increment", client.WithSelectors("#count"))
	select {
	case m := <-seen:
		assert.Equal(t, protocol.SubjectSuccess, m.Subject)
	case <-time.After(2 * time.Second):
		t.Fatal("message not observed")
	}
}

func TestInvokeForeignElement(t *testing.T) {
	c := dial(t, newServer(t, nil))

	other, err := dom.Parse(`<body><button id="inc"></button></body>`)
	require.NoError(t, err)
	el, _ := dom.QueryFirst(other, "#inc")

	_, err = c.Invoke(context.Background(), "Counter#increment", el)
	assert.ErrorIs(t, err, client.ErrNotInDocument)
}

func TestInvokeAfterClose(t *testing.T) {
	c := dial(t, newServer(t, nil))
	button, err := c.Query("#inc")
	require.NoError(t, err)

	require.NoError(t, c.Close())
	<-c.Done()

	_, err = c.Invoke(context.Background(), "Counter#increment", button)
	assert.ErrorIs(t, err, client.ErrClosed)
}

func TestInvokeSuccessWithoutOperations(t *testing.T) {
	c := dial(t, newServer(t, nil))

	res := invoke(t, c, "Counter#increment", client.WithSelectors("#absent"))
	assert.Equal(t, protocol.SubjectSuccess, res.Subject())
	assert.Empty(t, res.Message.Operations)
	assert.NotEmpty(t, res.Message.CallID)
	assert.NotNil(t, res.Element)
}

func TestInvokePermanentAttribute(t *testing.T) {
	c := dial(t, newServer(t, nil))

	res := invoke(t, c, "Counter#increment",
		client.WithSelectors("#count"),
		client.WithPermanentAttribute("data-keep"))
	require.Len(t, res.Message.Operations, 1)
	assert.Equal(t, "data-keep", res.Message.Operations[0].PermanentAttributeName)
}

func TestInvokePermanentSelector(t *testing.T) {
	c := dial(t, newServer(t, nil))

	res := invoke(t, c, "Counter#increment", client.WithPermanentAttributeSelector("#count"))
	assert.Equal(t, protocol.SubjectSuccess, res.Subject())
	require.Len(t, res.Message.Operations, 1)
	assert.Equal(t, "body", res.Message.Operations[0].Selector)

	text, err := c.Text("#count")
	require.NoError(t, err)
	assert.Equal(t, "0", text, "the kept element is not morphed")
}
