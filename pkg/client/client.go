package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/vango-dev/reflex/pkg/dom"
	"github.com/vango-dev/reflex/pkg/protocol"
	"golang.org/x/net/html"
)

// DefaultPermanentAttributeName is used for morph operations that do not
// name a permanent attribute.
const DefaultPermanentAttributeName = "data-reflex-permanent"

var (
	// ErrClosed is returned by calls on a closed client and by waits that
	// were pending when the connection closed.
	ErrClosed = errors.New("client: connection closed")

	// ErrNotInDocument is returned by Invoke for elements outside the
	// client's page.
	ErrNotInDocument = errors.New("client: element is not in the page")
)

// Result is the outcome of one call.
type Result struct {
	// Message is the broadcast that answered the call. Nil when the server
	// rejected the call with an error frame.
	Message *protocol.Message

	// Frame is the server's error frame, if any.
	Frame *protocol.ErrorFrame

	// Element is the originating element resolved in the updated page, or
	// nil when it can no longer be found.
	Element *html.Node
}

// Subject returns the message subject, or "error" for rejected calls.
func (r *Result) Subject() protocol.Subject {
	if r.Message == nil {
		return protocol.SubjectError
	}
	return r.Message.Subject
}

// Call is one sent invocation.
type Call struct {
	ID         string
	Invocation *protocol.Invocation

	done   chan struct{}
	once   sync.Once
	result *Result
	err    error
}

func (c *Call) finish(res *Result, err error) {
	c.once.Do(func() {
		c.result = res
		c.err = err
		close(c.done)
	})
}

// Done is closed once the call has a result.
func (c *Call) Done() <-chan struct{} { return c.done }

// Wait blocks until the call is answered, the connection closes or ctx is
// done.
func (c *Call) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-c.done:
		return c.result, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Option configures a Client.
type Option func(*Client)

// WithHeader sets the headers of the upgrade request, such as Cookie.
func WithHeader(h http.Header) Option {
	return func(c *Client) {
		c.header = h
	}
}

// WithDialer sets the websocket dialer. Default: websocket.DefaultDialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) {
		c.dialer = d
	}
}

// WithExtractor sets the attribute extractor used by Invoke.
func WithExtractor(e *dom.Extractor) Option {
	return func(c *Client) {
		c.extractor = e
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithPermanentAttributeName sets the attribute that marks elements a
// morph keeps when an operation names none.
// Default: DefaultPermanentAttributeName.
func WithPermanentAttributeName(name string) Option {
	return func(c *Client) {
		c.permanent = name
	}
}

// WithOnMessage registers fn to observe every broadcast after it has been
// applied to the page.
func WithOnMessage(fn func(*protocol.Message)) Option {
	return func(c *Client) {
		c.onMessage = fn
	}
}

// Client is a cable connection bound to one page.
type Client struct {
	ws        *websocket.Conn
	header    http.Header
	dialer    *websocket.Dialer
	extractor *dom.Extractor
	logger    *slog.Logger
	onMessage func(*protocol.Message)
	permanent string
	pageURL   string

	// mu guards doc and pending.
	mu      sync.Mutex
	doc     *html.Node
	pending map[string]*pendingCall

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
	err       error
}

type pendingCall struct {
	call  *Call
	attrs dom.Attributes
}

// Dial connects to the cable endpoint at cableURL for the page src served
// from pageURL.
func Dial(ctx context.Context, cableURL, src, pageURL string, opts ...Option) (*Client, error) {
	doc, err := dom.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("client: parse page: %w", err)
	}
	c := &Client{
		dialer:    websocket.DefaultDialer,
		extractor: dom.NewExtractor(),
		logger:    slog.Default(),
		permanent: DefaultPermanentAttributeName,
		pageURL:   pageURL,
		doc:       doc,
		pending:   make(map[string]*pendingCall),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "client")

	ws, resp, err := c.dialer.DialContext(ctx, cableURL, c.header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("client: dial %s: %w (status %d)", cableURL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("client: dial %s: %w", cableURL, err)
	}
	c.ws = ws
	go c.readLoop()
	return c, nil
}

// Query returns the first element of the page matching selector.
func (c *Client) Query(selector string) (*html.Node, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, err := dom.QueryFirst(c.doc, selector)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, fmt.Errorf("client: %w: %q", dom.ErrNotFound, selector)
	}
	return n, nil
}

// HTML renders the current page.
func (c *Client) HTML() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return dom.OuterHTML(c.doc)
}

// Text returns the text content of the first element matching selector.
func (c *Client) Text(selector string) (string, error) {
	n, err := c.Query(selector)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return dom.TextContent(n), nil
}

// InvokeOption configures one invocation.
type InvokeOption func(*protocol.Invocation)

// WithArguments sets the call arguments.
func WithArguments(args ...any) InvokeOption {
	return func(inv *protocol.Invocation) {
		inv.Arguments = args
	}
}

// WithSelectors names the elements to reconcile. None means the full page.
func WithSelectors(selectors ...string) InvokeOption {
	return func(inv *protocol.Invocation) {
		inv.Selectors = selectors
	}
}

// WithPermanentAttribute sets the permanent attribute name sent with the
// call.
func WithPermanentAttribute(name string) InvokeOption {
	return func(inv *protocol.Invocation) {
		inv.PermanentAttributeName = name
	}
}

// WithPermanentAttributeSelector keeps the elements matching selector
// during the morphs answering this call.
func WithPermanentAttributeSelector(selector string) InvokeOption {
	return func(inv *protocol.Invocation) {
		inv.PermanentAttributeSelector = selector
	}
}

// WithMetadata sets client metadata echoed on every operation.
func WithMetadata(md map[string]any) InvokeOption {
	return func(inv *protocol.Invocation) {
		inv.Metadata = md
	}
}

// Invoke snapshots el and sends an invocation of target. el must belong to
// the client's page.
func (c *Client) Invoke(ctx context.Context, target string, el *html.Node, opts ...InvokeOption) (*Call, error) {
	c.mu.Lock()
	if dom.Root(el) != c.doc {
		c.mu.Unlock()
		return nil, ErrNotInDocument
	}
	inv := &protocol.Invocation{
		Target:            target,
		URL:               c.pageURL,
		CallID:            uuid.NewString(),
		ElementAttributes: c.extractor.Attributes(c.doc, el),
		Dataset:           c.extractor.Dataset(c.doc, el),
	}
	c.mu.Unlock()

	for _, opt := range opts {
		opt(inv)
	}
	data, err := inv.Encode()
	if err != nil {
		return nil, fmt.Errorf("client: encode invocation: %w", err)
	}

	call := &Call{ID: inv.CallID, Invocation: inv, done: make(chan struct{})}
	c.mu.Lock()
	c.pending[call.ID] = &pendingCall{call: call, attrs: inv.ElementAttributes}
	c.mu.Unlock()

	if err := c.write(ctx, data); err != nil {
		c.mu.Lock()
		delete(c.pending, call.ID)
		c.mu.Unlock()
		return nil, err
	}
	return call, nil
}

func (c *Client) write(ctx context.Context, data []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		c.ws.SetWriteDeadline(deadline)
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("client: write: %w", err)
	}
	return nil
}

func (c *Client) readLoop() {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.shutdown(err)
			return
		}
		msg, frame, err := protocol.DecodeServerFrame(data)
		if err != nil {
			c.logger.Warn("undecodable frame", "error", err)
			continue
		}
		if frame != nil {
			c.handleFrame(frame)
			continue
		}
		c.handleMessage(msg)
	}
}

func (c *Client) handleFrame(frame *protocol.ErrorFrame) {
	c.logger.Warn("server error", "code", frame.Code, "message", frame.Message, "call_id", frame.CallID)
	if frame.CallID != "" {
		c.mu.Lock()
		p, ok := c.pending[frame.CallID]
		delete(c.pending, frame.CallID)
		c.mu.Unlock()
		if ok {
			p.call.finish(&Result{Frame: frame}, nil)
		}
	}
	if frame.Fatal {
		c.shutdown(frame)
	}
}

func (c *Client) handleMessage(msg *protocol.Message) {
	c.mu.Lock()
	id := messageCallID(msg)
	p := c.pending[id]
	keep := Preserve{Attribute: c.permanent}
	if p != nil {
		delete(c.pending, id)
		if inv := p.call.Invocation; inv != nil {
			if inv.PermanentAttributeName != "" {
				keep.Attribute = inv.PermanentAttributeName
			}
			keep.Selector = inv.PermanentAttributeSelector
		}
	}

	for _, op := range msg.Operations {
		if _, err := Apply(c.doc, op, keep); err != nil {
			c.logger.Warn("operation not applied", "kind", op.Kind, "selector", op.Selector, "error", err)
		}
	}

	var res *Result
	if p != nil {
		res = &Result{Message: msg}
		// The element may have been replaced by the operations.
		el, err := dom.Resolve(c.doc, p.attrs)
		if err == nil {
			res.Element = el
		} else {
			code := "R020"
			if errors.Is(err, dom.ErrAmbiguous) {
				code = "R021"
			}
			c.logger.Debug("originating element not resolved", "call_id", id, "error", err, "code", code)
		}
	}
	c.mu.Unlock()

	if p != nil {
		p.call.finish(res, nil)
	}
	if c.onMessage != nil {
		c.onMessage(msg)
	}
}

// messageCallID returns the call id a message answers: from the envelope,
// its operations' metadata, or the echoed invocation of status messages.
func messageCallID(msg *protocol.Message) string {
	if msg.CallID != "" {
		return msg.CallID
	}
	for _, op := range msg.Operations {
		if id := op.CallID(); id != "" {
			return id
		}
	}
	if len(msg.Data) == 0 {
		return ""
	}
	var echo struct {
		CallID string `json:"callId"`
	}
	if err := json.Unmarshal(msg.Data, &echo); err != nil {
		return ""
	}
	return echo.CallID
}

func (c *Client) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.err = err
		close(c.done)
		c.ws.Close()

		c.mu.Lock()
		pending := c.pending
		c.pending = make(map[string]*pendingCall)
		c.mu.Unlock()
		for _, p := range pending {
			p.call.finish(nil, ErrClosed)
		}
	})
}

// Done is closed when the connection closes.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err returns the error that closed the connection.
func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Close sends a close frame and closes the connection.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	c.shutdown(ErrClosed)
	return nil
}
