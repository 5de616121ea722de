package reflex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	rerrors "github.com/vango-dev/reflex/internal/errors"
	"github.com/vango-dev/reflex/pkg/broadcast"
	"github.com/vango-dev/reflex/pkg/protocol"
	"github.com/vango-dev/reflex/pkg/reconcile"
)

// DefaultPermanentAttributeName marks subtrees a morph leaves untouched.
const DefaultPermanentAttributeName = "data-reflex-permanent"

// Middleware wraps the processing of one invocation after its handler was
// created. next runs the action, reconciliation and broadcast with the
// given context and returns the outcome error.
type Middleware func(ctx context.Context, r *Reflex, next func(context.Context) error) error

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRenderer sets the page renderer used for reconciliation.
func WithRenderer(renderer Renderer) Option {
	return func(d *Dispatcher) {
		d.renderer = renderer
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithMiddleware appends middleware. The first one added is the outermost.
func WithMiddleware(mw ...Middleware) Option {
	return func(d *Dispatcher) {
		d.middleware = append(d.middleware, mw...)
	}
}

// WithPermanentAttributeName sets the permanent marker sent with morphs.
// Default: DefaultPermanentAttributeName.
func WithPermanentAttributeName(name string) Option {
	return func(d *Dispatcher) {
		d.reconciler.PermanentAttributeName = name
	}
}

// Dispatcher owns the lifecycle of invocations. It holds no per-invocation
// state and is safe for concurrent use.
type Dispatcher struct {
	registry    *Registry
	broadcaster broadcast.Broadcaster
	renderer    Renderer
	reconciler  *reconcile.Reconciler
	middleware  []Middleware
	logger      *slog.Logger
}

// NewDispatcher creates a dispatcher resolving targets through registry and
// sending messages through b.
func NewDispatcher(registry *Registry, b broadcast.Broadcaster, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:    registry,
		broadcaster: b,
		reconciler:  &reconcile.Reconciler{PermanentAttributeName: DefaultPermanentAttributeName},
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "reflex")
	return d
}

// Receive decodes payload and dispatches it. A malformed payload returns a
// *protocol.DecodeError and nothing is broadcast.
func (d *Dispatcher) Receive(ctx context.Context, conn Connection, payload []byte) error {
	inv, err := protocol.DecodeInvocation(payload)
	if err != nil {
		d.logger.Warn("invalid invocation", "error", err, "code", "R001")
		return err
	}
	return d.Dispatch(ctx, conn, inv)
}

// Dispatch runs one decoded invocation to completion. The returned error
// describes the outcome: a *RouteError has only been logged, every other
// error has already been broadcast to the connection's stream.
func (d *Dispatcher) Dispatch(ctx context.Context, conn Connection, inv *protocol.Invocation) error {
	start := time.Now()
	stream := conn.StreamName()
	r := &Reflex{
		Invocation: inv,
		Element:    inv.ElementAttributes,
		Dataset:    inv.Dataset,
		Request:    conn.Request(),
		Controller: &Controller{},
		Stream:     stream,
		Logger: d.logger.With(
			"target", inv.Target,
			"call_id", inv.CallID,
			"url", inv.URL,
			"stream", stream,
		),
	}

	sess, err := conn.Session(ctx)
	if err != nil {
		r.Logger.Error("session unavailable, running without one", "error", err, "code", "R009")
	} else if sess != nil {
		r.Session = sess
	}

	if rm, ok := d.renderer.(RouteMatcher); ok {
		if err := rm.MatchRoute(inv.URL); err != nil {
			rerr := &RouteError{Target: inv.Target, URL: inv.URL, Err: err}
			d.reportRoute(r, rerr)
			return rerr
		}
	}

	handler, err := d.registry.create(r)
	if err != nil {
		d.reportRoute(r, err)
		return err
	}
	defer d.finalize(ctx, r, start)

	return d.chain(ctx, r, func(ctx context.Context) error {
		return d.run(ctx, r, handler)
	})
}

func (d *Dispatcher) chain(ctx context.Context, r *Reflex, run func(context.Context) error) error {
	next := run
	for i := len(d.middleware) - 1; i >= 0; i-- {
		mw, inner := d.middleware[i], next
		next = func(ctx context.Context) error {
			return mw(ctx, r, inner)
		}
	}
	return next(ctx)
}

func (d *Dispatcher) run(ctx context.Context, r *Reflex, h Handler) error {
	inv := r.Invocation

	var live reconcile.Document
	if len(inv.Selectors) > 0 && d.renderer != nil {
		if doc := d.snapshot(ctx, r); doc != nil {
			live = doc
		}
	}

	if err := d.invoke(ctx, r, h); err != nil {
		if !errors.Is(err, ErrHalt) {
			return d.fail(ctx, r, h, err)
		}
		r.Halt()
	}

	if r.Halted() {
		return d.send(ctx, r, broadcast.Halted(inv))
	}

	ops, err := d.reconcile(ctx, r, live)
	if err != nil {
		return d.fail(ctx, r, h, &ReconcileError{Target: inv.Target, Err: err})
	}
	r.operations = ops
	return d.send(ctx, r, broadcast.Compose(inv, ops))
}

// snapshot renders the page before the action runs. It returns nil when the
// page cannot be rendered, in which case fragments are compared against
// their own selectors.
func (d *Dispatcher) snapshot(ctx context.Context, r *Reflex) *reconcile.HTMLDocument {
	page, err := d.renderPage(ctx, r)
	if err != nil {
		r.Logger.Warn("live snapshot unavailable", "error", err)
		return nil
	}
	doc, err := reconcile.ParseDocument(page.HTML)
	if err != nil {
		r.Logger.Warn("live snapshot unparsable", "error", err)
		return nil
	}
	return doc
}

func (d *Dispatcher) invoke(ctx context.Context, r *Reflex, h Handler) (err error) {
	inv := r.Invocation
	action, ok := h.Action(inv.Method())
	if !ok || action.Func == nil {
		return &HandlerError{
			Target: inv.Target,
			Err:    fmt.Errorf("%w %q for %s", ErrUnknownAction, inv.Method(), inv.Class()),
		}
	}

	binding, err := Bind(action.Signature, inv.Arguments)
	if err != nil {
		var ae *ArityError
		if errors.As(err, &ae) {
			ae.Target = inv.Target
		}
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			err = &HandlerError{
				Target: inv.Target,
				Panic:  p,
				Stack:  debug.Stack(),
				Frame:  panicFrame(),
			}
		}
	}()

	var args []any
	if binding == BindPositional {
		args = inv.Arguments
	}
	if err := action.Func(ctx, r, args); err != nil {
		if errors.Is(err, ErrHalt) {
			return err
		}
		return &HandlerError{Target: inv.Target, Err: err}
	}
	return nil
}

// panicFrame returns the file:line of the first non-runtime frame after
// runtime.gopanic. It must be called from a deferred recover.
func panicFrame() string {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	panicking := false
	for {
		f, more := frames.Next()
		if panicking && !strings.HasPrefix(f.Function, "runtime.") {
			return fmt.Sprintf("%s:%d", f.File, f.Line)
		}
		if f.Function == "runtime.gopanic" {
			panicking = true
		}
		if !more {
			return ""
		}
	}
}

func (d *Dispatcher) reconcile(ctx context.Context, r *Reflex, live reconcile.Document) ([]protocol.Operation, error) {
	inv := r.Invocation
	c := reconcile.Correlation{Metadata: inv.CorrelationMetadata(), Payload: inv.Payload}
	rc := d.reconcilerFor(inv)

	targets := r.targets()
	if len(targets) == 0 {
		page, err := d.renderPage(ctx, r)
		if err != nil {
			return nil, err
		}
		op, err := rc.Page(page.HTML, c)
		if err != nil {
			return nil, err
		}
		return []protocol.Operation{op}, nil
	}

	var rendered *reconcile.HTMLDocument
	render := func(ctx context.Context, sel string) (string, bool, error) {
		if html, ok := r.explicit(sel); ok {
			return html, true, nil
		}
		if rendered == nil {
			page, err := d.renderPage(ctx, r)
			if err != nil {
				return "", false, err
			}
			if rendered, err = reconcile.ParseDocument(page.HTML); err != nil {
				return "", false, err
			}
		}
		return rendered.Render(ctx, sel)
	}
	return rc.Reconcile(ctx, live, targets, render, c)
}

// reconcilerFor returns the reconciler for inv. A permanent attribute name
// sent by the client replaces the configured one.
func (d *Dispatcher) reconcilerFor(inv *protocol.Invocation) *reconcile.Reconciler {
	if inv.PermanentAttributeName == "" || inv.PermanentAttributeName == d.reconciler.PermanentAttributeName {
		return d.reconciler
	}
	rc := *d.reconciler
	rc.PermanentAttributeName = inv.PermanentAttributeName
	return &rc
}

// renderPage renders the page and records the render on r.Controller.
func (d *Dispatcher) renderPage(ctx context.Context, r *Reflex) (*Page, error) {
	if d.renderer == nil {
		return nil, ErrNoRenderer
	}
	page, err := d.renderer.Render(ctx, r)
	if err != nil {
		return nil, err
	}
	r.Controller.Name = page.Controller
	r.Controller.Action = page.Action
	r.Controller.Status = page.Status
	if page.Status >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: %s returned status %d", ErrRenderStatus, r.Invocation.URL, page.Status)
	}
	return page, nil
}

// fail runs the handler's error hook and broadcasts the error message.
func (d *Dispatcher) fail(ctx context.Context, r *Reflex, h Handler, err error) error {
	if eh, ok := h.(ErrorHandler); ok {
		d.onError(r, eh, err)
	}

	inv := r.Invocation
	var body string
	var re *ReconcileError
	if errors.As(err, &re) {
		body = fmt.Sprintf("Reflex failed to re-render: %s [%s]", describe(err), inv.URL)
	} else {
		body = fmt.Sprintf("Reflex %s failed: %s [%s]", inv.Target, describe(err), inv.URL)
	}
	r.Logger.Error(body, "error", err, "code", Code(err))

	if serr := d.send(ctx, r, broadcast.Failed(inv, body, err.Error())); serr != nil {
		return errors.Join(err, serr)
	}
	return err
}

func (d *Dispatcher) onError(r *Reflex, eh ErrorHandler, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.Logger.Error("error hook panic", "panic", p, "stack", string(debug.Stack()))
		}
	}()
	eh.OnError(r, err)
}

func (d *Dispatcher) send(ctx context.Context, r *Reflex, msg *protocol.Message) error {
	r.subject = msg.Subject
	if err := d.broadcaster.Broadcast(ctx, r.Stream, msg); err != nil {
		r.Logger.Error("broadcast failed", "subject", msg.Subject, "error", err)
		return fmt.Errorf("reflex: broadcast: %w", err)
	}
	return nil
}

// reportRoute logs a failure that happened before any handler existed.
func (d *Dispatcher) reportRoute(r *Reflex, err error) {
	inv := r.Invocation
	body := fmt.Sprintf("Reflex %s failed: %s [%s]", inv.Target, describe(err), inv.URL)
	code := Code(err)
	r.Logger.Error(body, "error", err, "code", code)

	if code == "R008" || strings.Contains(body, "No route matches") {
		note := rerrors.New("R008").WithSuggestion(
			"If the app rewrites request paths in middleware, mount that middleware in front of the " +
				"renderer so reflex renders see the same path as page loads.")
		r.Logger.Warn(note.Message, "code", note.Code, "suggestion", note.Suggestion, "docs", note.DocURL)
	}
}

// finalize runs once per invocation that got a handler, whatever the outcome.
func (d *Dispatcher) finalize(ctx context.Context, r *Reflex, start time.Time) {
	if r.Session != nil {
		if err := r.Session.Commit(context.WithoutCancel(ctx)); err != nil {
			r.Logger.Error("Failed to commit session!", "error", &SessionCommitError{Err: err}, "code", "R006")
		}
	}

	if r.Controller.Status == http.StatusUnauthorized {
		r.Logger.Error(fmt.Sprintf(
			"Reflex failed to process controller action %q due to HTTP basic auth. "+
				"Consider skipping authentication for reflex renders in the middleware responsible for it.",
			r.Controller.Name+"#"+r.Controller.Action),
			"code", "R007")
	}

	r.Logger.Info("reflex complete",
		"subject", r.subject,
		"operations", len(r.operations),
		"duration", time.Since(start))
}
