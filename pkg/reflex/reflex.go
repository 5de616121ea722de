package reflex

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/vango-dev/reflex/pkg/dom"
	"github.com/vango-dev/reflex/pkg/protocol"
)

// Session is the per-connection state a handler reads and writes. Commit is
// idempotent and persists pending changes.
type Session interface {
	Get(key string) any
	Set(key string, value any)
	Delete(key string)
	Commit(ctx context.Context) error
}

// Connection is the transport side of an invocation.
type Connection interface {
	// StreamName is the stream the resulting message is broadcast to.
	StreamName() string

	// Session opens the connection's session for one invocation. It is
	// called once per invocation so concurrent connections sharing a session
	// see each other's committed changes. A nil Session means none.
	Session(ctx context.Context) (Session, error)

	// Request returns the request that opened the connection.
	Request() *http.Request
}

// Controller describes the last page render of an invocation.
type Controller struct {
	Name   string
	Action string
	Status int
}

// Reflex is the context of one invocation. It is not shared between
// invocations and is discarded afterwards.
type Reflex struct {
	Invocation *protocol.Invocation
	Element    dom.Attributes
	Dataset    dom.Attributes
	Session    Session
	Request    *http.Request
	Controller *Controller
	Logger     *slog.Logger
	Stream     string

	halted     bool
	morphs     []morph
	subject    protocol.Subject
	operations []protocol.Operation
}

type morph struct {
	selector string
	html     string
}

// Halt aborts the invocation. The client receives a halted message and no
// operations.
func (r *Reflex) Halt() {
	r.halted = true
}

// Halted reports whether the invocation was halted.
func (r *Reflex) Halted() bool {
	return r.halted
}

// Morph sets the markup for selector explicitly. The selector is reconciled
// even when the client did not request it, and the page is not rendered for
// it.
func (r *Reflex) Morph(selector, html string) {
	for i, m := range r.morphs {
		if m.selector == selector {
			r.morphs[i].html = html
			return
		}
	}
	r.morphs = append(r.morphs, morph{selector: selector, html: html})
}

// Subject returns the outcome broadcast for the invocation, or "" before
// the message was composed.
func (r *Reflex) Subject() protocol.Subject {
	return r.subject
}

// Operations returns the operations of the success message.
func (r *Reflex) Operations() []protocol.Operation {
	return r.operations
}

// Params returns the first argument when it is an object.
func (r *Reflex) Params() protocol.Params {
	if len(r.Invocation.Arguments) == 0 {
		return protocol.Params{}
	}
	p, ok := r.Invocation.Arguments[0].(protocol.Params)
	if !ok {
		return protocol.Params{}
	}
	return p
}

func (r *Reflex) explicit(selector string) (string, bool) {
	for _, m := range r.morphs {
		if m.selector == selector {
			return m.html, true
		}
	}
	return "", false
}

// targets returns the requested selectors followed by explicitly morphed
// selectors that were not requested.
func (r *Reflex) targets() []string {
	out := append([]string(nil), r.Invocation.Selectors...)
	seen := make(map[string]bool, len(out))
	for _, s := range out {
		seen[s] = true
	}
	for _, m := range r.morphs {
		if !seen[m.selector] {
			seen[m.selector] = true
			out = append(out, m.selector)
		}
	}
	return out
}
