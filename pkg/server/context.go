package server

import (
	"context"
	"net/http"

	"github.com/vango-dev/reflex/pkg/reflex"
)

type ctxKey int

const (
	sessionKey ctxKey = iota
	renderKey
)

// WithSession returns a copy of ctx carrying sess.
func WithSession(ctx context.Context, sess reflex.Session) context.Context {
	return context.WithValue(ctx, sessionKey, sess)
}

// SessionFromContext returns the session attached to ctx, or nil.
//
//	func counterPage(w http.ResponseWriter, r *http.Request) {
//	    sess := server.SessionFromContext(r.Context())
//	    fmt.Fprintf(w, `<span id="count">%v</span>`, sess.Get("count"))
//	}
func SessionFromContext(ctx context.Context) reflex.Session {
	sess, _ := ctx.Value(sessionKey).(reflex.Session)
	return sess
}

// IsReflexRender reports whether r is a page render made on behalf of an
// invocation. Authentication middleware that challenges browsers (HTTP basic
// auth, login redirects) should let these through, since the cable
// connection was already authenticated.
func IsReflexRender(r *http.Request) bool {
	v, _ := r.Context().Value(renderKey).(bool)
	return v
}
