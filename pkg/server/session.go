package server

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/vango-dev/reflex/pkg/session"
)

// IdentifyFunc returns the connection identifiers of a cable request. The
// identifiers, with the optional channel, name the connection's stream.
type IdentifyFunc func(r *http.Request) ([]any, error)

// CookieIdentify identifies connections by the session cookie name.
func CookieIdentify(name string) IdentifyFunc {
	return func(r *http.Request) ([]any, error) {
		c, err := r.Cookie(name)
		if err != nil || c.Value == "" {
			return nil, ErrIdentify
		}
		return []any{c.Value}, nil
	}
}

// sessionID returns the session id of r. When r carries no session cookie a
// new id is generated and the returned request carries it, with the cookie
// to set on the response.
func (s *Server) sessionID(r *http.Request) (string, *http.Request, *http.Cookie, error) {
	if c, err := r.Cookie(s.config.SessionCookie); err == nil && c.Value != "" {
		return c.Value, r, nil, nil
	}
	if s.config.SecureCookies && !s.proxies.secure(r) {
		return "", r, nil, ErrSecureCookiesRequired
	}

	id := uuid.NewString()
	cookie := &http.Cookie{
		Name:     s.config.SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.config.SecureCookies,
		SameSite: s.config.SameSiteMode,
		MaxAge:   int(s.config.SessionTTL.Seconds()),
	}
	r = r.Clone(r.Context())
	r.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
	return id, r, cookie, nil
}

// SessionMiddleware attaches the request's session to its context and
// commits it after the handler returns. Requests that already carry a
// session, such as reflex renders, are passed through.
func (s *Server) SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if SessionFromContext(r.Context()) != nil {
			next.ServeHTTP(w, r)
			return
		}

		id, r, cookie, err := s.sessionID(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}
		if cookie != nil {
			http.SetCookie(w, cookie)
		}

		sess, err := session.Open(r.Context(), s.store, id, s.config.SessionTTL)
		if err != nil {
			s.logger.Error("session open failed", "error", err)
			http.Error(w, "session unavailable", http.StatusInternalServerError)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))

		if err := sess.Commit(r.Context()); err != nil {
			s.logger.Error("Failed to commit session!", "error", err)
		}
	})
}
