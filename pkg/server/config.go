package server

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vango-dev/reflex/pkg/protocol"
	"golang.org/x/time/rate"
)

// ServerConfig holds configuration for the HTTP/WebSocket server.
type ServerConfig struct {
	// Address is the address to listen on (e.g., ":8080" or "localhost:3000").
	// Default: ":8080".
	Address string

	// CablePath is the WebSocket endpoint.
	// Default: "/cable".
	CablePath string

	// MetricsPath is where Prometheus metrics are served when a gatherer is
	// configured. Empty disables the endpoint.
	// Default: "/metrics".
	MetricsPath string

	// WebSocket buffer sizes

	// ReadBufferSize is the WebSocket read buffer size.
	// Default: 4096.
	ReadBufferSize int

	// WriteBufferSize is the WebSocket write buffer size.
	// Default: 4096.
	WriteBufferSize int

	// CheckOrigin is called to validate the request origin.
	// Default: SameOriginCheck.
	CheckOrigin func(r *http.Request) bool

	// Timeouts

	// ReadTimeout is the maximum time to wait for a message or pong from
	// the client.
	// Default: 60 seconds.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait when sending a message.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// HeartbeatInterval is the time between heartbeat pings. It must be
	// shorter than ReadTimeout.
	// Default: 30 seconds.
	HeartbeatInterval time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	// Default: 30 seconds.
	ShutdownTimeout time.Duration

	// Limits

	// MaxMessageSize is the maximum size of an incoming message.
	// Default: protocol.MaxInvocationSize.
	MaxMessageSize int64

	// SendQueueSize is the number of outbound messages buffered per
	// connection before new ones are dropped.
	// Default: 64.
	SendQueueSize int

	// RateLimit is the sustained number of invocations per second allowed
	// per connection.
	// Default: 10.
	RateLimit rate.Limit

	// RateBurst is the number of invocations allowed in a burst.
	// Default: 20.
	RateBurst int

	// DefaultChannel is the stream channel of cable requests that do not
	// pass a channel query parameter.
	DefaultChannel string

	// Sessions

	// SessionCookie is the name of the session cookie.
	// Default: "reflex_session".
	SessionCookie string

	// SessionTTL is how long an idle session survives.
	// Default: 24 hours.
	SessionTTL time.Duration

	// SecureCookies marks the session cookie Secure. Requests that did not
	// arrive over TLS (directly or through a trusted proxy) are rejected.
	// Default: false.
	SecureCookies bool

	// SameSiteMode is the SameSite attribute of the session cookie.
	// Default: http.SameSiteLaxMode.
	SameSiteMode http.SameSite

	// TrustedProxies lists trusted reverse proxy IPs or CIDRs for
	// X-Forwarded-* headers.
	// Default: nil (don't trust proxy headers).
	TrustedProxies []string
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Address:           ":8080",
		CablePath:         "/cable",
		MetricsPath:       "/metrics",
		ReadBufferSize:    4096,
		WriteBufferSize:   4096,
		CheckOrigin:       SameOriginCheck,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		ShutdownTimeout:   30 * time.Second,
		MaxMessageSize:    protocol.MaxInvocationSize,
		SendQueueSize:     64,
		RateLimit:         10,
		RateBurst:         20,
		SessionCookie:     "reflex_session",
		SessionTTL:        24 * time.Hour,
		SameSiteMode:      http.SameSiteLaxMode,
	}
}

// applyDefaults fills unset fields from DefaultServerConfig.
func (c *ServerConfig) applyDefaults() {
	d := DefaultServerConfig()
	if c.Address == "" {
		c.Address = d.Address
	}
	if c.CablePath == "" {
		c.CablePath = d.CablePath
	}
	if c.ReadBufferSize == 0 {
		c.ReadBufferSize = d.ReadBufferSize
	}
	if c.WriteBufferSize == 0 {
		c.WriteBufferSize = d.WriteBufferSize
	}
	if c.CheckOrigin == nil {
		c.CheckOrigin = d.CheckOrigin
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	if c.SendQueueSize == 0 {
		c.SendQueueSize = d.SendQueueSize
	}
	if c.RateLimit == 0 {
		c.RateLimit = d.RateLimit
	}
	if c.RateBurst == 0 {
		c.RateBurst = d.RateBurst
	}
	if c.SessionCookie == "" {
		c.SessionCookie = d.SessionCookie
	}
	if c.SessionTTL == 0 {
		c.SessionTTL = d.SessionTTL
	}
	if c.SameSiteMode == 0 {
		c.SameSiteMode = d.SameSiteMode
	}
}

// SameOriginCheck validates that the WebSocket request origin matches the host.
// This is the secure default for CheckOrigin.
func SameOriginCheck(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// No Origin header (e.g., same-origin request or curl)
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if r.Host == "" {
		return false
	}
	return originURL.Host == r.Host
}

// Clone returns a copy of the ServerConfig.
func (c *ServerConfig) Clone() *ServerConfig {
	if c == nil {
		return nil
	}
	clone := *c
	if c.TrustedProxies != nil {
		clone.TrustedProxies = append([]string(nil), c.TrustedProxies...)
	}
	return &clone
}

// AllowOrigins returns a CheckOrigin that accepts same-origin requests and
// the listed origins ("https://app.example.com").
func AllowOrigins(origins ...string) func(r *http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[strings.TrimRight(strings.ToLower(o), "/")] = true
	}
	return func(r *http.Request) bool {
		if SameOriginCheck(r) {
			return true
		}
		return allowed[strings.ToLower(r.Header.Get("Origin"))]
	}
}

// WithAddress sets the server address and returns the config for chaining.
func (c *ServerConfig) WithAddress(addr string) *ServerConfig {
	c.Address = addr
	return c
}

// WithRateLimit sets the per-connection rate limit and returns the config
// for chaining.
func (c *ServerConfig) WithRateLimit(perSecond float64, burst int) *ServerConfig {
	c.RateLimit = rate.Limit(perSecond)
	c.RateBurst = burst
	return c
}
