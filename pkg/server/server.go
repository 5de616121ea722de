package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vango-dev/reflex/pkg/broadcast"
	"github.com/vango-dev/reflex/pkg/protocol"
	"github.com/vango-dev/reflex/pkg/reflex"
	"github.com/vango-dev/reflex/pkg/session"
)

// Server is the HTTP/WebSocket server for reflex applications.
type Server struct {
	config     *ServerConfig
	dispatcher *reflex.Dispatcher
	hub        *broadcast.Hub
	store      session.Store
	identify   IdentifyFunc
	app        http.Handler
	gatherer   prometheus.Gatherer

	router   chi.Router
	upgrader websocket.Upgrader
	proxies  *proxyMatcher
	stats    *connStats

	// ctx is the parent of every dispatch; cancelled once shutdown has
	// waited for in-flight invocations.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	conns   map[*Conn]struct{}
	closing bool

	httpServer *http.Server
	logger     *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithSessionStore sets the session store. Default: a MemoryStore.
func WithSessionStore(store session.Store) Option {
	return func(s *Server) {
		s.store = store
	}
}

// WithIdentify sets how cable connections are identified.
// Default: CookieIdentify on the session cookie.
func WithIdentify(fn IdentifyFunc) Option {
	return func(s *Server) {
		s.identify = fn
	}
}

// WithApp mounts the application's page handler under "/". Pages are served
// through SessionMiddleware.
func WithApp(h http.Handler) Option {
	return func(s *Server) {
		s.app = h
	}
}

// WithMetrics serves the gatherer's metrics at ServerConfig.MetricsPath.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a server dispatching invocations to d and delivering
// broadcasts through hub.
func New(config *ServerConfig, d *reflex.Dispatcher, hub *broadcast.Hub, opts ...Option) *Server {
	if config == nil {
		config = DefaultServerConfig()
	} else {
		config = config.Clone()
		config.applyDefaults()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:     config,
		dispatcher: d,
		hub:        hub,
		stats:      &connStats{},
		ctx:        ctx,
		cancel:     cancel,
		conns:      make(map[*Conn]struct{}),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "server")
	if s.store == nil {
		s.store = session.NewMemoryStore()
	}
	if s.identify == nil {
		s.identify = CookieIdentify(config.SessionCookie)
	}
	s.proxies = newProxyMatcher(config.TrustedProxies, s.logger)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  config.ReadBufferSize,
		WriteBufferSize: config.WriteBufferSize,
		CheckOrigin:     config.CheckOrigin,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Get(s.config.CablePath, s.HandleCable)
	if s.gatherer != nil && s.config.MetricsPath != "" {
		r.Handle(s.config.MetricsPath, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	if s.app != nil {
		r.Handle("/*", s.SessionMiddleware(s.app))
	}
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the server's router for mounting in another router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// HandleCable upgrades r to a cable connection and runs it until it closes.
func (s *Server) HandleCable(w http.ResponseWriter, r *http.Request) {
	id, r, cookie, err := s.sessionID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}
	identifiers, err := s.identify(r)
	if err != nil {
		s.logger.Warn("cable request not identified", "error", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var header http.Header
	if cookie != nil {
		header = http.Header{"Set-Cookie": {cookie.String()}}
	}
	ws, err := s.upgrader.Upgrade(w, r, header)
	if err != nil {
		// The upgrader already replied with an HTTP error.
		s.logger.Debug("upgrade failed", "error", err, "code", "R011")
		return
	}

	channel := r.URL.Query().Get("channel")
	if channel == "" {
		channel = s.config.DefaultChannel
	}
	stream := broadcast.StreamName(channel, identifiers...)
	connID := uuid.NewString()
	logger := s.logger.With("conn_id", connID, "stream", stream)
	if ip := s.proxies.clientIP(r); ip != nil {
		logger = logger.With("client_ip", ip.String())
	}

	open := func(ctx context.Context) (*session.Session, error) {
		return session.Open(ctx, s.store, id, s.config.SessionTTL)
	}
	conn := newConn(connID, ws, r, stream, open, s.config, s.stats, logger)
	if !s.track(conn) {
		frame := protocol.NewFatalError(protocol.CodeServerError, "server shutting down")
		_ = ws.WriteMessage(websocket.TextMessage, frame.Encode())
		ws.Close()
		return
	}
	conn.unsubscribe = s.hub.Subscribe(stream, conn)
	s.stats.opened()
	logger.Info("connection opened")

	go conn.WriteLoop()
	conn.ReadLoop(s.ctx, s.dispatcher)
	s.untrack(conn)
}

func (s *Server) track(c *Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrack(c *Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
}

// Connections returns the number of open connections.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Run starts the server and blocks until it receives SIGINT/SIGTERM or the
// listener fails.
func (s *Server) Run() error {
	s.httpServer = &http.Server{
		Addr:              s.config.Address,
		Handler:           s,
		ReadHeaderTimeout: s.config.WriteTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "address", s.config.Address)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil

	case <-shutdown:
		s.logger.Info("shutting down...")
		return s.Shutdown(context.Background())
	}
}

// Shutdown closes every connection, waits for in-flight invocations and
// stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	defer s.cancel()

	s.mu.Lock()
	s.closing = true
	conns := make([]*Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
	waited := make(chan struct{})
	go func() {
		for _, c := range conns {
			c.Wait()
		}
		close(waited)
	}()
	select {
	case <-waited:
	case <-ctx.Done():
		s.logger.Warn("shutdown timed out waiting for invocations")
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	s.logger.Info("server shutdown complete")
	return nil
}

// Config returns the server configuration.
func (s *Server) Config() *ServerConfig {
	return s.config
}

// Logger returns the server logger.
func (s *Server) Logger() *slog.Logger {
	return s.logger
}
