package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/vango-dev/reflex/internal/config"
	"github.com/vango-dev/reflex/pkg/broadcast"
	"github.com/vango-dev/reflex/pkg/middleware"
	"github.com/vango-dev/reflex/pkg/reflex"
	"github.com/vango-dev/reflex/pkg/server"
	"github.com/vango-dev/reflex/pkg/session"
	"golang.org/x/time/rate"
)

// stack is every runtime component built from one configuration.
type stack struct {
	config     *config.Config
	logger     *slog.Logger
	store      session.Store
	hub        *broadcast.Hub
	dispatcher *reflex.Dispatcher
	server     *server.Server

	// fanout is set when broadcasts go through Redis.
	fanout *broadcast.RedisBroadcaster

	closers []func(context.Context) error
}

// newLogger builds the process logger from the logging settings.
func newLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// serverConfig maps the file configuration onto the server's.
func serverConfig(cfg *config.Config) *server.ServerConfig {
	sc := server.DefaultServerConfig()
	sc.Address = cfg.Server.Address
	sc.CablePath = cfg.Server.CablePath
	sc.ReadBufferSize = cfg.Server.ReadBufferSize
	sc.WriteBufferSize = cfg.Server.WriteBufferSize
	sc.ReadTimeout = cfg.Server.ReadTimeout.D()
	sc.WriteTimeout = cfg.Server.WriteTimeout.D()
	sc.HeartbeatInterval = cfg.Server.HeartbeatInterval.D()
	sc.ShutdownTimeout = cfg.Server.ShutdownTimeout.D()
	sc.MaxMessageSize = cfg.Server.MaxMessageSize
	sc.RateLimit = rate.Limit(cfg.Server.RateLimit)
	sc.RateBurst = cfg.Server.RateBurst
	sc.TrustedProxies = cfg.Server.TrustedProxies
	sc.SecureCookies = cfg.Server.SecureCookies
	sc.DefaultChannel = cfg.Reflex.DefaultChannel
	sc.SessionCookie = cfg.Session.Cookie
	sc.SessionTTL = cfg.Session.TTL.D()
	if len(cfg.Server.AllowedOrigins) > 0 {
		sc.CheckOrigin = server.AllowOrigins(cfg.Server.AllowedOrigins...)
	}
	if cfg.Metrics.Enabled {
		sc.MetricsPath = cfg.Metrics.Path
	} else {
		sc.MetricsPath = ""
	}
	return sc
}

// openStore opens the configured session store. The returned function
// releases it.
func openStore(ctx context.Context, cfg config.SessionConfig) (session.Store, func() error, error) {
	switch cfg.Store {
	case config.StoreMemory:
		store := session.NewMemoryStore()
		return store, store.Close, nil

	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.Addr})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("redis %s: %w", cfg.Addr, err)
		}
		var opts []session.RedisStoreOption
		if cfg.Prefix != "" {
			opts = append(opts, session.WithRedisPrefix(cfg.Prefix))
		}
		return session.NewRedisStore(client, opts...), client.Close, nil

	case config.StorePostgres, config.StoreSQLite:
		dialect, err := session.ParseDialect(cfg.Store)
		if err != nil {
			return nil, nil, err
		}
		var opts []session.SQLStoreOption
		if cfg.Table != "" {
			opts = append(opts, session.WithSQLTableName(cfg.Table))
		}
		store, closeFn, err := session.OpenSQLStore(ctx, dialect, cfg.DSN, opts...)
		if err != nil {
			return nil, nil, err
		}
		return store, closeFn, nil

	case config.StoreS3:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("aws config: %w", err)
		}
		var opts []session.S3StoreOption
		if cfg.Prefix != "" {
			opts = append(opts, session.WithS3Prefix(cfg.Prefix))
		}
		store := session.NewS3Store(s3.NewFromConfig(awsCfg), cfg.Bucket, opts...)
		return store, store.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown session store %q", cfg.Store)
	}
}

// dispatchMiddleware returns the instrumentation enabled by cfg.
func dispatchMiddleware(cfg *config.Config, reg prometheus.Registerer, tp *tracing) []reflex.Middleware {
	var mw []reflex.Middleware
	if tp != nil {
		mw = append(mw, middleware.OpenTelemetry(
			middleware.WithTracerProvider(tp.provider),
			middleware.WithTracerName(cfg.Tracing.TracerName),
			middleware.WithIncludeURL(cfg.Tracing.IncludeURL),
		))
	}
	if cfg.Metrics.Enabled {
		mw = append(mw, middleware.Prometheus(
			middleware.WithNamespace(cfg.Metrics.Namespace),
			middleware.WithRegistry(reg),
		))
	}
	return mw
}

// build wires the components for cfg around the application pages app and
// its handlers.
func build(ctx context.Context, cfg *config.Config, logger *slog.Logger, app http.Handler, registry *reflex.Registry) (*stack, error) {
	s := &stack{config: cfg, logger: logger, hub: broadcast.NewHub(logger)}

	store, closeStore, err := openStore(ctx, cfg.Session)
	if err != nil {
		return nil, fmt.Errorf("session store %s: %w", cfg.Session.Store, err)
	}
	s.store = store
	s.closers = append(s.closers, func(context.Context) error { return closeStore() })

	var b broadcast.Broadcaster = s.hub
	if cfg.Broadcast.Driver == config.BroadcastRedis {
		client := redis.NewClient(&redis.Options{Addr: cfg.Broadcast.Addr})
		s.fanout = broadcast.NewRedisBroadcaster(client, s.hub, cfg.Broadcast.Prefix, logger)
		s.closers = append(s.closers, func(context.Context) error { return client.Close() })
		b = s.fanout
	}

	var tp *tracing
	if cfg.Tracing.Enabled {
		tp, err = newTracing(ctx, cfg.Tracing, version)
		if err != nil {
			s.Close(ctx)
			return nil, err
		}
		s.closers = append(s.closers, tp.Shutdown)
	}

	reg := prometheus.NewRegistry()
	if cfg.Metrics.Enabled {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	s.dispatcher = reflex.NewDispatcher(registry, b,
		reflex.WithRenderer(server.NewHTTPRenderer(app)),
		reflex.WithLogger(logger),
		reflex.WithPermanentAttributeName(cfg.Reflex.PermanentAttribute),
		reflex.WithMiddleware(dispatchMiddleware(cfg, reg, tp)...),
	)

	opts := []server.Option{
		server.WithApp(app),
		server.WithSessionStore(store),
		server.WithLogger(logger),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, server.WithMetrics(reg))
	}
	s.server = server.New(serverConfig(cfg), s.dispatcher, s.hub, opts...)
	return s, nil
}

// Close releases the stack's resources in reverse order.
func (s *stack) Close(ctx context.Context) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			s.logger.Warn("close failed", "error", err)
		}
	}
	s.closers = nil
}
