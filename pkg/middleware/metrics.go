package middleware

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/vango-dev/reflex/pkg/protocol"
	"github.com/vango-dev/reflex/pkg/reflex"
)

// MetricsConfig configures the Prometheus metrics middleware.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "reflex").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for invocation duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus metrics middleware.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "reflex",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds the Prometheus collectors for one registry.
type Metrics struct {
	invocations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	operations  *prometheus.CounterVec
	errors      *prometheus.CounterVec
	connections prometheus.Gauge
	rejected    *prometheus.CounterVec
}

// Collectors are created once per registry; a second registration would
// fail with a duplicate error.
var (
	registered   = map[prometheus.Registerer]*Metrics{}
	registeredMu sync.Mutex
	defaultM     *Metrics
)

func metricsFor(config MetricsConfig) *Metrics {
	registeredMu.Lock()
	defer registeredMu.Unlock()

	if m, ok := registered[config.Registry]; ok {
		return m
	}
	factory := promauto.With(config.Registry)
	m := &Metrics{
		invocations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "invocations_total",
			Help:        "Total number of invocations by target and broadcast subject",
			ConstLabels: config.ConstLabels,
		}, []string{"target", "subject"}),

		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "invocation_duration_seconds",
			Help:        "Invocation processing duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"target"}),

		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "operations_total",
			Help:        "Total number of mutation operations broadcast, by kind",
			ConstLabels: config.ConstLabels,
		}, []string{"kind"}),

		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "errors_total",
			Help:        "Total number of failed invocations by target and error kind",
			ConstLabels: config.ConstLabels,
		}, []string{"target", "kind"}),

		connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "connections",
			Help:        "Number of open cable connections",
			ConstLabels: config.ConstLabels,
		}),

		rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "rejected_total",
			Help:        "Total number of inbound messages rejected before dispatch, by error code",
			ConstLabels: config.ConstLabels,
		}, []string{"code"}),
	}
	registered[config.Registry] = m
	if config.Registry == prometheus.DefaultRegisterer || defaultM == nil {
		defaultM = m
	}
	return m
}

// Prometheus creates middleware that collects Prometheus metrics for
// invocations.
//
// Metrics collected:
//   - reflex_invocations_total: Counter of invocations by target and subject
//   - reflex_invocation_duration_seconds: Histogram of processing duration
//   - reflex_operations_total: Counter of broadcast operations by kind
//   - reflex_errors_total: Counter of failures by target and error kind
//   - reflex_connections: Gauge of open connections (see RecordConnectionOpen)
//   - reflex_rejected_total: Counter of rejected messages (see RecordRejected)
//
// Example:
//
//	d := reflex.NewDispatcher(registry, hub,
//	    reflex.WithMiddleware(middleware.Prometheus(middleware.WithNamespace("myapp"))),
//	)
//	r.Handle("/metrics", promhttp.Handler())
func Prometheus(opts ...MetricsOption) reflex.Middleware {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	m := metricsFor(config)

	return func(ctx context.Context, r *reflex.Reflex, next func(context.Context) error) error {
		target := r.Invocation.Target
		start := time.Now()

		err := next(ctx)

		m.duration.WithLabelValues(target).Observe(time.Since(start).Seconds())
		subject := string(r.Subject())
		if subject == "" {
			subject = "none"
		}
		m.invocations.WithLabelValues(target, subject).Inc()
		for _, op := range r.Operations() {
			m.operations.WithLabelValues(string(op.Kind)).Inc()
		}
		if err != nil {
			m.errors.WithLabelValues(target, ErrorKind(err)).Inc()
		}
		return err
	}
}

// ErrorKind returns a low-cardinality label for an invocation error.
func ErrorKind(err error) string {
	var (
		routeErr     *reflex.RouteError
		arityErr     *reflex.ArityError
		handlerErr   *reflex.HandlerError
		reconcileErr *reflex.ReconcileError
		decodeErr    *protocol.DecodeError
	)
	switch {
	case errors.As(err, &arityErr):
		return "arity"
	case errors.As(err, &handlerErr):
		return "handler"
	case errors.As(err, &reconcileErr):
		return "reconcile"
	case errors.As(err, &routeErr):
		return "route"
	case errors.As(err, &decodeErr):
		return "decode"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	default:
		return "internal"
	}
}

// RecordConnectionOpen records a new connection on the default metrics.
func RecordConnectionOpen() {
	if m := current(); m != nil {
		m.connections.Inc()
	}
}

// RecordConnectionClose records a closed connection.
func RecordConnectionClose() {
	if m := current(); m != nil {
		m.connections.Dec()
	}
}

// RecordRejected records a message rejected before dispatch.
func RecordRejected(code protocol.ErrorCode) {
	if m := current(); m != nil {
		m.rejected.WithLabelValues(string(code)).Inc()
	}
}

func current() *Metrics {
	registeredMu.Lock()
	defer registeredMu.Unlock()
	return defaultM
}
