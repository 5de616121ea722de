package middleware

import (
	"context"
	"fmt"

	"github.com/vango-dev/reflex/pkg/reflex"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Default tracer name for reflex applications.
const defaultTracerName = "reflex"

// OTelConfig configures the OpenTelemetry middleware.
type OTelConfig struct {
	// TracerName is the name of the tracer (default: "reflex").
	TracerName string

	// IncludeURL includes the page URL in traces.
	// Enabled by default.
	IncludeURL bool

	// Filter determines which invocations to trace.
	// Return true to trace the invocation, false to skip.
	// If nil, all invocations are traced.
	Filter func(r *reflex.Reflex) bool

	// AttributeExtractor extracts custom attributes from the invocation.
	AttributeExtractor func(r *reflex.Reflex) []attribute.KeyValue

	// TracerProvider overrides the global provider.
	TracerProvider trace.TracerProvider
}

// OTelOption configures the OpenTelemetry middleware.
type OTelOption func(*OTelConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) OTelOption {
	return func(c *OTelConfig) {
		c.TracerName = name
	}
}

// WithIncludeURL enables/disables including the page URL in traces.
func WithIncludeURL(include bool) OTelOption {
	return func(c *OTelConfig) {
		c.IncludeURL = include
	}
}

// WithFilter sets a filter function for invocations.
func WithFilter(filter func(r *reflex.Reflex) bool) OTelOption {
	return func(c *OTelConfig) {
		c.Filter = filter
	}
}

// WithAttributeExtractor sets a custom attribute extractor.
func WithAttributeExtractor(extractor func(r *reflex.Reflex) []attribute.KeyValue) OTelOption {
	return func(c *OTelConfig) {
		c.AttributeExtractor = extractor
	}
}

// WithTracerProvider sets the tracer provider. Default: otel.GetTracerProvider().
func WithTracerProvider(tp trace.TracerProvider) OTelOption {
	return func(c *OTelConfig) {
		c.TracerProvider = tp
	}
}

func defaultOTelConfig() OTelConfig {
	return OTelConfig{
		TracerName: defaultTracerName,
		IncludeURL: true,
	}
}

// OpenTelemetry creates middleware that traces every invocation.
//
// The middleware:
//   - Creates a span per invocation with target, call id and stream
//   - Passes the span context down so renders and handlers inherit it
//   - Records errors and sets span status
//   - Records the broadcast subject and operation count
//
// The tracer uses the global OpenTelemetry tracer provider unless
// WithTracerProvider is given. Configure it in main() before serving:
//
//	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
//	otel.SetTracerProvider(tp)
func OpenTelemetry(opts ...OTelOption) reflex.Middleware {
	config := defaultOTelConfig()
	for _, opt := range opts {
		opt(&config)
	}

	tp := config.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	tracer := tp.Tracer(config.TracerName)

	return func(ctx context.Context, r *reflex.Reflex, next func(context.Context) error) error {
		if config.Filter != nil && !config.Filter(r) {
			return next(ctx)
		}

		inv := r.Invocation
		attrs := []attribute.KeyValue{
			attribute.String("reflex.target", inv.Target),
			attribute.String("reflex.stream", r.Stream),
			attribute.Int("reflex.selectors", len(inv.Selectors)),
		}
		if inv.CallID != "" {
			attrs = append(attrs, attribute.String("reflex.call_id", inv.CallID))
		}
		if config.IncludeURL {
			attrs = append(attrs, attribute.String("reflex.url", inv.URL))
		}
		if config.AttributeExtractor != nil {
			attrs = append(attrs, config.AttributeExtractor(r)...)
		}

		spanCtx, span := tracer.Start(ctx, fmt.Sprintf("reflex %s", inv.Target),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attrs...),
		)
		defer span.End()

		err := next(spanCtx)

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.SetAttributes(attribute.String("reflex.error_kind", ErrorKind(err)))
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.SetAttributes(
			attribute.String("reflex.subject", string(r.Subject())),
			attribute.Int("reflex.operations", len(r.Operations())),
		)
		return err
	}
}
