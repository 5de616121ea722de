package middleware

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vango-dev/reflex/pkg/reflex"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func newRecorder() (*tracetest.SpanRecorder, trace.TracerProvider) {
	sr := tracetest.NewSpanRecorder()
	return sr, sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
}

func attrMap(kvs []attribute.KeyValue) map[string]attribute.Value {
	out := make(map[string]attribute.Value, len(kvs))
	for _, kv := range kvs {
		out[string(kv.Key)] = kv.Value
	}
	return out
}

func TestOpenTelemetry_SpanPerInvocation(t *testing.T) {
	sr, tp := newRecorder()
	var inner trace.SpanContext
	probe := func(ctx context.Context, r *reflex.Reflex, next func(context.Context) error) error {
		inner = trace.SpanContextFromContext(ctx)
		return next(ctx)
	}
	d := newDispatcher(OpenTelemetry(WithTracerProvider(tp)), probe)

	require.NoError(t, d.Receive(context.Background(), stubConn{}, invocation("Counter#increment", "#count")))

	spans := sr.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "reflex Counter#increment", span.Name())
	assert.Equal(t, codes.Ok, span.Status().Code)
	assert.Equal(t, span.SpanContext().SpanID(), inner.SpanID(), "inner middleware sees the span context")

	attrs := attrMap(span.Attributes())
	assert.Equal(t, "Counter#increment", attrs["reflex.target"].AsString())
	assert.Equal(t, "call-1", attrs["reflex.call_id"].AsString())
	assert.Equal(t, "http://example.com/", attrs["reflex.url"].AsString())
	assert.Equal(t, "success", attrs["reflex.subject"].AsString())
	assert.Equal(t, int64(1), attrs["reflex.operations"].AsInt64())
}

func TestOpenTelemetry_RecordsErrors(t *testing.T) {
	sr, tp := newRecorder()
	d := newDispatcher(OpenTelemetry(WithTracerProvider(tp), WithIncludeURL(false)))

	require.Error(t, d.Receive(context.Background(), stubConn{}, invocation("Counter#fail")))

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	attrs := attrMap(spans[0].Attributes())
	assert.Equal(t, "handler", attrs["reflex.error_kind"].AsString())
	assert.Equal(t, "error", attrs["reflex.subject"].AsString())
	_, hasURL := attrs["reflex.url"]
	assert.False(t, hasURL)
	assert.NotEmpty(t, spans[0].Events(), "error recorded as span event")
}

func TestOpenTelemetry_FilterAndExtractor(t *testing.T) {
	sr, tp := newRecorder()
	d := newDispatcher(OpenTelemetry(
		WithTracerProvider(tp),
		WithTracerName("custom"),
		WithFilter(func(r *reflex.Reflex) bool { return r.Invocation.Method() != "stop" }),
		WithAttributeExtractor(func(r *reflex.Reflex) []attribute.KeyValue {
			return []attribute.KeyValue{attribute.String("app.class", r.Invocation.Class())}
		}),
	))

	require.NoError(t, d.Receive(context.Background(), stubConn{}, invocation("Counter#stop")))
	assert.Empty(t, sr.Ended(), "filtered invocation is not traced")

	require.NoError(t, d.Receive(context.Background(), stubConn{}, invocation("Counter#increment")))
	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "custom", spans[0].InstrumentationScope().Name)
	assert.Equal(t, "Counter", attrMap(spans[0].Attributes())["app.class"].AsString())
}
