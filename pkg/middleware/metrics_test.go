package middleware

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vango-dev/reflex/pkg/protocol"
	"github.com/vango-dev/reflex/pkg/reflex"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPrometheus_RecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	mw := Prometheus(WithRegistry(reg), WithNamespace("test"))
	d := newDispatcher(mw)
	ctx := context.Background()

	require.NoError(t, d.Receive(ctx, stubConn{}, invocation("Counter#increment", "#count")))
	require.NoError(t, d.Receive(ctx, stubConn{}, invocation("Counter#stop")))
	require.Error(t, d.Receive(ctx, stubConn{}, invocation("Counter#fail")))

	m := metricsFor(MetricsConfig{Registry: reg})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.invocations.WithLabelValues("Counter#increment", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.invocations.WithLabelValues("Counter#stop", "halted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.invocations.WithLabelValues("Counter#fail", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errors.WithLabelValues("Counter#fail", "handler")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues(string(protocol.KindMorph))))
	assert.Equal(t, 3, testutil.CollectAndCount(m.duration))

	names, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range names {
		if mf.GetName() == "test_invocations_total" {
			found = true
		}
	}
	assert.True(t, found, "namespace applied")
}

func TestPrometheus_SameRegistryReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	assert.NotPanics(t, func() {
		_ = Prometheus(WithRegistry(reg))
		_ = Prometheus(WithRegistry(reg))
	})
}

func TestRecordFunctions(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metricsFor(MetricsConfig{Registry: reg, Namespace: "rec"})
	registeredMu.Lock()
	prev := defaultM
	defaultM = m
	registeredMu.Unlock()
	defer func() {
		registeredMu.Lock()
		defaultM = prev
		registeredMu.Unlock()
	}()

	RecordConnectionOpen()
	RecordConnectionOpen()
	RecordConnectionClose()
	RecordRejected(protocol.CodeRateLimited)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.connections))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejected.WithLabelValues(string(protocol.CodeRateLimited))))
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&reflex.ArityError{Given: 1}, "arity"},
		{&reflex.HandlerError{Err: errors.New("x")}, "handler"},
		{&reflex.ReconcileError{Err: errors.New("x")}, "reconcile"},
		{&reflex.RouteError{Err: errors.New("x")}, "route"},
		{&protocol.DecodeError{Err: errors.New("x")}, "decode"},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), "timeout"},
		{errors.New("other"), "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorKind(tt.err))
		})
	}
}
