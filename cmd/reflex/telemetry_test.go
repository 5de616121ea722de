package main

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vango-dev/reflex/internal/config"
)

func TestSampler(t *testing.T) {
	assert.Equal(t, "AlwaysOnSampler", sampler(1).Description())
	assert.Equal(t, "AlwaysOffSampler", sampler(0).Description())
	assert.True(t, strings.HasPrefix(sampler(0.25).Description(), "TraceIDRatioBased"))
}

func TestNewTracing(t *testing.T) {
	ctx := context.Background()
	tp, err := newTracing(ctx, config.TracingConfig{
		TracerName: "reflex-test",
		Endpoint:   "127.0.0.1:4317",
		Insecure:   true,
		SampleRate: 1,
	}, "test")
	require.NoError(t, err)

	_, span := tp.provider.Tracer("test").Start(ctx, "noop")
	assert.True(t, span.SpanContext().IsValid())

	shutdownCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_ = tp.Shutdown(shutdownCtx)
}
