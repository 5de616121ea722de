// Package middleware provides dispatch middleware for reflex applications.
//
// This package includes:
//   - OpenTelemetry tracing of every invocation
//   - Prometheus metrics for invocations, operations and connections
//
// # OpenTelemetry Middleware
//
// The OpenTelemetry middleware starts one span per invocation and hands the
// span context to the rest of the chain, so page renders and handler code
// that use the context inherit the trace.
//
//	d := reflex.NewDispatcher(registry, hub,
//	    reflex.WithMiddleware(middleware.OpenTelemetry(
//	        middleware.WithTracerName("my-app"),
//	        middleware.WithFilter(func(r *reflex.Reflex) bool {
//	            return r.Invocation.Class() != "Heartbeat"
//	        }),
//	    )),
//	)
//
// # Prometheus Metrics
//
// The Prometheus middleware collects:
//   - reflex_invocations_total: invocations by target and subject
//   - reflex_invocation_duration_seconds: processing duration histogram
//   - reflex_operations_total: broadcast operations by kind
//   - reflex_errors_total: failures by target and error kind
//
// The server reports reflex_connections and reflex_rejected_total through
// RecordConnectionOpen, RecordConnectionClose and RecordRejected.
//
//	d := reflex.NewDispatcher(registry, hub,
//	    reflex.WithMiddleware(middleware.Prometheus()),
//	)
//	r.Handle("/metrics", promhttp.Handler())
package middleware
