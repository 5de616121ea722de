// Package server provides the transport for reflex invocations.
//
// The server upgrades cable requests to WebSocket connections, subscribes
// each connection to its broadcast stream and hands decoded invocations to a
// reflex.Dispatcher. It also serves the application's pages, with the
// session attached to the request context.
//
// # Connection Lifecycle
//
// Each cable connection runs two goroutines:
//   - ReadLoop: reads one message at a time, decodes it, applies the
//     per-connection rate limit and dispatches it on its own goroutine
//   - WriteLoop: writes queued broadcast messages and heartbeat pings
//
// Malformed or rate-limited messages are answered with an error frame and
// never reach the dispatcher.
//
// # Streams
//
// The stream of a connection is computed once, when it subscribes, from the
// optional "channel" query parameter and the identifiers returned by the
// IdentifyFunc. The default IdentifyFunc uses the session cookie, so
// independent browser sessions never share a stream.
//
// # Example Usage
//
//	app := chi.NewRouter()
//	app.Get("/", indexPage)
//
//	hub := broadcast.NewHub(logger)
//	d := reflex.NewDispatcher(registry, hub,
//	    reflex.WithRenderer(server.NewHTTPRenderer(app)),
//	)
//	srv := server.New(server.DefaultServerConfig(), d, hub, server.WithApp(app))
//	srv.Run()
//
// # Thread Safety
//
// Only WriteLoop writes to a connection. Broadcasts from any goroutine are
// queued through Conn.Send, which never blocks.
package server
