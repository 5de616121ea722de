// Package reflex dispatches decoded invocations to server-side handlers and
// turns their outcome into exactly one broadcast message.
//
// A handler class is registered under a name with a Factory. For every
// invocation the Dispatcher builds a fresh handler from the factory, binds
// the call arguments against the action's Signature, runs the action, and
// then either reports a halt, reports an error, or reconciles the requested
// selectors against the re-rendered page:
//
//	reg := reflex.NewRegistry()
//	reg.Register("Counter", func(r *reflex.Reflex) (reflex.Handler, error) {
//	    return reflex.Actions{
//	        "increment": reflex.Args(1, 0, func(ctx context.Context, r *reflex.Reflex, args []any) error {
//	            step, _ := args[0].(float64)
//	            r.Session.Set("count", count(r.Session)+int(step))
//	            return nil
//	        }),
//	    }, nil
//	})
//
//	d := reflex.NewDispatcher(reg, hub, reflex.WithRenderer(renderer))
//	err := d.Receive(ctx, conn, payload)
//
// Whatever the outcome, the session is committed and an authentication
// failure of the page render is reported once the invocation is done.
//
// Handlers implementing ErrorHandler are told about every failure before the
// error message is broadcast.
package reflex
