// Package client is a Go cable client for reflex servers.
//
// A Client holds an in-memory copy of one page. Invoke snapshots an element
// of that page into an invocation and sends it; every broadcast received on
// the connection is applied to the page, and status messages are routed back
// to the call that caused them by call id.
//
//	c, err := client.Dial(ctx, "ws://localhost:8080/cable", page, "http://localhost:8080/")
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	button, _ := c.Query("#increment")
//	call, err := c.Invoke(ctx, "Counter#increment", button, client.WithSelectors("#count"))
//	res, err := call.Wait(ctx)
//
// Operations are applied the way the browser library applies them:
// innerHtml replaces an element's children, morph replaces children (or the
// element itself) while keeping subtrees carrying the permanent attribute.
// Subtrees are matched by id, so permanent elements without one are
// replaced like any other.
package client
