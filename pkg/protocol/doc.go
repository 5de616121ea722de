// Package protocol defines the JSON wire format exchanged between reflex
// clients and the server.
//
// Clients send one Invocation per user-triggered call. The server answers
// every invocation with exactly one Message, delivered to the stream the
// originating connection subscribes to. Transport-level failures that have
// no valid target (malformed payloads, rate limiting) are answered with an
// ErrorFrame on the originating connection only.
//
// # Inbound
//
//	{
//	  "target": "Counter#increment",
//	  "arguments": [1, {"step": 2}],
//	  "url": "https://example.com/counter",
//	  "selectors": ["#counter"],
//	  "permanentAttributeSelector": "[data-reflex-permanent]",
//	  "callId": "4b7e...",
//	  "elementAttributes": {"id": "inc", "value": "", "checked": false},
//	  "dataset": {"data-step": "2"}
//	}
//
// # Outbound
//
//	{
//	  "cableReady": true,
//	  "subject": "success",
//	  "operations": {
//	    "morph": [{"selector": "#counter", "html": "...", "childrenOnly": true,
//	               "permanentAttributeName": "data-reflex-permanent",
//	               "payload": {}, "stimulusReflex": {"callId": "4b7e...", "morph": "selector"}}],
//	    "innerHtml": []
//	  }
//	}
//
// Operations of the same kind keep their relative order. Kinds appear in
// the order their first operation was added, and Decode preserves that
// order.
//
// # Arguments
//
// Argument objects decode into Params, which answer lookups by exact key
// first and then by folded key, so "userId", "UserID", ":user_id" and
// "user-id" all find the same entry.
package protocol
