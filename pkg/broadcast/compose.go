package broadcast

import (
	"context"
	"sort"

	"github.com/vango-dev/reflex/pkg/protocol"
)

// Broadcaster delivers one message to every subscriber of a stream.
type Broadcaster interface {
	Broadcast(ctx context.Context, stream string, msg *protocol.Message) error
}

// Compose builds the success message for inv. Operations are ordered by the
// position of their selector in inv.Selectors; operations for selectors not
// listed there keep their relative order after the listed ones.
func Compose(inv *protocol.Invocation, ops []protocol.Operation) *protocol.Message {
	rank := make(map[string]int, len(inv.Selectors))
	for i, sel := range inv.Selectors {
		if _, seen := rank[sel]; !seen {
			rank[sel] = i
		}
	}
	position := func(op protocol.Operation) int {
		if i, ok := rank[op.Selector]; ok {
			return i
		}
		return len(inv.Selectors)
	}

	ordered := append([]protocol.Operation(nil), ops...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return position(ordered[i]) < position(ordered[j])
	})
	return &protocol.Message{Subject: protocol.SubjectSuccess, CallID: inv.CallID, Operations: ordered}
}

// Halted builds the message for a handler that aborted. It carries no
// operations.
func Halted(inv *protocol.Invocation) *protocol.Message {
	return &protocol.Message{Subject: protocol.SubjectHalted, CallID: inv.CallID, Data: inv.Raw()}
}

// Failed builds the error message with the client-facing body and the
// underlying error text.
func Failed(inv *protocol.Invocation, body, errText string) *protocol.Message {
	return &protocol.Message{
		Subject: protocol.SubjectError,
		CallID:  inv.CallID,
		Body:    body,
		Data:    inv.Raw(),
		Error:   errText,
	}
}
