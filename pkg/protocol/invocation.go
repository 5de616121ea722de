package protocol

import (
	"encoding/json"
	"strings"

	"github.com/vango-dev/reflex/pkg/dom"
)

// Invocation is one decoded client call. It is immutable after decoding.
type Invocation struct {
	// Target names the handler as "Class#method".
	Target string `json:"target"`

	// Arguments holds the call-site values. Objects are decoded as Params.
	Arguments []any `json:"arguments"`

	// URL is the originating page location.
	URL string `json:"url"`

	// Selectors names the reconciliation targets in order. Empty means the
	// whole page is reconciled.
	Selectors []string `json:"selectors"`

	// PermanentAttributeName overrides the server's permanent marker name
	// on the morphs of this call.
	PermanentAttributeName string `json:"permanentAttributeName,omitempty"`

	// PermanentAttributeSelector identifies subtrees a morph must not touch.
	// The server passes it through; the client applying the answering
	// morphs keeps the matching elements.
	PermanentAttributeSelector string `json:"permanentAttributeSelector,omitempty"`

	// CallID correlates the resulting Message with the triggering element.
	CallID string `json:"callId"`

	// ElementAttributes is the attribute snapshot of the triggering element.
	ElementAttributes dom.Attributes `json:"elementAttributes"`

	// Dataset is the merged dataset of the triggering element.
	Dataset dom.Attributes `json:"dataset,omitempty"`

	// Metadata is opaque client data copied onto every operation.
	Metadata map[string]any `json:"metadata,omitempty"`

	// Payload is opaque client data attached to every operation.
	Payload map[string]any `json:"payload,omitempty"`

	raw json.RawMessage
}

// DecodeInvocation parses one transport message. Malformed payloads return
// a *DecodeError.
func DecodeInvocation(data []byte) (*Invocation, error) {
	var inv Invocation
	if err := json.Unmarshal(data, &inv); err != nil {
		return nil, &DecodeError{Err: err}
	}

	class, method, ok := strings.Cut(inv.Target, "#")
	if !ok || strings.TrimSpace(class) == "" || strings.TrimSpace(method) == "" {
		return nil, &DecodeError{Err: ErrMissingTarget}
	}

	args, err := normalizeArguments(inv.Arguments)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	inv.Arguments = args

	if inv.ElementAttributes == nil {
		inv.ElementAttributes = dom.Attributes{}
	}
	inv.raw = append(json.RawMessage(nil), data...)
	return &inv, nil
}

// Class returns the handler class part of the target.
func (inv *Invocation) Class() string {
	class, _, _ := strings.Cut(inv.Target, "#")
	return class
}

// Method returns the method part of the target.
func (inv *Invocation) Method() string {
	_, method, _ := strings.Cut(inv.Target, "#")
	return method
}

// Raw returns the payload the invocation was decoded from.
func (inv *Invocation) Raw() json.RawMessage {
	return inv.raw
}

// Encode returns the JSON payload for the invocation.
func (inv *Invocation) Encode() ([]byte, error) {
	if inv.Arguments == nil {
		cp := *inv
		cp.Arguments = []any{}
		return json.Marshal(&cp)
	}
	return json.Marshal(inv)
}

// CorrelationMetadata returns the metadata every operation of this
// invocation carries: the client metadata plus the call id.
func (inv *Invocation) CorrelationMetadata() map[string]any {
	md := make(map[string]any, len(inv.Metadata)+1)
	for k, v := range inv.Metadata {
		md[k] = v
	}
	if inv.CallID != "" {
		md["callId"] = inv.CallID
	}
	return md
}
