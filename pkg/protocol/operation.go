package protocol

import "encoding/json"

// Kind is the mutation strategy of an Operation.
type Kind string

const (
	// KindMorph patches an existing element in place.
	KindMorph Kind = "morph"

	// KindInnerHTML replaces an element's children with an opaque fragment.
	KindInnerHTML Kind = "innerHtml"
)

// MetadataKey is the wire key under which operation metadata travels.
const MetadataKey = "stimulusReflex"

// Operation is one DOM mutation instruction. Operations are values and are
// not modified after creation.
type Operation struct {
	Kind                   Kind
	Selector               string
	HTML                   string
	ChildrenOnly           bool
	PermanentAttributeName string
	Payload                map[string]any
	Metadata               map[string]any
}

type morphWire struct {
	Selector               string         `json:"selector"`
	HTML                   string         `json:"html"`
	ChildrenOnly           bool           `json:"childrenOnly"`
	PermanentAttributeName *string        `json:"permanentAttributeName"`
	Payload                map[string]any `json:"payload"`
	Metadata               map[string]any `json:"stimulusReflex"`
}

type innerHTMLWire struct {
	Selector string         `json:"selector"`
	HTML     string         `json:"html"`
	Payload  map[string]any `json:"payload"`
	Metadata map[string]any `json:"stimulusReflex"`
}

// anyWire accepts either shape when decoding.
type anyWire struct {
	Selector               string         `json:"selector"`
	HTML                   string         `json:"html"`
	ChildrenOnly           bool           `json:"childrenOnly"`
	PermanentAttributeName *string        `json:"permanentAttributeName"`
	Payload                map[string]any `json:"payload"`
	Metadata               map[string]any `json:"stimulusReflex"`
}

// MarshalJSON encodes the operation without its kind, which is carried by
// the enclosing operations object. Morph operations always include
// childrenOnly and permanentAttributeName (null when unset).
func (op Operation) MarshalJSON() ([]byte, error) {
	payload := op.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	metadata := op.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	if op.Kind == KindMorph {
		w := morphWire{
			Selector:     op.Selector,
			HTML:         op.HTML,
			ChildrenOnly: op.ChildrenOnly,
			Payload:      payload,
			Metadata:     metadata,
		}
		if op.PermanentAttributeName != "" {
			name := op.PermanentAttributeName
			w.PermanentAttributeName = &name
		}
		return json.Marshal(w)
	}
	return json.Marshal(innerHTMLWire{
		Selector: op.Selector,
		HTML:     op.HTML,
		Payload:  payload,
		Metadata: metadata,
	})
}

// UnmarshalJSON decodes an operation. The caller sets Kind.
func (op *Operation) UnmarshalJSON(data []byte) error {
	var w anyWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	op.Selector = w.Selector
	op.HTML = w.HTML
	op.ChildrenOnly = w.ChildrenOnly
	op.PermanentAttributeName = ""
	if w.PermanentAttributeName != nil {
		op.PermanentAttributeName = *w.PermanentAttributeName
	}
	op.Payload = w.Payload
	op.Metadata = w.Metadata
	return nil
}

// CallID returns the correlation id carried in the operation metadata.
func (op Operation) CallID() string {
	s, _ := op.Metadata["callId"].(string)
	return s
}
