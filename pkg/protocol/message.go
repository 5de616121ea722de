package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Subject tags the outcome of an invocation.
type Subject string

const (
	SubjectSuccess Subject = "success"
	SubjectHalted  Subject = "halted"
	SubjectError   Subject = "error"
)

// Message is the single broadcast produced for one invocation. CallID names
// the invocation so clients can correlate messages that carry no
// operations.
type Message struct {
	Subject    Subject
	CallID     string
	Operations []Operation
	Body       string
	Data       json.RawMessage
	Error      string
}

// Count returns the number of operations of kind k.
func (m *Message) Count(k Kind) int {
	n := 0
	for _, op := range m.Operations {
		if op.Kind == k {
			n++
		}
	}
	return n
}

// Kinds returns the operation kinds in order of first appearance.
func (m *Message) Kinds() []Kind {
	var kinds []Kind
	seen := map[Kind]bool{}
	for _, op := range m.Operations {
		if !seen[op.Kind] {
			seen[op.Kind] = true
			kinds = append(kinds, op.Kind)
		}
	}
	return kinds
}

// MarshalJSON encodes the message in the cable-ready envelope.
func (m Message) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"cableReady":true,"subject":`)
	if err := writeJSON(&buf, m.Subject); err != nil {
		return nil, err
	}

	if m.CallID != "" {
		buf.WriteString(`,"callId":`)
		if err := writeJSON(&buf, m.CallID); err != nil {
			return nil, err
		}
	}

	buf.WriteString(`,"operations":{`)
	for i, kind := range m.Kinds() {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeJSON(&buf, kind); err != nil {
			return nil, err
		}
		buf.WriteString(`:[`)
		first := true
		for _, op := range m.Operations {
			if op.Kind != kind {
				continue
			}
			if !first {
				buf.WriteByte(',')
			}
			first = false
			if err := writeJSON(&buf, op); err != nil {
				return nil, err
			}
		}
		buf.WriteByte(']')
	}
	buf.WriteByte('}')

	if m.Body != "" {
		buf.WriteString(`,"body":`)
		if err := writeJSON(&buf, m.Body); err != nil {
			return nil, err
		}
	}
	if len(m.Data) > 0 {
		buf.WriteString(`,"data":`)
		if err := json.Compact(&buf, m.Data); err != nil {
			return nil, fmt.Errorf("protocol: message data: %w", err)
		}
	}
	if m.Error != "" {
		buf.WriteString(`,"error":`)
		if err := writeJSON(&buf, m.Error); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeJSON(buf *bytes.Buffer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf.Write(data)
	return nil
}

// UnmarshalJSON decodes a cable-ready envelope, keeping the order in which
// operation kinds appear on the wire.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w struct {
		Subject    Subject         `json:"subject"`
		CallID     string          `json:"callId"`
		Operations json.RawMessage `json:"operations"`
		Body       string          `json:"body"`
		Data       json.RawMessage `json:"data"`
		Error      string          `json:"error"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	ops, err := decodeOperations(w.Operations)
	if err != nil {
		return err
	}
	*m = Message{
		Subject:    w.Subject,
		CallID:     w.CallID,
		Operations: ops,
		Body:       w.Body,
		Data:       w.Data,
		Error:      w.Error,
	}
	return nil
}

func decodeOperations(raw json.RawMessage) ([]Operation, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("protocol: operations must be an object")
	}

	var ops []Operation
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		kind, _ := tok.(string)

		var list []Operation
		if err := dec.Decode(&list); err != nil {
			return nil, fmt.Errorf("protocol: operations %q: %w", kind, err)
		}
		for i := range list {
			list[i].Kind = Kind(kind)
		}
		ops = append(ops, list...)
	}
	return ops, nil
}

// Encode returns the JSON encoding of the message.
func (m *Message) Encode() ([]byte, error) {
	return m.MarshalJSON()
}

// DecodeMessage parses a broadcast message.
func DecodeMessage(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("protocol: decode message: %w", err)
	}
	return &m, nil
}
