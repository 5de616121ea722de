package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMorphOperationJSON(t *testing.T) {
	op := Operation{
		Kind:                   KindMorph,
		Selector:               "#foo",
		HTML:                   "<div>bar</div><div>baz</div>",
		ChildrenOnly:           true,
		PermanentAttributeName: "data-reflex-permanent",
		Metadata:               map[string]any{"callId": "c1", "morph": "selector"},
	}

	data, err := json.Marshal(op)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"selector": "#foo",
		"html": "<div>bar</div><div>baz</div>",
		"childrenOnly": true,
		"permanentAttributeName": "data-reflex-permanent",
		"payload": {},
		"stimulusReflex": {"callId": "c1", "morph": "selector"}
	}`, string(data))
	assert.Equal(t, "c1", op.CallID())
}

func TestMorphOperationNullPermanentAttribute(t *testing.T) {
	data, err := json.Marshal(Operation{Kind: KindMorph, Selector: "body", ChildrenOnly: true})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	v, present := raw["permanentAttributeName"]
	assert.True(t, present)
	assert.Nil(t, v)
}

func TestInnerHTMLOperationJSON(t *testing.T) {
	op := Operation{
		Kind:     KindInnerHTML,
		Selector: "#foo",
		HTML:     `<div id="baz"><span>bar</span></div>`,
		Payload:  map[string]any{"x": float64(1)},
	}

	data, err := json.Marshal(op)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"selector": "#foo",
		"html": "<div id=\"baz\"><span>bar</span></div>",
		"payload": {"x": 1},
		"stimulusReflex": {}
	}`, string(data))
}

func TestMessageEncode(t *testing.T) {
	m := &Message{
		Subject: SubjectSuccess,
		Operations: []Operation{
			{Kind: KindInnerHTML, Selector: "#a"},
			{Kind: KindMorph, Selector: "#b", ChildrenOnly: true},
			{Kind: KindInnerHTML, Selector: "#c"},
		},
	}

	data, err := m.Encode()
	require.NoError(t, err)

	var raw struct {
		CableReady bool                         `json:"cableReady"`
		Subject    string                       `json:"subject"`
		Operations map[string][]json.RawMessage `json:"operations"`
	}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.True(t, raw.CableReady)
	assert.Equal(t, "success", raw.Subject)
	assert.Len(t, raw.Operations["innerHtml"], 2)
	assert.Len(t, raw.Operations["morph"], 1)
	assert.NotContains(t, string(data), `"body"`)
	assert.NotContains(t, string(data), `"error"`)
}

func TestMessageDecodeKeepsOrder(t *testing.T) {
	m := &Message{
		Subject: SubjectSuccess,
		Operations: []Operation{
			{Kind: KindInnerHTML, Selector: "#a", Payload: map[string]any{}, Metadata: map[string]any{}},
			{Kind: KindMorph, Selector: "#b", ChildrenOnly: true, PermanentAttributeName: "data-p", Payload: map[string]any{}, Metadata: map[string]any{}},
			{Kind: KindInnerHTML, Selector: "#c", Payload: map[string]any{}, Metadata: map[string]any{}},
		},
	}
	data, err := m.Encode()
	require.NoError(t, err)

	decoded, err := DecodeMessage(data)
	require.NoError(t, err)

	selectors := make([]string, len(decoded.Operations))
	for i, op := range decoded.Operations {
		selectors[i] = op.Selector
	}
	assert.Equal(t, []string{"#a", "#c", "#b"}, selectors)
	assert.Equal(t, []Kind{KindInnerHTML, KindMorph}, decoded.Kinds())
	assert.Equal(t, "data-p", decoded.Operations[2].PermanentAttributeName)
	assert.True(t, decoded.Operations[2].ChildrenOnly)
}

func TestStatusMessageEncode(t *testing.T) {
	m := &Message{
		Subject: SubjectError,
		Body:    "Reflex Counter#increment failed: boom [https://example.com]",
		Error:   "boom",
		Data:    json.RawMessage(`{"target": "Counter#increment"}`),
	}

	data, err := m.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"cableReady": true,
		"subject": "error",
		"operations": {},
		"body": "Reflex Counter#increment failed: boom [https://example.com]",
		"data": {"target": "Counter#increment"},
		"error": "boom"
	}`, string(data))
}

func TestDecodeServerFrame(t *testing.T) {
	msg, frame, err := DecodeServerFrame(NewError(CodeRateLimited, "slow down").Encode())
	require.NoError(t, err)
	assert.Nil(t, msg)
	require.NotNil(t, frame)
	assert.Equal(t, CodeRateLimited, frame.Code)
	assert.Equal(t, "rate_limited: slow down", frame.Error())

	data, err := (&Message{Subject: SubjectHalted}).Encode()
	require.NoError(t, err)
	msg, frame, err = DecodeServerFrame(data)
	require.NoError(t, err)
	assert.Nil(t, frame)
	require.NotNil(t, msg)
	assert.Equal(t, SubjectHalted, msg.Subject)
	assert.Empty(t, msg.Operations)

	_, _, err = DecodeServerFrame([]byte(`{"hello":1}`))
	assert.Error(t, err)
}

func TestFatalErrorFrame(t *testing.T) {
	f := NewFatalError(CodeNotAuthorized, "no session")
	assert.True(t, f.Fatal)
	assert.Equal(t, "fatal: not_authorized: no session", f.Error())
}

func TestMessageCallIDRoundTrip(t *testing.T) {
	data, err := (&Message{Subject: SubjectSuccess, CallID: "c9"}).Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"cableReady":true,"subject":"success","callId":"c9","operations":{}}`, string(data))

	decoded, err := DecodeMessage(data)
	require.NoError(t, err)
	assert.Equal(t, "c9", decoded.CallID)
	assert.Empty(t, decoded.Operations)
}
