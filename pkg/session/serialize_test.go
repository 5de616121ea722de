package session

import (
	"encoding/json"
	"testing"
	"time"
)

func TestSerialize_SetsVersionAndRoundTrips(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)

	ss := &SerializableSession{
		ID:         "sess-1",
		CreatedAt:  now.Add(-time.Minute),
		LastActive: now,
		Values: map[string]json.RawMessage{
			"theme": json.RawMessage(`"dark"`),
			"count": json.RawMessage(`3`),
		},
		Version: 999, // should be overwritten
	}

	data, err := Serialize(ss)
	if err != nil {
		t.Fatalf("Serialize() error: %v", err)
	}
	if ss.Version != CurrentSerializationVersion {
		t.Fatalf("Serialize() did not set Version: got %d want %d", ss.Version, CurrentSerializationVersion)
	}

	roundTripped, err := Deserialize(data)
	if err != nil {
		t.Fatalf("Deserialize() error: %v", err)
	}
	if roundTripped.ID != ss.ID {
		t.Fatalf("round-trip mismatch: got %+v want %+v", roundTripped, ss)
	}
	if !roundTripped.CreatedAt.Equal(ss.CreatedAt) || !roundTripped.LastActive.Equal(ss.LastActive) {
		t.Fatalf("timestamps mismatch: got %+v", roundTripped)
	}
	if string(roundTripped.Values["theme"]) != `"dark"` {
		t.Fatalf("Values mismatch: got %s", roundTripped.Values["theme"])
	}
	if string(roundTripped.Values["count"]) != `3` {
		t.Fatalf("Values mismatch: got %s", roundTripped.Values["count"])
	}
	if roundTripped.Version != CurrentSerializationVersion {
		t.Fatalf("Version mismatch: got %d want %d", roundTripped.Version, CurrentSerializationVersion)
	}
}

func TestDeserialize_InvalidJSONErrors(t *testing.T) {
	_, err := Deserialize([]byte("{not-json"))
	if err == nil {
		t.Fatal("Deserialize() expected error, got nil")
	}
}
