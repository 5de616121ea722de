package broadcast

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-dev/reflex/pkg/protocol"
)

type user struct{ id string }

func (u user) ID() string { return u.id }

type recorder struct {
	mu   sync.Mutex
	got  [][]byte
	fail bool
}

func (r *recorder) Send(data []byte) error {
	if r.fail {
		return errors.New("closed")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, data)
	return nil
}

func (r *recorder) messages() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.got...)
}

func TestStreamName(t *testing.T) {
	tests := []struct {
		name    string
		channel string
		ids     []any
		want    string
	}{
		{"identifiers only", "", []any{user{"42"}, "abc"}, "42;abc"},
		{"channel prefix", "admin", []any{user{"42"}}, "admin:42"},
		{"blank dropped", "", []any{"", user{""}, nil, "x", " "}, "x"},
		{"numbers formatted", "", []any{7, "s"}, "7;s"},
		{"blank channel", "  ", []any{"a"}, "a"},
		{"nothing", "", nil, ""},
		{"channel only", "lobby", nil, "lobby"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StreamName(tt.channel, tt.ids...))
		})
	}
}

func TestStreamNameDisjointSessions(t *testing.T) {
	assert.NotEqual(t, StreamName("", "session-a"), StreamName("", "session-b"))
}

func TestCompose(t *testing.T) {
	inv := &protocol.Invocation{CallID: "c1", Selectors: []string{"#a", "#b", "#c"}}
	ops := []protocol.Operation{
		{Kind: protocol.KindMorph, Selector: "#extra"},
		{Kind: protocol.KindInnerHTML, Selector: "#c"},
		{Kind: protocol.KindMorph, Selector: "#a"},
	}

	msg := Compose(inv, ops)
	assert.Equal(t, protocol.SubjectSuccess, msg.Subject)
	assert.Equal(t, "c1", msg.CallID)
	require.Len(t, msg.Operations, 3)
	assert.Equal(t, "#a", msg.Operations[0].Selector)
	assert.Equal(t, "#c", msg.Operations[1].Selector)
	assert.Equal(t, "#extra", msg.Operations[2].Selector)
	assert.Equal(t, "#extra", ops[0].Selector, "input is not reordered")
}

func TestStatusMessages(t *testing.T) {
	inv, err := protocol.DecodeInvocation([]byte(`{"target":"A#b","url":"/x","callId":"c2"}`))
	require.NoError(t, err)

	halted := Halted(inv)
	assert.Equal(t, protocol.SubjectHalted, halted.Subject)
	assert.Empty(t, halted.Operations)
	assert.Equal(t, "c2", halted.CallID)
	assert.JSONEq(t, `{"target":"A#b","url":"/x","callId":"c2"}`, string(halted.Data))

	failed := Failed(inv, "Reflex A#b failed: boom [/x]", "boom")
	assert.Equal(t, protocol.SubjectError, failed.Subject)
	assert.Equal(t, "boom", failed.Error)
	assert.Equal(t, "c2", failed.CallID)
	assert.Empty(t, failed.Operations)
}

func TestHubDelivers(t *testing.T) {
	hub := NewHub(nil)
	a, b, other := &recorder{}, &recorder{}, &recorder{}
	unsubA := hub.Subscribe("s1", a)
	hub.Subscribe("s1", b)
	hub.Subscribe("s2", other)
	assert.Equal(t, 2, hub.Subscribers("s1"))

	require.NoError(t, hub.Broadcast(context.Background(), "s1", &protocol.Message{Subject: protocol.SubjectHalted}))
	assert.Len(t, a.messages(), 1)
	assert.Len(t, b.messages(), 1)
	assert.Empty(t, other.messages())

	unsubA()
	unsubA()
	assert.Equal(t, 1, hub.Subscribers("s1"))
	assert.Equal(t, 1, hub.Deliver("s1", []byte(`{}`)))
	assert.Len(t, a.messages(), 1)
}

func TestHubSkipsFailingSubscriber(t *testing.T) {
	hub := NewHub(nil)
	ok, broken := &recorder{}, &recorder{fail: true}
	hub.Subscribe("s", ok)
	hub.Subscribe("s", broken)

	assert.Equal(t, 1, hub.Deliver("s", []byte(`{}`)))
	assert.Len(t, ok.messages(), 1)
}

func TestHubRemovesEmptyStream(t *testing.T) {
	hub := NewHub(nil)
	unsub := hub.Subscribe("s", &recorder{})
	unsub()

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	assert.NotContains(t, hub.streams, "s")
}

// TestRedisBroadcaster_Integration requires a running Redis on localhost.
func TestRedisBroadcaster_Integration(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("Skipping Redis integration test: redis not available")
	}

	hub := NewHub(nil)
	rec := &recorder{}
	hub.Subscribe("user-1", rec)

	b := NewRedisBroadcaster(client, hub, "reflex-test:", nil)
	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go b.Run(runCtx)

	require.Eventually(t, func() bool {
		_ = b.Broadcast(ctx, "user-1", &protocol.Message{Subject: protocol.SubjectHalted})
		return len(rec.messages()) > 0
	}, 3*time.Second, 100*time.Millisecond)

	msg, err := protocol.DecodeMessage(rec.messages()[0])
	require.NoError(t, err)
	assert.Equal(t, protocol.SubjectHalted, msg.Subject)
}
