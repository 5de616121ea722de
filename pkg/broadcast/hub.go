package broadcast

import (
	"context"
	"log/slog"
	"sync"

	"github.com/vango-dev/reflex/pkg/protocol"
)

// Subscriber receives encoded messages for its stream.
type Subscriber interface {
	Send(data []byte) error
}

// Hub fans messages out to the subscribers of each stream in this process.
type Hub struct {
	mu      sync.RWMutex
	streams map[string]map[Subscriber]struct{}
	logger  *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		streams: make(map[string]map[Subscriber]struct{}),
		logger:  logger.With("component", "hub"),
	}
}

// Subscribe adds sub to stream and returns the function that removes it.
func (h *Hub) Subscribe(stream string, sub Subscriber) (unsubscribe func()) {
	h.mu.Lock()
	subs, ok := h.streams[stream]
	if !ok {
		subs = make(map[Subscriber]struct{})
		h.streams[stream] = subs
	}
	subs[sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if subs, ok := h.streams[stream]; ok {
				delete(subs, sub)
				if len(subs) == 0 {
					delete(h.streams, stream)
				}
			}
		})
	}
}

// Subscribers returns the number of subscribers of stream.
func (h *Hub) Subscribers(stream string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.streams[stream])
}

// Broadcast encodes msg once and delivers it to the subscribers of stream.
func (h *Hub) Broadcast(_ context.Context, stream string, msg *protocol.Message) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	h.Deliver(stream, data)
	return nil
}

// Deliver sends an encoded message to the subscribers of stream. Send
// failures are logged and do not stop delivery to the others.
func (h *Hub) Deliver(stream string, data []byte) int {
	h.mu.RLock()
	subs := make([]Subscriber, 0, len(h.streams[stream]))
	for sub := range h.streams[stream] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, sub := range subs {
		if err := sub.Send(data); err != nil {
			h.logger.Debug("deliver failed", "stream", stream, "error", err)
			continue
		}
		delivered++
	}
	return delivered
}
