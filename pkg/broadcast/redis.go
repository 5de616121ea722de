package broadcast

import (
	"context"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/vango-dev/reflex/pkg/protocol"
)

// DefaultRedisPrefix is prepended to stream names to form Redis channels.
const DefaultRedisPrefix = "reflex:stream:"

// RedisBroadcaster publishes messages on Redis channels so that every node
// running Run delivers them to its local Hub.
type RedisBroadcaster struct {
	client redis.UniversalClient
	hub    *Hub
	prefix string
	logger *slog.Logger
}

// NewRedisBroadcaster creates a broadcaster publishing through client and
// delivering received messages to hub.
func NewRedisBroadcaster(client redis.UniversalClient, hub *Hub, prefix string, logger *slog.Logger) *RedisBroadcaster {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBroadcaster{
		client: client,
		hub:    hub,
		prefix: prefix,
		logger: logger.With("component", "redis-broadcaster"),
	}
}

// Broadcast publishes msg on the channel of stream.
func (b *RedisBroadcaster) Broadcast(ctx context.Context, stream string, msg *protocol.Message) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.prefix+stream, data).Err()
}

// Run subscribes to every stream channel and forwards messages to the hub
// until ctx is done.
func (b *RedisBroadcaster) Run(ctx context.Context) error {
	pubsub := b.client.PSubscribe(ctx, b.prefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			stream := strings.TrimPrefix(m.Channel, b.prefix)
			n := b.hub.Deliver(stream, []byte(m.Payload))
			b.logger.Debug("redis message delivered", "stream", stream, "subscribers", n)
		}
	}
}
