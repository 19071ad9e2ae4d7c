package pubsub

import (
	"context"
	"fmt"

	rediscommon "github.com/lyzr/connected/common/redis"
)

// RedisBroker fans events out through Redis PUBLISH / PSUBSCRIBE so that any
// API node can publish and any node can hold subscriber connections
type RedisBroker struct {
	client *rediscommon.Client
	logger rediscommon.Logger
}

// NewRedisBroker creates a broker on top of the shared redis client
func NewRedisBroker(client *rediscommon.Client, logger rediscommon.Logger) *RedisBroker {
	return &RedisBroker{client: client, logger: logger}
}

func (b *RedisBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	return b.client.PublishEvent(ctx, topic, string(payload))
}

// Subscribe waits for the subscription to be confirmed before returning
func (b *RedisBroker) Subscribe(ctx context.Context, pattern string, handler MessageHandler) error {
	ps := b.client.GetUnderlying().PSubscribe(ctx, pattern)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", pattern, err)
	}

	b.logger.Info("redis subscription confirmed", "pattern", pattern)

	go func() {
		defer ps.Close()
		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				b.logger.Info("redis subscriber stopping", "pattern", pattern)
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if msg == nil {
					continue
				}
				handler(ctx, msg.Channel, []byte(msg.Payload))
			}
		}
	}()

	return nil
}

// Close is a no-op; the redis client is owned by bootstrap
func (b *RedisBroker) Close() error {
	return nil
}
