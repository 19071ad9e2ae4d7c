package pubsub

import (
	"context"
	"path"
	"sync"

	"github.com/lyzr/connected/common/logger"
)

type memorySubscription struct {
	pattern string
	ch      chan *Message
}

// Message represents a delivered message
type Message struct {
	Topic   string
	Payload []byte
}

// MemoryBroker is an in-process broker for single-node deployments and tests
type MemoryBroker struct {
	subs   map[*memorySubscription]struct{}
	mu     sync.RWMutex
	closed bool
	log    *logger.Logger
}

// NewMemoryBroker creates a new in-memory broker
func NewMemoryBroker(log *logger.Logger) *MemoryBroker {
	return &MemoryBroker{
		subs: make(map[*memorySubscription]struct{}),
		log:  log,
	}
}

// Publish delivers payload to every matching subscription without blocking.
// A subscription whose buffer is full misses the message.
func (b *MemoryBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil
	}

	msg := &Message{Topic: topic, Payload: payload}
	for sub := range b.subs {
		if ok, _ := path.Match(sub.pattern, topic); !ok {
			continue
		}
		select {
		case sub.ch <- msg:
		case <-ctx.Done():
			return ctx.Err()
		default:
			b.log.Warn("subscription buffer full, dropping message", "pattern", sub.pattern, "topic", topic)
		}
	}
	return nil
}

// Subscribe registers pattern and processes messages in a goroutine
func (b *MemoryBroker) Subscribe(ctx context.Context, pattern string, handler MessageHandler) error {
	if _, err := path.Match(pattern, ""); err != nil {
		return err
	}

	sub := &memorySubscription{
		pattern: pattern,
		ch:      make(chan *Message, 1000),
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	b.log.Info("subscribing to pattern", "pattern", pattern)

	go func() {
		defer func() {
			b.mu.Lock()
			delete(b.subs, sub)
			b.mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				b.log.Info("subscription cancelled", "pattern", pattern)
				return
			case msg, ok := <-sub.ch:
				if !ok {
					return
				}
				handler(ctx, msg.Topic, msg.Payload)
			}
		}
	}()

	return nil
}

// Close stops delivery to every subscription
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for sub := range b.subs {
		close(sub.ch)
		delete(b.subs, sub)
	}
	b.log.Info("memory broker closed")
	return nil
}
