package pubsub

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/lyzr/connected/common/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeTopics(t *testing.T) {
	assert.Equal(t, "transfers:user:alice", UserScope("alice").Topic())
	assert.Equal(t, "transfers:session:k-1", SessionScope("k-1").Topic())

	scope, err := ParseTopic("transfers:session:0190-abc")
	require.NoError(t, err)
	assert.Equal(t, SessionScope("0190-abc"), scope)

	// ids may themselves contain colons
	scope, err = ParseTopic("transfers:user:auth0:123")
	require.NoError(t, err)
	assert.Equal(t, UserScope("auth0:123"), scope)

	for _, bad := range []string{"", "transfers:user", "workflow:events:x", "transfers:group:x", "transfers:user:"} {
		_, err := ParseTopic(bad)
		assert.Error(t, err, bad)
	}
}

type collector struct {
	mu   sync.Mutex
	msgs []string
}

func (c *collector) handle(ctx context.Context, topic string, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, topic+"="+string(payload))
}

func (c *collector) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.msgs...)
}

func TestMemoryBroker_PatternDeliveryInOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker := NewMemoryBroker(logger.New("error", "text"))
	defer broker.Close()

	all := &collector{}
	sessions := &collector{}
	require.NoError(t, broker.Subscribe(ctx, AllTopics, all.handle))
	require.NoError(t, broker.Subscribe(ctx, "transfers:session:*", sessions.handle))

	for i := 0; i < 5; i++ {
		require.NoError(t, broker.Publish(ctx, SessionScope("K").Topic(), []byte(fmt.Sprint(i))))
	}
	require.NoError(t, broker.Publish(ctx, UserScope("bob").Topic(), []byte("u")))
	require.NoError(t, broker.Publish(ctx, "other:topic", []byte("ignored")))

	require.Eventually(t, func() bool {
		return len(all.snapshot()) == 6 && len(sessions.snapshot()) == 5
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{
		"transfers:session:K=0",
		"transfers:session:K=1",
		"transfers:session:K=2",
		"transfers:session:K=3",
		"transfers:session:K=4",
	}, sessions.snapshot())
	assert.Equal(t, "transfers:user:bob=u", all.snapshot()[5])
}

func TestMemoryBroker_CancelledSubscriptionStopsReceiving(t *testing.T) {
	broker := NewMemoryBroker(logger.New("error", "text"))
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := &collector{}
	require.NoError(t, broker.Subscribe(ctx, AllTopics, c.handle))
	cancel()

	require.Eventually(t, func() bool {
		broker.mu.RLock()
		defer broker.mu.RUnlock()
		return len(broker.subs) == 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, broker.Publish(context.Background(), UserScope("a").Topic(), []byte("x")))
	assert.Empty(t, c.snapshot())
}

func TestMemoryBroker_InvalidPattern(t *testing.T) {
	broker := NewMemoryBroker(logger.New("error", "text"))
	err := broker.Subscribe(context.Background(), "transfers:[", func(context.Context, string, []byte) {})
	assert.Error(t, err)
}

func TestMemoryBroker_PublishAfterClose(t *testing.T) {
	broker := NewMemoryBroker(logger.New("error", "text"))
	require.NoError(t, broker.Close())
	assert.NoError(t, broker.Publish(context.Background(), "transfers:user:a", []byte("x")))
	assert.NoError(t, broker.Close())
}
