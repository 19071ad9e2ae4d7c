package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/lyzr/connected/common/logger"
	"github.com/lyzr/connected/common/presence"
	"github.com/lyzr/connected/common/pubsub"
)

// DefaultSendBuffer is the per-connection outbound queue length
const DefaultSendBuffer = 256

// Hub maintains active subscriber connections and routes broker messages to them
type Hub struct {
	// topic -> clients subscribed to it
	topics map[string]map[*Client]struct{}

	// subscriber id -> its one active client
	subscribers map[string]*Client
	mutex       sync.RWMutex

	broker     pubsub.Broker
	presence   presence.Tracker
	sendBuffer int
	log        *logger.Logger
}

// NewHub creates a new Hub instance
func NewHub(broker pubsub.Broker, tracker presence.Tracker, sendBuffer int, log *logger.Logger) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = DefaultSendBuffer
	}
	return &Hub{
		topics:      make(map[string]map[*Client]struct{}),
		subscribers: make(map[string]*Client),
		broker:      broker,
		presence:    tracker,
		sendBuffer:  sendBuffer,
		log:         log,
	}
}

// Run subscribes to every transfer topic until ctx is done
func (h *Hub) Run(ctx context.Context) error {
	if err := h.broker.Subscribe(ctx, pubsub.AllTopics, h.dispatch); err != nil {
		return err
	}
	h.log.Info("hub started", "pattern", pubsub.AllTopics)
	return nil
}

// dispatch forwards one broker message to every client on its topic.
// Sends happen under the read lock so no send channel is closed mid-send.
func (h *Hub) dispatch(ctx context.Context, topic string, payload []byte) {
	var full []*Client

	h.mutex.RLock()
	clients := h.topics[topic]
	if len(clients) > 0 {
		h.log.Debug("dispatching event", "topic", topic, "client_count", len(clients), "bytes", len(payload))
	}
	for c := range clients {
		select {
		case c.send <- payload:
		default:
			full = append(full, c)
		}
	}
	h.mutex.RUnlock()

	for _, c := range full {
		h.log.Warn("client send buffer full, closing connection", "subscriber_id", c.subscriberID, "topic", topic)
		h.unregister(c)
	}
}

// register adds c, replacing any earlier subscription held by the same subscriber
func (h *Hub) register(c *Client) {
	h.mutex.Lock()
	previous := h.subscribers[c.subscriberID]
	if previous != nil {
		h.removeLocked(previous)
	}
	h.subscribers[c.subscriberID] = c
	topic := c.scope.Topic()
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[*Client]struct{})
	}
	h.topics[topic][c] = struct{}{}
	total := len(h.topics[topic])
	h.mutex.Unlock()

	if previous != nil {
		h.log.Info("subscription replaced", "subscriber_id", c.subscriberID, "old_scope", previous.scope.String(), "new_scope", c.scope.String())
		if previous.scope != c.scope {
			h.withdraw(previous)
		}
	}

	h.log.Info("client registered", "subscriber_id", c.subscriberID, "scope", c.scope.String(), "total_for_scope", total)
	h.announce(c, nil)
}

// unregister removes c if it is still registered; safe to call repeatedly
func (h *Hub) unregister(c *Client) {
	h.mutex.Lock()
	removed := h.removeLocked(c)
	h.mutex.Unlock()

	if removed {
		h.log.Info("client unregistered", "subscriber_id", c.subscriberID, "scope", c.scope.String())
		h.withdraw(c)
	}
}

func (h *Hub) removeLocked(c *Client) bool {
	if c.closed {
		return false
	}
	c.closed = true
	close(c.send)

	if h.subscribers[c.subscriberID] == c {
		delete(h.subscribers, c.subscriberID)
	}
	topic := c.scope.Topic()
	delete(h.topics[topic], c)
	if len(h.topics[topic]) == 0 {
		delete(h.topics, topic)
	}
	return true
}

// announce records liveness for c and pushes the scope's snapshot to local clients
func (h *Hub) announce(c *Client, info map[string]any) {
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()

	if err := h.presence.Announce(ctx, c.scope, c.subscriberID, info); err != nil {
		h.log.Warn("presence announce failed", "subscriber_id", c.subscriberID, "error", err)
		return
	}
	h.broadcastPresence(ctx, c.scope)
}

func (h *Hub) withdraw(c *Client) {
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()

	if err := h.presence.Withdraw(ctx, c.scope, c.subscriberID); err != nil {
		h.log.Warn("presence withdraw failed", "subscriber_id", c.subscriberID, "error", err)
		return
	}
	h.broadcastPresence(ctx, c.scope)
}

func (h *Hub) broadcastPresence(ctx context.Context, scope pubsub.Scope) {
	snapshot, err := h.presence.Snapshot(ctx, scope)
	if err != nil {
		h.log.Warn("presence snapshot failed", "scope", scope.String(), "error", err)
		return
	}
	frame, err := json.Marshal(snapshot)
	if err != nil {
		return
	}
	h.dispatch(ctx, scope.Topic(), frame)
}

// GetConnectionCount returns the total number of active connections
func (h *Hub) GetConnectionCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	return len(h.subscribers)
}

// GetScopeCount returns the number of scopes with at least one connection
func (h *Hub) GetScopeCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	return len(h.topics)
}
