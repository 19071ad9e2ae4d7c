package realtime

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/lyzr/connected/common/pubsub"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 30 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 25 * time.Second

	// Maximum frame size from peer; presence heartbeats carry a small info object
	maxMessageSize = 4096
)

// Client is one subscriber connection bound to a single scope
type Client struct {
	hub          *Hub
	conn         *websocket.Conn
	scope        pubsub.Scope
	subscriberID string
	send         chan []byte

	// guarded by hub.mutex
	closed bool
}

// Attach registers conn as the subscriber's only subscription and starts its pumps.
// An earlier connection under the same subscriber id is closed first.
func (h *Hub) Attach(conn *websocket.Conn, scope pubsub.Scope, subscriberID string) *Client {
	c := &Client{
		hub:          h,
		conn:         conn,
		scope:        scope,
		subscriberID: subscriberID,
		send:         make(chan []byte, h.sendBuffer),
	}
	// register before the pumps so an immediate disconnect unregisters cleanly
	h.register(c)

	go c.writePump()
	go c.readPump()
	return c
}

// readPump handles pongs, presence heartbeats and disconnects
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn("websocket error", "subscriber_id", c.subscriberID, "error", err)
			}
			break
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		frame := gjson.ParseBytes(message)
		switch frame.Get("type").String() {
		case "presence":
			var info map[string]any
			if v, ok := frame.Get("info").Value().(map[string]interface{}); ok {
				info = v
			}
			c.hub.announce(c, info)
		case "ping":
		default:
			c.hub.log.Debug("ignoring client frame", "subscriber_id", c.subscriberID, "bytes", len(message))
		}
	}
}

// writePump pumps frames from the hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// one JSON object per frame
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
