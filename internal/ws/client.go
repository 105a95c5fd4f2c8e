package ws

import (
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second    // time allowed to write a message to the peer
	pongWait       = 60 * time.Second    // time allowed to read the next pong from the peer
	pingPeriod     = (pongWait * 9) / 10 // must be less than pongWait
	maxMessageSize = 1024                // inbound messages are small control frames
)

// Client is the middleman between one websocket connection and the hub.
type Client struct {
	ID   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// NewClient wraps an upgraded connection. The caller registers it with
// the hub and starts the pumps.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		ID:   uuid.NewString(),
		hub:  hub,
		conn: conn,
		send: make(chan []byte, 256),
	}
}

// ReadPump reads control messages from the peer until the connection
// drops. The only inbound message is request-history; anything else is
// ignored.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
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
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("client %s read error: %v", c.ID, err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			log.Printf("client %s sent malformed message: %v", c.ID, err)
			continue
		}
		if env.Type == EventRequestHistory {
			c.serveHistory(env.Payload)
		}
	}
}

// serveHistory answers one bounded history request from the store.
// This is a point-in-time read, independent of the live stream.
func (c *Client) serveHistory(payload json.RawMessage) {
	limit := DefaultHistoryLimit
	if len(payload) > 0 {
		var n int
		if err := json.Unmarshal(payload, &n); err == nil && n > 0 {
			limit = n
		}
	}

	rows, err := c.hub.history.Tail(limit)
	if err != nil {
		log.Printf("client %s history read failed: %v", c.ID, err)
		c.deliver(EventError, "failed to read historical data")
		return
	}

	c.deliver(EventHistoryData, rows)
}

// deliver queues one event for this client only.
func (c *Client) deliver(event string, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Printf("error marshalling %s payload: %v", event, err)
		return
	}
	msg, err := json.Marshal(Envelope{Type: event, Payload: raw})
	if err != nil {
		log.Printf("error marshalling %s envelope: %v", event, err)
		return
	}
	select {
	case c.send <- msg:
	default:
		log.Printf("client %s send buffer full, dropping %s", c.ID, event)
	}
}

// WritePump writes queued messages to the peer and keeps the
// connection alive with pings.
func (c *Client) WritePump() {
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
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("client %s write error: %v", c.ID, err)
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
