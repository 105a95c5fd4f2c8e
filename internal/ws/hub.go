// Package ws implements the real-time fan-out channel. A Hub owns the
// set of connected clients and delivers every published record to each
// of them in publish order. There is no replay for records published
// before a client connected; a client may separately request a bounded
// history snapshot, answered once from the store.
package ws

import (
	"encoding/json"
	"log"
	"sync"

	"race-telemetry/internal/models"
)

// Event names on the wire.
const (
	EventTelemetryUpdate = "telemetry-update"
	EventRequestHistory  = "request-history"
	EventHistoryData     = "history-data"
	EventError           = "error"
)

// DefaultHistoryLimit applies when a history request omits the count.
const DefaultHistoryLimit = 50

// Envelope frames every message on the socket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// HistorySource answers point-in-time bounded history reads.
type HistorySource interface {
	Tail(limit int) ([]models.Row, error)
}

// Hub maintains the set of active clients and fans published records
// out to all of them.
type Hub struct {
	history HistorySource

	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a hub that serves history requests from src.
func NewHub(src HistorySource) *Hub {
	return &Hub{
		history:    src,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run processes registration, unregistration and broadcast until the
// process exits. Publishing with zero clients connected is a no-op;
// nothing is buffered for later delivery.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Printf("client connected: %s", client.ID)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			log.Printf("client disconnected: %s", client.ID)

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Client can't keep up; drop it rather than stall
					// the fan-out.
					log.Printf("client %s send buffer full, removing", client.ID)
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish delivers one just-ingested record to every connected client.
func (h *Hub) Publish(p models.Payload) {
	h.emit(EventTelemetryUpdate, p)
}

func (h *Hub) emit(event string, payload interface{}) {
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
	h.broadcast <- msg
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.register <- c
}

// ClientCount reports how many clients are currently connected.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
