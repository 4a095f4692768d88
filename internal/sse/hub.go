package sse

import (
	"encoding/json"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Client is a single connected SSE client: a channel the hub pushes
// serialized events into.
type Client chan []byte

// Event is the envelope pushed to UI clients.
type Event struct {
	Type   string      `json:"type"`
	Camera string      `json:"camera,omitempty"`
	Data   interface{} `json:"data,omitempty"`
}

// Hub manages the set of active clients and broadcasts events to them.
type Hub struct {
	clients    map[Client]bool
	broadcast  chan []byte
	register   chan Client
	unregister chan Client
	done       chan struct{}
	mu         sync.Mutex
}

// NewHub creates a new Hub instance.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan []byte, 64),
		register:   make(chan Client),
		unregister: make(chan Client),
		clients:    make(map[Client]bool),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's processing loop. It should be run in its own
// goroutine and exits when Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client)
			}
			h.mu.Unlock()
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Debugf("SSE client registered, total: %d", h.clientCount())
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client)
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				// Never block on a slow client; it just misses
				// this update and catches up on the next one.
				select {
				case client <- message:
				default:
				}
			}
			h.mu.Unlock()
		}
	}
}

// Stop shuts the hub down and closes all client channels.
func (h *Hub) Stop() {
	close(h.done)
}

func (h *Hub) clientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Register adds a new client to the hub.
func (h *Hub) Register(client Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Publish serializes an event and broadcasts it to all clients. Events
// are dropped rather than blocking the caller when the hub is saturated.
func (h *Hub) Publish(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Errorf("Failed to marshal SSE event: %v", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		log.Debug("SSE broadcast channel full, event dropped")
	}
}
