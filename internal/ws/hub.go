package ws

import (
	"log"
	"sync"

	"github.com/hfidelis/order-relay/internal/broker"
)

// Hub manages the lifecycle of WebSocket subscribers and fans every relayed
// order status event out to all of them. It is safe for concurrent use.
//
// Membership is the only shared mutable state: register, unregister and the
// snapshot taken during a broadcast pass are serialized through the hub's
// lock, while the per-subscriber hand-off happens on buffered channels so a
// slow fan-out never blocks new registrations.
type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	mu         sync.RWMutex
}

// NewHub allocates and initialises a Hub. Call Run() in a goroutine to start
// the event loop.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client, 16),
		unregister: make(chan *Client, 16),
		broadcast:  make(chan []byte, 256),
	}
}

// Run is the hub's main event loop. It must be executed in a dedicated
// goroutine. It stops when all channels are drained and the process exits.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			log.Printf("ws: client %s registered", client.ID)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(client.send)
			}
			h.mu.Unlock()
			log.Printf("ws: client %s unregistered", client.ID)

		case data := <-h.broadcast:
			h.mu.RLock()
			for _, client := range h.clients {
				select {
				case client.send <- data:
				default:
					// Slow consumer: drop the message to avoid blocking.
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast encodes the event once and enqueues it for delivery to every
// registered client. Delivery is best-effort: a client whose connection has
// failed is torn down by its pumps and simply misses later messages.
func (h *Hub) Broadcast(event broker.StatusEvent) {
	data, err := event.Encode()
	if err != nil {
		log.Printf("ws: failed to marshal event: %v", err)
		return
	}
	h.broadcast <- data
}

// Register enqueues a new client for addition to the hub. Registering the
// same client twice is a no-op (membership is keyed by client ID).
func (h *Hub) Register(c *Client) {
	h.register <- c
}

// Unregister enqueues a client for removal from the hub. Removing an absent
// client is a no-op.
func (h *Hub) Unregister(c *Client) {
	h.unregister <- c
}

// ClientCount reports the number of currently registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
