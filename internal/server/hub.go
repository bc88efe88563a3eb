package server

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

const clientBuffer = 32

type message struct {
	typ  websocket.MessageType
	data []byte
}

// Client represents one accepted WebSocket connection.
type Client struct {
	ID         string
	RemoteAddr string

	// Chat name announced by the last join. Owned by the read loop.
	username string

	conn     *websocket.Conn
	outgoing chan message
	log      *zap.Logger
}

func newClient(conn *websocket.Conn, remoteAddr string, log *zap.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		ID:         id,
		RemoteAddr: remoteAddr,
		conn:       conn,
		outgoing:   make(chan message, clientBuffer),
		log:        log.With(zap.String("client", id), zap.String("remote", remoteAddr)),
	}
}

// enqueue queues a message without blocking. It reports false if the
// client's buffer is full.
func (c *Client) enqueue(msg message) bool {
	select {
	case c.outgoing <- msg:
		return true
	default:
		c.log.Warn("client channel full, skipping message")
		return false
	}
}

// Hub manages all connected clients and handles broadcast.
type Hub struct {
	clients map[*Client]bool
	mu      sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = true
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, client)
}

// ClientCount returns number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Clients returns a snapshot of the connected clients.
func (h *Hub) Clients() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	return clients
}

// Broadcast queues msg for every client except sender, which may be nil.
// It returns the number of clients the message was queued for.
func (h *Hub) Broadcast(msg message, sender *Client) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for client := range h.clients {
		if client == sender {
			continue
		}
		if client.enqueue(msg) {
			n++
		}
	}
	return n
}
