// Package hub implements the topic broker that publishers and subscribers of
// the pipeline connect to.
package hub

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/obby/libretto/internal/metrics"
	"github.com/obby/libretto/internal/wire"
)

// Message is one routed frame, already encoded for the subscriber stream.
type Message struct {
	Topic string
	Data  []byte
}

// Client is a connected subscriber.
type Client struct {
	ID    string
	Topic string
	Send  chan Message
}

// Hub tracks subscribers and fans frames out to them by topic.
type Hub struct {
	clients    map[string]*Client
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	nextID     atomic.Uint64
	log        *slog.Logger
}

// NewHub creates a new hub.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		clients:    make(map[string]*Client),
		broadcast:  make(chan Message, 100),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log,
	}
}

// NewClient creates a client for topic.
func (h *Hub) NewClient(topic string) *Client {
	return &Client{
		ID:    fmt.Sprintf("sub-%d", h.nextID.Add(1)),
		Topic: topic,
		Send:  make(chan Message, 256),
	}
}

// Register registers a client. It reports false once the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister unregisters a client and closes its Send channel.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast routes a frame to every subscriber of its topic. It blocks while
// the hub is busy and reports false once the hub has stopped.
func (h *Hub) Broadcast(f wire.Frame) bool {
	msg := Message{Topic: f.Topic, Data: wire.Encode(f.Topic, f.Payload)}
	select {
	case h.broadcast <- msg:
		return true
	case <-h.done:
		return false
	}
}

// Run runs the hub's main loop until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			n := len(h.clients)
			h.mu.Unlock()
			metrics.BrokerSubscribers.Set(float64(n))
			h.log.Info("Subscriber registered", "id", client.ID, "topic", client.Topic, "total", n)

		case client := <-h.unregister:
			h.remove(client)

		case msg := <-h.broadcast:
			metrics.BrokerFrames.WithLabelValues(msg.Topic).Inc()
			var slow []*Client
			h.mu.RLock()
			for _, client := range h.clients {
				if client.Topic != msg.Topic {
					continue
				}
				select {
				case client.Send <- msg:
				default:
					slow = append(slow, client)
				}
			}
			h.mu.RUnlock()
			// Client buffer full, disconnect slow client
			for _, client := range slow {
				h.log.Warn("Disconnecting slow subscriber", "id", client.ID, "topic", client.Topic)
				h.remove(client)
			}

		case <-ctx.Done():
			h.shutdown()
			return
		}
	}
}

// ClientCount returns the number of active clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	_, exists := h.clients[client.ID]
	if exists {
		delete(h.clients, client.ID)
		close(client.Send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	if exists {
		metrics.BrokerSubscribers.Set(float64(n))
		h.log.Info("Subscriber unregistered", "id", client.ID, "total", n)
	}
}

// shutdown gracefully shuts down the hub
func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		close(client.Send)
	}
	h.clients = make(map[string]*Client)
	metrics.BrokerSubscribers.Set(0)
}
