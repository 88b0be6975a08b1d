package notifications

import (
	"context"
	"errors"
	"log"
	"sync"

	"murmur/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	// Max total connections
	maxTotalConns = 10000
)

// FeedHub fans feed events out to every connected subscriber. There is no
// per-topic routing: the public feed is one stream.
type FeedHub struct {
	mu       sync.RWMutex
	conns    map[*Client]struct{}
	shutdown chan struct{}
	done     chan struct{}
}

// NewFeedHub creates a new FeedHub instance.
func NewFeedHub() *FeedHub {
	return &FeedHub{
		conns:    make(map[*Client]struct{}),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Name returns a human-readable identifier for this hub.
func (h *FeedHub) Name() string { return "feed hub" }

// Register adds a connection as a feed subscriber. Returns the Client or an
// error if the connection limit is reached.
func (h *FeedHub) Register(subjectID string, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.conns) >= maxTotalConns {
		return nil, errors.New("server connection limit reached")
	}

	client := NewClient(h, conn, subjectID)
	h.conns[client] = struct{}{}
	observability.WebSocketConnectionsTotal.Inc()
	observability.WebSocketEventsTotal.WithLabelValues("subscribe").Inc()

	return client, nil
}

// UnregisterClient removes a subscriber.
func (h *FeedHub) UnregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[client]; ok {
		delete(h.conns, client)
		observability.WebSocketConnectionsTotal.Dec()
		observability.WebSocketEventsTotal.WithLabelValues("unsubscribe").Inc()
	}
}

// BroadcastAll sends message to every connected subscriber.
func (h *FeedHub) BroadcastAll(message string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	data := []byte(message)
	for c := range h.conns {
		c.TrySend(data)
	}
}

// Count returns the number of connected subscribers.
func (h *FeedHub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// StartWiring connects the Notifier to this hub: feed events arriving over
// Redis are forwarded to every subscriber.
func (h *FeedHub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartFeedSubscriber(ctx, func(payload string) {
		observability.WebSocketEventsTotal.WithLabelValues("broadcast").Inc()
		h.BroadcastAll(payload)
	})
}

// Shutdown gracefully closes all websocket connections
func (h *FeedHub) Shutdown(_ context.Context) error {
	close(h.shutdown)

	h.mu.Lock()
	for client := range h.conns {
		if client.Conn == nil {
			continue
		}
		if err := client.Conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down")); err != nil {
			log.Printf("failed to write close message: %v", err)
		}
		if err := client.Conn.Close(); err != nil {
			log.Printf("failed to close websocket: %v", err)
		}
	}
	h.conns = make(map[*Client]struct{})
	h.mu.Unlock()

	close(h.done)

	return nil
}
