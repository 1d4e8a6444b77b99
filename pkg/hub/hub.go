package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-traffic/internal/log"
	"github.com/teslashibe/go-traffic/pkg/traffic"
)

// Hub fans messages out to websocket clients. All client set changes happen on
// the Run goroutine.
type Hub struct {
	logger *slog.Logger

	mu      sync.RWMutex // Guards clients for ClientCount
	clients map[*Client]struct{}

	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{} // Closed when Run returns

	running atomic.Bool
	stale   atomic.Uint64
}

// New creates a Hub. name tags its log lines.
func New(name string) *Hub {
	return &Hub{
		logger:     log.Component("hub").With("hub", name),
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan Message, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run delivers messages until ctx is canceled, then closes every client's send
// channel. A Hub runs once.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer h.stop()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.logger.Info("client connected", "clients", h.update(func() { h.clients[c] = struct{}{} }))
		case c := <-h.unregister:
			h.logger.Info("client disconnected", "clients", h.update(func() { h.drop(c) }))
		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if c.offer(msg) {
					h.stale.Add(1)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// update applies fn under the write lock and returns the new client count.
func (h *Hub) update(fn func()) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn()
	return len(h.clients)
}

// drop removes c and closes its channel. Callers hold mu.
func (h *Hub) drop(c *Client) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) stop() {
	h.running.Store(false)
	h.update(func() {
		for c := range h.clients {
			h.drop(c)
		}
	})
	close(h.done)
}

// Broadcast queues msg for every client. It never blocks; when the queue is
// full the message is dropped, and the next publish supersedes it anyway.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("broadcast queue full, dropping message")
	}
}

// BroadcastJSON encodes v and broadcasts it.
func (h *Hub) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(data)
	return nil
}

// PublishCounts broadcasts a lane count snapshot. It matches pipeline.OnPublish.
func (h *Hub) PublishCounts(snap traffic.Snapshot) {
	msg, err := NewCountsMessage(snap)
	if err != nil {
		h.logger.Error("encode counts", "err", err)
		return
	}
	h.Broadcast(msg)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Superseded returns how many queued messages slow clients skipped.
func (h *Hub) Superseded() uint64 {
	return h.stale.Load()
}

// IsRunning reports whether Run is active.
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}

// add registers c unless the hub has stopped.
func (h *Hub) add(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// remove unregisters c unless the hub has stopped.
func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
