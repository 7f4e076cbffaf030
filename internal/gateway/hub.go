// Package gateway exposes the engine over HTTP: REST queries, the status
// mutation endpoint and a websocket stream of setup events with replay.
package gateway

import (
	"context"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"trading-setups/internal/model"
)

// Hub tracks websocket clients and fans engine events out to them.
// Every envelope carries a global seq; recent envelopes are kept in a
// ReplayBuffer so reconnecting clients can resume with ?last_seq=N.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	seq     int64
	replay  *ReplayBuffer

	// OnClients is called with the client count after every change (optional).
	OnClients func(n int)
}

// NewHub creates a hub that keeps replaySize envelopes for backfill.
func NewHub(replaySize int) *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		replay:  NewReplayBuffer(replaySize),
	}
}

// Run broadcasts events from ch until ctx is cancelled or ch is closed,
// then disconnects every client.
func (h *Hub) Run(ctx context.Context, ch <-chan model.Event) {
	defer h.CloseAll()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			h.Broadcast(ev)
		}
	}
}

// Register attaches an upgraded connection. symbols filters the stream
// (empty means all); envelopes after lastSeq still in the replay buffer are
// queued before live traffic.
func (h *Hub) Register(conn *websocket.Conn, symbols []string, lastSeq int64) *Client {
	c := newClient(h, conn, symbols)

	h.mu.Lock()
	var backlog []replayEntry
	if lastSeq > 0 {
		backlog = h.replay.Since(lastSeq, c.matches)
	}
	c.send = make(chan []byte, len(backlog)+sendBuffer)
	for _, e := range backlog {
		c.send <- e.Data
	}
	h.clients[c] = true
	count := len(h.clients)
	h.mu.Unlock()

	log.Printf("[gateway] ws client %s connected (%d total, %d replayed)", c.id, count, len(backlog))
	h.notify(count)

	if conn != nil {
		go c.writePump()
		go c.readPump()
	}
	return c
}

// RemoveClient removes a client from the hub and closes its send channel.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	count := len(h.clients)
	h.mu.Unlock()
	h.notify(count)
}

// CloseAll disconnects every client.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	h.notify(0)
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Seq returns the seq of the last broadcast envelope.
func (h *Hub) Seq() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seq
}

func (h *Hub) notify(n int) {
	if h.OnClients != nil {
		h.OnClients(n)
	}
}

func newClientID() string { return uuid.NewString() }
