package gateway

import (
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const sendBuffer = 256

// Client represents a single WebSocket peer.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	// Symbol filter; empty receives everything.
	mu      sync.RWMutex
	symbols map[string]bool
}

func newClient(h *Hub, conn *websocket.Conn, symbols []string) *Client {
	c := &Client{id: newClientID(), conn: conn, hub: h, symbols: make(map[string]bool)}
	c.subscribe(symbols)
	return c
}

// ID returns the client's connection id.
func (c *Client) ID() string { return c.id }

func (c *Client) matches(symbol string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.symbols) == 0 || c.symbols[symbol]
}

func (c *Client) subscribe(symbols []string) {
	c.mu.Lock()
	for _, s := range symbols {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			c.symbols[s] = true
		}
	}
	c.mu.Unlock()
}

func (c *Client) unsubscribe(symbols []string) {
	c.mu.Lock()
	for _, s := range symbols {
		delete(c.symbols, strings.ToUpper(strings.TrimSpace(s)))
	}
	c.mu.Unlock()
}

func (c *Client) subscribed() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.symbols))
	for s := range c.symbols {
		out = append(out, s)
	}
	return out
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))

			// Coalesce queued envelopes into one frame, newline separated.
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)
			n := len(c.send)
			for i := 0; i < n; i++ {
				next, ok := <-c.send
				if !ok {
					break
				}
				w.Write([]byte{'\n'})
				w.Write(next)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// controlMsg is the only inbound message shape.
type controlMsg struct {
	Type    string   `json:"type"` // SUBSCRIBE | UNSUBSCRIBE
	Symbols []string `json:"symbols"`
	Ping    int64    `json:"ping"`
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		log.Printf("[gateway] ws client %s disconnected", c.id)
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		var msg controlMsg
		if json.Unmarshal(raw, &msg) != nil {
			continue
		}

		switch msg.Type {
		case "SUBSCRIBE":
			c.subscribe(msg.Symbols)
			c.reply(map[string]interface{}{"type": "subscribed", "symbols": c.subscribed()})
		case "UNSUBSCRIBE":
			c.unsubscribe(msg.Symbols)
			c.reply(map[string]interface{}{"type": "subscribed", "symbols": c.subscribed()})
		default:
			if msg.Ping > 0 {
				c.reply(map[string]interface{}{
					"type":      "pong",
					"ping":      msg.Ping,
					"server_ts": time.Now().UnixMilli(),
				})
			}
		}
	}
}

// reply queues a control response. Runs under the hub read lock so it never
// races RemoveClient closing send.
func (c *Client) reply(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}
