// cmd/feedsim is a demo market data WebSocket server. It random-walks a set
// of symbols and streams trades, quotes and 1-minute bars in the frame format
// internal/marketdata/wssim decodes, so the engine can run without a vendor feed.
//
// Config (env vars):
//
//	FEEDSIM_ADDR      listen address (default ":9001")
//	FEEDSIM_SYMBOLS   comma-separated SYMBOL:PRICE pairs (default "AAPL:190,MSFT:410,SPY:520")
//	FEEDSIM_INTERVAL  trade interval (default 200ms)
//	FEEDSIM_SPEED     simulated clock multiplier; 60 turns a minute into a second (default 1)
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kelseyhightower/envconfig"
)

type simConfig struct {
	Addr     string        `envconfig:"ADDR" default:":9001"`
	Symbols  string        `envconfig:"SYMBOLS" default:"AAPL:190,MSFT:410,SPY:520"`
	Interval time.Duration `envconfig:"INTERVAL" default:"200ms"`
	Speed    float64       `envconfig:"SPEED" default:"1"`
}

// ─── Wire messages ────────────────────────────────────────────────────────────

type barMsg struct {
	T    string  `json:"T"`
	S    string  `json:"S"`
	O    float64 `json:"o"`
	H    float64 `json:"h"`
	L    float64 `json:"l"`
	C    float64 `json:"c"`
	V    float64 `json:"v"`
	VW   float64 `json:"vw"`
	Time string  `json:"t"`
}

type tradeMsg struct {
	T    string  `json:"T"`
	S    string  `json:"S"`
	P    float64 `json:"p"`
	Sz   float64 `json:"s"`
	Time int64   `json:"t"` // unix ms
}

type quoteMsg struct {
	T    string  `json:"T"`
	S    string  `json:"S"`
	BP   float64 `json:"bp"`
	BS   float64 `json:"bs"`
	AP   float64 `json:"ap"`
	AS   float64 `json:"as"`
	Time string  `json:"t"`
}

// instrument holds per-symbol simulation state and the bar being built.
type instrument struct {
	Symbol string
	Price  float64

	minute   int64
	o, h, l  float64
	c, v     float64
	notional float64
}

// ─── Hub ──────────────────────────────────────────────────────────────────────

type hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]chan []byte)}
}

func (h *hub) register(conn *websocket.Conn) chan []byte {
	ch := make(chan []byte, 256)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		close(ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

func (h *hub) broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.clients {
		select {
		case ch <- msg:
		default: // slow client
		}
	}
}

// ─── WebSocket handler ────────────────────────────────────────────────────────

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

func wsHandler(h *hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[feedsim] upgrade error: %v", err)
			return
		}
		log.Printf("[feedsim] client connected: %s", r.RemoteAddr)

		ch := h.register(conn)
		defer func() {
			h.unregister(conn)
			conn.Close()
			log.Printf("[feedsim] client disconnected: %s", r.RemoteAddr)
		}()

		// The subscribe message is acknowledged but every symbol is streamed.
		go func() {
			for {
				_, raw, err := conn.ReadMessage()
				if err != nil {
					conn.Close()
					return
				}
				log.Printf("[feedsim] client message: %.120s", raw)
			}
		}()

		for msg := range ch {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// ─── Generator ───────────────────────────────────────────────────────────────

// walkPrice applies a small random walk (±0.1%) to simulate price movement.
func walkPrice(rng *rand.Rand, price float64) float64 {
	pct := (rng.Float64()*0.2 - 0.1) / 100.0
	next := price * (1 + pct)
	if next < 0.01 {
		next = 0.01
	}
	return math.Round(next*100) / 100
}

func runGenerator(h *hub, instruments []*instrument, cfg simConfig) {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	start := time.Now().UTC()
	clock := func() time.Time {
		elapsed := time.Since(start)
		return start.Add(time.Duration(float64(elapsed) * cfg.Speed))
	}

	for range ticker.C {
		now := clock()
		minute := now.Unix() / 60
		var frame []any

		for _, in := range instruments {
			if in.minute != 0 && minute > in.minute && in.v > 0 {
				frame = append(frame, in.closeBar())
			}
			in.Price = walkPrice(rng, in.Price)
			size := float64(rng.Intn(100) + 1)
			in.add(minute, in.Price, size)

			frame = append(frame, tradeMsg{T: "t", S: in.Symbol, P: in.Price, Sz: size, Time: now.UnixMilli()})
			frame = append(frame, quoteMsg{
				T: "q", S: in.Symbol,
				BP: in.Price - 0.01, BS: float64(rng.Intn(10) + 1),
				AP: in.Price + 0.01, AS: float64(rng.Intn(10) + 1),
				Time: now.Format(time.RFC3339Nano),
			})
		}

		b, err := json.Marshal(frame)
		if err != nil {
			continue
		}
		h.broadcast(b)
	}
}

func (in *instrument) add(minute int64, price, size float64) {
	if minute != in.minute {
		in.minute = minute
		in.o, in.h, in.l = price, price, price
		in.v, in.notional = 0, 0
	}
	in.h = math.Max(in.h, price)
	in.l = math.Min(in.l, price)
	in.c = price
	in.v += size
	in.notional += price * size
}

func (in *instrument) closeBar() barMsg {
	bar := barMsg{
		T: "b", S: in.Symbol,
		O: in.o, H: in.h, L: in.l, C: in.c, V: in.v,
		VW:   math.Round(in.notional/in.v*10000) / 10000,
		Time: time.Unix(in.minute*60, 0).UTC().Format(time.RFC3339),
	}
	in.v = 0
	return bar
}

// ─── main ─────────────────────────────────────────────────────────────────────

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[feedsim] starting demo feed server...")

	var cfg simConfig
	if err := envconfig.Process("feedsim", &cfg); err != nil {
		log.Fatalf("[feedsim] config: %v", err)
	}
	if cfg.Speed <= 0 {
		cfg.Speed = 1
	}

	instruments := parseInstruments(cfg.Symbols)
	if len(instruments) == 0 {
		log.Fatalf("[feedsim] no instruments configured via FEEDSIM_SYMBOLS")
	}
	log.Printf("[feedsim] %d instruments, interval %s, speed %.0fx", len(instruments), cfg.Interval, cfg.Speed)

	h := newHub()
	go runGenerator(h, instruments, cfg)

	http.HandleFunc("/ws", wsHandler(h))
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"status":"ok","service":"feedsim"}`)
	})

	log.Printf("[feedsim] listening on %s  (WebSocket: ws://localhost%s/ws)", cfg.Addr, cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, nil); err != nil {
		log.Fatalf("[feedsim] server error: %v", err)
	}
}

// parseInstruments parses "SYM:PRICE,SYM:PRICE". A missing price starts at 100.
func parseInstruments(s string) []*instrument {
	var result []*instrument
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		seg := strings.SplitN(part, ":", 2)
		price := 100.0
		if len(seg) == 2 {
			p, err := strconv.ParseFloat(strings.TrimSpace(seg[1]), 64)
			if err != nil || p <= 0 {
				log.Printf("[feedsim] skipping invalid symbol spec: %q", part)
				continue
			}
			price = p
		}
		result = append(result, &instrument{
			Symbol: strings.ToUpper(strings.TrimSpace(seg[0])),
			Price:  price,
		})
	}
	return result
}
