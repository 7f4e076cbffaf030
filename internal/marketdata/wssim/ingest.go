// Package wssim is a WebSocket feed client. It connects to a JSON market data
// stream (a real vendor feed or cmd/feedsim), subscribes to symbols and
// forwards decoded bars, trades and quotes to a Sink.
//
// Frames are single objects or arrays of objects discriminated by "T":
//
//	{"T":"b","S":"AAPL","o":1,"h":2,"l":0.5,"c":1.5,"v":100,"vw":1.2,"t":"2026-01-05T14:31:00Z"}
//	{"T":"t","S":"AAPL","p":1.5,"s":10,"t":1767623460000}
//	{"T":"q","S":"AAPL","bp":1.49,"bs":5,"ap":1.51,"as":3,"t":"..."}
package wssim

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"trading-setups/internal/model"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
)

// Sink receives decoded market data. The setup engine satisfies it.
type Sink interface {
	ProcessBar(bar model.Bar)
	ProcessTrade(trade model.Trade)
	ProcessQuote(quote model.Quote)
}

// Config holds configuration for the feed client.
type Config struct {
	// URL of the feed WebSocket, e.g. "ws://localhost:9001/ws"
	URL string

	// Symbols sent in the subscribe message. Empty subscribes to everything.
	Symbols []string

	// ReconnectDelay is the initial delay before reconnection attempts.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration
}

func (c *Config) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

// Ingest streams a WebSocket feed into a Sink.
type Ingest struct {
	cfg  Config
	sink Sink

	// Optional hooks
	OnBar       func()
	OnConnect   func(connected bool)
	OnReconnect func()
}

// New creates a new Ingest. Returns an error if the URL is unparseable.
func New(cfg Config, sink Sink) (*Ingest, error) {
	cfg.defaults()
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("wssim: unsupported scheme %q", u.Scheme)
	}
	return &Ingest{cfg: cfg, sink: sink}, nil
}

// Start connects and streams into the sink.
// Blocks until ctx is cancelled. Reconnects automatically on disconnect.
func (ing *Ingest) Start(ctx context.Context) error {
	delay := ing.cfg.ReconnectDelay

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := ing.runOnce(ctx)
		if ing.OnConnect != nil {
			ing.OnConnect(false)
		}
		if err == nil {
			return nil
		}

		log.Printf("[wssim] disconnected (%v), reconnecting in %s...", err, delay)
		if ing.OnReconnect != nil {
			ing.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > ing.cfg.MaxReconnectDelay {
			delay = ing.cfg.MaxReconnectDelay
		}
	}
}

// runOnce makes a single connection attempt and reads until disconnect or ctx cancel.
func (ing *Ingest) runOnce(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, ing.cfg.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	log.Printf("[wssim] connected to %s", ing.cfg.URL)
	if ing.OnConnect != nil {
		ing.OnConnect(true)
	}

	if err := conn.WriteMessage(websocket.TextMessage, subscribeMessage(ing.cfg.Symbols)); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		msgs, err := Decode(raw)
		if err != nil {
			log.Printf("[wssim] parse error: %v (raw: %.200s)", err, raw)
			continue
		}
		for _, m := range msgs {
			ing.deliver(m)
		}
	}
}

func (ing *Ingest) deliver(m Message) {
	switch {
	case m.Bar != nil:
		ing.sink.ProcessBar(*m.Bar)
		if ing.OnBar != nil {
			ing.OnBar()
		}
	case m.Trade != nil:
		ing.sink.ProcessTrade(*m.Trade)
	case m.Quote != nil:
		ing.sink.ProcessQuote(*m.Quote)
	}
}

func subscribeMessage(symbols []string) []byte {
	upper := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			upper = append(upper, s)
		}
	}
	if len(upper) == 0 {
		upper = []string{"*"}
	}
	out, _ := json.Marshal(map[string]any{
		"action": "subscribe",
		"bars":   upper,
		"trades": upper,
		"quotes": upper,
	})
	return out
}

// Message is one decoded frame element. Exactly one field is set.
type Message struct {
	Bar   *model.Bar
	Trade *model.Trade
	Quote *model.Quote
}

// Decode parses a raw frame. Unknown message types (status, errors,
// subscription acks) are skipped; elements missing a symbol or timestamp
// are dropped with a log line.
func Decode(raw []byte) ([]Message, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("invalid json")
	}
	root := gjson.ParseBytes(raw)

	var elems []gjson.Result
	switch {
	case root.IsArray():
		elems = root.Array()
	case root.IsObject():
		elems = []gjson.Result{root}
	default:
		return nil, fmt.Errorf("unexpected frame type %s", root.Type)
	}

	out := make([]Message, 0, len(elems))
	for _, e := range elems {
		m, ok := decodeOne(e)
		if ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func decodeOne(e gjson.Result) (Message, bool) {
	kind := e.Get("T").String()
	if kind != "b" && kind != "t" && kind != "q" {
		return Message{}, false
	}

	sym := strings.ToUpper(e.Get("S").String())
	ts, ok := parseTime(e.Get("t"))
	if sym == "" || !ok {
		log.Printf("[wssim] dropping %s message without symbol/timestamp", kind)
		return Message{}, false
	}

	switch kind {
	case "b":
		bar := &model.Bar{
			Symbol:    sym,
			Timestamp: ts,
			Open:      e.Get("o").Float(),
			High:      e.Get("h").Float(),
			Low:       e.Get("l").Float(),
			Close:     e.Get("c").Float(),
			Volume:    e.Get("v").Float(),
			VWAP:      e.Get("vw").Float(),
		}
		if bar.Close <= 0 || bar.High < bar.Low {
			log.Printf("[wssim] dropping bar %s with invalid prices", sym)
			return Message{}, false
		}
		return Message{Bar: bar}, true
	case "t":
		tr := &model.Trade{
			Symbol:    sym,
			Timestamp: ts,
			Price:     e.Get("p").Float(),
			Size:      e.Get("s").Float(),
		}
		if tr.Price <= 0 {
			log.Printf("[wssim] dropping trade %s without price", sym)
			return Message{}, false
		}
		return Message{Trade: tr}, true
	default:
		q := &model.Quote{
			Symbol:    sym,
			Timestamp: ts,
			BidPrice:  e.Get("bp").Float(),
			BidSize:   e.Get("bs").Float(),
			AskPrice:  e.Get("ap").Float(),
			AskSize:   e.Get("as").Float(),
		}
		if q.BidPrice <= 0 && q.AskPrice <= 0 {
			log.Printf("[wssim] dropping quote %s without prices", sym)
			return Message{}, false
		}
		return Message{Quote: q}, true
	}
}

// parseTime accepts RFC3339 strings or Unix milliseconds.
func parseTime(v gjson.Result) (time.Time, bool) {
	switch v.Type {
	case gjson.String:
		ts, err := time.Parse(time.RFC3339Nano, v.String())
		if err != nil {
			return time.Time{}, false
		}
		return ts.UTC(), true
	case gjson.Number:
		return time.UnixMilli(v.Int()).UTC(), true
	default:
		return time.Time{}, false
	}
}
