// Package redis publishes setup events to Redis: PUBLISH for live
// subscribers, SET of the latest setup state and XADD to a trimmed stream.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"trading-setups/internal/breaker"
	"trading-setups/internal/model"
)

const (
	// StreamKey is the event stream every setup event is appended to.
	StreamKey = "stream:setups"

	defaultLatestTTL    = 24 * time.Hour
	defaultStreamMaxLen = 10000
	defaultMaxPending   = 10000
)

// Config configures the Redis publisher.
type Config struct {
	Addr         string // Redis address, e.g. "localhost:6379"
	Password     string
	DB           int
	LatestTTL    time.Duration // TTL of setup:latest:{id}
	StreamMaxLen int64         // approximate MAXLEN of StreamKey

	BreakerFailures int           // consecutive failures before buffering
	BreakerCooldown time.Duration // time before a trial write
	MaxPending      int           // buffered events kept while the breaker is open
}

func (c *Config) applyDefaults() {
	if c.LatestTTL <= 0 {
		c.LatestTTL = defaultLatestTTL
	}
	if c.StreamMaxLen <= 0 {
		c.StreamMaxLen = defaultStreamMaxLen
	}
	if c.BreakerFailures <= 0 {
		c.BreakerFailures = 5
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = 10 * time.Second
	}
	if c.MaxPending <= 0 {
		c.MaxPending = defaultMaxPending
	}
}

// LatestKey returns the key holding the latest state of a setup.
func LatestKey(id string) string {
	return "setup:latest:" + id
}

// New creates a Publisher and pings the server.
func New(cfg Config) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return NewWithClient(client, cfg), nil
}

// NewWithClient wraps an existing client without pinging it.
func NewWithClient(client *goredis.Client, cfg Config) *Publisher {
	cfg.applyDefaults()
	return &Publisher{
		client:  client,
		cfg:     cfg,
		cb:      breaker.New(cfg.BreakerFailures, cfg.BreakerCooldown),
		pending: make([]model.Event, 0, 64),
	}
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// Breaker exposes the circuit breaker so callers can observe transitions.
func (p *Publisher) Breaker() *breaker.Breaker { return p.cb }

// Run reads events from ch and writes them to Redis.
// Blocks until ctx is cancelled or ch is closed.
func (p *Publisher) Run(ctx context.Context, ch <-chan model.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := p.Write(ctx, ev); err != nil {
				log.Printf("[redis] publish %s %s: %v", ev.Type, ev.Setup.ID, err)
			}
		}
	}
}

// Write publishes one event through the circuit breaker. While the breaker
// is open the event is buffered and flushed after the next successful write.
func (p *Publisher) Write(ctx context.Context, ev model.Event) error {
	err := p.cb.Execute(func() error { return p.writeEvent(ctx, ev) })
	if errors.Is(err, breaker.ErrOpen) {
		p.buffer(ev)
		return nil
	}
	if err != nil {
		if p.OnError != nil {
			p.OnError()
		}
		p.buffer(ev)
		return err
	}
	p.flush(ctx)
	return nil
}

// writeEvent performs the pipelined PUBLISH + SET + XADD for one event.
func (p *Publisher) writeEvent(ctx context.Context, ev model.Event) error {
	start := time.Now()
	payload := string(ev.JSON())
	setup, err := json.Marshal(ev.Setup)
	if err != nil {
		return fmt.Errorf("marshal setup: %w", err)
	}

	pipe := p.client.Pipeline()
	pipe.Publish(ctx, ev.Channel(), payload)
	pipe.Set(ctx, LatestKey(ev.Setup.ID), string(setup), p.cfg.LatestTTL)
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: StreamKey,
		MaxLen: p.cfg.StreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"event":  string(ev.Type),
			"symbol": ev.Setup.Symbol,
			"data":   payload,
		},
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	if p.OnPublish != nil {
		p.OnPublish(time.Since(start))
	}
	return nil
}

// Latest reads the latest stored state of a setup.
func (p *Publisher) Latest(ctx context.Context, id string) (model.Setup, error) {
	var s model.Setup
	data, err := p.client.Get(ctx, LatestKey(id)).Bytes()
	if err != nil {
		return s, err
	}
	err = json.Unmarshal(data, &s)
	return s, err
}

// Recent returns up to n events from the stream, newest first.
func (p *Publisher) Recent(ctx context.Context, n int64) ([]model.Event, error) {
	msgs, err := p.client.XRevRangeN(ctx, StreamKey, "+", "-", n).Result()
	if err != nil {
		return nil, err
	}
	out := make([]model.Event, 0, len(msgs))
	for _, m := range msgs {
		raw, ok := m.Values["data"].(string)
		if !ok {
			continue
		}
		var ev model.Event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			log.Printf("[redis] skip malformed stream entry %s: %v", m.ID, err)
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

// Close closes the Redis client. Buffered events still pending are lost.
func (p *Publisher) Close() error {
	if n := p.PendingCount(); n > 0 {
		log.Printf("[redis] closing with %d unpublished events", n)
	}
	return p.client.Close()
}
