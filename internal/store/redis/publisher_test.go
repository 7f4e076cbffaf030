package redis

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"trading-setups/internal/breaker"
	"trading-setups/internal/model"
)

func testEvent(id string) model.Event {
	return model.Event{
		ID:   "ev-" + id,
		Type: model.EventSetupDetected,
		Setup: model.Setup{
			ID:         id,
			Symbol:     "AAPL",
			Type:       model.SetupEMABounce,
			Direction:  model.Long,
			Status:     model.StatusForming,
			EntryPrice: 100,
			StopLoss:   99,
			Targets:    []float64{101, 102},
		},
		Timestamp: time.Date(2026, 1, 5, 15, 0, 0, 0, time.UTC),
	}
}

// unreachable returns a client pointed at a closed port so every pipeline
// fails fast.
func unreachable(t *testing.T) *goredis.Client {
	t.Helper()
	c := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { c.Close() })
	return c
}

func TestLatestKey(t *testing.T) {
	if got := LatestKey("AAPL-3"); got != "setup:latest:AAPL-3" {
		t.Errorf("LatestKey = %s", got)
	}
}

func TestPublisher_BuffersWhileRedisDown(t *testing.T) {
	p := NewWithClient(unreachable(t), Config{BreakerFailures: 1, BreakerCooldown: time.Hour, MaxPending: 2})
	ctx := context.Background()

	errs := 0
	p.OnError = func() { errs++ }

	if err := p.Write(ctx, testEvent("AAPL-1")); err == nil {
		t.Fatal("expected first write to fail")
	}
	if p.Breaker().State() != breaker.StateOpen {
		t.Fatalf("breaker = %v, want open", p.Breaker().State())
	}
	// Breaker open: buffered without touching the network.
	if err := p.Write(ctx, testEvent("AAPL-2")); err != nil {
		t.Fatalf("buffered write returned %v", err)
	}
	if err := p.Write(ctx, testEvent("AAPL-3")); err != nil {
		t.Fatal(err)
	}

	if errs != 1 {
		t.Errorf("errors = %d, want 1", errs)
	}
	if n := p.PendingCount(); n != 2 {
		t.Fatalf("pending = %d, want 2 (bounded)", n)
	}
	p.mu.Lock()
	first := p.pending[0].Setup.ID
	p.mu.Unlock()
	if first != "AAPL-2" {
		t.Errorf("oldest pending = %s, want AAPL-2 (AAPL-1 dropped)", first)
	}
}

func TestConfig_Defaults(t *testing.T) {
	var c Config
	c.applyDefaults()
	if c.LatestTTL != 24*time.Hour || c.StreamMaxLen != 10000 || c.MaxPending != 10000 {
		t.Errorf("defaults = %+v", c)
	}
}

// TestPublisher_Integration runs against a real server when REDIS_ADDR is set.
func TestPublisher_Integration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	p, err := New(Config{Addr: addr, LatestTTL: time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	ctx := context.Background()
	ev := testEvent("ITEST-1")
	if err := p.Write(ctx, ev); err != nil {
		t.Fatal(err)
	}
	got, err := p.Latest(ctx, "ITEST-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.EntryPrice != 100 || len(got.Targets) != 2 {
		t.Errorf("latest = %+v", got)
	}
	recent, err := p.Recent(ctx, 1)
	if err != nil || len(recent) != 1 || recent[0].Setup.ID != "ITEST-1" {
		t.Errorf("recent = %+v err=%v", recent, err)
	}
}
