package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"trading-setups/internal/model"
)

func event(symbol, id string) model.Event {
	return model.Event{
		Type:  model.EventSetupDetected,
		Setup: model.Setup{ID: id, Symbol: symbol},
	}
}

func TestEmitter_BroadcastsToAll(t *testing.T) {
	e := New(10, 10)
	out1 := e.Subscribe("a")
	out2 := e.Subscribe("b")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	if !e.Publish(event("AAPL", "AAPL-1")) {
		t.Fatal("publish should succeed")
	}

	for name, ch := range map[string]<-chan model.Event{"a": out1, "b": out2} {
		select {
		case ev := <-ch:
			if ev.Setup.ID != "AAPL-1" {
				t.Errorf("%s: expected AAPL-1, got %s", name, ev.Setup.ID)
			}
			if ev.ID == "" {
				t.Errorf("%s: event id should be assigned", name)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s: timed out waiting for event", name)
		}
	}
}

func TestEmitter_InputFull_DropsWithoutBlocking(t *testing.T) {
	e := New(2, 1)
	var mu sync.Mutex
	drops := map[string]int{}
	e.OnDrop = func(name string) {
		mu.Lock()
		drops[name]++
		mu.Unlock()
	}

	// Run is not started, so the input queue fills.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			e.Publish(event("MSFT", "x"))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full queue")
	}

	if drops[InputQueue] != 3 || e.Dropped() != 3 {
		t.Fatalf("expected 3 input drops, got %v (total %d)", drops, e.Dropped())
	}
}

func TestEmitter_SlowSubscriber_DoesNotStallOthers(t *testing.T) {
	e := New(100, 2)
	slow := e.Subscribe("slow")
	fast := e.Subscribe("fast")
	var slowDrops int
	var mu sync.Mutex
	e.OnDrop = func(name string) {
		if name == "slow" {
			mu.Lock()
			slowDrops++
			mu.Unlock()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	got := 0
	for i := 0; i < 10; i++ {
		e.Publish(event("TSLA", "id"))
		select {
		case <-fast:
			got++
		case <-time.After(time.Second):
			t.Fatal("fast subscriber starved")
		}
	}
	if got != 10 {
		t.Fatalf("fast received %d, want 10", got)
	}
	if len(slow) != 2 {
		t.Fatalf("slow buffered %d, want 2", len(slow))
	}
	mu.Lock()
	defer mu.Unlock()
	if slowDrops != 8 {
		t.Fatalf("slow drops = %d, want 8", slowDrops)
	}
}

func TestEmitter_CloseDrainsAndClosesSubscribers(t *testing.T) {
	e := New(10, 10)
	out := e.Subscribe("a")
	e.Publish(event("AAPL", "1"))
	e.Publish(event("AAPL", "2"))
	e.Close()

	if e.Publish(event("AAPL", "3")) {
		t.Fatal("publish after close should fail")
	}

	e.Run(context.Background()) // returns once drained

	var ids []string
	for ev := range out {
		ids = append(ids, ev.Setup.ID)
	}
	if len(ids) != 2 || ids[0] != "1" || ids[1] != "2" {
		t.Fatalf("drained ids = %v, want [1 2]", ids)
	}
}

func TestEmitter_ChannelStats(t *testing.T) {
	e := New(4, 3)
	e.Subscribe("a")
	e.Publish(event("AAPL", "1"))
	stats := e.ChannelStats()
	if len(stats) != 2 || stats[0].Name != InputQueue || stats[0].Len != 1 || stats[0].Cap != 4 || stats[1].Cap != 3 {
		t.Fatalf("stats = %+v", stats)
	}
}
