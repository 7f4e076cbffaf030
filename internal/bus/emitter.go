// Package bus fans engine events out to downstream consumers.
//
// Publishing never blocks: the emitter sits between the per-symbol workers
// and slow consumers (webhooks, websocket clients, Redis), so every queue on
// the path is bounded and overflow is dropped and logged.
package bus

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"trading-setups/internal/model"
)

// InputQueue is the subscriber name reported when the shared input queue
// overflows.
const InputQueue = "input"

type subscriber struct {
	name string
	ch   chan model.Event
}

// Emitter broadcasts events from a bounded input queue to N named
// subscriber channels. If a subscriber channel is full, the event is dropped
// for that subscriber only.
type Emitter struct {
	in      chan model.Event
	bufSize int

	mu     sync.RWMutex
	subs   []subscriber
	closed bool

	dropped atomic.Uint64

	// OnDrop is called when an event is dropped, with the subscriber name
	// (or InputQueue when the publish queue itself is full).
	OnDrop func(subscriber string)
}

// New creates an emitter with the given input queue size and per-subscriber
// buffer size.
func New(queueSize, subscriberBuffer int) *Emitter {
	if queueSize < 1 {
		queueSize = 1
	}
	if subscriberBuffer < 1 {
		subscriberBuffer = 1
	}
	return &Emitter{
		in:      make(chan model.Event, queueSize),
		bufSize: subscriberBuffer,
	}
}

// Subscribe creates and returns a new output channel. Subscribe before Run;
// the channel is closed when Run returns.
func (e *Emitter) Subscribe(name string) <-chan model.Event {
	ch := make(chan model.Event, e.bufSize)
	e.mu.Lock()
	e.subs = append(e.subs, subscriber{name: name, ch: ch})
	e.mu.Unlock()
	return ch
}

// Publish queues ev for delivery. It never blocks; returns false if the event
// was dropped because the queue is full or the emitter is closed.
// Events without an ID get a random one.
func (e *Emitter) Publish(ev model.Event) bool {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return false
	}
	select {
	case e.in <- ev:
		return true
	default:
		e.drop(InputQueue, ev)
		return false
	}
}

// Close stops accepting events. Run delivers what is already queued and
// returns.
func (e *Emitter) Close() {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.in)
	}
	e.mu.Unlock()
}

// Run reads queued events and fans them out to all subscribers.
// Blocks until ctx is cancelled or the emitter is closed and drained.
func (e *Emitter) Run(ctx context.Context) {
	defer func() {
		e.mu.RLock()
		for _, s := range e.subs {
			close(s.ch)
		}
		e.mu.RUnlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-e.in:
			if !ok {
				return
			}
			e.fanOut(ev)
		}
	}
}

func (e *Emitter) fanOut(ev model.Event) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, s := range e.subs {
		select {
		case s.ch <- ev:
		default:
			e.drop(s.name, ev)
		}
	}
}

func (e *Emitter) drop(name string, ev model.Event) {
	e.dropped.Add(1)
	if e.OnDrop != nil {
		e.OnDrop(name)
	}
	log.Printf("[bus] %s queue full, dropping %s for %s (%s)", name, ev.Type, ev.Setup.Symbol, ev.Setup.ID)
}

// Dropped returns the total number of dropped deliveries.
func (e *Emitter) Dropped() uint64 {
	return e.dropped.Load()
}

// ChannelStat reports saturation of one queue.
type ChannelStat struct {
	Name string
	Len  int
	Cap  int
}

// ChannelStats returns (length, capacity) for the input queue followed by
// each subscriber channel.
func (e *Emitter) ChannelStats() []ChannelStat {
	e.mu.RLock()
	defer e.mu.RUnlock()
	stats := make([]ChannelStat, 0, len(e.subs)+1)
	stats = append(stats, ChannelStat{Name: InputQueue, Len: len(e.in), Cap: cap(e.in)})
	for _, s := range e.subs {
		stats = append(stats, ChannelStat{Name: s.name, Len: len(s.ch), Cap: cap(s.ch)})
	}
	return stats
}
