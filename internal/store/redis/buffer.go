package redis

import (
	"context"
	"log"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"trading-setups/internal/breaker"
	"trading-setups/internal/model"
)

// Publisher writes events to Redis. Failed or rejected writes are held in a
// bounded buffer (oldest dropped first) and replayed in order once Redis
// accepts a write again.
type Publisher struct {
	client *goredis.Client
	cfg    Config
	cb     *breaker.Breaker

	mu       sync.Mutex
	pending  []model.Event
	flushing bool

	// Callbacks (optional)
	OnPublish func(took time.Duration) // after a successful pipeline
	OnError   func()                   // a pipeline failed
	OnBuffer  func()                   // an event was buffered
	OnFlush   func(count int)          // buffered events were replayed
}

func (p *Publisher) buffer(ev model.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.pending) >= p.cfg.MaxPending {
		dropped := p.pending[0]
		p.pending = p.pending[1:]
		log.Printf("[redis] buffer full, dropping %s for %s", dropped.Type, dropped.Setup.ID)
	}
	p.pending = append(p.pending, ev)

	if p.OnBuffer != nil {
		p.OnBuffer()
	}
}

// flush replays buffered events. Events that fail again go back to the
// front of the buffer and the flush stops.
func (p *Publisher) flush(ctx context.Context) {
	p.mu.Lock()
	if len(p.pending) == 0 || p.flushing {
		p.mu.Unlock()
		return
	}
	toFlush := p.pending
	p.pending = make([]model.Event, 0, 64)
	p.flushing = true
	p.mu.Unlock()

	flushed := 0
	for i, ev := range toFlush {
		if err := p.writeEvent(ctx, ev); err != nil {
			p.mu.Lock()
			p.pending = append(toFlush[i:len(toFlush):len(toFlush)], p.pending...)
			p.mu.Unlock()
			log.Printf("[redis] flush stopped after %d events: %v", flushed, err)
			break
		}
		flushed++
	}

	p.mu.Lock()
	p.flushing = false
	p.mu.Unlock()

	if flushed > 0 {
		log.Printf("[redis] flushed %d buffered events", flushed)
		if p.OnFlush != nil {
			p.OnFlush(flushed)
		}
	}
}

// PendingCount returns the number of buffered events waiting to be flushed.
func (p *Publisher) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}
