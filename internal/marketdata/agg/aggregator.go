// Package agg builds 1-minute bars from trades for feeds that publish trades
// but no bars.
package agg

import (
	"context"
	"log"
	"sync"
	"time"

	"trading-setups/internal/model"
)

// barState holds the in-progress bar for one symbol in the current minute.
type barState struct {
	bucket   int64 // Unix minute of this bucket
	bar      model.Bar
	notional float64 // sum(price*size) for VWAP
}

// Aggregator builds 1-minute OHLCV bars from a stream of trades.
// A bar is emitted when a later minute's trade arrives for its symbol, or
// once its minute plus Grace has passed on the wall clock.
type Aggregator struct {
	mu      sync.Mutex
	states  map[string]*barState
	emitted map[string]int64 // last emitted bucket per symbol

	// Grace is how long after a minute ends late trades are still accepted.
	Grace time.Duration

	flushInterval time.Duration
	now           func() time.Time

	// Metrics hooks (optional, set externally)
	OnDroppedTrade func()
}

// New creates a new Aggregator.
func New() *Aggregator {
	return &Aggregator{
		states:        make(map[string]*barState),
		emitted:       make(map[string]int64),
		Grace:         2 * time.Second,
		flushInterval: 250 * time.Millisecond,
		now:           time.Now,
	}
}

// Run consumes trades from tradeCh and sends finalized bars to barCh.
// Blocks until ctx is cancelled or tradeCh is closed; open bars are flushed
// on exit.
func (a *Aggregator) Run(ctx context.Context, tradeCh <-chan model.Trade, barCh chan<- model.Bar) {
	ticker := time.NewTicker(a.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.flushAll(barCh)
			return

		case tr, ok := <-tradeCh:
			if !ok {
				a.flushAll(barCh)
				return
			}
			a.Add(tr, barCh)

		case <-ticker.C:
			a.flushOld(barCh)
		}
	}
}

// Add incorporates one trade, emitting the symbol's previous bar if the
// trade opens a new minute. Trades for an already emitted minute are dropped.
func (a *Aggregator) Add(tr model.Trade, barCh chan<- model.Bar) {
	if tr.Symbol == "" || tr.Price <= 0 {
		return
	}
	bucket := tr.Timestamp.Unix() / 60

	a.mu.Lock()
	state, exists := a.states[tr.Symbol]
	last, seen := a.emitted[tr.Symbol]

	if (exists && bucket < state.bucket) || (seen && bucket <= last) {
		dropped := a.OnDroppedTrade
		a.mu.Unlock()
		if dropped != nil {
			dropped()
		}
		return
	}
	defer a.mu.Unlock()

	if exists && bucket > state.bucket {
		a.emit(state, barCh)
		exists = false
	}

	if !exists {
		a.states[tr.Symbol] = &barState{
			bucket: bucket,
			bar: model.Bar{
				Symbol:    tr.Symbol,
				Timestamp: time.Unix(bucket*60, 0).UTC(),
				Open:      tr.Price,
				High:      tr.Price,
				Low:       tr.Price,
				Close:     tr.Price,
				Volume:    tr.Size,
			},
			notional: tr.Price * tr.Size,
		}
		return
	}

	b := &state.bar
	if tr.Price > b.High {
		b.High = tr.Price
	}
	if tr.Price < b.Low {
		b.Low = tr.Price
	}
	b.Close = tr.Price
	b.Volume += tr.Size
	state.notional += tr.Price * tr.Size
}

// flushOld emits bars whose minute ended more than Grace ago.
func (a *Aggregator) flushOld(barCh chan<- model.Bar) {
	cutoff := a.now().Add(-a.Grace).Unix() / 60

	a.mu.Lock()
	defer a.mu.Unlock()

	for sym, state := range a.states {
		if state.bucket < cutoff {
			a.emit(state, barCh)
			delete(a.states, sym)
		}
	}
}

// flushAll emits all open bars regardless of bucket.
func (a *Aggregator) flushAll(barCh chan<- model.Bar) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for sym, state := range a.states {
		a.emit(state, barCh)
		delete(a.states, sym)
	}
}

// emit sends a finalized bar to barCh and records the symbol's watermark.
// Non-blocking to avoid deadlocks.
func (a *Aggregator) emit(state *barState, barCh chan<- model.Bar) {
	a.emitted[state.bar.Symbol] = state.bucket
	if state.bar.Volume > 0 {
		state.bar.VWAP = state.notional / state.bar.Volume
	} else {
		state.bar.VWAP = state.bar.Close
	}
	select {
	case barCh <- state.bar:
	default:
		log.Printf("[agg] barCh full, dropping bar %s ts=%v", state.bar.Symbol, state.bar.Timestamp)
	}
}
