// Package engine is the setup detection engine: per-symbol state, sliding
// timeframe aggregation, indicator snapshots, detector dispatch and the setup
// lifecycle.
//
// Each symbol is owned by one worker goroutine fed by an ordered queue, so
// all mutation for a symbol is strictly sequential while different symbols
// run in parallel. Every public query is executed on the owning worker and
// returns copies.
package engine

import (
	"errors"
	"log"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"trading-setups/internal/markethours"
	"trading-setups/internal/marketdata/tfbuilder"
	"trading-setups/internal/model"
	"trading-setups/internal/strategy"
)

var (
	// ErrUnknownSetup is returned for an id the engine does not hold.
	ErrUnknownSetup = errors.New("engine: unknown setup")
	// ErrStatusNotAllowed is returned when a caller requests a status only
	// the engine may assign.
	ErrStatusNotAllowed = errors.New("engine: status not settable externally")
	// ErrSetupTerminal is returned when changing a CLOSED or DISMISSED setup.
	ErrSetupTerminal = errors.New("engine: setup already terminal")
)

// Publisher receives engine events. Publish must not block.
type Publisher interface {
	Publish(ev model.Event) bool
}

// Config tunes the engine. Zero values fall back to DefaultConfig.
type Config struct {
	Caps tfbuilder.Caps

	// Minimum bars before a timeframe's snapshot is computed.
	SnapshotMin1m  int
	SnapshotMin5m  int
	SnapshotMin60m int

	// QueueSize is the per-symbol command queue length.
	QueueSize int

	// SuppressDuplicates skips a detector result when the symbol already has
	// an open setup of the same type and direction.
	SuppressDuplicates bool

	// StaleTolerance rejects 1m bars older than the latest by more than this.
	StaleTolerance time.Duration

	Strategy strategy.Config
}

// DefaultConfig returns caps 500/200/100, snapshot minimums 200/50/50 and
// duplicate suppression on.
func DefaultConfig() Config {
	return Config{
		Caps:               tfbuilder.DefaultCaps(),
		SnapshotMin1m:      200,
		SnapshotMin5m:      50,
		SnapshotMin60m:     50,
		QueueSize:          1024,
		SuppressDuplicates: true,
		Strategy:           strategy.DefaultConfig(),
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.SnapshotMin1m <= 0 {
		c.SnapshotMin1m = d.SnapshotMin1m
	}
	if c.SnapshotMin5m <= 0 {
		c.SnapshotMin5m = d.SnapshotMin5m
	}
	if c.SnapshotMin60m <= 0 {
		c.SnapshotMin60m = d.SnapshotMin60m
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
}

// Hooks are optional callbacks, wired to metrics by the caller. They run on
// symbol worker goroutines and must be safe for concurrent use.
type Hooks struct {
	OnBar       func(symbol string, took time.Duration) // after a 1m bar is fully processed
	OnTFBar     func(tf model.Timeframe)                // a bar appended to any timeframe
	OnStaleBar  func()                                  // a stale 1m bar was rejected
	OnSetup     func(s model.Setup)                     // a setup was created
	OnEvent     func(t model.EventType)                 // an event was handed to the publisher
	OnInputDrop func()                                  // input arrived after Close
	OnWorkerUp  func(symbol string)                     // a symbol worker was started
}

// Engine routes inbound market data to per-symbol workers.
type Engine struct {
	cfg       Config
	session   *markethours.Session
	detectors []strategy.Detector
	pub       Publisher
	hooks     Hooks

	mu      sync.RWMutex
	workers map[string]*worker
	closed  bool
	wg      sync.WaitGroup

	inline sync.Mutex // serializes queries once workers have exited
}

// New creates an engine. A nil session selects the default US session; nil
// detectors selects strategy.DefaultDetectors.
func New(cfg Config, session *markethours.Session, pub Publisher, detectors []strategy.Detector, hooks Hooks) *Engine {
	cfg.applyDefaults()
	if session == nil {
		session = markethours.Default()
	}
	if detectors == nil {
		detectors = strategy.DefaultDetectors(cfg.Strategy)
	}
	return &Engine{
		cfg:       cfg,
		session:   session,
		detectors: detectors,
		pub:       pub,
		hooks:     hooks,
		workers:   make(map[string]*worker, 64),
	}
}

// ProcessBar ingests a 1-minute bar.
func (e *Engine) ProcessBar(bar model.Bar) {
	e.dispatch(bar.Symbol, func(s *symbolState) { s.onBar(bar) })
}

// ProcessTrade ingests a trade and evaluates the symbol's open setups.
func (e *Engine) ProcessTrade(trade model.Trade) {
	e.dispatch(trade.Symbol, func(s *symbolState) { s.onTrade(trade) })
}

// ProcessQuote records the latest quote.
func (e *Engine) ProcessQuote(quote model.Quote) {
	e.dispatch(quote.Symbol, func(s *symbolState) { s.lastQuote = &quote })
}

// dispatch enqueues fn on the symbol's worker, creating it on first use.
// Blocks while the symbol's queue is full so input is never reordered.
func (e *Engine) dispatch(symbol string, fn func(*symbolState)) {
	if symbol == "" {
		log.Printf("[engine] dropping input with empty symbol")
		return
	}

	e.mu.RLock()
	w, ok := e.workers[symbol]
	if !ok && !e.closed {
		e.mu.RUnlock()
		e.mu.Lock()
		if !e.closed {
			w = e.workerLocked(symbol)
		}
		e.mu.Unlock()
		e.mu.RLock()
	}
	defer e.mu.RUnlock()

	if e.closed {
		if e.hooks.OnInputDrop != nil {
			e.hooks.OnInputDrop()
		}
		log.Printf("[engine] closed, dropping input for %s", symbol)
		return
	}
	w.cmds <- fn
}

// workerLocked returns the worker for symbol, starting one if needed.
// Caller holds e.mu for writing.
func (e *Engine) workerLocked(symbol string) *worker {
	if w, ok := e.workers[symbol]; ok {
		return w
	}
	w := newWorker(e, symbol)
	e.workers[symbol] = w
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		w.run()
	}()
	if e.hooks.OnWorkerUp != nil {
		e.hooks.OnWorkerUp(symbol)
	}
	return w
}

// query runs fn against one symbol's state on its worker and waits for it.
// After Close the workers have exited, so fn runs inline.
// Returns false if the symbol is unknown.
func (e *Engine) query(symbol string, fn func(*symbolState)) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	w, ok := e.workers[symbol]
	if !ok {
		return false
	}
	if e.closed {
		e.inline.Lock()
		fn(w.state)
		e.inline.Unlock()
		return true
	}
	w.do(fn)
	return true
}

// queryAll runs fn on every symbol's worker.
func (e *Engine) queryAll(fn func(*symbolState)) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, w := range e.workers {
		if e.closed {
			e.inline.Lock()
			fn(w.state)
			e.inline.Unlock()
			continue
		}
		w.do(fn)
	}
}

// GetActiveSetups returns every setup that is neither CLOSED nor DISMISSED,
// across all symbols, ordered by creation time then id.
func (e *Engine) GetActiveSetups() []model.Setup {
	var mu sync.Mutex
	var out []model.Setup
	e.queryAll(func(s *symbolState) {
		list := s.collect(func(st model.Status) bool { return !st.Terminal() })
		mu.Lock()
		out = append(out, list...)
		mu.Unlock()
	})
	sortSetups(out)
	return out
}

// GetSetupsForSymbol returns every setup of symbol regardless of status.
func (e *Engine) GetSetupsForSymbol(symbol string) []model.Setup {
	var out []model.Setup
	e.query(symbol, func(s *symbolState) {
		out = s.collect(func(model.Status) bool { return true })
	})
	sortSetups(out)
	return out
}

// GetSetup returns one setup by id.
func (e *Engine) GetSetup(id string) (model.Setup, bool) {
	symbol, ok := symbolFromID(id)
	if !ok {
		return model.Setup{}, false
	}
	var out model.Setup
	var found bool
	e.query(symbol, func(s *symbolState) {
		if st, ok := s.setups[id]; ok {
			out, found = st.Clone(), true
		}
	})
	return out, found
}

// UpdateStatus applies an externally driven status change and publishes a
// status-changed event. Only SETUP_READY, DISMISSED and REENTRY_SETUP may be
// set this way.
func (e *Engine) UpdateStatus(id string, status model.Status) (model.Setup, error) {
	switch status {
	case model.StatusReady, model.StatusDismiss, model.StatusReentry:
	default:
		return model.Setup{}, ErrStatusNotAllowed
	}
	symbol, ok := symbolFromID(id)
	if !ok {
		return model.Setup{}, ErrUnknownSetup
	}
	var out model.Setup
	err := ErrUnknownSetup
	e.query(symbol, func(s *symbolState) {
		st, ok := s.setups[id]
		if !ok {
			return
		}
		if st.Status.Terminal() {
			out, err = st.Clone(), ErrSetupTerminal
			return
		}
		st.Status = status
		if last, ok := s.bars.History(model.TF1m).Latest(); ok && last.Timestamp.After(st.LastUpdate) {
			st.LastUpdate = last.Timestamp
		}
		out, err = st.Clone(), nil
		s.emit(model.Event{Type: model.EventStatusChanged, Setup: st.Clone(), Timestamp: st.LastUpdate})
	})
	return out, err
}

// Dismiss is shorthand for UpdateStatus(id, DISMISSED).
func (e *Engine) Dismiss(id string) (model.Setup, error) {
	return e.UpdateStatus(id, model.StatusDismiss)
}

// PruneTerminal forgets CLOSED and DISMISSED setups whose last update is
// before cutoff. Returns how many were removed.
func (e *Engine) PruneTerminal(cutoff time.Time) int {
	var mu sync.Mutex
	total := 0
	e.queryAll(func(s *symbolState) {
		n := s.prune(cutoff)
		mu.Lock()
		total += n
		mu.Unlock()
	})
	return total
}

// Symbols returns the symbols seen so far, sorted.
func (e *Engine) Symbols() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.workers))
	for s := range e.workers {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// QueueDepth returns the total number of commands waiting across workers.
func (e *Engine) QueueDepth() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	n := 0
	for _, w := range e.workers {
		n += len(w.cmds)
	}
	return n
}

// Close stops accepting input, lets every worker drain its queue and waits
// for them to exit. Queries keep working afterwards against the final state.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	for _, w := range e.workers {
		close(w.cmds)
	}
	// Workers never take e.mu, so waiting under the lock is safe and keeps
	// queries from touching state until the workers are gone.
	e.wg.Wait()
	log.Printf("[engine] closed (%d symbols)", len(e.workers))
}

func sortSetups(list []model.Setup) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
}

// setupID formats "{symbol}-{n}".
func setupID(symbol string, n int) string {
	return symbol + "-" + strconv.Itoa(n)
}

func symbolFromID(id string) (string, bool) {
	i := strings.LastIndexByte(id, '-')
	if i <= 0 || i == len(id)-1 {
		return "", false
	}
	return id[:i], true
}
