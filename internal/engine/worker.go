package engine

import (
	"context"
	"log/slog"
	"time"

	"trading-setups/internal/indicator"
	"trading-setups/internal/logger"
	"trading-setups/internal/marketdata/tfbuilder"
	"trading-setups/internal/model"
	"trading-setups/internal/strategy"
)

// worker owns one symbol's state and applies commands in arrival order.
type worker struct {
	cmds  chan func(*symbolState)
	state *symbolState
}

func newWorker(e *Engine, symbol string) *worker {
	return &worker{
		cmds:  make(chan func(*symbolState), e.cfg.QueueSize),
		state: newSymbolState(e, symbol),
	}
}

func (w *worker) run() {
	for fn := range w.cmds {
		fn(w.state)
	}
}

// do runs fn on the worker goroutine and waits for it to finish.
func (w *worker) do(fn func(*symbolState)) {
	done := make(chan struct{})
	w.cmds <- func(s *symbolState) {
		fn(s)
		close(done)
	}
	<-done
}

// symbolState is the single point of mutable truth for one symbol.
// Only its worker goroutine touches it.
type symbolState struct {
	eng    *Engine
	symbol string

	bars      *tfbuilder.Builder
	lastTrade *model.Trade
	lastQuote *model.Quote
	snaps     map[model.Timeframe]model.IndicatorSnapshot // absent until the timeframe's minimum is met

	setups map[string]*model.Setup
	seq    int
}

func newSymbolState(e *Engine, symbol string) *symbolState {
	b := tfbuilder.New(e.cfg.Caps)
	b.StaleTolerance = e.cfg.StaleTolerance
	b.OnTFBar = e.hooks.OnTFBar
	b.OnStaleBar = e.hooks.OnStaleBar
	return &symbolState{
		eng:    e,
		symbol: symbol,
		bars:   b,
		snaps:  make(map[model.Timeframe]model.IndicatorSnapshot, len(model.Timeframes)),
		setups: make(map[string]*model.Setup),
	}
}

func (s *symbolState) snapshotMin(tf model.Timeframe) int {
	switch tf {
	case model.TF1m:
		return s.eng.cfg.SnapshotMin1m
	case model.TF5m:
		return s.eng.cfg.SnapshotMin5m
	default:
		return s.eng.cfg.SnapshotMin60m
	}
}

// onBar appends a 1m bar, refreshes snapshots and, when a new working
// timeframe bar was produced, runs the detectors.
func (s *symbolState) onBar(bar model.Bar) {
	start := time.Now()
	res, ok := s.bars.Append(bar)
	if !ok {
		return
	}

	for _, tf := range model.Timeframes {
		if s.bars.Len(tf) >= s.snapshotMin(tf) {
			s.snaps[tf] = indicator.Compute(s.bars.Bars(tf))
		}
	}

	if res.Bar5m {
		s.detect(bar.Timestamp)
	}

	if s.eng.hooks.OnBar != nil {
		s.eng.hooks.OnBar(s.symbol, time.Since(start))
	}
}

func (s *symbolState) detect(now time.Time) {
	ctx := &strategy.Context{
		Symbol:  s.symbol,
		Now:     now,
		Bars1m:  s.bars.Bars(model.TF1m),
		Bars5m:  s.bars.Bars(strategy.WorkingTimeframe),
		Snap5m:  s.snaps[model.TF5m],
		Snap60m: s.snaps[model.TF60m],
		Session: s.eng.session,
	}

	for _, d := range s.eng.detectors {
		c := d.Detect(ctx)
		if c == nil {
			continue
		}
		if s.eng.cfg.SuppressDuplicates && s.hasOpen(c.Type, c.Direction) {
			continue
		}
		s.create(c, ctx, now)
	}
}

func (s *symbolState) hasOpen(t model.SetupType, dir model.Direction) bool {
	for _, st := range s.setups {
		if st.Type == t && st.Direction == dir && st.Status.Open() {
			return true
		}
	}
	return false
}

func (s *symbolState) create(c *strategy.Candidate, ctx *strategy.Context, now time.Time) {
	s.seq++
	st := &model.Setup{
		ID:                setupID(s.symbol, s.seq),
		Symbol:            s.symbol,
		Type:              c.Type,
		Direction:         c.Direction,
		Status:            model.StatusForming,
		Timeframe:         strategy.WorkingTimeframe,
		EntryPrice:        c.Entry,
		StopLoss:          c.Stop,
		Targets:           append([]float64(nil), c.Targets...),
		ConfluenceScore:   c.Score,
		ConfluenceFactors: c.Factors,
		PatientCandle:     c.PatientCandle,
		Indicators:        ctx.Snap5m.Clone(),
		CreatedAt:         now,
		LastUpdate:        now,
	}
	s.setups[st.ID] = st

	tctx := logger.WithTraceID(context.Background(), logger.GenerateTraceID(s.symbol, now))
	slog.Info("setup detected", append(logger.LogWithTrace(tctx),
		slog.String("component", "engine"),
		slog.String("id", st.ID),
		slog.String("type", string(st.Type)),
		slog.String("direction", string(st.Direction)),
		slog.Float64("entry", st.EntryPrice),
		slog.Float64("stop", st.StopLoss),
		slog.Int("score", st.ConfluenceScore),
	)...)

	if s.eng.hooks.OnSetup != nil {
		s.eng.hooks.OnSetup(st.Clone())
	}
	s.emit(model.Event{Type: model.EventSetupDetected, Setup: st.Clone(), Timestamp: now})
}

func (s *symbolState) emit(ev model.Event) {
	if s.eng.pub == nil {
		return
	}
	if s.eng.pub.Publish(ev) && s.eng.hooks.OnEvent != nil {
		s.eng.hooks.OnEvent(ev.Type)
	}
}

// collect copies the setups whose status passes keep.
func (s *symbolState) collect(keep func(model.Status) bool) []model.Setup {
	out := make([]model.Setup, 0, len(s.setups))
	for _, st := range s.setups {
		if keep(st.Status) {
			out = append(out, st.Clone())
		}
	}
	return out
}

func (s *symbolState) prune(cutoff time.Time) int {
	n := 0
	for id, st := range s.setups {
		if st.Status.Terminal() && st.LastUpdate.Before(cutoff) {
			delete(s.setups, id)
			n++
		}
	}
	return n
}
