// Package tfbuilder derives 5-minute and 60-minute bars from a stream of
// 1-minute bars for a single symbol.
//
// Aggregation is sliding, not clock-aligned: every appended 1m bar
// regenerates a coarser bar from the trailing 5 (or 60) 1m bars, so
// consecutive 5m bars overlap by four minutes and do not start on :00/:05
// boundaries. Downstream detectors are tuned for this behaviour; switching to
// tumbling buckets changes their inputs.
package tfbuilder

import (
	"time"

	"trading-setups/internal/model"
	"trading-setups/internal/ringbuf"
)

// Default history caps per timeframe.
const (
	DefaultCap1m  = 500
	DefaultCap5m  = 200
	DefaultCap60m = 100
)

// window sizes in 1m bars
const (
	window5m  = 5
	window60m = 60
)

// Caps sets the maximum bars kept per timeframe.
type Caps struct {
	Bars1m  int
	Bars5m  int
	Bars60m int
}

// DefaultCaps returns 500/200/100.
func DefaultCaps() Caps {
	return Caps{Bars1m: DefaultCap1m, Bars5m: DefaultCap5m, Bars60m: DefaultCap60m}
}

// Appended reports which timeframes received a new bar on Append.
type Appended struct {
	Bar5m  bool
	Bar60m bool
}

// Builder owns the three bar histories of one symbol.
// Not goroutine-safe: designed to be driven by the symbol's worker goroutine.
type Builder struct {
	bars1m  *ringbuf.History[model.Bar]
	bars5m  *ringbuf.History[model.Bar]
	bars60m *ringbuf.History[model.Bar]

	// Staleness validation: reject 1m bars older than the latest 1m bar by
	// more than StaleTolerance. Zero disables the check.
	StaleTolerance time.Duration

	// Metrics hooks
	OnTFBar    func(tf model.Timeframe) // called for every bar appended to any timeframe (optional)
	OnStaleBar func()                   // called when a stale 1m bar is rejected (optional)
}

// New creates a builder with the given caps. Non-positive caps fall back to defaults.
func New(caps Caps) *Builder {
	d := DefaultCaps()
	if caps.Bars1m <= 0 {
		caps.Bars1m = d.Bars1m
	}
	if caps.Bars5m <= 0 {
		caps.Bars5m = d.Bars5m
	}
	if caps.Bars60m <= 0 {
		caps.Bars60m = d.Bars60m
	}
	return &Builder{
		bars1m:  ringbuf.New[model.Bar](caps.Bars1m),
		bars5m:  ringbuf.New[model.Bar](caps.Bars5m),
		bars60m: ringbuf.New[model.Bar](caps.Bars60m),
	}
}

// Append adds a 1m bar and regenerates the sliding 5m/60m bars.
// Returns ok=false if the bar was rejected as stale.
func (b *Builder) Append(bar model.Bar) (Appended, bool) {
	var res Appended

	if b.StaleTolerance > 0 {
		if prev, ok := b.bars1m.Latest(); ok && prev.Timestamp.Sub(bar.Timestamp) > b.StaleTolerance {
			if b.OnStaleBar != nil {
				b.OnStaleBar()
			}
			return res, false
		}
	}

	b.bars1m.Push(bar)
	b.notify(model.TF1m)

	if b.bars1m.Len() >= window5m {
		b.bars5m.Push(Fold(b.bars1m.Last(window5m)))
		b.notify(model.TF5m)
		res.Bar5m = true
	}
	if b.bars1m.Len() >= window60m {
		b.bars60m.Push(Fold(b.bars1m.Last(window60m)))
		b.notify(model.TF60m)
		res.Bar60m = true
	}
	return res, true
}

func (b *Builder) notify(tf model.Timeframe) {
	if b.OnTFBar != nil {
		b.OnTFBar(tf)
	}
}

// History returns the buffer for tf (nil for an unknown timeframe).
func (b *Builder) History(tf model.Timeframe) *ringbuf.History[model.Bar] {
	switch tf {
	case model.TF1m:
		return b.bars1m
	case model.TF5m:
		return b.bars5m
	case model.TF60m:
		return b.bars60m
	}
	return nil
}

// Bars copies the bars held for tf, oldest first.
func (b *Builder) Bars(tf model.Timeframe) []model.Bar {
	h := b.History(tf)
	if h == nil {
		return nil
	}
	return h.Slice()
}

// Len returns the number of bars held for tf.
func (b *Builder) Len(tf model.Timeframe) int {
	h := b.History(tf)
	if h == nil {
		return 0
	}
	return h.Len()
}

// Fold merges consecutive bars into one: open of the first, max high, min low,
// close of the last, summed volume, and a volume-weighted typical-price VWAP.
// The result is stamped with the first bar's timestamp.
func Fold(bars []model.Bar) model.Bar {
	if len(bars) == 0 {
		return model.Bar{}
	}
	first, lastBar := bars[0], bars[len(bars)-1]
	out := model.Bar{
		Symbol:    first.Symbol,
		Timestamp: first.Timestamp,
		Open:      first.Open,
		High:      first.High,
		Low:       first.Low,
		Close:     lastBar.Close,
	}
	var pv float64
	for i := range bars {
		if bars[i].High > out.High {
			out.High = bars[i].High
		}
		if bars[i].Low < out.Low {
			out.Low = bars[i].Low
		}
		out.Volume += bars[i].Volume
		pv += bars[i].TypicalPrice() * bars[i].Volume
	}
	if out.Volume > 0 {
		out.VWAP = pv / out.Volume
	} else {
		out.VWAP = lastBar.Close
	}
	return out
}
