package strategy

import (
	"time"

	"trading-setups/internal/indicator"
	"trading-setups/internal/model"
)

// ORBPatientCandle fires on a breakout of the opening range when the
// breakout candle itself is a low-range (patient) candle.
//
// Window: ORBMinMinutes..ORBMaxMinutes after the session open.
// Range: high/low of 1m bars in the first ORBRangeMinutes.
// Gate: 3 confluence factors. Stop: opposite side of the range. Targets: 1R, 2R.
type ORBPatientCandle struct {
	cfg Config
	sc  *Scorer
}

// NewORBPatientCandle creates the opening-range detector.
func NewORBPatientCandle(cfg Config, sc *Scorer) *ORBPatientCandle {
	return &ORBPatientCandle{cfg: cfg, sc: sc}
}

func (d *ORBPatientCandle) Name() string { return string(model.SetupORBPatientCandle) }

const orbMinFactors = 3

func (d *ORBPatientCandle) Detect(ctx *Context) *Candidate {
	if ctx.Session == nil {
		return nil
	}
	mins, ok := ctx.Session.MinutesSinceOpen(ctx.Now)
	if !ok || mins < float64(d.cfg.ORBMinMinutes) || mins > float64(d.cfg.ORBMaxMinutes) {
		return nil
	}
	cur, ok := ctx.Current()
	if !ok || ctx.Snap5m.ATR14 == nil {
		return nil
	}

	orHigh, orLow, ok := d.openingRange(ctx)
	if !ok {
		return nil
	}

	var dir model.Direction
	var stop float64
	switch {
	case cur.Close > orHigh:
		dir, stop = model.Long, orLow
	case cur.Close < orLow:
		dir, stop = model.Short, orHigh
	default:
		return nil
	}

	if !indicator.IsPatientCandle(cur, *ctx.Snap5m.ATR14, d.cfg.PatientThreshold) {
		return nil
	}

	entry := cur.Close
	risk := entry - stop
	if risk < 0 {
		risk = -risk
	}
	if risk == 0 {
		return nil
	}
	targets := []float64{entry + risk, entry + 2*risk}
	if dir == model.Short {
		targets = []float64{entry - risk, entry - 2*risk}
	}

	pc := cur
	return finish(d.sc, ctx, &Candidate{
		Type:          model.SetupORBPatientCandle,
		Direction:     dir,
		Entry:         entry,
		Stop:          stop,
		Targets:       targets,
		PatientCandle: &pc,
	}, orbMinFactors)
}

// openingRange scans today's 1m bars that start inside the opening window.
func (d *ORBPatientCandle) openingRange(ctx *Context) (high, low float64, ok bool) {
	open := ctx.Session.SessionOpen(ctx.Now)
	end := open.Add(time.Duration(d.cfg.ORBRangeMinutes) * time.Minute)
	for i := range ctx.Bars1m {
		b := &ctx.Bars1m[i]
		if b.Timestamp.Before(open) || !b.Timestamp.Before(end) {
			continue
		}
		if !ok {
			high, low, ok = b.High, b.Low, true
			continue
		}
		if b.High > high {
			high = b.High
		}
		if b.Low < low {
			low = b.Low
		}
	}
	return high, low, ok
}
