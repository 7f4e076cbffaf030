package strategy

import (
	"trading-setups/internal/indicator"
	"trading-setups/internal/model"
)

// Breakout fires when price closes beyond the prior BreakoutLookback-bar
// high (BREAKOUT) or low (BREAKDOWN) on above-average volume.
type Breakout struct {
	sc *Scorer
}

func NewBreakout(sc *Scorer) *Breakout { return &Breakout{sc: sc} }

func (d *Breakout) Name() string { return string(model.SetupBreakout) }

const (
	BreakoutLookback   = 20
	breakoutStopPct    = 0.02
	breakoutMinFactors = 2
)

func (d *Breakout) Detect(ctx *Context) *Candidate {
	prior := ctx.Prior(BreakoutLookback)
	cur, ok := ctx.Current()
	if !ok || len(prior) < BreakoutLookback {
		return nil
	}

	hi, lo := prior[0].High, prior[0].Low
	for _, b := range prior[1:] {
		if b.High > hi {
			hi = b.High
		}
		if b.Low < lo {
			lo = b.Low
		}
	}
	if cur.Volume <= indicator.Mean(indicator.Volumes(prior)) {
		return nil
	}

	entry := cur.Close
	switch {
	case entry > hi:
		return finish(d.sc, ctx, &Candidate{
			Type:      model.SetupBreakout,
			Direction: model.Long,
			Entry:     entry,
			Stop:      hi * (1 - breakoutStopPct),
			Targets:   []float64{entry * 1.02, entry * 1.05},
		}, breakoutMinFactors)
	case entry < lo:
		return finish(d.sc, ctx, &Candidate{
			Type:      model.SetupBreakdown,
			Direction: model.Short,
			Entry:     entry,
			Stop:      lo * (1 + breakoutStopPct),
			Targets:   []float64{entry * 0.98, entry * 0.95},
		}, breakoutMinFactors)
	}
	return nil
}
