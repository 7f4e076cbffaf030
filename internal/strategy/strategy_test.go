package strategy

import (
	"math"
	"testing"
	"time"

	"trading-setups/internal/markethours"
	"trading-setups/internal/model"
)

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

// 2026-03-02 is a Monday; 14:30 UTC is the 09:30 New York open.
var sessionOpen = time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)

func flatBars(n int, high, low, close_, vol float64) []model.Bar {
	out := make([]model.Bar, n)
	for i := range out {
		out[i] = model.Bar{
			Symbol: "TEST", Timestamp: sessionOpen.Add(time.Duration(i) * time.Minute),
			Open: close_, High: high, Low: low, Close: close_, Volume: vol,
		}
	}
	return out
}

func withCurrent(prior []model.Bar, cur model.Bar) []model.Bar {
	return append(append([]model.Bar(nil), prior...), cur)
}

func bullish60m() model.IndicatorSnapshot {
	return model.IndicatorSnapshot{EMA9: model.Float(103), EMA21: model.Float(102), EMA50: model.Float(101)}
}

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f", label, got, want)
	}
}

func assertTargets(t *testing.T, got, want []float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("targets = %v, want %v", got, want)
	}
	for i := range want {
		assertClose(t, "target", got[i], want[i], 1e-9)
	}
}

// ────────────────────────────────────────────────────────────
// Confluence
// ────────────────────────────────────────────────────────────

func TestScore_OrderAndPresence(t *testing.T) {
	sc := NewScorer(DefaultConfig())
	ctx := &Context{
		Bars5m:  withCurrent(flatBars(10, 101, 99, 100, 100), model.Bar{Close: 105, Volume: 200}),
		Snap5m:  model.IndicatorSnapshot{RSI14: model.Float(30), VWAP: model.Float(100)},
		Snap60m: model.IndicatorSnapshot{EMA9: model.Float(103), EMA21: model.Float(102), EMA50: model.Float(101), SMA200: model.Float(90)},
	}

	long := sc.Score(ctx, model.Long)
	names := []string{FactorTrend, FactorRSI, FactorVWAP, FactorVolume, FactorSMA200}
	for i, f := range long {
		if f.Name != names[i] {
			t.Fatalf("factor %d = %s, want %s", i, f.Name, names[i])
		}
		if !f.Present {
			t.Errorf("LONG factor %s should be present", f.Name)
		}
	}
	if Count(long) != 5 {
		t.Fatalf("LONG count = %d, want 5", Count(long))
	}

	short := sc.Score(ctx, model.Short)
	// Only the volume spike is direction-neutral.
	if Count(short) != 1 || !short[3].Present {
		t.Fatalf("SHORT factors = %+v", short)
	}
}

func TestScore_MissingInputs(t *testing.T) {
	sc := NewScorer(DefaultConfig())
	ctx := &Context{Bars5m: flatBars(3, 101, 99, 100, 100)}
	factors := sc.Score(ctx, model.Long)
	if len(factors) != 5 {
		t.Fatalf("expected 5 factors, got %d", len(factors))
	}
	for _, f := range factors {
		if f.Present {
			t.Errorf("factor %s present without inputs", f.Name)
		}
		if f.Description == "" {
			t.Errorf("factor %s should explain why it is absent", f.Name)
		}
	}
}

func TestScore_VolumeSpikeUsesPriorBarsOnly(t *testing.T) {
	sc := NewScorer(DefaultConfig())
	prior := flatBars(10, 101, 99, 100, 100)
	spike := sc.Score(&Context{Bars5m: withCurrent(prior, model.Bar{Close: 100, Volume: 151})}, model.Long)
	if !spike[3].Present {
		t.Error("151 > 1.5 x 100 should be a spike")
	}
	flat := sc.Score(&Context{Bars5m: withCurrent(prior, model.Bar{Close: 100, Volume: 150})}, model.Long)
	if flat[3].Present {
		t.Error("150 is not strictly above 1.5 x 100")
	}
}

// ────────────────────────────────────────────────────────────
// ORB + Patient Candle
// ────────────────────────────────────────────────────────────

func orbContext(minutesAfterOpen int, cur model.Bar) *Context {
	return &Context{
		Symbol:  "TEST",
		Now:     sessionOpen.Add(time.Duration(minutesAfterOpen) * time.Minute),
		Bars1m:  flatBars(15, 101, 99, 100, 50),
		Bars5m:  withCurrent(flatBars(12, 100.5, 99.5, 100, 100), cur),
		Snap5m:  model.IndicatorSnapshot{ATR14: model.Float(1.0), RSI14: model.Float(30), VWAP: model.Float(100)},
		Session: markethours.Default(),
	}
}

func patientBreakout() model.Bar {
	return model.Bar{Symbol: "TEST", Open: 101.45, High: 101.6, Low: 101.4, Close: 101.5, Volume: 200}
}

func TestORB_FiresInsideWindow(t *testing.T) {
	d := NewORBPatientCandle(DefaultConfig(), NewScorer(DefaultConfig()))
	c := d.Detect(orbContext(20, patientBreakout()))
	if c == nil {
		t.Fatal("expected ORB setup")
	}
	if c.Type != model.SetupORBPatientCandle || c.Direction != model.Long {
		t.Fatalf("got %s %s", c.Type, c.Direction)
	}
	assertClose(t, "stop", c.Stop, 99, 0)
	assertTargets(t, c.Targets, []float64{104, 106.5})
	if c.Score != 3 || c.PatientCandle == nil || c.PatientCandle.Close != 101.5 {
		t.Fatalf("score=%d patient=%v", c.Score, c.PatientCandle)
	}
}

func TestORB_WindowBoundaries(t *testing.T) {
	d := NewORBPatientCandle(DefaultConfig(), NewScorer(DefaultConfig()))
	for _, m := range []int{-10, 0, 4, 61, 120} {
		if c := d.Detect(orbContext(m, patientBreakout())); c != nil {
			t.Errorf("minute %d: ORB must not fire outside 5-60", m)
		}
	}
	for _, m := range []int{5, 60} {
		if c := d.Detect(orbContext(m, patientBreakout())); c == nil {
			t.Errorf("minute %d: ORB should fire at the window edge", m)
		}
	}
}

func TestORB_RequiresPatientCandle(t *testing.T) {
	d := NewORBPatientCandle(DefaultConfig(), NewScorer(DefaultConfig()))
	wide := patientBreakout()
	wide.High, wide.Low = 102.5, 101.0 // range 1.5 >= 0.5 x ATR
	if c := d.Detect(orbContext(20, wide)); c != nil {
		t.Fatal("ORB must not fire on a wide candle")
	}
	ctx := orbContext(20, patientBreakout())
	ctx.Snap5m.ATR14 = nil
	if c := d.Detect(ctx); c != nil {
		t.Fatal("ORB must not fire without ATR")
	}
}

func TestORB_ConfluenceGate(t *testing.T) {
	d := NewORBPatientCandle(DefaultConfig(), NewScorer(DefaultConfig()))
	cur := patientBreakout()
	cur.Volume = 100 // no spike -> only 2 factors
	if c := d.Detect(orbContext(20, cur)); c != nil {
		t.Fatal("ORB needs 3 factors")
	}
}

func TestORB_Short(t *testing.T) {
	d := NewORBPatientCandle(DefaultConfig(), NewScorer(DefaultConfig()))
	cur := model.Bar{Open: 98.55, High: 98.6, Low: 98.4, Close: 98.5, Volume: 200}
	ctx := orbContext(30, cur)
	ctx.Snap5m.RSI14 = model.Float(70)
	c := d.Detect(ctx)
	if c == nil || c.Direction != model.Short {
		t.Fatalf("expected SHORT ORB, got %+v", c)
	}
	assertClose(t, "stop", c.Stop, 101, 0)
	assertTargets(t, c.Targets, []float64{96, 93.5})
}

// ────────────────────────────────────────────────────────────
// EMA Bounce
// ────────────────────────────────────────────────────────────

func TestEMABounce(t *testing.T) {
	d := NewEMABounce(NewScorer(DefaultConfig()))
	prev := model.Bar{Open: 100.2, High: 100.5, Low: 99.5, Close: 100.1, Volume: 100}
	cur := model.Bar{Open: 100.1, High: 101.2, Low: 100, Close: 101, Volume: 100}
	ctx := &Context{
		Bars5m:  []model.Bar{prev, cur},
		Snap5m:  model.IndicatorSnapshot{EMA21: model.Float(100), VWAP: model.Float(100)},
		Snap60m: bullish60m(),
	}
	c := d.Detect(ctx)
	if c == nil {
		t.Fatal("expected EMA bounce")
	}
	assertClose(t, "stop", c.Stop, 98, 1e-9)
	assertTargets(t, c.Targets, []float64{101 * 1.02, 101 * 1.04})

	ctx.Snap60m = model.IndicatorSnapshot{}
	if d.Detect(ctx) != nil {
		t.Fatal("no 60m trend, no bounce")
	}

	ctx.Snap60m = bullish60m()
	ctx.Bars5m[0].Low = 100.2 // prior bar did not touch the EMA
	if d.Detect(ctx) != nil {
		t.Fatal("prior bar must touch EMA21")
	}
}

// ────────────────────────────────────────────────────────────
// VWAP Reclaim
// ────────────────────────────────────────────────────────────

func TestVWAPReclaim(t *testing.T) {
	d := NewVWAPReclaim(NewScorer(DefaultConfig()))
	ctx := &Context{
		Bars5m: []model.Bar{{Close: 99}, {Close: 100.2}},
		Snap5m: model.IndicatorSnapshot{VWAP: model.Float(100), RSI14: model.Float(30)},
	}
	c := d.Detect(ctx)
	if c == nil || c.Direction != model.Long {
		t.Fatalf("expected LONG reclaim, got %+v", c)
	}
	assertClose(t, "stop", c.Stop, 99.7, 1e-9)
	assertTargets(t, c.Targets, []float64{100.2 * 1.015, 100.2 * 1.03})

	ctx.Bars5m[1].Close = 100.5 // 0.5% away
	if d.Detect(ctx) != nil {
		t.Fatal("close outside the 0.3% band must not fire")
	}
}

func TestVWAPReclaim_Short(t *testing.T) {
	d := NewVWAPReclaim(NewScorer(DefaultConfig()))
	ctx := &Context{
		Bars5m: []model.Bar{{Close: 101}, {Close: 99.8}},
		Snap5m: model.IndicatorSnapshot{VWAP: model.Float(100), RSI14: model.Float(70)},
	}
	c := d.Detect(ctx)
	if c == nil || c.Direction != model.Short {
		t.Fatalf("expected SHORT reclaim, got %+v", c)
	}
	assertClose(t, "stop", c.Stop, 100.3, 1e-9)
}

// ────────────────────────────────────────────────────────────
// EMA Cloud
// ────────────────────────────────────────────────────────────

func TestEMACloud(t *testing.T) {
	d := NewEMACloud(NewScorer(DefaultConfig()))
	prior := flatBars(10, 100.6, 100.4, 100.5, 100)
	ctx := &Context{
		Bars5m:  withCurrent(prior, model.Bar{Close: 102, Volume: 200}),
		Snap5m:  model.IndicatorSnapshot{EMA9: model.Float(101), EMA21: model.Float(100), VWAP: model.Float(100)},
		Snap60m: bullish60m(),
	}
	c := d.Detect(ctx)
	if c == nil {
		t.Fatal("expected EMA cloud")
	}
	assertClose(t, "stop", c.Stop, 100, 0)
	assertTargets(t, c.Targets, []float64{103, 104})

	// A prior close already above the cloud does not block the setup.
	ctx.Bars5m[len(ctx.Bars5m)-2].Close = 101.5
	if d.Detect(ctx) == nil {
		t.Fatal("expected EMA cloud with prior close above the cloud")
	}

	// Inside the cloud is not a clear.
	ctx.Bars5m[len(ctx.Bars5m)-1].Close = 100.5
	if d.Detect(ctx) != nil {
		t.Fatal("close inside the cloud must not fire")
	}
}

func TestEMACloud_MisorderedEMAs(t *testing.T) {
	d := NewEMACloud(NewScorer(DefaultConfig()))
	ctx := &Context{
		Bars5m:  withCurrent(flatBars(10, 100.6, 100.4, 100.5, 100), model.Bar{Close: 102, Volume: 200}),
		Snap5m:  model.IndicatorSnapshot{EMA9: model.Float(100), EMA21: model.Float(101), VWAP: model.Float(100)},
		Snap60m: bullish60m(),
	}
	if d.Detect(ctx) != nil {
		t.Fatal("LONG needs EMA9 above EMA21")
	}
}

// ────────────────────────────────────────────────────────────
// Fibonacci Pullback
// ────────────────────────────────────────────────────────────

func swing(up bool) []model.Bar {
	out := make([]model.Bar, FibLookback)
	for i := range out {
		k := float64(i)
		if !up {
			k = float64(FibLookback - 1 - i)
		}
		out[i] = model.Bar{Low: 90 + 2*k, High: 92 + 2*k, Close: 91 + 2*k, Volume: 100}
	}
	return out
}

func TestFibPullback_Long(t *testing.T) {
	d := NewFibPullback(NewScorer(DefaultConfig()))
	// swing low 90 (first) -> high 110 (last), 50% level = 100
	ctx := &Context{
		Bars5m: withCurrent(swing(true), model.Bar{Close: 100.2, Volume: 100}),
		Snap5m: model.IndicatorSnapshot{VWAP: model.Float(99), RSI14: model.Float(30)},
	}
	c := d.Detect(ctx)
	if c == nil || c.Direction != model.Long {
		t.Fatalf("expected LONG fib, got %+v", c)
	}
	assertClose(t, "stop", c.Stop, 90, 0)
	assertTargets(t, c.Targets, []float64{110, 110 + 0.618*20})

	ctx.Bars5m[len(ctx.Bars5m)-1].Close = 105
	if d.Detect(ctx) != nil {
		t.Fatal("price away from 50/61.8 must not fire")
	}
}

func TestFibPullback_Short(t *testing.T) {
	d := NewFibPullback(NewScorer(DefaultConfig()))
	// swing high 110 (first) -> low 90 (last), 61.8% level = 102.36
	ctx := &Context{
		Bars5m: withCurrent(swing(false), model.Bar{Close: 102.3, Volume: 100}),
		Snap5m: model.IndicatorSnapshot{VWAP: model.Float(103), RSI14: model.Float(70)},
	}
	c := d.Detect(ctx)
	if c == nil || c.Direction != model.Short {
		t.Fatalf("expected SHORT fib, got %+v", c)
	}
	assertClose(t, "stop", c.Stop, 110, 0)
	assertTargets(t, c.Targets, []float64{90, 90 - 0.618*20})
}

func TestFibPullback_NeedsLookback(t *testing.T) {
	d := NewFibPullback(NewScorer(DefaultConfig()))
	ctx := &Context{Bars5m: withCurrent(swing(true)[:5], model.Bar{Close: 100})}
	if d.Detect(ctx) != nil {
		t.Fatal("fewer than 10 prior bars must not fire")
	}
}

// ────────────────────────────────────────────────────────────
// Breakout
// ────────────────────────────────────────────────────────────

func TestBreakout(t *testing.T) {
	d := NewBreakout(NewScorer(DefaultConfig()))
	prior := flatBars(BreakoutLookback, 101, 99, 100, 100)
	ctx := &Context{
		Bars5m: withCurrent(prior, model.Bar{Close: 102, Volume: 300}),
		Snap5m: model.IndicatorSnapshot{VWAP: model.Float(100)},
	}
	c := d.Detect(ctx)
	if c == nil || c.Type != model.SetupBreakout || c.Direction != model.Long {
		t.Fatalf("expected BREAKOUT, got %+v", c)
	}
	assertClose(t, "stop", c.Stop, 98.98, 1e-9)
	assertTargets(t, c.Targets, []float64{102 * 1.02, 102 * 1.05})

	ctx.Bars5m[len(ctx.Bars5m)-1] = model.Bar{Close: 98, Volume: 300}
	c = d.Detect(ctx)
	if c == nil || c.Type != model.SetupBreakdown || c.Direction != model.Short {
		t.Fatalf("expected BREAKDOWN, got %+v", c)
	}
	assertClose(t, "stop", c.Stop, 100.98, 1e-9)

	ctx.Bars5m[len(ctx.Bars5m)-1] = model.Bar{Close: 102, Volume: 90}
	if d.Detect(ctx) != nil {
		t.Fatal("breakout on below-average volume must not fire")
	}
}

func TestDefaultDetectors_Names(t *testing.T) {
	ds := DefaultDetectors(DefaultConfig())
	if len(ds) != 6 {
		t.Fatalf("expected 6 detectors, got %d", len(ds))
	}
	known := map[string]bool{}
	for _, st := range []model.SetupType{
		model.SetupORBPatientCandle, model.SetupEMABounce, model.SetupVWAPReclaim,
		model.SetupEMACloud, model.SetupFibPullback, model.SetupBreakout,
	} {
		known[string(st)] = true
	}
	seen := map[string]bool{}
	for _, d := range ds {
		if seen[d.Name()] {
			t.Fatalf("duplicate detector name %s", d.Name())
		}
		if !known[d.Name()] {
			t.Errorf("detector name %s is not a setup type", d.Name())
		}
		seen[d.Name()] = true
	}
}

func TestScore_TrendFollowsDirection(t *testing.T) {
	sc := NewScorer(DefaultConfig())
	ctx := &Context{
		Bars5m:  flatBars(2, 101, 99, 100, 100),
		Snap60m: bullish60m(),
	}
	if !sc.Score(ctx, model.Long)[0].Present {
		t.Error("bullish 60m stack should support LONG")
	}
	if sc.Score(ctx, model.Short)[0].Present {
		t.Error("bullish 60m stack must not support SHORT")
	}
	ctx.Snap60m = model.IndicatorSnapshot{EMA9: model.Float(101), EMA21: model.Float(103), EMA50: model.Float(102)}
	if sc.Score(ctx, model.Long)[0].Present || sc.Score(ctx, model.Short)[0].Present {
		t.Error("mixed 60m stack supports neither direction")
	}
}
