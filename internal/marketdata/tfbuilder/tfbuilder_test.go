package tfbuilder

import (
	"math"
	"testing"
	"time"

	"trading-setups/internal/model"
)

var base = time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)

func makeBar(minute int, open, high, low, close_, vol float64) model.Bar {
	return model.Bar{
		Symbol:    "AAPL",
		Timestamp: base.Add(time.Duration(minute) * time.Minute),
		Open:      open, High: high, Low: low, Close: close_, Volume: vol,
	}
}

func TestFold_OHLCV(t *testing.T) {
	bars := []model.Bar{
		makeBar(0, 100, 102, 99, 101, 10),
		makeBar(1, 101, 105, 100, 104, 20),
		makeBar(2, 104, 104, 97, 98, 30),
	}
	got := Fold(bars)

	if got.Open != 100 || got.High != 105 || got.Low != 97 || got.Close != 98 {
		t.Errorf("OHLC mismatch: %+v", got)
	}
	if got.Volume != 60 {
		t.Errorf("volume = %v, want 60", got.Volume)
	}
	if !got.Timestamp.Equal(base) {
		t.Errorf("timestamp = %v, want first bar's %v", got.Timestamp, base)
	}
	// typical prices: 100.666.., 103, 99.666..
	want := (100.0+2.0/3)*10 + 103*20 + (99.0+2.0/3)*30
	want /= 60
	if math.Abs(got.VWAP-want) > 1e-9 {
		t.Errorf("vwap = %v, want %v", got.VWAP, want)
	}
}

func TestFold_ZeroVolumeVWAP(t *testing.T) {
	got := Fold([]model.Bar{makeBar(0, 1, 2, 0.5, 1.5, 0), makeBar(1, 1.5, 2, 1, 1.75, 0)})
	if got.VWAP != 1.75 {
		t.Errorf("zero-volume vwap = %v, want last close", got.VWAP)
	}
}

func TestBuilder_5mNeedsFiveBars(t *testing.T) {
	b := New(DefaultCaps())
	for i := 0; i < 4; i++ {
		res, ok := b.Append(makeBar(i, 100, 101, 99, 100, 1))
		if !ok || res.Bar5m {
			t.Fatalf("bar %d: unexpected 5m bar", i)
		}
	}
	res, _ := b.Append(makeBar(4, 100, 101, 99, 100, 1))
	if !res.Bar5m || res.Bar60m {
		t.Fatalf("expected only a 5m bar on the 5th append, got %+v", res)
	}
	if b.Len(model.TF5m) != 1 {
		t.Fatalf("5m len = %d, want 1", b.Len(model.TF5m))
	}
}

func TestBuilder_Sliding5m_HighAndVolume(t *testing.T) {
	b := New(DefaultCaps())
	var all []model.Bar
	for i := 0; i < 30; i++ {
		h := 100 + float64((i*7)%11)
		bar := makeBar(i, 100, h, 95, 99, float64(10+i))
		all = append(all, bar)
		b.Append(bar)

		if i < 4 {
			continue
		}
		latest, _ := b.History(model.TF5m).Latest()
		window := all[len(all)-5:]
		maxHigh, vol := 0.0, 0.0
		for _, w := range window {
			maxHigh = math.Max(maxHigh, w.High)
			vol += w.Volume
		}
		if latest.High != maxHigh {
			t.Errorf("bar %d: 5m high = %v, want %v", i, latest.High, maxHigh)
		}
		if latest.Volume != vol {
			t.Errorf("bar %d: 5m volume = %v, want %v", i, latest.Volume, vol)
		}
		if !latest.Timestamp.Equal(window[0].Timestamp) {
			t.Errorf("bar %d: 5m ts = %v, want %v", i, latest.Timestamp, window[0].Timestamp)
		}
	}
	// sliding: one 5m bar per 1m bar after warm-up
	if b.Len(model.TF5m) != 26 {
		t.Errorf("5m len = %d, want 26", b.Len(model.TF5m))
	}
}

func TestBuilder_60mAndCaps(t *testing.T) {
	b := New(Caps{Bars1m: 80, Bars5m: 20, Bars60m: 10})
	counts := map[model.Timeframe]int{}
	b.OnTFBar = func(tf model.Timeframe) { counts[tf]++ }

	for i := 0; i < 200; i++ {
		b.Append(makeBar(i, 100, 101, 99, 100, 1))
	}
	if b.Len(model.TF1m) != 80 || b.Len(model.TF5m) != 20 || b.Len(model.TF60m) != 10 {
		t.Fatalf("caps exceeded: 1m=%d 5m=%d 60m=%d", b.Len(model.TF1m), b.Len(model.TF5m), b.Len(model.TF60m))
	}
	if counts[model.TF1m] != 200 || counts[model.TF5m] != 196 || counts[model.TF60m] != 141 {
		t.Errorf("hook counts = %v", counts)
	}
	latest, _ := b.History(model.TF60m).Latest()
	if latest.Volume != 60 {
		t.Errorf("60m volume = %v, want 60", latest.Volume)
	}
}

func TestBuilder_DefaultCapsOnZero(t *testing.T) {
	b := New(Caps{})
	if b.History(model.TF1m).Cap() != 500 || b.History(model.TF5m).Cap() != 200 || b.History(model.TF60m).Cap() != 100 {
		t.Fatal("zero caps should fall back to 500/200/100")
	}
	if b.History(model.Timeframe(15)) != nil {
		t.Fatal("unknown timeframe should have no history")
	}
}

func TestBuilder_StaleBar_Rejected(t *testing.T) {
	b := New(DefaultCaps())
	b.StaleTolerance = 2 * time.Minute
	stale := 0
	b.OnStaleBar = func() { stale++ }

	b.Append(makeBar(10, 100, 101, 99, 100, 1))
	if _, ok := b.Append(makeBar(9, 100, 101, 99, 100, 1)); !ok {
		t.Fatal("bar within tolerance should be accepted")
	}
	if _, ok := b.Append(makeBar(5, 100, 101, 99, 100, 1)); ok {
		t.Fatal("bar 5 minutes behind should be rejected")
	}
	if stale != 1 || b.Len(model.TF1m) != 2 {
		t.Fatalf("stale=%d len=%d, want 1 and 2", stale, b.Len(model.TF1m))
	}
}

func TestBuilder_StaleTolerance_Disabled(t *testing.T) {
	b := New(DefaultCaps())
	b.Append(makeBar(10, 100, 101, 99, 100, 1))
	if _, ok := b.Append(makeBar(0, 100, 101, 99, 100, 1)); !ok {
		t.Fatal("with tolerance 0, out-of-order bars are accepted")
	}
}
