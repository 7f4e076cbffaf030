package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestTimeframe_TextRoundTrip(t *testing.T) {
	for _, tf := range Timeframes {
		b, _ := tf.MarshalText()
		var got Timeframe
		if err := got.UnmarshalText(b); err != nil || got != tf {
			t.Errorf("%v: round trip gave %v err=%v", tf, got, err)
		}
	}
	var tf Timeframe
	if err := tf.UnmarshalText([]byte("300")); err != nil || tf != TF5m {
		t.Errorf("plain seconds: %v %v", tf, err)
	}
	if err := tf.UnmarshalText([]byte("xm")); err == nil {
		t.Error("expected error for bad label")
	}
}

func TestSetup_CloneIsDeep(t *testing.T) {
	pc := Bar{Close: 10}
	s := Setup{
		Targets:           []float64{1, 2},
		ConfluenceFactors: []ConfluenceFactor{{Name: "rsi", Present: true}},
		PatientCandle:     &pc,
		Indicators:        IndicatorSnapshot{EMA9: Float(5)},
	}
	c := s.Clone()
	c.Targets[0] = 99
	c.ConfluenceFactors[0].Present = false
	c.PatientCandle.Close = 99
	*c.Indicators.EMA9 = 99

	if s.Targets[0] != 1 || !s.ConfluenceFactors[0].Present || s.PatientCandle.Close != 10 || *s.Indicators.EMA9 != 5 {
		t.Fatalf("clone shares memory with original: %+v", s)
	}
}

func TestStatus_Classes(t *testing.T) {
	open := []Status{StatusForming, StatusReady, StatusActive}
	for _, s := range open {
		if !s.Open() || s.Terminal() {
			t.Errorf("%s should be open", s)
		}
	}
	for _, s := range []Status{StatusClosed, StatusDismiss} {
		if s.Open() || !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	if StatusReentry.Open() || StatusReentry.Terminal() || !StatusReentry.Valid() {
		t.Error("REENTRY_SETUP is parked: neither open nor terminal")
	}
	if Status("BOGUS").Valid() {
		t.Error("unknown status should be invalid")
	}
}

func TestEvent_JSONShape(t *testing.T) {
	ev := Event{
		ID:   "e1",
		Type: EventTargetHit,
		Setup: Setup{
			ID: "AAPL-1", Symbol: "AAPL", Timeframe: TF5m,
			Indicators: IndicatorSnapshot{RSI14: Float(42)},
		},
		TargetIndex: 1,
		Price:       105,
		Timestamp:   time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC),
	}
	var m map[string]any
	if err := json.Unmarshal(ev.JSON(), &m); err != nil {
		t.Fatal(err)
	}
	setup := m["setup"].(map[string]any)
	if setup["timeframe"] != "5m" {
		t.Errorf("timeframe encoded as %v", setup["timeframe"])
	}
	ind := setup["indicators"].(map[string]any)
	if _, ok := ind["ema9"]; ok {
		t.Error("absent indicators should be omitted")
	}
	if ev.Channel() != "pub:setup:target-hit:AAPL" {
		t.Errorf("channel = %s", ev.Channel())
	}
}

func TestEvent_FirstTargetIndexEncoded(t *testing.T) {
	ev := Event{ID: "e2", Type: EventTargetHit, TargetIndex: 0, Price: 106}
	var m map[string]any
	if err := json.Unmarshal(ev.JSON(), &m); err != nil {
		t.Fatal(err)
	}
	idx, ok := m["target_index"]
	if !ok {
		t.Fatal("target_index missing for first target")
	}
	if idx.(float64) != 0 {
		t.Errorf("target_index = %v, want 0", idx)
	}
}
