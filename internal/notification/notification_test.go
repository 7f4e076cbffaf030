package notification

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"trading-setups/internal/breaker"
	"trading-setups/internal/model"
)

// captureServer records request bodies and answers with status.
func captureServer(t *testing.T, status int) (*httptest.Server, func() []string) {
	t.Helper()
	var mu sync.Mutex
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, r.URL.Path+" "+string(b))
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), bodies...)
	}
}

func sampleEvent(typ model.EventType) model.Event {
	return model.Event{
		Type: typ,
		Setup: model.Setup{
			ID:              "AAPL-7",
			Symbol:          "AAPL",
			Type:            model.SetupVWAPReclaim,
			Direction:       model.Long,
			Timeframe:       model.TF5m,
			EntryPrice:      187.1,
			StopLoss:        185.955,
			Targets:         []float64{189, 191.333},
			ConfluenceScore: 3,
			ConfluenceFactors: []model.ConfluenceFactor{
				{Name: "trend_alignment", Present: true},
				{Name: "rsi", Present: false},
				{Name: "vwap", Present: true},
			},
		},
		TargetIndex: 1,
		Price:       191.4,
		Timestamp:   time.Date(2026, 1, 5, 15, 0, 0, 0, time.UTC),
	}
}

// ────────────────────────────────────────────────────────────
// Alert rendering
// ────────────────────────────────────────────────────────────

func TestFromEvent(t *testing.T) {
	a := FromEvent(sampleEvent(model.EventSetupDetected))
	if a.Level != AlertInfo || a.Title != "AAPL LONG VWAP_RECLAIM" {
		t.Errorf("alert = %+v", a)
	}
	want := map[string]string{
		"Entry":      "187.10",
		"Stop":       "185.96",
		"Targets":    "189.00 / 191.33",
		"Confluence": "3/5",
		"Factors":    "trend_alignment, vwap",
	}
	got := map[string]string{}
	for _, f := range a.Fields {
		got[f.Name] = f.Value
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("field %s = %q, want %q", k, got[k], v)
		}
	}

	hit := FromEvent(sampleEvent(model.EventTargetHit))
	if hit.Level != AlertWarning || hit.Title != "AAPL target 2 hit" {
		t.Errorf("target alert = %+v", hit)
	}
	stop := FromEvent(sampleEvent(model.EventStopLossHit))
	if stop.Level != AlertCritical || !strings.Contains(stop.Message, "191.40") {
		t.Errorf("stop alert = %+v", stop)
	}
	ev := sampleEvent(model.EventStatusChanged)
	ev.Setup.Status = model.StatusDismiss
	changed := FromEvent(ev)
	if changed.Level != AlertInfo || changed.Title != "AAPL DISMISSED" {
		t.Errorf("status alert = %+v", changed)
	}
}

func TestEscapeMarkdown(t *testing.T) {
	if got := escapeMarkdown("a.b-c_(d)"); got != `a\.b\-c\_\(d\)` {
		t.Errorf("escapeMarkdown = %s", got)
	}
}

// ────────────────────────────────────────────────────────────
// HTTP notifiers
// ────────────────────────────────────────────────────────────

func TestDiscordNotifier(t *testing.T) {
	srv, bodies := captureServer(t, http.StatusNoContent)
	n := NewDiscordNotifier(srv.URL + "/hook")
	if err := n.Send(context.Background(), FromEvent(sampleEvent(model.EventStopLossHit))); err != nil {
		t.Fatal(err)
	}
	got := bodies()
	if len(got) != 1 {
		t.Fatalf("requests = %d", len(got))
	}
	var payload struct {
		Embeds []discordEmbed `json:"embeds"`
	}
	if err := json.Unmarshal([]byte(strings.TrimPrefix(got[0], "/hook ")), &payload); err != nil {
		t.Fatal(err)
	}
	if len(payload.Embeds) != 1 || payload.Embeds[0].Color != colorCritical || payload.Embeds[0].Footer.Text != "AAPL-7" {
		t.Errorf("embed = %+v", payload.Embeds)
	}
}

func TestTelegramNotifier(t *testing.T) {
	srv, bodies := captureServer(t, http.StatusOK)
	n := NewTelegramNotifier("TOKEN", "42")
	n.apiBase = srv.URL
	if err := n.Send(context.Background(), Alert{Level: AlertInfo, Title: "AAPL", Message: "x"}); err != nil {
		t.Fatal(err)
	}
	got := bodies()
	if len(got) != 1 || !strings.HasPrefix(got[0], "/botTOKEN/sendMessage ") || !strings.Contains(got[0], `"chat_id":"42"`) {
		t.Errorf("request = %v", got)
	}
}

func TestWebhookNotifier_Non2xx(t *testing.T) {
	srv, _ := captureServer(t, http.StatusInternalServerError)
	err := NewWebhookNotifier(srv.URL).Send(context.Background(), Alert{Title: "x"})
	if err == nil || !strings.Contains(err.Error(), "500") {
		t.Errorf("err = %v", err)
	}
}

// ────────────────────────────────────────────────────────────
// Guarded + Dispatcher
// ────────────────────────────────────────────────────────────

type countingNotifier struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingNotifier) Send(ctx context.Context, a Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.err
}

func TestGuarded_SkipsWhileOpen(t *testing.T) {
	inner := &countingNotifier{err: errors.New("down")}
	g := NewGuarded("discord", inner, breaker.New(2, time.Hour))
	results := map[string]int{}
	g.OnResult = func(name, result string) { results[result]++ }

	for i := 0; i < 5; i++ {
		g.Send(context.Background(), Alert{})
	}
	if inner.calls != 2 {
		t.Errorf("inner calls = %d, want 2", inner.calls)
	}
	if results["error"] != 2 || results["skipped"] != 3 {
		t.Errorf("results = %v", results)
	}
}

func TestDispatcher_MinScoreAndFanOut(t *testing.T) {
	a, b := &countingNotifier{}, &countingNotifier{err: errors.New("fail")}
	d := NewDispatcher(3, a, b)

	ch := make(chan model.Event, 4)
	ev := sampleEvent(model.EventSetupDetected)
	ch <- ev
	low := ev
	low.Setup.ConfluenceScore = 2
	ch <- low
	close(ch)
	d.Run(context.Background(), ch)

	if a.calls != 1 || b.calls != 1 {
		t.Errorf("calls = %d/%d, want 1/1", a.calls, b.calls)
	}
}
