package notification

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"trading-setups/internal/model"
)

// Dispatcher turns setup events into alerts and fans them out to notifiers.
// Events whose setup scores below minScore are not alerted.
type Dispatcher struct {
	notifiers []Notifier
	minScore  int
	timeout   time.Duration
}

// NewDispatcher creates a dispatcher. With no notifiers it logs only.
func NewDispatcher(minScore int, notifiers ...Notifier) *Dispatcher {
	if len(notifiers) == 0 {
		notifiers = []Notifier{NewLogNotifier()}
	}
	return &Dispatcher{notifiers: notifiers, minScore: minScore, timeout: 15 * time.Second}
}

// Run reads events from ch and delivers alerts.
// Blocks until ctx is cancelled or ch is closed.
func (d *Dispatcher) Run(ctx context.Context, ch <-chan model.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			d.Handle(ctx, ev)
		}
	}
}

// Handle delivers one event. Notifier errors are logged, not returned.
func (d *Dispatcher) Handle(ctx context.Context, ev model.Event) {
	if ev.Setup.ConfluenceScore < d.minScore {
		return
	}
	alert := FromEvent(ev)
	for _, n := range d.notifiers {
		sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
		if err := n.Send(sendCtx, alert); err != nil {
			log.Printf("[notify] %s for %s: %v", ev.Type, ev.Setup.ID, err)
		}
		cancel()
	}
}

// Close satisfies model.EventSink.
func (d *Dispatcher) Close() error { return nil }

// FromEvent renders an event as an alert. Prices are shown with two decimals.
func FromEvent(ev model.Event) Alert {
	s := ev.Setup
	a := Alert{
		Symbol:  s.Symbol,
		SetupID: s.ID,
		Fields: []Field{
			{Name: "Entry", Value: price(s.EntryPrice)},
			{Name: "Stop", Value: price(s.StopLoss)},
			{Name: "Targets", Value: prices(s.Targets)},
			{Name: "Confluence", Value: fmt.Sprintf("%d/5", s.ConfluenceScore)},
		},
	}

	switch ev.Type {
	case model.EventSetupDetected:
		a.Level = AlertInfo
		a.Title = fmt.Sprintf("%s %s %s", s.Symbol, s.Direction, s.Type)
		a.Message = "New setup on " + s.Timeframe.String()
		if f := presentFactors(s.ConfluenceFactors); f != "" {
			a.Fields = append(a.Fields, Field{Name: "Factors", Value: f})
		}
	case model.EventTargetHit:
		a.Level = AlertWarning
		a.Title = fmt.Sprintf("%s target %d hit", s.Symbol, ev.TargetIndex+1)
		a.Message = fmt.Sprintf("%s %s is ACTIVE at %s", s.Type, s.Direction, price(ev.Price))
	case model.EventStopLossHit:
		a.Level = AlertCritical
		a.Title = fmt.Sprintf("%s stop hit", s.Symbol)
		a.Message = fmt.Sprintf("%s %s closed at %s", s.Type, s.Direction, price(ev.Price))
	case model.EventStatusChanged:
		a.Level = AlertInfo
		a.Title = fmt.Sprintf("%s %s", s.Symbol, s.Status)
		a.Message = fmt.Sprintf("%s %s set to %s", s.Type, s.Direction, s.Status)
	default:
		a.Level = AlertInfo
		a.Title = fmt.Sprintf("%s %s", s.Symbol, ev.Type)
	}
	return a
}

func price(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

func prices(vs []float64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = price(v)
	}
	return strings.Join(parts, " / ")
}

func presentFactors(fs []model.ConfluenceFactor) string {
	var names []string
	for _, f := range fs {
		if f.Present {
			names = append(names, f.Name)
		}
	}
	return strings.Join(names, ", ")
}
