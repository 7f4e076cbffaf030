package notification

import (
	"context"
	"errors"

	"trading-setups/internal/breaker"
)

// Guarded wraps a Notifier with a circuit breaker so a failing channel is
// skipped for a cooldown instead of slowing every alert.
type Guarded struct {
	name string
	next Notifier
	cb   *breaker.Breaker

	// OnResult is called after every attempt with "ok", "error" or "skipped".
	OnResult func(name, result string)
}

// NewGuarded wraps next. name labels log lines and metrics.
func NewGuarded(name string, next Notifier, cb *breaker.Breaker) *Guarded {
	return &Guarded{name: name, next: next, cb: cb}
}

// Name returns the notifier label.
func (g *Guarded) Name() string { return g.name }

func (g *Guarded) Send(ctx context.Context, alert Alert) error {
	err := g.cb.Execute(func() error { return g.next.Send(ctx, alert) })
	if g.OnResult != nil {
		switch {
		case err == nil:
			g.OnResult(g.name, "ok")
		case errors.Is(err, breaker.ErrOpen):
			g.OnResult(g.name, "skipped")
		default:
			g.OnResult(g.name, "error")
		}
	}
	return err
}
