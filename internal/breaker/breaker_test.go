package breaker

import (
	"errors"
	"testing"
	"time"
)

var errFail = errors.New("fail")

// fakeClock lets tests move past the reset timeout without sleeping.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(max int) (*Breaker, *fakeClock) {
	clk := &fakeClock{t: time.Date(2026, 1, 5, 15, 0, 0, 0, time.UTC)}
	b := New(max, time.Second)
	b.now = clk.now
	return b, clk
}

func TestBreaker_StartsClosed(t *testing.T) {
	b, _ := newTestBreaker(3)
	if b.State() != StateClosed {
		t.Errorf("expected Closed, got %v", b.State())
	}
}

func TestBreaker_OpensAfterFailures(t *testing.T) {
	b, _ := newTestBreaker(3)
	for i := 0; i < 3; i++ {
		if err := b.Execute(func() error { return errFail }); err != errFail {
			t.Fatalf("expected errFail, got %v", err)
		}
	}
	if b.State() != StateOpen {
		t.Errorf("expected Open after 3 failures, got %v", b.State())
	}
	called := false
	if err := b.Execute(func() error { called = true; return nil }); err != ErrOpen {
		t.Errorf("expected ErrOpen, got %v", err)
	}
	if called {
		t.Error("fn must not run while open")
	}
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	b, clk := newTestBreaker(2)
	b.Execute(func() error { return errFail })
	b.Execute(func() error { return errFail })

	clk.advance(2 * time.Second)
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("expected Closed after successful trial call, got %v", b.State())
	}
}

func TestBreaker_HalfOpenFailure(t *testing.T) {
	b, clk := newTestBreaker(2)
	b.Execute(func() error { return errFail })
	b.Execute(func() error { return errFail })

	clk.advance(2 * time.Second)
	b.Execute(func() error { return errFail })
	if b.State() != StateOpen {
		t.Errorf("expected Open after failed trial call, got %v", b.State())
	}
	// The failed trial call restarts the timeout.
	if err := b.Execute(func() error { return nil }); err != ErrOpen {
		t.Errorf("expected ErrOpen right after failed trial call, got %v", err)
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(3)
	b.Execute(func() error { return errFail })
	b.Execute(func() error { return errFail })
	b.Execute(func() error { return nil })
	b.Execute(func() error { return errFail })
	b.Execute(func() error { return errFail })

	if b.State() != StateClosed {
		t.Errorf("expected Closed (counter should have reset), got %v", b.State())
	}
}

func TestBreaker_OnStateChange(t *testing.T) {
	b, clk := newTestBreaker(1)
	var transitions []State
	b.OnStateChange = func(from, to State) { transitions = append(transitions, to) }

	b.Execute(func() error { return errFail })
	clk.advance(2 * time.Second)
	b.Execute(func() error { return nil })

	want := []State{StateOpen, StateHalfOpen, StateClosed}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transitions = %v, want %v", transitions, want)
		}
	}
}

func TestState_String(t *testing.T) {
	if StateHalfOpen.String() != "half-open" || State(9).String() != "unknown" {
		t.Error("unexpected state strings")
	}
}
