package scheduler

import (
	"errors"
	"testing"
	"time"

	"trading-setups/internal/markethours"
)

type fakePruner struct {
	cutoff time.Time
	n      int
}

func (f *fakePruner) PruneTerminal(cutoff time.Time) int {
	f.cutoff = cutoff
	return f.n
}

type fakeJournal struct {
	cutoff time.Time
	err    error
}

func (f *fakeJournal) DeleteSetupsBefore(cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return 3, f.err
}

func TestPruneTask_UsesRetention(t *testing.T) {
	now := time.Date(2026, 1, 5, 20, 0, 0, 0, time.UTC)
	eng := &fakePruner{n: 2}
	j := &fakeJournal{}
	s := New(eng, j, nil, 6*time.Hour)
	s.now = func() time.Time { return now }
	pruned := -1
	s.OnPrune = func(n int) { pruned = n }

	s.pruneTask()

	want := now.Add(-6 * time.Hour)
	if !eng.cutoff.Equal(want) || !j.cutoff.Equal(want) {
		t.Errorf("cutoffs = %v / %v, want %v", eng.cutoff, j.cutoff, want)
	}
	if pruned != 2 {
		t.Errorf("OnPrune = %d, want 2", pruned)
	}
}

func TestPruneTask_JournalErrorAndNil(t *testing.T) {
	eng := &fakePruner{}
	s := New(eng, &fakeJournal{err: errors.New("locked")}, nil, time.Hour)
	s.pruneTask() // must not panic

	s = New(eng, nil, nil, time.Hour)
	s.pruneTask()
}

func TestStatusTask_MarketState(t *testing.T) {
	sess := markethours.Default()
	s := New(&fakePruner{}, nil, sess, time.Hour)

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"monday midday", time.Date(2026, 1, 5, 17, 0, 0, 0, time.UTC), true},
		{"monday pre-open", time.Date(2026, 1, 5, 13, 0, 0, 0, time.UTC), false},
		{"saturday", time.Date(2026, 1, 10, 17, 0, 0, 0, time.UTC), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s.now = func() time.Time { return tt.at }
			var got *bool
			s.OnMarketState = func(open bool) { got = &open }
			s.statusTask()
			if got == nil || *got != tt.want {
				t.Errorf("market open = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRegisterAll(t *testing.T) {
	s := New(&fakePruner{}, nil, nil, time.Hour)
	if err := s.RegisterAll("0 */15 * * * *", "0 0 * * * *"); err != nil {
		t.Fatal(err)
	}
	if got := len(s.Cron.Entries()); got != 2 {
		t.Errorf("entries = %d, want 2", got)
	}
	if err := s.RegisterAll("not a cron expression", ""); err == nil {
		t.Error("expected error for invalid spec")
	}
}
