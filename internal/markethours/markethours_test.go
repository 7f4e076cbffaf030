package markethours

import (
	"strings"
	"testing"
	"time"
)

func ny(t *testing.T, s string) time.Time {
	t.Helper()
	loc, err := time.LoadLocation(DefaultTimezone)
	if err != nil {
		t.Fatal(err)
	}
	ts, err := time.ParseInLocation("2006-01-02 15:04", s, loc)
	if err != nil {
		t.Fatal(err)
	}
	return ts
}

func TestIsMarketOpen(t *testing.T) {
	s := Default()
	tests := []struct {
		at   string
		want bool
	}{
		{"2026-03-02 09:29", false}, // Monday pre-open
		{"2026-03-02 09:30", true},
		{"2026-03-02 15:59", true},
		{"2026-03-02 16:00", false},
		{"2026-03-07 11:00", false}, // Saturday
		{"2026-04-03 11:00", false}, // Good Friday
	}
	for _, tt := range tests {
		if got := s.IsMarketOpen(ny(t, tt.at)); got != tt.want {
			t.Errorf("IsMarketOpen(%s) = %v, want %v", tt.at, got, tt.want)
		}
	}
}

func TestMinutesSinceOpen_UTCInput(t *testing.T) {
	s := Default()
	// 14:45 UTC on 2026-03-02 is 09:45 EST
	m, ok := s.MinutesSinceOpen(time.Date(2026, 3, 2, 14, 45, 0, 0, time.UTC))
	if !ok || m != 15 {
		t.Fatalf("MinutesSinceOpen = %v ok=%v, want 15 true", m, ok)
	}
	if _, ok := s.MinutesSinceOpen(ny(t, "2026-03-08 10:00")); ok {
		t.Fatal("Sunday is not a trading day")
	}
}

func TestNextOpen_SkipsWeekendAndHoliday(t *testing.T) {
	s := Default()
	// Thursday 2026-04-02 after close -> Good Friday closed -> Monday 04-06
	got := s.NextOpen(ny(t, "2026-04-02 17:00"))
	want := ny(t, "2026-04-06 09:30")
	if !got.Equal(want) {
		t.Fatalf("NextOpen = %v, want %v", got, want)
	}
	// Before the open on a trading day -> same day
	got = s.NextOpen(ny(t, "2026-03-03 08:00"))
	if !got.Equal(ny(t, "2026-03-03 09:30")) {
		t.Fatalf("NextOpen same-day = %v", got)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New("Nowhere/Bogus", "09:30", "16:00", nil); err == nil {
		t.Error("expected error for unknown timezone")
	}
	if _, err := New("UTC", "16:00", "09:30", nil); err == nil {
		t.Error("expected error for close before open")
	}
	if _, err := New("UTC", "9h", "16:00", nil); err == nil {
		t.Error("expected error for malformed clock")
	}
	if _, err := New("UTC", "08:00", "16:30", []string{"2026-13-01"}); err == nil {
		t.Error("expected error for malformed holiday")
	}
	s, err := New("Asia/Kolkata", "09:15", "15:30", []string{})
	if err != nil {
		t.Fatal(err)
	}
	if s.IsHoliday(time.Date(2026, 12, 25, 6, 0, 0, 0, time.UTC)) {
		t.Error("empty holiday list should not inherit defaults")
	}
}

func TestStatusString(t *testing.T) {
	s := Default()
	if got := s.StatusString(ny(t, "2026-03-02 15:00")); !strings.HasPrefix(got, "Market Open") {
		t.Errorf("status = %q", got)
	}
	if got := s.StatusString(ny(t, "2026-03-07 12:00")); !strings.Contains(got, "Mon 09:30") {
		t.Errorf("status = %q", got)
	}
}
