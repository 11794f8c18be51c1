package window

import (
	"testing"
	"time"
)

func TestMonthBounds(t *testing.T) {
	tests := []struct {
		name      string
		at        time.Time
		wantStart time.Time
		wantNext  time.Time
	}{
		{
			name:      "mid month",
			at:        time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC),
			wantStart: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			wantNext:  time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "december rolls the year",
			at:        time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC),
			wantStart: time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC),
			wantNext:  time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "first instant of month",
			at:        time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
			wantStart: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
			wantNext:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "non UTC input",
			at:        time.Date(2026, 5, 1, 1, 0, 0, 0, time.FixedZone("CEST", 2*3600)),
			wantStart: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
			wantNext:  time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, next := MonthBounds(tt.at)
			if !start.Equal(tt.wantStart) {
				t.Errorf("Expected start %v, got %v", tt.wantStart, start)
			}
			if !next.Equal(tt.wantNext) {
				t.Errorf("Expected next %v, got %v", tt.wantNext, next)
			}
		})
	}
}

func TestTrailing(t *testing.T) {
	asOf := time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)
	from, to := Trailing(asOf, time.Minute)

	if !to.Equal(asOf) {
		t.Errorf("Expected to %v, got %v", asOf, to)
	}
	if want := asOf.Add(-time.Minute); !from.Equal(want) {
		t.Errorf("Expected from %v, got %v", want, from)
	}
}

func TestResets(t *testing.T) {
	asOf := time.Date(2026, 3, 31, 23, 59, 30, 500, time.UTC)
	r := Resets(asOf)

	if want := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC); !r.NextMinute.Equal(want) {
		t.Errorf("Expected next minute %v, got %v", want, r.NextMinute)
	}
	if want := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC); !r.NextHour.Equal(want) {
		t.Errorf("Expected next hour %v, got %v", want, r.NextHour)
	}
	if want := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC); !r.NextMonth.Equal(want) {
		t.Errorf("Expected next month %v, got %v", want, r.NextMonth)
	}

	onMinute := time.Date(2026, 3, 10, 8, 15, 0, 0, time.UTC)
	r = Resets(onMinute)
	if want := onMinute.Add(time.Minute); !r.NextMinute.Equal(want) {
		t.Errorf("Expected next minute %v, got %v", want, r.NextMinute)
	}
	if want := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC); !r.NextHour.Equal(want) {
		t.Errorf("Expected next hour %v, got %v", want, r.NextHour)
	}
}

func TestRetryAfter(t *testing.T) {
	asOf := time.Date(2026, 3, 10, 8, 15, 20, int(300*time.Millisecond), time.UTC)

	if got := RetryAfter(asOf, asOf.Truncate(time.Minute).Add(time.Minute)); got != 40*time.Second {
		t.Errorf("Expected 40s, got %v", got)
	}
	if got := RetryAfter(asOf, asOf); got != time.Second {
		t.Errorf("Expected 1s floor, got %v", got)
	}
}
