package schedule_test

import (
	"testing"
	"time"

	"github.com/xraph/simbank/schedule"
)

func date(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func newRule(opts ...schedule.Option) *schedule.TimeRule {
	opts = append([]schedule.Option{schedule.WithLocation(time.UTC)}, opts...)
	return schedule.NewTimeRule(opts...)
}

func TestNextTrigger(t *testing.T) {
	r := newRule()

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"before one am", date(2026, 3, 10, 0, 30), date(2026, 3, 10, 1, 0)},
		{"between one and thirteen", date(2026, 3, 10, 9, 0), date(2026, 3, 10, 13, 0)},
		{"after thirteen", date(2026, 3, 10, 14, 0), date(2026, 3, 11, 1, 0)},
		{"exactly thirteen", date(2026, 3, 10, 13, 0), date(2026, 3, 11, 1, 0)},
		{"exactly one am", date(2026, 3, 10, 1, 0), date(2026, 3, 10, 13, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.NextTrigger(tt.now); !got.Equal(tt.want) {
				t.Errorf("NextTrigger(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestMissedTriggers(t *testing.T) {
	r := newRule()

	// Last success at 14:00 on the 10th; process comes back at 02:00 on
	// the 12th. Missed: 11th 01:00, 11th 13:00, 12th 01:00.
	missed := r.MissedTriggers(date(2026, 3, 10, 14, 0), date(2026, 3, 12, 2, 0))
	want := []time.Time{
		date(2026, 3, 11, 1, 0),
		date(2026, 3, 11, 13, 0),
		date(2026, 3, 12, 1, 0),
	}
	if len(missed) != len(want) {
		t.Fatalf("MissedTriggers returned %d instants, want %d: %v", len(missed), len(want), missed)
	}
	for i := range want {
		if !missed[i].Equal(want[i]) {
			t.Errorf("missed[%d] = %v, want %v", i, missed[i], want[i])
		}
	}
}

func TestMissedTriggers_NoneOnFreshDeployment(t *testing.T) {
	r := newRule()
	if got := r.MissedTriggers(time.Time{}, date(2026, 3, 12, 2, 0)); got != nil {
		t.Errorf("expected no missed triggers for zero lastSuccess, got %v", got)
	}
}

func TestIsCatchUpNeeded(t *testing.T) {
	r := newRule()

	// No trigger between 13:30 and 23:00 the same day.
	if r.IsCatchUpNeeded(date(2026, 3, 10, 13, 30), date(2026, 3, 10, 23, 0)) {
		t.Error("no trigger elapsed, catch-up should not be needed")
	}
	// The 01:00 boundary was crossed.
	if !r.IsCatchUpNeeded(date(2026, 3, 10, 13, 30), date(2026, 3, 11, 2, 0)) {
		t.Error("01:00 boundary crossed, catch-up should be needed")
	}
}

func TestTriggerWindow(t *testing.T) {
	r := newRule()

	morning := r.TriggerWindow(date(2026, 3, 10, 13, 0))
	if !morning.Start.Equal(date(2026, 3, 10, 0, 0)) || !morning.End.Equal(date(2026, 3, 10, 12, 0)) {
		t.Errorf("13:00 trigger window = [%v, %v), want same day [00:00, 12:00)", morning.Start, morning.End)
	}

	night := r.TriggerWindow(date(2026, 3, 10, 1, 0))
	if !night.Start.Equal(date(2026, 3, 9, 13, 0)) || !night.End.Equal(date(2026, 3, 10, 0, 0)) {
		t.Errorf("01:00 trigger window = [%v, %v), want previous day [13:00, 24:00)", night.Start, night.End)
	}
}

func TestHistoricalWindow_EndsBeforeToday(t *testing.T) {
	now := date(2026, 3, 10, 15, 45)

	r := newRule(schedule.WithHistoricalStart(date(2025, 6, 1, 0, 0)))
	w := r.HistoricalWindow(now)

	if !w.Start.Equal(date(2025, 6, 1, 0, 0)) {
		t.Errorf("Start = %v, want 2025-06-01", w.Start)
	}
	if !w.End.Equal(date(2026, 3, 10, 0, 0)) {
		t.Errorf("End = %v, want today midnight (exclusive)", w.End)
	}
	if !w.End.After(w.Start) {
		t.Error("window must be non-empty")
	}

	// The historical window never contains any instant of the current day.
	if w.Contains(now) {
		t.Error("historical window must not contain the current day")
	}
}

func TestHistoricalWindow_FutureStartClampedToEmpty(t *testing.T) {
	r := newRule(schedule.WithHistoricalStart(date(2026, 6, 1, 0, 0)))
	w := r.HistoricalWindow(date(2026, 3, 10, 9, 0))

	today := date(2026, 3, 10, 0, 0)
	if !w.Start.Equal(today) || !w.End.Equal(today) {
		t.Errorf("window = [%v, %v), want empty [%v, %v)", w.Start, w.End, today, today)
	}
	if w.Duration() != 0 {
		t.Errorf("Duration() = %v, want 0", w.Duration())
	}
	// No forward-looking bound: nothing on or after today is covered.
	if w.Contains(date(2026, 4, 1, 0, 0)) {
		t.Error("clamped window must not contain future instants")
	}
}

func TestHistoricalWindow_DefaultsToOneYear(t *testing.T) {
	r := newRule()
	w := r.HistoricalWindow(date(2026, 3, 10, 9, 0))

	if !w.Start.Equal(date(2025, 3, 10, 0, 0)) {
		t.Errorf("Start = %v, want one year before today", w.Start)
	}
}

func TestWindow_Contains(t *testing.T) {
	w := schedule.Window{Start: date(2026, 3, 10, 0, 0), End: date(2026, 3, 10, 12, 0)}

	if !w.Contains(date(2026, 3, 10, 0, 0)) {
		t.Error("start bound is inclusive")
	}
	if w.Contains(date(2026, 3, 10, 12, 0)) {
		t.Error("end bound is exclusive")
	}
}
