package schedule_test

import (
	"math"
	"testing"
	"time"

	"github.com/xraph/simbank/schedule"
)

func TestDateWeight(t *testing.T) {
	tests := []struct {
		name string
		day  time.Time
		want float64
	}{
		// Tuesday mid-month: workday only.
		{"plain workday", date(2026, 3, 17, 0, 0), 1.2},
		// Saturday mid-month: weekend only.
		{"plain weekend", date(2026, 3, 14, 0, 0), 0.8},
		// Monday March 2nd: workday * month start.
		{"month start workday", date(2026, 3, 2, 0, 0), 1.2 * 1.3},
		// Tuesday March 31st: workday * month end * quarter end.
		{"quarter end", date(2026, 3, 31, 0, 0), 1.2 * 1.4 * 1.5},
		// Thursday April 30th: workday * month end, not quarter end.
		{"april month end", date(2026, 4, 30, 0, 0), 1.2 * 1.4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := schedule.DateWeight(tt.day)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("DateWeight(%v) = %v, want %v", tt.day.Format("2006-01-02"), got, tt.want)
			}
		})
	}
}

func TestDateWeight_Deterministic(t *testing.T) {
	day := date(2026, 6, 29, 0, 0)
	if schedule.DateWeight(day) != schedule.DateWeight(day) {
		t.Error("DateWeight must be a pure function of the date")
	}
}
