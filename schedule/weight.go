package schedule

import "time"

// DateWeight returns the volume weight factor for a calendar day. Banking
// activity is heavier on workdays and around month and quarter boundaries;
// planned per-day volumes are scaled by this factor.
//
// The factor is a pure function of the date so that planned volumes, and
// therefore resume points, are reproducible.
func DateWeight(day time.Time) float64 {
	weight := 1.0

	if IsWorkday(day) {
		weight *= 1.2
	} else {
		weight *= 0.8
	}

	// Month start: salaries land, transfers spike.
	if day.Day() <= 5 {
		weight *= 1.3
	}

	last := daysInMonth(day)
	if day.Day() >= last-2 {
		weight *= 1.4
	}

	// Quarter end.
	switch day.Month() {
	case time.March, time.June, time.September, time.December:
		if day.Day() >= last-5 {
			weight *= 1.5
		}
	default:
	}

	return weight
}

// IsWorkday reports whether the day is Monday through Friday.
func IsWorkday(day time.Time) bool {
	wd := day.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

func daysInMonth(day time.Time) int {
	y, m, _ := day.Date()
	return time.Date(y, m+1, 0, 0, 0, 0, 0, day.Location()).Day()
}
