package domain

import (
	"fmt"
	"time"
)

// Granularity is the width of a reporting bucket.
type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

// PeriodFunc maps a timestamp to the start of the bucket containing it.
type PeriodFunc func(time.Time) time.Time

// ParseGranularity validates a granularity name.
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(s); g {
	case GranularityDay, GranularityWeek, GranularityMonth:
		return g, nil
	}
	return "", fmt.Errorf("unknown granularity %q", s)
}

// Truncate returns the start of the bucket containing t, in t's location.
// Weeks start on Monday.
func (g Granularity) Truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	switch g {
	case GranularityDay:
		return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	case GranularityWeek:
		offset := (int(t.Weekday()) + 6) % 7
		return time.Date(y, m, d-offset, 0, 0, 0, 0, t.Location())
	default:
		return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
	}
}

// PeriodFunc returns Truncate as a PeriodFunc.
func (g Granularity) PeriodFunc() PeriodFunc {
	return g.Truncate
}

// Label formats a bucket start for tables.
func (g Granularity) Label(start time.Time) string {
	switch g {
	case GranularityDay:
		return start.Format("2006-01-02")
	case GranularityWeek:
		year, week := start.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week)
	default:
		return start.Format("2006-01")
	}
}

// CapacityScale converts a monthly capacity into capacity for one bucket.
func (g Granularity) CapacityScale() float64 {
	const monthsPerDay = 12 / 365.25
	switch g {
	case GranularityDay:
		return monthsPerDay
	case GranularityWeek:
		return 7 * monthsPerDay
	default:
		return 1
	}
}
