// Package calendar resolves the latest period boundary for which a price
// provider is expected to have published complete bars.
package calendar

import (
	"fmt"
	"strings"
	"time"

	"PriceHistory/internal/model"
)

// PublicationLag is how far daily history from the provider trails the
// calendar.
const PublicationLag = 4 * 24 * time.Hour

// InceptionDate is the as-of date used by the "init" sentinel. Staleness
// against it selects only products that have never been loaded.
var InceptionDate = time.Date(1992, time.January, 1, 0, 0, 0, 0, time.UTC)

// ResolveBoundary returns the most recent period start that should already
// have data for granularity g, as seen on ref.
func ResolveBoundary(ref time.Time, g model.Granularity) (time.Time, error) {
	day := Truncate(ref)
	switch g {
	case model.Day:
		d := day.Add(-PublicationLag)
		switch d.Weekday() {
		case time.Saturday:
			d = d.AddDate(0, 0, -1)
		case time.Sunday:
			d = d.AddDate(0, 0, -2)
		}
		return d, nil
	case model.Week:
		// Monday of the previous full week.
		monday := day.AddDate(0, 0, -daysSinceMonday(day))
		return monday.AddDate(0, 0, -7), nil
	case model.Month:
		first := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
		prev := first.AddDate(0, 0, -1)
		return time.Date(prev.Year(), prev.Month(), 1, 0, 0, 0, 0, time.UTC), nil
	default:
		return time.Time{}, fmt.Errorf("resolve boundary: %w: %q", model.ErrInvalidGranularity, string(g))
	}
}

// ParseAsOf interprets the --lastdate value: "TD" (or empty) is today,
// "init" is InceptionDate, anything else must be YYYY-MM-DD.
func ParseAsOf(s string, today time.Time) (time.Time, error) {
	switch v := strings.TrimSpace(s); v {
	case "", "TD":
		return Truncate(today), nil
	case "init":
		return InceptionDate, nil
	default:
		t, err := time.Parse(model.DateLayout, v)
		if err != nil {
			return time.Time{}, fmt.Errorf("date value error, set a date like 1992-01-15, got %q", s)
		}
		return t, nil
	}
}

// Truncate drops the clock part of t, keeping its calendar day, in UTC.
func Truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func daysSinceMonday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}
