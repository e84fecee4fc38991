package util

import (
	"fmt"
	"time"
)

const (
	// DateLayout is the calendar date format used in tables and requests.
	DateLayout = "2006-01-02"
	// DatetimeLayout is the bar datetime format stored alongside the raw timestamp.
	DatetimeLayout = "2006-01-02 15:04:05"
	// CalendarLayout is the date format of market calendar CSV files.
	CalendarLayout = "01/02/2006"
)

// ParseDate parses a YYYY-MM-DD date as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// FormatDate formats t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// MillisToUTC converts a provider timestamp in epoch milliseconds to UTC.
func MillisToUTC(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// Datetime renders epoch milliseconds as a UTC datetime string with second precision.
func Datetime(ms int64) string {
	return time.Unix(ms/1000, 0).UTC().Format(DatetimeLayout)
}

// Weekdays lists every Monday-Friday date in [start, end].
func Weekdays(start, end time.Time) []time.Time {
	var out []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		switch d.Weekday() {
		case time.Saturday, time.Sunday:
			continue
		}
		out = append(out, d)
	}
	return out
}

// WithinRange filters dates to those in [start, end].
func WithinRange(dates []time.Time, start, end time.Time) []time.Time {
	out := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		if d.Before(start) || d.After(end) {
			continue
		}
		out = append(out, d)
	}
	return out
}
