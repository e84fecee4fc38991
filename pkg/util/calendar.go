package util

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"
)

// ReadCalendar loads market dates from column of the CSV file at path.
func ReadCalendar(path, column string) ([]time.Time, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open calendar: %w", err)
	}
	defer f.Close()
	return ParseCalendar(f, column)
}

// ParseCalendar reads MM/DD/YYYY dates from the named column and returns
// them as sorted, de-duplicated UTC dates.
func ParseCalendar(r io.Reader, column string) ([]time.Time, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read calendar header: %w", err)
	}
	idx := -1
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), column) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("calendar column %q not found", column)
	}

	seen := make(map[time.Time]bool)
	var dates []time.Time
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read calendar line %d: %w", line, err)
		}
		if idx >= len(rec) || strings.TrimSpace(rec[idx]) == "" {
			continue
		}
		d, err := time.Parse(CalendarLayout, strings.TrimSpace(rec[idx]))
		if err != nil {
			return nil, fmt.Errorf("calendar line %d: %w", line, err)
		}
		if !seen[d] {
			seen[d] = true
			dates = append(dates, d)
		}
	}

	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}
