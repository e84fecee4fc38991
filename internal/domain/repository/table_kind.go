package repository

import (
	"fmt"
	"strconv"
	"strings"
)

// TableKind selects the fixed schema of a record table.
type TableKind string

const (
	KindBars      TableKind = "bars"
	KindMarketCap TableKind = "market_cap"
)

// IsValidTableKind returns true if k is a supported table kind.
func IsValidTableKind(k TableKind) bool {
	switch k {
	case KindBars, KindMarketCap:
		return true
	default:
		return false
	}
}

// ParseTableKind converts a configured kind name.
func ParseTableKind(s string) (TableKind, error) {
	k := TableKind(strings.TrimSpace(s))
	if !IsValidTableKind(k) {
		return "", fmt.Errorf("unknown table kind %q", s)
	}
	return k, nil
}

// Interval is an aggregate bar resolution such as 1/day or 5/minute.
type Interval struct {
	Multiplier int
	Timespan   string
}

func (i Interval) String() string {
	return strconv.Itoa(i.Multiplier) + "/" + i.Timespan
}

var validTimespans = map[string]bool{
	"second": true, "minute": true, "hour": true, "day": true,
	"week": true, "month": true, "quarter": true, "year": true,
}

// ParseInterval parses "<multiplier>/<timespan>".
func ParseInterval(s string) (Interval, error) {
	mult, span, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return Interval{}, fmt.Errorf("interval %q: want <multiplier>/<timespan>", s)
	}
	n, err := strconv.Atoi(mult)
	if err != nil || n <= 0 {
		return Interval{}, fmt.Errorf("interval %q: bad multiplier", s)
	}
	if !validTimespans[span] {
		return Interval{}, fmt.Errorf("interval %q: unknown timespan %q", s, span)
	}
	return Interval{Multiplier: n, Timespan: span}, nil
}

// DefaultInterval returns the interval used for a bars table with no explicit one:
// daily for ohlcv_daily, five minutes otherwise.
func DefaultInterval(table string) Interval {
	if table == "ohlcv_daily" {
		return Interval{Multiplier: 1, Timespan: "day"}
	}
	return Interval{Multiplier: 5, Timespan: "minute"}
}

// NormalizeInterval parses s or falls back to the table default when empty.
func NormalizeInterval(table, s string) (Interval, error) {
	if s == "" {
		return DefaultInterval(table), nil
	}
	return ParseInterval(s)
}
