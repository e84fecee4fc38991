// Package dataset derives in-memory tables from persisted records: the
// (ticker, date) inner join, duplicate detection and calendar coverage.
package dataset

import (
	"sort"

	"Aurelius/internal/domain/models"
)

type key struct {
	ticker string
	date   string
}

// Join inner-joins bars with market caps on (ticker, date). A bar matching k
// market-cap rows yields k joined rows, ordered as SortRows orders them.
// An empty result returns the (empty) table with ErrEmptyJoin.
func Join(name string, bars []models.Bar, caps []models.MarketCapRecord) (*models.Table, error) {
	byKey := make(map[key][]int64, len(caps))
	for _, c := range caps {
		k := key{c.Ticker, c.Date}
		byKey[k] = append(byKey[k], c.MarketCap)
	}

	t := &models.Table{Name: name, Columns: models.JoinedColumns}
	for _, b := range bars {
		for _, mc := range byKey[key{b.Ticker, b.Date}] {
			t.Rows = append(t.Rows, models.JoinedRecord{Bar: b, MarketCap: mc})
		}
	}
	SortRows(t.Rows)

	if len(t.Rows) == 0 {
		return t, models.ErrEmptyJoin
	}
	return t, nil
}

// BarsTable exposes a base bar table without market caps.
func BarsTable(name string, bars []models.Bar) *models.Table {
	t := &models.Table{Name: name, Columns: models.BarColumns, Rows: make([]models.JoinedRecord, len(bars))}
	for i, b := range bars {
		t.Rows[i] = models.JoinedRecord{Bar: b}
	}
	SortRows(t.Rows)
	return t
}

// SortRows stable-sorts rows by (ticker, date, timestamp). Rows sharing
// that key are ordered by market cap, then close, both ascending, so the
// first row of a ticker does not depend on the order rows were read in.
func SortRows(rows []models.JoinedRecord) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Ticker != b.Ticker {
			return a.Ticker < b.Ticker
		}
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.Timestamp != b.Timestamp {
			return a.Timestamp < b.Timestamp
		}
		if a.MarketCap != b.MarketCap {
			return a.MarketCap < b.MarketCap
		}
		return a.Close < b.Close
	})
}

// FindDuplicates returns every (date, ticker) that does not occur exactly
// once in rows, ordered by date then ticker. Rows are not modified.
func FindDuplicates(rows []models.JoinedRecord) []models.DuplicateKey {
	counts := make(map[key]int, len(rows))
	for _, r := range rows {
		counts[key{r.Ticker, r.Date}]++
	}

	var out []models.DuplicateKey
	for k, n := range counts {
		if n != 1 {
			out = append(out, models.DuplicateKey{Date: k.date, Ticker: k.ticker, Count: n})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Ticker < out[j].Ticker
	})
	return out
}

// Gap lists the market dates on which a ticker has no row.
type Gap struct {
	Ticker  string   `json:"ticker"`
	Missing []string `json:"missing"`
}

// Coverage checks every ticker present in rows against the expected market
// dates. Tickers with full coverage are omitted.
func Coverage(rows []models.JoinedRecord, dates []string) []Gap {
	have := make(map[string]map[string]bool)
	for _, r := range rows {
		m, ok := have[r.Ticker]
		if !ok {
			m = make(map[string]bool)
			have[r.Ticker] = m
		}
		m[r.Date] = true
	}

	tickers := make([]string, 0, len(have))
	for t := range have {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	var gaps []Gap
	for _, t := range tickers {
		var missing []string
		for _, d := range dates {
			if !have[t][d] {
				missing = append(missing, d)
			}
		}
		if len(missing) > 0 {
			gaps = append(gaps, Gap{Ticker: t, Missing: missing})
		}
	}
	return gaps
}

// BarsToRows wraps bars as joined rows without market caps.
func BarsToRows(bars []models.Bar) []models.JoinedRecord {
	rows := make([]models.JoinedRecord, len(bars))
	for i, b := range bars {
		rows[i] = models.JoinedRecord{Bar: b}
	}
	return rows
}

// CapsToRows projects market-cap records onto (ticker, date) rows.
func CapsToRows(caps []models.MarketCapRecord) []models.JoinedRecord {
	rows := make([]models.JoinedRecord, len(caps))
	for i, c := range caps {
		rows[i] = models.JoinedRecord{Bar: models.Bar{Ticker: c.Ticker, Date: c.Date}, MarketCap: c.MarketCap}
	}
	return rows
}
