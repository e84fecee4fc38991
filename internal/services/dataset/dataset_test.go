package dataset

import (
	"errors"
	"testing"

	"Aurelius/internal/domain/models"
)

func bar(ticker, date string, ts int64, close float64) models.Bar {
	return models.Bar{Ticker: ticker, Date: date, Timestamp: ts, Close: close}
}

func TestJoinInnerOnTickerDate(t *testing.T) {
	bars := []models.Bar{
		bar("MSFT", "2024-01-02", 2, 370),
		bar("AAPL", "2024-01-03", 3, 184),
		bar("AAPL", "2024-01-02", 1, 185),
		bar("TSLA", "2024-01-02", 4, 248), // no market cap
	}
	caps := []models.MarketCapRecord{
		{Ticker: "AAPL", Date: "2024-01-02", MarketCap: 100},
		{Ticker: "AAPL", Date: "2024-01-03", MarketCap: 101},
		{Ticker: "MSFT", Date: "2024-01-02", MarketCap: 300},
		{Ticker: "NVDA", Date: "2024-01-02", MarketCap: 500}, // no bar
	}

	table, err := Join("prices_joined", bars, caps)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if len(table.Rows) != 3 {
		t.Fatalf("want 3 rows, got %d", len(table.Rows))
	}

	barKeys := map[[2]string]bool{}
	for _, b := range bars {
		barKeys[[2]string{b.Ticker, b.Date}] = true
	}
	capKeys := map[[2]string]bool{}
	for _, c := range caps {
		capKeys[[2]string{c.Ticker, c.Date}] = true
	}
	for _, r := range table.Rows {
		k := [2]string{r.Ticker, r.Date}
		if !barKeys[k] || !capKeys[k] {
			t.Fatalf("row %v not present in both sources", k)
		}
		if r.MarketCap == 0 {
			t.Fatalf("row %v has no market cap", k)
		}
	}

	if table.Rows[0].Ticker != "AAPL" || table.Rows[0].Date != "2024-01-02" || table.Rows[2].Ticker != "MSFT" {
		t.Fatalf("rows not ordered by ticker/date: %+v", table.Rows)
	}
	if len(table.Missing(models.ColMarketCap, models.ColClose)) != 0 {
		t.Fatal("joined table should expose market_cap and close")
	}
}

func TestJoinDuplicateCapsIgnoreInputOrder(t *testing.T) {
	bars := []models.Bar{bar("AAPL", "2024-01-02", 1, 10)}
	low := models.MarketCapRecord{Ticker: "AAPL", Date: "2024-01-02", MarketCap: 100}
	high := models.MarketCapRecord{Ticker: "AAPL", Date: "2024-01-02", MarketCap: 300}

	a, err := Join("prices_joined", bars, []models.MarketCapRecord{low, high})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	b, err := Join("prices_joined", bars, []models.MarketCapRecord{high, low})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if len(a.Rows) != 2 || len(b.Rows) != 2 {
		t.Fatalf("want 2 rows each, got %d and %d", len(a.Rows), len(b.Rows))
	}
	for i := range a.Rows {
		if a.Rows[i] != b.Rows[i] {
			t.Fatalf("row %d differs: %+v vs %+v", i, a.Rows[i], b.Rows[i])
		}
	}
	if a.Rows[0].MarketCap != 100 {
		t.Fatalf("smaller cap should sort first, got %d", a.Rows[0].MarketCap)
	}
}

func TestSortRowsBreaksTiesOnClose(t *testing.T) {
	rows := []models.JoinedRecord{
		{Bar: bar("AAPL", "2024-01-02", 1, 12), MarketCap: 100},
		{Bar: bar("AAPL", "2024-01-02", 1, 11), MarketCap: 100},
	}
	SortRows(rows)
	if rows[0].Close != 11 {
		t.Fatalf("want close 11 first, got %v", rows[0].Close)
	}
}

func TestJoinEmpty(t *testing.T) {
	table, err := Join("empty", []models.Bar{bar("AAPL", "2024-01-02", 1, 1)}, nil)
	if !errors.Is(err, models.ErrEmptyJoin) {
		t.Fatalf("want ErrEmptyJoin, got %v", err)
	}
	if table == nil || len(table.Rows) != 0 {
		t.Fatal("empty join should still return the table")
	}
}

func TestBarsTableLacksMarketCap(t *testing.T) {
	table := BarsTable("prices_ohlcv_daily", []models.Bar{bar("AAPL", "2024-01-02", 1, 1)})
	missing := table.Missing(models.ColMarketCap)
	if len(missing) != 1 || missing[0] != models.ColMarketCap {
		t.Fatalf("unexpected missing columns %v", missing)
	}
}

func TestFindDuplicates(t *testing.T) {
	rows := BarsToRows([]models.Bar{
		bar("JPM", "2024-01-02", 1, 170),
		bar("JPM", "2024-01-02", 1, 170.5),
		bar("JPM", "2024-01-03", 2, 171),
		bar("AAPL", "2024-01-02", 1, 185),
	})
	dups := FindDuplicates(rows)
	if len(dups) != 1 {
		t.Fatalf("want 1 duplicate, got %+v", dups)
	}
	if dups[0].Date != "2024-01-02" || dups[0].Ticker != "JPM" || dups[0].Count != 2 {
		t.Fatalf("unexpected duplicate %+v", dups[0])
	}
	if len(rows) != 4 {
		t.Fatal("input rows must not be modified")
	}
}

func TestFindDuplicatesClean(t *testing.T) {
	rows := CapsToRows([]models.MarketCapRecord{
		{Ticker: "AAPL", Date: "2024-01-02", MarketCap: 1},
		{Ticker: "AAPL", Date: "2024-01-03", MarketCap: 1},
	})
	if dups := FindDuplicates(rows); len(dups) != 0 {
		t.Fatalf("expected no duplicates, got %+v", dups)
	}
}

func TestCoverage(t *testing.T) {
	rows := BarsToRows([]models.Bar{
		bar("AAPL", "2024-01-02", 1, 1),
		bar("AAPL", "2024-01-03", 2, 1),
		bar("MSFT", "2024-01-02", 1, 1),
	})
	gaps := Coverage(rows, []string{"2024-01-02", "2024-01-03"})
	if len(gaps) != 1 || gaps[0].Ticker != "MSFT" || len(gaps[0].Missing) != 1 || gaps[0].Missing[0] != "2024-01-03" {
		t.Fatalf("unexpected gaps %+v", gaps)
	}
}
