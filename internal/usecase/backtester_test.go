package usecase

import (
	"bytes"
	"context"
	"math"
	"strings"
	"testing"

	"Aurelius/internal/domain/models"
	"Aurelius/internal/services/backtest"
	applogger "Aurelius/pkg/logger"
)

func seededStore(t *testing.T) *memStore {
	t.Helper()
	store := newMemStore()
	_ = store.OpenDatabase(context.Background(), "prices")
	store.bars[tkey("prices", "ohlcv_daily")] = []models.Bar{
		{Timestamp: 1, Date: "2024-01-02", Ticker: "AAPL", Close: 20},
		{Timestamp: 2, Date: "2024-01-03", Ticker: "AAPL", Close: 22},
		{Timestamp: 1, Date: "2024-01-02", Ticker: "MSFT", Close: 50},
		{Timestamp: 2, Date: "2024-01-03", Ticker: "MSFT", Close: 55},
	}
	store.caps[tkey("prices", "market_cap")] = []models.MarketCapRecord{
		{Date: "2024-01-02", Ticker: "AAPL", MarketCap: 100},
		{Date: "2024-01-03", Ticker: "AAPL", MarketCap: 110},
		{Date: "2024-01-02", Ticker: "MSFT", MarketCap: 300},
		{Date: "2024-01-03", Ticker: "MSFT", MarketCap: 330},
	}
	return store
}

func joinInputs() []JoinInput {
	return []JoinInput{{
		Name:       "prices_joined",
		Bars:       TableRef{Database: "prices", Table: "ohlcv_daily"},
		MarketCaps: TableRef{Database: "prices", Table: "market_cap"},
	}}
}

func TestBacktesterRunsEveryPair(t *testing.T) {
	var buf bytes.Buffer
	store := seededStore(t)
	reg, err := backtest.NewRegistry()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	sink := &recordingSink{}
	b := NewBacktester(store, reg, sink, nil, nil, 4, applogger.NewWithWriter(&buf, "info"))
	ctx := context.Background()

	tables, err := b.LoadTables(ctx, joinInputs(), specs())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(tables) != 2 || tables[0].Name != "prices_joined" || tables[1].Name != "prices_ohlcv_daily" {
		t.Fatalf("unexpected tables %v", tables)
	}

	results, err := b.Run(ctx, tables, backtest.AllKinds(), 10000)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// market-cap weighting is skipped on the base table
	if len(results) != 3 || len(sink.results) != 3 {
		t.Fatalf("want 3 results, got %d (exported %d)", len(results), len(sink.results))
	}
	if results[0].Table != "prices_joined" || results[0].Strategy != string(backtest.MarketCapWeighted) {
		t.Fatalf("results out of pair order: %s/%s", results[0].Table, results[0].Strategy)
	}
	if math.Abs(results[0].Portfolio.Positions[0].Weight-0.25) > 1e-9 {
		t.Fatalf("unexpected AAPL weight %v", results[0].Portfolio.Positions[0].Weight)
	}

	if !strings.Contains(buf.String(), "strategy skipped") || !strings.Contains(buf.String(), "prices_ohlcv_daily") {
		t.Fatalf("skip not logged:\n%s", buf.String())
	}
	if got := b.Book().List("prices_joined", ""); len(got) != 2 {
		t.Fatalf("want 2 summaries for the joined table, got %d", len(got))
	}
}

func TestBacktesterContinuesPastBrokenTable(t *testing.T) {
	store := seededStore(t)
	store.failRead[tkey("prices", "ohlcv_daily")] = true
	reg, _ := backtest.NewRegistry()
	b := NewBacktester(store, reg, nil, nil, nil, 1, nil)

	tables, err := b.LoadTables(context.Background(), joinInputs(), specs())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(tables) != 0 {
		t.Fatalf("broken inputs should be skipped, got %d tables", len(tables))
	}
}

func TestBacktesterKeepsEmptyJoin(t *testing.T) {
	store := seededStore(t)
	store.caps[tkey("prices", "market_cap")] = nil
	reg, _ := backtest.NewRegistry()
	var buf bytes.Buffer
	b := NewBacktester(store, reg, nil, nil, nil, 1, applogger.NewWithWriter(&buf, "warn"))

	tables, err := b.LoadTables(context.Background(), joinInputs(), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(tables) != 1 || len(tables[0].Rows) != 0 {
		t.Fatalf("empty join should be kept as an empty table")
	}
	results, err := b.Run(context.Background(), tables, backtest.AllKinds(), 1000)
	if err != nil || len(results) != 0 {
		t.Fatalf("empty table should produce no results: %v %v", results, err)
	}
	if got := strings.Count(buf.String(), "strategy skipped"); got != len(backtest.AllKinds()) {
		t.Fatalf("expected one skip warning per strategy, got %d:\n%s", got, buf.String())
	}
	if strings.Contains(buf.String(), `"level":"error"`) {
		t.Fatalf("empty table must not log errors:\n%s", buf.String())
	}
}
