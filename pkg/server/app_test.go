package server

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"Aurelius/internal/repository"
	"Aurelius/internal/service/polygon"
	"Aurelius/internal/service/ratelimit"
	"Aurelius/internal/services/backtest"
	"Aurelius/internal/usecase"
	"Aurelius/pkg/config"
	applogger "Aurelius/pkg/logger"
)

var closes = map[string][2]float64{"AAPL": {100, 110}, "MSFT": {200, 180}}
var caps = map[string]int64{"AAPL": 1000, "MSFT": 3000}

func providerStub(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		switch {
		case len(parts) >= 4 && parts[0] == "v2" && parts[1] == "aggs":
			c := closes[parts[3]]
			fmt.Fprintf(w, `{"ticker":%q,"resultsCount":2,"request_id":"agg","status":"OK","results":[
				{"t":1704171600000,"o":1,"h":1,"l":1,"c":%v,"v":10,"vw":1,"n":1},
				{"t":1704258000000,"o":1,"h":1,"l":1,"c":%v,"v":10,"vw":1,"n":1}]}`, parts[3], c[0], c[1])
		case len(parts) == 4 && parts[0] == "v3":
			fmt.Fprintf(w, `{"request_id":"ref","status":"OK","results":{"ticker":%q,
				"share_class_shares_outstanding":10,"weighted_shares_outstanding":10,"market_cap":%d}}`,
				parts[3], caps[parts[3]])
		default:
			http.NotFound(w, r)
		}
	}))
}

func newTestApp(t *testing.T) (*App, string) {
	t.Helper()
	srv := providerStub(t)
	t.Cleanup(srv.Close)
	dir := t.TempDir()
	return newTestAppWith(t, srv.URL, "test-key", dir), dir
}

func newTestAppWith(t *testing.T, baseURL, apiKey, dir string) *App {
	t.Helper()

	cfg, err := config.Parse([]byte(fmt.Sprintf(`
provider:
  base_url: %s
  api_key: %q
storage:
  sqlite:
    dir: %s
databases:
  - name: stocks
    tickers: [AAPL, MSFT]
    tables:
      - {name: ohlcv_daily, kind: bars, interval: 1/day}
      - {name: market_cap, kind: market_cap}
range: {start: "2024-01-02", end: "2024-01-03"}
backtest:
  inputs:
    - name: stocks_joined
      bars: {database: stocks, table: ohlcv_daily}
      market_caps: {database: stocks, table: market_cap}
export:
  dir: %s
report:
  dir: %s
`, baseURL, apiKey, filepath.Join(dir, "data"), filepath.Join(dir, "results"), filepath.Join(dir, "reports"))))
	if err != nil {
		t.Fatalf("config: %v", err)
	}

	l := applogger.Nop()
	store := repository.NewSQLiteStore(cfg.Storage.SQLite.Dir, repository.WithSQLiteLogger(l))
	src := polygon.New(cfg.Provider.BaseURL, cfg.Provider.APIKey, ratelimit.New(0))
	sink, err := repository.NewFileSink(cfg.Export.Dir, cfg.Export.Format, l)
	if err != nil {
		t.Fatalf("sink: %v", err)
	}
	registry, err := backtest.NewRegistry()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	progress := usecase.NewProgress()
	app := New(cfg, l, store, sink, nil, nil,
		usecase.NewIngestor(src, store, nil, progress, l),
		usecase.NewAuditor(store, l),
		usecase.NewBacktester(store, registry, sink, nil, nil, 2, l),
		progress, nil,
	)
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func TestRunAllEndToEnd(t *testing.T) {
	app, dir := newTestApp(t)
	ctx := context.Background()

	sum, err := app.Ingest(ctx, IngestOptions{})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	// 2 tickers x (1 bars unit + 2 snapshot dates)
	if sum.Units != 6 || len(sum.Failed) != 0 || sum.Rows != 8 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if _, err := os.Stat(filepath.Join(dir, "reports", "lastrun.success.json")); err != nil {
		t.Fatalf("run report missing: %v", err)
	}

	again, err := app.Ingest(ctx, IngestOptions{})
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if again.Rows != 0 {
		t.Fatalf("re-ingest should insert nothing, got %d", again.Rows)
	}

	findings, err := app.Audit(ctx)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	for _, f := range findings {
		if !f.Clean() {
			t.Fatalf("unexpected dirty finding %+v", f)
		}
	}

	results, err := app.Backtest(ctx)
	if err != nil {
		t.Fatalf("backtest: %v", err)
	}
	want := map[string]float64{
		string(backtest.MarketCapWeighted): 25*110 + 37.5*180,
		string(backtest.EqualWeighted):     50*110 + 25*180,
	}
	if len(results) != len(want) {
		t.Fatalf("expected %d results, got %d", len(want), len(results))
	}
	for _, r := range results {
		last, ok := r.Final()
		if !ok || math.Abs(last.PortfolioValue-want[r.Strategy]) > 1e-9 {
			t.Fatalf("%s: unexpected final value %+v", r.Strategy, last)
		}
		name := fmt.Sprintf("stocks_joined_%s_daily.csv", r.Strategy)
		if _, err := os.Stat(filepath.Join(dir, "results", name)); err != nil {
			t.Fatalf("export %s missing: %v", name, err)
		}
	}
}

func TestIngestFilterAndRangeOverride(t *testing.T) {
	app, _ := newTestApp(t)

	sum, err := app.Ingest(context.Background(), IngestOptions{
		Filter: usecase.UnitFilter{Table: "market_cap", Ticker: "JPM"},
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if sum.Units != 0 {
		t.Fatalf("expected no units for unknown ticker, got %d", sum.Units)
	}

	sum, err = app.Ingest(context.Background(), IngestOptions{
		Filter: usecase.UnitFilter{Table: "market_cap", Ticker: "AAPL"},
		From:   "2024-01-03",
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if sum.Units != 1 || sum.Rows != 1 {
		t.Fatalf("expected one snapshot unit, got %+v", sum)
	}

	if _, err := app.Ingest(context.Background(), IngestOptions{From: "2024-02-01"}); err == nil {
		t.Fatalf("expected error for inverted range")
	}
}

func TestIngestRequiresAPIKeyButBacktestDoesNot(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.NotFound(w, r)
	}))
	defer srv.Close()

	seeded, dir := newTestApp(t)
	if _, err := seeded.Ingest(context.Background(), IngestOptions{}); err != nil {
		t.Fatalf("seed ingest: %v", err)
	}
	if err := seeded.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	app := newTestAppWith(t, srv.URL, "", dir)
	if _, err := app.Ingest(context.Background(), IngestOptions{}); !errors.Is(err, config.ErrMissingAPIKey) {
		t.Fatalf("want ErrMissingAPIKey, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("provider called %d times without a key", calls)
	}
	if _, err := app.Audit(context.Background()); err != nil {
		t.Fatalf("audit without key: %v", err)
	}
	results, err := app.Backtest(context.Background())
	if err != nil {
		t.Fatalf("backtest without key: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("want 2 results, got %d", len(results))
	}
}
