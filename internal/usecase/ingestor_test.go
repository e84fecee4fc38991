package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"Aurelius/internal/domain/models"
	drepo "Aurelius/internal/domain/repository"
	applogger "Aurelius/pkg/logger"
	"Aurelius/pkg/util"
)

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := util.ParseDate(s)
	if err != nil {
		t.Fatalf("parse %s: %v", s, err)
	}
	return d
}

func specs() []DatabaseSpec {
	return []DatabaseSpec{{
		Name:    "prices",
		Tickers: []string{"AAPL", "MSFT"},
		Tables: []TableSpec{
			{Name: "ohlcv_daily", Kind: drepo.KindBars, Interval: drepo.DefaultInterval("ohlcv_daily")},
			{Name: "market_cap", Kind: drepo.KindMarketCap},
		},
	}}
}

func TestPlanExpandsUnits(t *testing.T) {
	in := NewIngestor(newFakeSource(), newMemStore(), nil, nil, nil)
	// 2024-01-05 is a Friday, 2024-01-08 a Monday
	units := in.Plan(specs(), date(t, "2024-01-05"), date(t, "2024-01-08"), nil)

	var bars, caps int
	for _, u := range units {
		switch u.Kind {
		case drepo.KindBars:
			bars++
			if !u.From.Equal(date(t, "2024-01-05")) || !u.To.Equal(date(t, "2024-01-08")) {
				t.Fatalf("bar unit should span the range: %s", u)
			}
		case drepo.KindMarketCap:
			caps++
			if !u.From.Equal(u.To) {
				t.Fatalf("market cap unit should cover one date: %s", u)
			}
		}
	}
	if bars != 2 || caps != 4 {
		t.Fatalf("want 2 bar units and 4 market cap units, got %d and %d", bars, caps)
	}
}

func TestPlanUsesMarketCalendar(t *testing.T) {
	in := NewIngestor(newFakeSource(), newMemStore(), nil, nil, nil)
	cal := []time.Time{date(t, "2024-01-02"), date(t, "2024-01-03"), date(t, "2024-02-01")}
	units := in.Plan(specs()[:1], date(t, "2024-01-01"), date(t, "2024-01-31"), cal)

	var caps int
	for _, u := range units {
		if u.Kind == drepo.KindMarketCap {
			caps++
		}
	}
	if caps != 4 {
		t.Fatalf("want 2 dates x 2 tickers, got %d", caps)
	}
}

func TestUnitFilter(t *testing.T) {
	in := NewIngestor(newFakeSource(), newMemStore(), nil, nil, nil)
	units := in.Plan(specs(), date(t, "2024-01-02"), date(t, "2024-01-02"), nil)
	got := UnitFilter{Table: "ohlcv_daily", Ticker: "MSFT"}.Apply(units)
	if len(got) != 1 || got[0].Ticker != "MSFT" || got[0].Table != "ohlcv_daily" {
		t.Fatalf("unexpected filtered units %v", got)
	}
	if len(UnitFilter{}.Apply(units)) != len(units) {
		t.Fatal("empty filter should keep everything")
	}
}

func TestRunEmptyResultLogsOnce(t *testing.T) {
	var buf bytes.Buffer
	store := newMemStore()
	in := NewIngestor(newFakeSource(), store, nil, nil, applogger.NewWithWriter(&buf, "info"))
	ctx := context.Background()

	dbs := in.Prepare(ctx, specs()[:1])
	units := UnitFilter{Table: "ohlcv_daily", Ticker: "AAPL"}.Apply(in.Plan(dbs, date(t, "2024-01-02"), date(t, "2024-01-03"), nil))
	buf.Reset()

	sum, err := in.Run(ctx, units)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Rows != 0 || sum.Empty != 1 || len(sum.Failed) != 0 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if n, _ := store.CountRows(ctx, "prices", "ohlcv_daily"); n != 0 {
		t.Fatalf("no rows should be written, got %d", n)
	}

	out := buf.String()
	if c := strings.Count(out, models.ErrEmptyResult.Error()); c != 1 {
		t.Fatalf("want exactly one no-data line, got %d:\n%s", c, out)
	}
	if strings.Contains(out, `"level":"warn"`) || strings.Contains(out, `"level":"error"`) {
		t.Fatalf("empty result must not warn:\n%s", out)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	src := newFakeSource()
	bar := models.Bar{Timestamp: 1700000000000, Datetime: util.Datetime(1700000000000), Date: "2023-11-14", Ticker: "AAPL", Close: 187}
	src.batches[unitKey("prices", "ohlcv_daily", "AAPL")] = &models.RecordBatch{Ticker: "AAPL", Bars: []models.Bar{bar}}

	store := newMemStore()
	in := NewIngestor(src, store, nil, nil, nil)
	ctx := context.Background()
	dbs := in.Prepare(ctx, specs())
	units := UnitFilter{Table: "ohlcv_daily", Ticker: "AAPL"}.Apply(in.Plan(dbs, date(t, "2023-11-14"), date(t, "2023-11-14"), nil))

	for i := 0; i < 2; i++ {
		if _, err := in.Run(ctx, units); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	if n, _ := store.CountRows(ctx, "prices", "ohlcv_daily"); n != 1 {
		t.Fatalf("want 1 row after re-ingestion, got %d", n)
	}
}

func TestRunSkipsFailedUnitsAndContinues(t *testing.T) {
	src := newFakeSource()
	src.errs[unitKey("prices", "ohlcv_daily", "AAPL")] = &models.FetchError{Endpoint: "aggregates", Status: 429}
	src.batches[unitKey("prices", "ohlcv_daily", "MSFT")] = &models.RecordBatch{
		Ticker: "MSFT",
		Bars:   []models.Bar{{Timestamp: 1, Date: "2024-01-02", Ticker: "MSFT", Close: 370}},
		Rejected: []*models.RecordShapeError{
			{Ticker: "MSFT", Index: 1, Field: "vw"},
		},
	}

	var buf bytes.Buffer
	store := newMemStore()
	in := NewIngestor(src, store, nil, nil, applogger.NewWithWriter(&buf, "info"))
	ctx := context.Background()
	dbs := in.Prepare(ctx, specs())
	units := UnitFilter{Table: "ohlcv_daily"}.Apply(in.Plan(dbs, date(t, "2024-01-02"), date(t, "2024-01-02"), nil))

	sum, err := in.Run(ctx, units)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(sum.Failed) != 1 || sum.Failed[0].Ticker != "AAPL" || sum.Failed[0].Database != "prices" {
		t.Fatalf("unexpected failures %+v", sum.Failed)
	}
	if sum.Rows != 1 {
		t.Fatalf("MSFT row should still be written, got %d", sum.Rows)
	}
	if !strings.Contains(buf.String(), `"field":"vw"`) {
		t.Fatalf("shape error not logged:\n%s", buf.String())
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	in := NewIngestor(newFakeSource(), newMemStore(), nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	units := in.Plan(specs(), date(t, "2024-01-02"), date(t, "2024-01-02"), nil)
	if _, err := in.Run(ctx, units); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestPrepareSkipsBrokenDatabase(t *testing.T) {
	store := newMemStore()
	store.openErr["broken"] = errors.New("disk gone")
	in := NewIngestor(newFakeSource(), store, nil, nil, nil)

	dbs := append(specs(), DatabaseSpec{Name: "broken", Tickers: []string{"X"}, Tables: specs()[0].Tables})
	ready := in.Prepare(context.Background(), dbs)
	if len(ready) != 1 || ready[0].Name != "prices" || len(ready[0].Tables) != 2 {
		t.Fatalf("unexpected ready databases %+v", ready)
	}
}

func TestWriteRunReport(t *testing.T) {
	dir := t.TempDir()
	failed := []UnitReport{{Database: "prices", Table: "ohlcv_daily", Ticker: "AAPL", From: "2024-01-02", To: "2024-01-03", Reason: "status 429"}}
	if err := WriteRunReport(dir, nil, failed, applogger.Nop()); err != nil {
		t.Fatalf("write: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(dir, reportFailedFile))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got []UnitReport
	if err := json.Unmarshal(b, &got); err != nil || len(got) != 1 || got[0].Reason != "status 429" {
		t.Fatalf("unexpected report %s (%v)", b, err)
	}
	if _, err := os.Stat(filepath.Join(dir, reportSuccessFile)); err != nil {
		t.Fatalf("success report missing: %v", err)
	}
}
