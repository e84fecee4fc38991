package repository

import (
	"context"
	"fmt"
	"time"

	"Aurelius/internal/domain/models"
)

// FetchRequest identifies one ingestion unit: a ticker for a table over a date range.
type FetchRequest struct {
	Database string
	Table    string
	Kind     TableKind
	Interval Interval
	Ticker   string
	From     time.Time
	To       time.Time
}

// String renders the unit so it can be re-run by hand.
func (r FetchRequest) String() string {
	return fmt.Sprintf("%s.%s %s %s..%s", r.Database, r.Table, r.Ticker,
		r.From.Format("2006-01-02"), r.To.Format("2006-01-02"))
}

// MarketDataSource fetches validated records from the external provider.
type MarketDataSource interface {
	Fetch(ctx context.Context, req FetchRequest) (*models.RecordBatch, error)
}

// Store owns the per-database record tables. Inserts are insert-or-ignore
// under the table's uniqueness constraint and commit before returning.
type Store interface {
	OpenDatabase(ctx context.Context, database string) error
	EnsureTable(ctx context.Context, database, table string, kind TableKind) (created bool, err error)
	InsertBars(ctx context.Context, database, table string, bars []models.Bar) (int64, error)
	InsertMarketCaps(ctx context.Context, database, table string, recs []models.MarketCapRecord) (int64, error)
	RecordReader
	Close() error
}

// ResultSink receives finished backtest results keyed by (table, strategy).
type ResultSink interface {
	Export(ctx context.Context, result *models.StrategyResult) error
	Close() error
}

type Metrics interface {
	RecordFetch(endpoint, result string, seconds float64)
	RecordGateWait(seconds float64)
	RecordRowsWritten(database, table string, n int64)
	RecordSkip(reason string)
	RecordStrategyRun(strategy, result string)
	RecordLatency(op string, seconds float64)
}
