package usecase

import (
	"context"
	"errors"
	"time"

	"Aurelius/internal/domain/models"
	drepo "Aurelius/internal/domain/repository"
	applogger "Aurelius/pkg/logger"
	"Aurelius/pkg/util"
)

// Outcome classifies a finished ingestion unit.
type Outcome string

const (
	OutcomeOK     Outcome = "ok"
	OutcomeEmpty  Outcome = "empty"
	OutcomeFailed Outcome = "failed"
)

// Skip reasons reported to metrics.
const (
	SkipFetch   = "fetch_error"
	SkipTimeout = "timeout"
	SkipShape   = "record_shape"
	SkipStorage = "storage"
)

// IngestSummary aggregates a run.
type IngestSummary struct {
	Units     int
	Succeeded []UnitReport
	Empty     int
	Failed    []UnitReport
	Rows      int64
}

// Ingestor drives fetch and insert for every (database, table, ticker, range)
// unit. Units run one at a time; the fetcher serializes network calls.
type Ingestor struct {
	src      drepo.MarketDataSource
	store    drepo.Store
	metrics  drepo.Metrics
	progress *Progress
	l        *applogger.Logger
}

func NewIngestor(src drepo.MarketDataSource, store drepo.Store, metrics drepo.Metrics, progress *Progress, l *applogger.Logger) *Ingestor {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if progress == nil {
		progress = NewProgress()
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &Ingestor{src: src, store: store, metrics: metrics, progress: progress, l: l}
}

// Prepare opens every database and ensures its tables. A database that
// cannot be opened is dropped from the result; the others continue.
func (in *Ingestor) Prepare(ctx context.Context, dbs []DatabaseSpec) []DatabaseSpec {
	ready := make([]DatabaseSpec, 0, len(dbs))
	for _, db := range dbs {
		if err := in.store.OpenDatabase(ctx, db.Name); err != nil {
			in.l.Error("database unavailable, skipping all of its tables",
				applogger.String("database", db.Name),
				applogger.Error(err),
			)
			in.metrics.RecordSkip(SkipStorage)
			continue
		}

		spec := DatabaseSpec{Name: db.Name, Tickers: db.Tickers}
		for _, t := range db.Tables {
			if _, err := in.store.EnsureTable(ctx, db.Name, t.Name, t.Kind); err != nil {
				in.l.Error("table unavailable, skipping",
					applogger.String("database", db.Name),
					applogger.String("table", t.Name),
					applogger.Error(err),
				)
				in.metrics.RecordSkip(SkipStorage)
				continue
			}
			spec.Tables = append(spec.Tables, t)
		}
		ready = append(ready, spec)
	}
	return ready
}

// Plan expands databases into fetch units. Bar tables get one unit per
// ticker covering [start, end]. Market-cap tables get one unit per ticker
// and snapshot date: the market dates in range, or every weekday without a
// calendar.
func (in *Ingestor) Plan(dbs []DatabaseSpec, start, end time.Time, marketDates []time.Time) []drepo.FetchRequest {
	snapshotDates := util.WithinRange(marketDates, start, end)
	if len(marketDates) == 0 {
		snapshotDates = util.Weekdays(start, end)
	}

	var units []drepo.FetchRequest
	for _, db := range dbs {
		for _, t := range db.Tables {
			for _, ticker := range db.Tickers {
				base := drepo.FetchRequest{
					Database: db.Name,
					Table:    t.Name,
					Kind:     t.Kind,
					Interval: t.Interval,
					Ticker:   ticker,
				}
				switch t.Kind {
				case drepo.KindBars:
					base.From, base.To = start, end
					units = append(units, base)
				case drepo.KindMarketCap:
					for _, d := range snapshotDates {
						u := base
						u.From, u.To = d, d
						units = append(units, u)
					}
				}
			}
		}
	}
	return units
}

// UnitFilter narrows a plan to a hand-picked subset. Empty fields match all.
type UnitFilter struct {
	Database string
	Table    string
	Ticker   string
}

func (f UnitFilter) Apply(units []drepo.FetchRequest) []drepo.FetchRequest {
	if f == (UnitFilter{}) {
		return units
	}
	var out []drepo.FetchRequest
	for _, u := range units {
		if (f.Database == "" || f.Database == u.Database) &&
			(f.Table == "" || f.Table == u.Table) &&
			(f.Ticker == "" || f.Ticker == u.Ticker) {
			out = append(out, u)
		}
	}
	return out
}

// Run processes units in order. A failing unit is logged and skipped; only
// cancellation of ctx stops the run early.
func (in *Ingestor) Run(ctx context.Context, units []drepo.FetchRequest) (*IngestSummary, error) {
	sum := &IngestSummary{Units: len(units)}
	in.progress.Start("ingest", len(units))
	defer in.progress.Complete()

	for _, u := range units {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		in.progress.SetCurrent(u.String())

		rows, outcome, reason, err := in.runUnit(ctx, u)
		if err != nil {
			return sum, err
		}
		in.progress.Finish(outcome, rows)

		report := UnitReport{
			Database: u.Database,
			Table:    u.Table,
			Ticker:   u.Ticker,
			From:     util.FormatDate(u.From),
			To:       util.FormatDate(u.To),
			Rows:     rows,
			Reason:   reason,
		}
		switch outcome {
		case OutcomeFailed:
			sum.Failed = append(sum.Failed, report)
		case OutcomeEmpty:
			sum.Empty++
			sum.Succeeded = append(sum.Succeeded, report)
		default:
			sum.Succeeded = append(sum.Succeeded, report)
		}
		sum.Rows += rows
	}

	in.l.Info("ingestion finished",
		applogger.Int("units", sum.Units),
		applogger.Int("succeeded", len(sum.Succeeded)),
		applogger.Int("empty", sum.Empty),
		applogger.Int("failed", len(sum.Failed)),
		applogger.Int64("rows", sum.Rows),
	)
	return sum, nil
}

// runUnit returns a non-nil error only when ctx was cancelled.
func (in *Ingestor) runUnit(ctx context.Context, u drepo.FetchRequest) (int64, Outcome, string, error) {
	fields := unitFields(u)

	start := time.Now()
	batch, err := in.src.Fetch(ctx, u)
	in.metrics.RecordLatency("fetch", time.Since(start).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return 0, OutcomeFailed, "", ctx.Err()
		}
		reason := SkipFetch
		var fe *models.FetchError
		if errors.As(err, &fe) && fe.Timeout {
			reason = SkipTimeout
		}
		in.metrics.RecordSkip(reason)
		in.l.Warn("fetch failed, skipping unit", append(fields, applogger.Error(err))...)
		return 0, OutcomeFailed, err.Error(), nil
	}

	for _, rej := range batch.Rejected {
		in.metrics.RecordSkip(SkipShape)
		in.l.Warn("malformed record dropped", append(fields,
			applogger.Int("index", rej.Index),
			applogger.String("field", rej.Field),
		)...)
	}

	if batch.Len() == 0 {
		in.l.Info(models.ErrEmptyResult.Error(), fields...)
		return 0, OutcomeEmpty, "", nil
	}

	start = time.Now()
	var inserted int64
	switch u.Kind {
	case drepo.KindMarketCap:
		inserted, err = in.store.InsertMarketCaps(ctx, u.Database, u.Table, batch.MarketCaps)
	default:
		inserted, err = in.store.InsertBars(ctx, u.Database, u.Table, batch.Bars)
	}
	in.metrics.RecordLatency("insert", time.Since(start).Seconds())
	if err != nil {
		in.metrics.RecordSkip(SkipStorage)
		in.l.Error("insert failed, skipping unit", append(fields, applogger.Error(err))...)
		return 0, OutcomeFailed, err.Error(), nil
	}

	in.metrics.RecordRowsWritten(u.Database, u.Table, inserted)
	in.l.Info("unit ingested", append(fields,
		applogger.Int("fetched", batch.Len()),
		applogger.Int64("inserted", inserted),
		applogger.String("request_id", batch.RequestID),
	)...)
	return inserted, OutcomeOK, "", nil
}

func unitFields(u drepo.FetchRequest) []applogger.Field {
	return []applogger.Field{
		applogger.String("database", u.Database),
		applogger.String("table", u.Table),
		applogger.String("ticker", u.Ticker),
		applogger.String("from", util.FormatDate(u.From)),
		applogger.String("to", util.FormatDate(u.To)),
	}
}

type nopMetrics struct{}

func (nopMetrics) RecordFetch(string, string, float64)     {}
func (nopMetrics) RecordGateWait(float64)                  {}
func (nopMetrics) RecordRowsWritten(string, string, int64) {}
func (nopMetrics) RecordSkip(string)                       {}
func (nopMetrics) RecordStrategyRun(string, string)        {}
func (nopMetrics) RecordLatency(string, float64)           {}
