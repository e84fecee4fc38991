package usecase

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"Aurelius/internal/domain/models"
	drepo "Aurelius/internal/domain/repository"
	"Aurelius/internal/services/backtest"
	"Aurelius/internal/services/dataset"
	"Aurelius/internal/services/features"
	applogger "Aurelius/pkg/logger"
)

// TableRef points at a persisted table.
type TableRef struct {
	Database string
	Table    string
}

// JoinInput names a derived bars x market-cap table.
type JoinInput struct {
	Name       string
	Bars       TableRef
	MarketCaps TableRef
}

// Backtester loads record tables and runs every (table, strategy) pair.
type Backtester struct {
	store    drepo.Store
	registry *backtest.Registry
	sink     drepo.ResultSink
	metrics  drepo.Metrics
	book     *ResultBook
	workers  int
	l        *applogger.Logger
}

func NewBacktester(store drepo.Store, registry *backtest.Registry, sink drepo.ResultSink,
	metrics drepo.Metrics, book *ResultBook, workers int, l *applogger.Logger) *Backtester {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if book == nil {
		book = NewResultBook()
	}
	if workers < 1 {
		workers = 1
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &Backtester{store: store, registry: registry, sink: sink, metrics: metrics, book: book, workers: workers, l: l}
}

// LoadTables builds the joined inputs and, when base is non-empty, exposes
// each base bar table as {database}_{table}. An empty join is kept with a
// warning; duplicate (date, ticker) rows in a join are reported.
func (b *Backtester) LoadTables(ctx context.Context, inputs []JoinInput, base []DatabaseSpec) ([]*models.Table, error) {
	var tables []*models.Table

	for _, in := range inputs {
		if err := ctx.Err(); err != nil {
			return tables, err
		}
		t, err := b.join(ctx, in)
		if err != nil {
			if ctx.Err() != nil {
				return tables, ctx.Err()
			}
			b.l.Error("join input unavailable",
				applogger.String("table", in.Name),
				applogger.String("bars", in.Bars.Database+"."+in.Bars.Table),
				applogger.String("market_caps", in.MarketCaps.Database+"."+in.MarketCaps.Table),
				applogger.Error(err),
			)
			continue
		}
		tables = append(tables, t)
	}

	for _, db := range base {
		if err := b.store.OpenDatabase(ctx, db.Name); err != nil {
			b.l.Error("database unavailable", applogger.String("database", db.Name), applogger.Error(err))
			continue
		}
		for _, spec := range db.Tables {
			if spec.Kind != drepo.KindBars {
				continue
			}
			bars, err := b.store.ReadBars(ctx, db.Name, spec.Name)
			if err != nil {
				if ctx.Err() != nil {
					return tables, ctx.Err()
				}
				b.l.Error("base table unavailable",
					applogger.String("database", db.Name),
					applogger.String("table", spec.Name),
					applogger.Error(err),
				)
				continue
			}
			tables = append(tables, dataset.BarsTable(db.Name+"_"+spec.Name, bars))
		}
	}
	return tables, nil
}

func (b *Backtester) join(ctx context.Context, in JoinInput) (*models.Table, error) {
	for _, db := range []string{in.Bars.Database, in.MarketCaps.Database} {
		if err := b.store.OpenDatabase(ctx, db); err != nil {
			return nil, err
		}
	}
	bars, err := b.store.ReadBars(ctx, in.Bars.Database, in.Bars.Table)
	if err != nil {
		return nil, err
	}
	caps, err := b.store.ReadMarketCaps(ctx, in.MarketCaps.Database, in.MarketCaps.Table)
	if err != nil {
		return nil, err
	}

	t, err := dataset.Join(in.Name, bars, caps)
	if errors.Is(err, models.ErrEmptyJoin) {
		b.l.Warn("join produced no rows", applogger.String("table", in.Name))
		return t, nil
	}
	if err != nil {
		return nil, err
	}

	for _, d := range dataset.FindDuplicates(t.Rows) {
		b.l.Warn("duplicate (date, ticker) in joined table",
			applogger.String("table", in.Name),
			applogger.String("date", d.Date),
			applogger.String("ticker", d.Ticker),
			applogger.Int("count", d.Count),
		)
	}
	b.l.Info("joined table ready", applogger.String("table", in.Name), applogger.Int("rows", len(t.Rows)))
	return t, nil
}

// Run computes every (table, strategy) pair on a bounded worker pool. A
// failing pair is logged and skipped; results keep pair order.
func (b *Backtester) Run(ctx context.Context, tables []*models.Table, kinds []backtest.Kind, initialValue float64) ([]*models.StrategyResult, error) {
	type pair struct {
		table *models.Table
		kind  backtest.Kind
	}
	pairs := make([]pair, 0, len(tables)*len(kinds))
	for _, t := range tables {
		for _, k := range kinds {
			pairs = append(pairs, pair{t, k})
		}
	}

	results := make([]*models.StrategyResult, len(pairs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i, p := range pairs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = b.runPair(gctx, p.table, p.kind, initialValue)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]*models.StrategyResult, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, r)
		}
	}
	return out, nil
}

func (b *Backtester) runPair(ctx context.Context, t *models.Table, k backtest.Kind, initialValue float64) *models.StrategyResult {
	fields := []applogger.Field{applogger.String("table", t.Name), applogger.String("strategy", string(k))}

	start := time.Now()
	res, err := b.registry.Run(k, t, initialValue)
	b.metrics.RecordLatency("backtest", time.Since(start).Seconds())

	var colErr *models.StrategyColumnError
	switch {
	case errors.As(err, &colErr):
		b.metrics.RecordStrategyRun(string(k), "skipped")
		b.l.Warn("strategy skipped", append(fields, applogger.Strings("missing", colErr.Missing))...)
		return nil
	case errors.Is(err, backtest.ErrNoSnapshots):
		b.metrics.RecordStrategyRun(string(k), "skipped")
		b.l.Warn("strategy skipped", append(fields, applogger.Error(err))...)
		return nil
	case err != nil:
		b.metrics.RecordStrategyRun(string(k), "error")
		b.l.Error("strategy failed", append(fields, applogger.Error(err))...)
		return nil
	}

	for _, ticker := range res.Excluded {
		b.l.Warn("ticker excluded, first row cannot seed a position", append(fields, applogger.String("ticker", ticker))...)
	}

	if b.sink != nil {
		if err := b.sink.Export(ctx, res); err != nil {
			b.metrics.RecordStrategyRun(string(k), "export_error")
			b.l.Error("result export failed", append(fields, applogger.Error(err))...)
			return res
		}
	}

	summary := features.Summarize(res)
	b.book.Put(summary)
	b.metrics.RecordStrategyRun(string(k), "ok")
	b.l.Info("strategy completed", append(fields,
		applogger.Int("positions", summary.Positions),
		applogger.Int("days", summary.Days),
		applogger.Float64("final_value", summary.FinalValue),
		applogger.Float64("cumulative_return", summary.CumulativeReturn),
	)...)
	return res
}

// Book exposes finished summaries.
func (b *Backtester) Book() *ResultBook { return b.book }
