package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Aurelius/internal/domain/models"
	drepo "Aurelius/internal/domain/repository"
	"Aurelius/internal/handler/api"
	"Aurelius/internal/services/backtest"
	"Aurelius/internal/usecase"
	"Aurelius/pkg/cache"
	"Aurelius/pkg/config"
	xhttp "Aurelius/pkg/http"
	applogger "Aurelius/pkg/logger"
	"Aurelius/pkg/metrics"
	"Aurelius/pkg/util"
)

// MarketDates is the loaded market calendar; empty when none is configured.
type MarketDates []time.Time

// Strings returns the dates as YYYY-MM-DD.
func (d MarketDates) Strings() []string {
	out := make([]string, len(d))
	for i, t := range d {
		out[i] = util.FormatDate(t)
	}
	return out
}

// App encapsulates the batch lifecycle: ingest, audit, backtest.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	store      drepo.Store
	sink       drepo.ResultSink
	cache      cache.Service
	recorder   *metrics.Recorder
	ingestor   *usecase.Ingestor
	auditor    *usecase.Auditor
	backtester *usecase.Backtester
	progress   *usecase.Progress
	dates      MarketDates

	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	store drepo.Store,
	sink drepo.ResultSink,
	respCache cache.Service,
	recorder *metrics.Recorder,
	ingestor *usecase.Ingestor,
	auditor *usecase.Auditor,
	backtester *usecase.Backtester,
	progress *usecase.Progress,
	dates MarketDates,
) *App {
	return &App{
		cfg:        cfg,
		log:        log,
		store:      store,
		sink:       sink,
		cache:      respCache,
		recorder:   recorder,
		ingestor:   ingestor,
		auditor:    auditor,
		backtester: backtester,
		progress:   progress,
		dates:      dates,
	}
}

// StartStatusServer serves /metrics and the status API when metrics.listen is set.
func (a *App) StartStatusServer() error {
	if a.cfg.Metrics.Listen == "" || a.httpServer != nil {
		return nil
	}
	h := api.NewStatusHandler(a.progress, a.backtester.Book(), a.log)
	a.httpServer = xhttp.NewServer(h.RegisterRoutes,
		xhttp.WithAddr(a.cfg.Metrics.Listen),
		xhttp.WithLogger(a.log),
	)
	if err := a.httpServer.Start(); err != nil {
		a.httpServer = nil
		return err
	}
	return nil
}

// IngestOptions narrows an ingestion run. Zero values use the configured range
// and every unit.
type IngestOptions struct {
	Filter usecase.UnitFilter
	From   string
	To     string
}

// Ingest fetches and stores every configured unit, then writes the run report.
func (a *App) Ingest(ctx context.Context, opts IngestOptions) (*usecase.IngestSummary, error) {
	if err := a.cfg.RequireProvider(); err != nil {
		return nil, err
	}
	start, end, err := a.ingestRange(opts)
	if err != nil {
		return nil, err
	}
	dbs, err := usecase.DatabasesFromConfig(a.cfg)
	if err != nil {
		return nil, err
	}

	ready := a.ingestor.Prepare(ctx, dbs)
	units := opts.Filter.Apply(a.ingestor.Plan(ready, start, end, a.dates))
	a.log.Info("ingestion planned",
		applogger.Int("databases", len(ready)),
		applogger.Int("units", len(units)),
		applogger.String("from", util.FormatDate(start)),
		applogger.String("to", util.FormatDate(end)),
	)

	sum, runErr := a.ingestor.Run(ctx, units)
	if sum != nil {
		if err := usecase.WriteRunReport(a.cfg.Report.Dir, sum.Succeeded, sum.Failed, a.log); err != nil {
			a.log.Warn("run report not written", applogger.Error(err))
		}
	}
	return sum, runErr
}

func (a *App) ingestRange(opts IngestOptions) (time.Time, time.Time, error) {
	start, end, err := a.cfg.DateRange()
	if err != nil {
		return start, end, err
	}
	if opts.From != "" {
		if start, err = util.ParseDate(opts.From); err != nil {
			return start, end, fmt.Errorf("from: %w", err)
		}
	}
	if opts.To != "" {
		if end, err = util.ParseDate(opts.To); err != nil {
			return start, end, fmt.Errorf("to: %w", err)
		}
	}
	if end.Before(start) {
		return start, end, fmt.Errorf("range end %s is before start %s", util.FormatDate(end), util.FormatDate(start))
	}
	return start, end, nil
}

// Audit reports duplicate keys and calendar gaps for every configured table.
func (a *App) Audit(ctx context.Context) ([]usecase.AuditFinding, error) {
	dbs, err := usecase.DatabasesFromConfig(a.cfg)
	if err != nil {
		return nil, err
	}
	findings, err := a.auditor.Run(ctx, dbs, a.dates.Strings())
	dirty := 0
	for _, f := range findings {
		if !f.Clean() {
			dirty++
		}
	}
	a.log.Info("audit finished", applogger.Int("tables", len(findings)), applogger.Int("dirty", dirty))
	return findings, err
}

// Backtest runs every configured strategy over every loaded table.
func (a *App) Backtest(ctx context.Context) ([]*models.StrategyResult, error) {
	kinds, err := backtest.ParseKinds(a.cfg.Backtest.Strategies)
	if err != nil {
		return nil, err
	}

	inputs := make([]usecase.JoinInput, 0, len(a.cfg.Backtest.Inputs))
	for _, in := range a.cfg.Backtest.Inputs {
		inputs = append(inputs, usecase.JoinInput{
			Name:       in.Name,
			Bars:       usecase.TableRef{Database: in.Bars.Database, Table: in.Bars.Table},
			MarketCaps: usecase.TableRef{Database: in.MarketCaps.Database, Table: in.MarketCaps.Table},
		})
	}
	var base []usecase.DatabaseSpec
	if a.cfg.Backtest.IncludeBaseTables {
		if base, err = usecase.DatabasesFromConfig(a.cfg); err != nil {
			return nil, err
		}
	}

	tables, err := a.backtester.LoadTables(ctx, inputs, base)
	if err != nil {
		return nil, err
	}
	results, err := a.backtester.Run(ctx, tables, kinds, a.cfg.Backtest.InitialValue)
	if err != nil {
		return results, err
	}

	for _, r := range results {
		if last, ok := r.Final(); ok {
			a.log.Info("final portfolio value",
				applogger.String("table", r.Table),
				applogger.String("strategy", r.Strategy),
				applogger.String("date", last.Date),
				applogger.Float64("value", last.PortfolioValue),
				applogger.Float64("cumulative_return", last.CumulativeReturn),
			)
		}
	}
	return results, nil
}

// RunAll ingests, audits and backtests in order. Cancellation stops at the
// next phase boundary.
func (a *App) RunAll(ctx context.Context) error {
	if _, err := a.Ingest(ctx, IngestOptions{}); err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	if _, err := a.Audit(ctx); err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	if _, err := a.Backtest(ctx); err != nil {
		return fmt.Errorf("backtest: %w", err)
	}
	return nil
}

// Close stops the status server, pushes metrics and releases storage.
func (a *App) Close() error {
	var errs []error

	if a.httpServer != nil {
		if err := a.httpServer.Stop(context.Background()); err != nil {
			errs = append(errs, err)
		}
	}
	if a.recorder != nil {
		if err := a.recorder.Push(a.cfg.Metrics.Pushgateway, a.cfg.Metrics.Job); err != nil {
			a.log.Warn("metrics push failed", applogger.Error(err))
		}
	}
	if a.sink != nil {
		if err := a.sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close sink: %w", err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cache: %w", err))
		}
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}

	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}
