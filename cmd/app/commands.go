package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"Aurelius/internal/di"
	"Aurelius/internal/usecase"
	"Aurelius/pkg/config"
	"Aurelius/pkg/server"

	"github.com/google/subcommands"
)

// withApp loads configuration, wires the App and runs fn until it returns or
// the process is interrupted.
func withApp(ctx context.Context, fn func(context.Context, *server.App) error) subcommands.ExitStatus {
	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		return subcommands.ExitFailure
	}

	app, err := di.InitializeApp(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "app initialization failed: %v\n", err)
		return subcommands.ExitFailure
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	status := subcommands.ExitSuccess
	if err := app.StartStatusServer(); err != nil {
		fmt.Fprintf(os.Stderr, "status server: %v\n", err)
		status = subcommands.ExitFailure
	} else if err := fn(ctx, app); err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "interrupted")
		} else {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
		status = subcommands.ExitFailure
	}

	if err := app.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "close: %v\n", err)
		status = subcommands.ExitFailure
	}
	return status
}

type ingestCmd struct {
	database string
	table    string
	ticker   string
	from     string
	to       string
}

func (*ingestCmd) Name() string     { return "ingest" }
func (*ingestCmd) Synopsis() string { return "fetch configured tables from the provider into storage" }
func (*ingestCmd) Usage() string {
	return `ingest [-database <db>] [-table <table>] [-ticker <ticker>] [-from YYYY-MM-DD] [-to YYYY-MM-DD]

  Fetches every (database, table, ticker) unit within the configured range
  and inserts new rows. Already stored rows are left untouched. The filters
  re-run a single unit listed in the failed run report.
`
}

func (c *ingestCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.database, "database", "", "only ingest this database")
	f.StringVar(&c.table, "table", "", "only ingest this table")
	f.StringVar(&c.ticker, "ticker", "", "only ingest this ticker")
	f.StringVar(&c.from, "from", "", "override range start")
	f.StringVar(&c.to, "to", "", "override range end")
}

func (c *ingestCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(ctx, func(ctx context.Context, app *server.App) error {
		sum, err := app.Ingest(ctx, server.IngestOptions{
			Filter: usecase.UnitFilter{Database: c.database, Table: c.table, Ticker: c.ticker},
			From:   c.from,
			To:     c.to,
		})
		if err != nil {
			return err
		}
		fmt.Printf("units=%d succeeded=%d empty=%d failed=%d rows=%d\n",
			sum.Units, len(sum.Succeeded), sum.Empty, len(sum.Failed), sum.Rows)
		return nil
	})
}

type auditCmd struct{}

func (*auditCmd) Name() string     { return "audit" }
func (*auditCmd) Synopsis() string { return "report duplicate keys and calendar gaps in stored tables" }
func (*auditCmd) Usage() string {
	return `audit

  Reads every configured table and reports (date, ticker) keys stored more
  than once, plus market dates missing per ticker when a calendar is set.
  Nothing is modified.
`
}

func (*auditCmd) SetFlags(*flag.FlagSet) {}

func (*auditCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(ctx, func(ctx context.Context, app *server.App) error {
		findings, err := app.Audit(ctx)
		for _, f := range findings {
			state := "clean"
			if !f.Clean() {
				state = "dirty"
			}
			fmt.Printf("%s.%s rows=%d duplicates=%d gaps=%d %s\n",
				f.Database, f.Table, f.Rows, len(f.Duplicates), len(f.Gaps), state)
		}
		return err
	})
}

type backtestCmd struct{}

func (*backtestCmd) Name() string     { return "backtest" }
func (*backtestCmd) Synopsis() string { return "run buy-and-hold strategies over stored tables" }
func (*backtestCmd) Usage() string {
	return `backtest

  Joins the configured inputs, runs every strategy on every table and
  exports the daily values, positions and augmented rows.
`
}

func (*backtestCmd) SetFlags(*flag.FlagSet) {}

func (*backtestCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(ctx, func(ctx context.Context, app *server.App) error {
		results, err := app.Backtest(ctx)
		for _, r := range results {
			if last, ok := r.Final(); ok {
				fmt.Printf("%s %s final=%.2f return=%.4f\n", r.Table, r.Strategy, last.PortfolioValue, last.CumulativeReturn)
			}
		}
		return err
	})
}

type runCmd struct{}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "ingest, audit and backtest in one pass" }
func (*runCmd) Usage() string {
	return `run

  Runs ingest, audit and backtest in order with the configured settings.
`
}

func (*runCmd) SetFlags(*flag.FlagSet) {}

func (*runCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(ctx, func(ctx context.Context, app *server.App) error {
		return app.RunAll(ctx)
	})
}
