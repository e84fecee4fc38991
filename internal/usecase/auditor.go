package usecase

import (
	"context"

	"Aurelius/internal/domain/models"
	drepo "Aurelius/internal/domain/repository"
	"Aurelius/internal/services/dataset"
	applogger "Aurelius/pkg/logger"
)

// AuditFinding is the integrity report for one table.
type AuditFinding struct {
	Database   string                `json:"database"`
	Table      string                `json:"table"`
	Rows       int64                 `json:"rows"`
	Duplicates []models.DuplicateKey `json:"duplicates"`
	Gaps       []dataset.Gap         `json:"gaps,omitempty"`
}

// Clean reports whether the table passed every check.
func (f AuditFinding) Clean() bool {
	return len(f.Duplicates) == 0 && len(f.Gaps) == 0
}

// Auditor checks persisted tables without modifying them.
type Auditor struct {
	store drepo.Store
	l     *applogger.Logger
}

func NewAuditor(store drepo.Store, l *applogger.Logger) *Auditor {
	if l == nil {
		l = applogger.Nop()
	}
	return &Auditor{store: store, l: l}
}

// Run audits every table of dbs. With marketDates set, each ticker is also
// checked for missing market dates. Errors are logged per table.
func (a *Auditor) Run(ctx context.Context, dbs []DatabaseSpec, marketDates []string) ([]AuditFinding, error) {
	var findings []AuditFinding
	for _, db := range dbs {
		if err := ctx.Err(); err != nil {
			return findings, err
		}
		if err := a.store.OpenDatabase(ctx, db.Name); err != nil {
			a.l.Error("database unavailable, skipping audit", applogger.String("database", db.Name), applogger.Error(err))
			continue
		}
		for _, t := range db.Tables {
			f, err := a.auditTable(ctx, db.Name, t, marketDates)
			if err != nil {
				if ctx.Err() != nil {
					return findings, ctx.Err()
				}
				a.l.Error("audit failed",
					applogger.String("database", db.Name),
					applogger.String("table", t.Name),
					applogger.Error(err),
				)
				continue
			}
			findings = append(findings, f)
		}
	}
	return findings, nil
}

func (a *Auditor) auditTable(ctx context.Context, database string, t TableSpec, marketDates []string) (AuditFinding, error) {
	f := AuditFinding{Database: database, Table: t.Name}

	n, err := a.store.CountRows(ctx, database, t.Name)
	if err != nil {
		return f, err
	}
	f.Rows = n

	f.Duplicates, err = a.store.FindDuplicates(ctx, database, t.Name, t.Kind)
	if err != nil {
		return f, err
	}
	for _, d := range f.Duplicates {
		a.l.Warn("duplicate (date, ticker)",
			applogger.String("database", database),
			applogger.String("table", t.Name),
			applogger.String("date", d.Date),
			applogger.String("ticker", d.Ticker),
			applogger.Int("count", d.Count),
		)
	}

	if len(marketDates) > 0 {
		rows, err := a.coverageRows(ctx, database, t)
		if err != nil {
			return f, err
		}
		if rows != nil {
			f.Gaps = dataset.Coverage(rows, marketDates)
		}
		for _, g := range f.Gaps {
			a.l.Warn("missing market dates",
				applogger.String("database", database),
				applogger.String("table", t.Name),
				applogger.String("ticker", g.Ticker),
				applogger.Strings("dates", g.Missing),
			)
		}
	}

	if f.Clean() {
		a.l.Info("audit passed",
			applogger.String("database", database),
			applogger.String("table", t.Name),
			applogger.Int64("rows", f.Rows),
		)
	}
	return f, nil
}

// coverageRows loads the rows a coverage check applies to: daily bars and
// market-cap snapshots. Intraday tables return nil.
func (a *Auditor) coverageRows(ctx context.Context, database string, t TableSpec) ([]models.JoinedRecord, error) {
	switch {
	case t.Kind == drepo.KindMarketCap:
		caps, err := a.store.ReadMarketCaps(ctx, database, t.Name)
		if err != nil {
			return nil, err
		}
		return dataset.CapsToRows(caps), nil
	case t.Interval.Timespan == "day":
		bars, err := a.store.ReadBars(ctx, database, t.Name)
		if err != nil {
			return nil, err
		}
		return dataset.BarsToRows(bars), nil
	default:
		return nil, nil
	}
}
