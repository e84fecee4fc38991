package usecase

import (
	"fmt"

	drepo "Aurelius/internal/domain/repository"
	"Aurelius/pkg/config"
)

// TableSpec is one table to populate inside a database.
type TableSpec struct {
	Name     string
	Kind     drepo.TableKind
	Interval drepo.Interval
}

// DatabaseSpec is one logical database with its ticker universe.
type DatabaseSpec struct {
	Name    string
	Tickers []string
	Tables  []TableSpec
}

// DatabasesFromConfig resolves table kinds and intervals from configuration.
func DatabasesFromConfig(cfg *config.Config) ([]DatabaseSpec, error) {
	out := make([]DatabaseSpec, 0, len(cfg.Databases))
	for _, db := range cfg.Databases {
		spec := DatabaseSpec{Name: db.Name, Tickers: db.Tickers}
		for _, t := range db.Tables {
			kind, err := drepo.ParseTableKind(t.Kind)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", db.Name, t.Name, err)
			}
			ts := TableSpec{Name: t.Name, Kind: kind}
			if kind == drepo.KindBars {
				iv, err := drepo.NormalizeInterval(t.Name, t.Interval)
				if err != nil {
					return nil, fmt.Errorf("%s.%s: %w", db.Name, t.Name, err)
				}
				ts.Interval = iv
			}
			spec.Tables = append(spec.Tables, ts)
		}
		out = append(out, spec)
	}
	return out, nil
}
