// Package backtest runs buy-and-hold portfolio strategies over record tables.
package backtest

import (
	"errors"
	"fmt"
	"sort"

	"Aurelius/internal/domain/models"
	"Aurelius/internal/services/dataset"
	"Aurelius/internal/services/features"
)

// Valuation policies for a held ticker with no bar on a valuation date.
const (
	ValuationZero         = "zero"
	ValuationCarryForward = "carry_forward"
)

var ErrNoSnapshots = errors.New("no ticker has a usable initial snapshot")

// Registry dispatches strategy kinds to implementations.
type Registry struct {
	strategies map[Kind]Strategy
	valuation  string
	dates      map[string]bool
}

type Option func(*Registry)

// WithValuation selects the missing-bar policy (zero or carry_forward).
func WithValuation(policy string) Option {
	return func(r *Registry) { r.valuation = policy }
}

// WithMarketDates restricts the valuation series to the given dates.
func WithMarketDates(dates []string) Option {
	return func(r *Registry) {
		if len(dates) == 0 {
			return
		}
		r.dates = make(map[string]bool, len(dates))
		for _, d := range dates {
			r.dates[d] = true
		}
	}
}

func NewRegistry(opts ...Option) (*Registry, error) {
	r := &Registry{
		strategies: map[Kind]Strategy{
			MarketCapWeighted: marketCapWeighted{},
			EqualWeighted:     equalWeighted{},
		},
		valuation: ValuationZero,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.valuation != ValuationZero && r.valuation != ValuationCarryForward {
		return nil, fmt.Errorf("unknown valuation policy %q", r.valuation)
	}
	return r, nil
}

// Strategy returns the implementation registered for k.
func (r *Registry) Strategy(k Kind) (Strategy, bool) {
	s, ok := r.strategies[k]
	return s, ok
}

// Run backtests one strategy over table. A table lacking the strategy's
// columns yields *models.StrategyColumnError. The input rows are not modified.
func (r *Registry) Run(k Kind, table *models.Table, initialValue float64) (*models.StrategyResult, error) {
	strat, ok := r.strategies[k]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q", k)
	}
	if missing := table.Missing(strat.Required()...); len(missing) > 0 {
		return nil, &models.StrategyColumnError{Strategy: string(k), Table: table.Name, Missing: missing}
	}
	if initialValue <= 0 {
		return nil, fmt.Errorf("initial value must be positive, got %v", initialValue)
	}

	rows := append([]models.JoinedRecord(nil), table.Rows...)
	dataset.SortRows(rows)

	snaps, excluded := firstSnapshots(rows, strat)
	if len(snaps) == 0 {
		return nil, ErrNoSnapshots
	}
	weights, err := strat.Weights(snaps)
	if err != nil {
		return nil, err
	}

	portfolio := models.Portfolio{InitialValue: initialValue, Positions: make([]models.Position, len(snaps))}
	held := make(map[string]int, len(snaps))
	for i, s := range snaps {
		alloc := weights[i] * initialValue
		portfolio.Positions[i] = models.Position{
			Ticker:     s.Ticker,
			Date:       s.Date,
			Close:      s.Close,
			MarketCap:  s.MarketCap,
			Weight:     weights[i],
			Allocation: alloc,
			Shares:     alloc / s.Close,
		}
		held[s.Ticker] = i
	}

	augmented := make([]models.AugmentedRecord, len(rows))
	for i, row := range rows {
		a := models.AugmentedRecord{JoinedRecord: row}
		if idx, ok := held[row.Ticker]; ok {
			p := portfolio.Positions[idx]
			a.Weight = p.Weight
			a.Shares = p.Shares
			a.PositionValue = p.Shares * row.Close
		}
		augmented[i] = a
	}

	return &models.StrategyResult{
		Table:     table.Name,
		Strategy:  string(k),
		Portfolio: portfolio,
		Augmented: augmented,
		Daily:     r.value(rows, portfolio),
		Excluded:  excluded,
	}, nil
}

// firstSnapshots takes the first row of each ticker in sorted order. A ticker
// whose first row is not eligible is excluded rather than seeded later.
func firstSnapshots(rows []models.JoinedRecord, strat Strategy) ([]models.JoinedRecord, []string) {
	var snaps []models.JoinedRecord
	var excluded []string
	seen := make(map[string]bool)
	for _, row := range rows {
		if seen[row.Ticker] {
			continue
		}
		seen[row.Ticker] = true
		if strat.Eligible(row) {
			snaps = append(snaps, row)
		} else {
			excluded = append(excluded, row.Ticker)
		}
	}
	return snaps, excluded
}

// value computes one DailyPortfolioValue per distinct date. For tables with
// several bars per date the last bar of the day prices the position.
func (r *Registry) value(rows []models.JoinedRecord, p models.Portfolio) []models.DailyPortfolioValue {
	closes := make(map[string]map[string]float64)
	dateSet := make(map[string]bool)
	for _, row := range rows {
		if r.dates != nil && !r.dates[row.Date] {
			continue
		}
		dateSet[row.Date] = true
		m, ok := closes[row.Date]
		if !ok {
			m = make(map[string]float64)
			closes[row.Date] = m
		}
		// rows are sorted by timestamp within (ticker, date)
		m[row.Ticker] = row.Close
	}

	dates := make([]string, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	last := make(map[string]float64, len(p.Positions))
	out := make([]models.DailyPortfolioValue, 0, len(dates))
	for i, d := range dates {
		var v float64
		for _, pos := range p.Positions {
			c, ok := closes[d][pos.Ticker]
			if ok {
				last[pos.Ticker] = c
			} else if r.valuation == ValuationCarryForward {
				c = last[pos.Ticker]
			}
			v += pos.Shares * c
		}
		dv := models.DailyPortfolioValue{
			Date:             d,
			PortfolioValue:   v,
			CumulativeReturn: features.CumulativeReturn(v, p.InitialValue),
		}
		if i > 0 {
			dv.DailyReturn = features.PercentChange(out[i-1].PortfolioValue, v)
		}
		out = append(out, dv)
	}
	return out
}
