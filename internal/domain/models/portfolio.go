package models

// Position is the buy-and-hold holding of one ticker fixed at inception.
type Position struct {
	Ticker     string  `json:"ticker"`
	Date       string  `json:"date"`
	Close      float64 `json:"close"`
	MarketCap  int64   `json:"market_cap,omitempty"`
	Weight     float64 `json:"weight"`
	Allocation float64 `json:"allocation"`
	Shares     float64 `json:"shares"`
}

// Portfolio maps tickers to share counts. Immutable once built.
type Portfolio struct {
	InitialValue float64    `json:"initial_value"`
	Positions    []Position `json:"positions"`
}

// Shares returns the share count held for ticker, or 0.
func (p *Portfolio) Shares(ticker string) float64 {
	for _, pos := range p.Positions {
		if pos.Ticker == ticker {
			return pos.Shares
		}
	}
	return 0
}

// AugmentedRecord is an input row annotated with the holding it belongs to.
type AugmentedRecord struct {
	JoinedRecord
	Weight        float64 `json:"weight"`
	Shares        float64 `json:"shares"`
	PositionValue float64 `json:"position_value"`
}

// DailyPortfolioValue is the portfolio valuation on one date.
// DailyReturn is nil on the first date of the series.
type DailyPortfolioValue struct {
	Date             string   `json:"date"`
	PortfolioValue   float64  `json:"portfolio_value"`
	DailyReturn      *float64 `json:"daily_return"`
	CumulativeReturn float64  `json:"cumulative_return"`
}

// StrategyResult is the output of one (table, strategy) backtest.
type StrategyResult struct {
	Table     string                `json:"table"`
	Strategy  string                `json:"strategy"`
	Portfolio Portfolio             `json:"portfolio"`
	Augmented []AugmentedRecord     `json:"augmented"`
	Daily     []DailyPortfolioValue `json:"daily"`
	// Excluded lists tickers whose first row could not seed a position.
	Excluded  []string              `json:"excluded,omitempty"`
}

// Final returns the last valuation of the series, if any.
func (r *StrategyResult) Final() (DailyPortfolioValue, bool) {
	if len(r.Daily) == 0 {
		return DailyPortfolioValue{}, false
	}
	return r.Daily[len(r.Daily)-1], true
}
