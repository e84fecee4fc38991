// Package features holds return and risk helpers over valuation series.
package features

import (
	"math"

	"Aurelius/internal/domain/models"
)

// PercentChange returns (cur/prev - 1) * 100, or nil when prev is not positive.
func PercentChange(prev, cur float64) *float64 {
	if prev <= 0 {
		return nil
	}
	v := (cur/prev - 1) * 100
	return &v
}

// CumulativeReturn returns (value/initial - 1) * 100.
func CumulativeReturn(value, initial float64) float64 {
	if initial == 0 {
		return 0
	}
	return (value/initial - 1) * 100
}

// ComputeLogReturns computes log returns r_t = ln(V_t / V_{t-1}) over a
// valuation series. Non-positive values yield a zero return.
func ComputeLogReturns(daily []models.DailyPortfolioValue) []float64 {
	if len(daily) < 2 {
		return nil
	}
	out := make([]float64, 0, len(daily)-1)
	for i := 1; i < len(daily); i++ {
		prev := daily[i-1].PortfolioValue
		cur := daily[i].PortfolioValue
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// RealizedVolatility computes annualized volatility of the last window
// returns using periodsPerYear observations per year.
func RealizedVolatility(logReturns []float64, window int, periodsPerYear float64) float64 {
	if window <= 1 || len(logReturns) < window {
		return 0
	}
	sum := 0.0
	sum2 := 0.0
	for i := len(logReturns) - window; i < len(logReturns); i++ {
		r := logReturns[i]
		sum += r
		sum2 += r * r
	}
	n := float64(window)
	mean := sum / n
	variance := (sum2 - n*mean*mean) / (n - 1)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance * periodsPerYear)
}

// MaxDrawdown returns the largest peak-to-trough decline in percent.
func MaxDrawdown(daily []models.DailyPortfolioValue) float64 {
	peak := 0.0
	worst := 0.0
	for _, d := range daily {
		if d.PortfolioValue > peak {
			peak = d.PortfolioValue
			continue
		}
		if peak > 0 {
			if dd := (peak - d.PortfolioValue) / peak * 100; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

// TradingDaysPerYear annualizes daily series.
const TradingDaysPerYear = 252

// Summary condenses a finished backtest for status reporting.
type Summary struct {
	Table            string  `json:"table"`
	Strategy         string  `json:"strategy"`
	Positions        int     `json:"positions"`
	Days             int     `json:"days"`
	FirstDate        string  `json:"first_date,omitempty"`
	LastDate         string  `json:"last_date,omitempty"`
	FinalValue       float64 `json:"final_value"`
	CumulativeReturn float64 `json:"cumulative_return"`
	Volatility       float64 `json:"volatility"`
	MaxDrawdown      float64 `json:"max_drawdown"`
}

// Summarize derives a Summary from r.
func Summarize(r *models.StrategyResult) Summary {
	s := Summary{
		Table:     r.Table,
		Strategy:  r.Strategy,
		Positions: len(r.Portfolio.Positions),
		Days:      len(r.Daily),
	}
	if last, ok := r.Final(); ok {
		s.FirstDate = r.Daily[0].Date
		s.LastDate = last.Date
		s.FinalValue = last.PortfolioValue
		s.CumulativeReturn = last.CumulativeReturn
	}
	lr := ComputeLogReturns(r.Daily)
	s.Volatility = RealizedVolatility(lr, len(lr), TradingDaysPerYear)
	s.MaxDrawdown = MaxDrawdown(r.Daily)
	return s
}
