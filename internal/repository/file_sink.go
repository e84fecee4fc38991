package repository

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"

	"Aurelius/internal/domain/models"
	applogger "Aurelius/pkg/logger"
)

// File formats understood by FileSink.
const (
	FormatCSV     = "csv"
	FormatJSON    = "json"
	FormatParquet = "parquet"
)

// FileSink writes each result as three files under dir:
// {table}_{strategy}_daily, _positions and _augmented.
type FileSink struct {
	dir    string
	format string
	l      *applogger.Logger
}

func NewFileSink(dir, format string, l *applogger.Logger) (*FileSink, error) {
	switch format {
	case FormatCSV, FormatJSON, FormatParquet:
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &FileSink{dir: dir, format: format, l: l}, nil
}

type dailyRow struct {
	Date             string   `json:"date" parquet:"date"`
	PortfolioValue   float64  `json:"portfolio_value" parquet:"portfolio_value"`
	DailyReturn      *float64 `json:"daily_return" parquet:"daily_return,optional"`
	CumulativeReturn float64  `json:"cumulative_return" parquet:"cumulative_return"`
}

type positionRow struct {
	Ticker     string  `json:"ticker" parquet:"ticker"`
	Date       string  `json:"date" parquet:"date"`
	Close      float64 `json:"close" parquet:"close"`
	MarketCap  int64   `json:"market_cap" parquet:"market_cap"`
	Weight     float64 `json:"weight" parquet:"weight"`
	Allocation float64 `json:"allocation" parquet:"allocation"`
	Shares     float64 `json:"shares" parquet:"shares"`
}

type augmentedRow struct {
	Timestamp     int64   `json:"timestamp" parquet:"timestamp"`
	Date          string  `json:"date" parquet:"date"`
	Ticker        string  `json:"ticker" parquet:"ticker"`
	Open          float64 `json:"open" parquet:"open"`
	High          float64 `json:"high" parquet:"high"`
	Low           float64 `json:"low" parquet:"low"`
	Close         float64 `json:"close" parquet:"close"`
	Volume        int64   `json:"volume" parquet:"volume"`
	MarketCap     int64   `json:"market_cap" parquet:"market_cap"`
	Weight        float64 `json:"weight" parquet:"weight"`
	Shares        float64 `json:"shares" parquet:"shares"`
	PositionValue float64 `json:"position_value" parquet:"position_value"`
}

// Export writes the daily series, the positions and the augmented rows.
func (s *FileSink) Export(ctx context.Context, r *models.StrategyResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	base := filepath.Join(s.dir, r.Table+"_"+r.Strategy)

	daily := make([]dailyRow, len(r.Daily))
	for i, d := range r.Daily {
		daily[i] = dailyRow{d.Date, d.PortfolioValue, d.DailyReturn, d.CumulativeReturn}
	}
	positions := make([]positionRow, len(r.Portfolio.Positions))
	for i, p := range r.Portfolio.Positions {
		positions[i] = positionRow{p.Ticker, p.Date, p.Close, p.MarketCap, p.Weight, p.Allocation, p.Shares}
	}
	augmented := make([]augmentedRow, len(r.Augmented))
	for i, a := range r.Augmented {
		augmented[i] = augmentedRow{
			Timestamp: a.Timestamp, Date: a.Date, Ticker: a.Ticker,
			Open: a.Open, High: a.High, Low: a.Low, Close: a.Close, Volume: a.Volume,
			MarketCap: a.MarketCap, Weight: a.Weight, Shares: a.Shares, PositionValue: a.PositionValue,
		}
	}

	if err := writeRows(s.format, base+"_daily", daily,
		[]string{"date", "portfolio_value", "daily_return", "cumulative_return"},
		func(d dailyRow) []string {
			ret := ""
			if d.DailyReturn != nil {
				ret = decimalStr(*d.DailyReturn)
			}
			return []string{d.Date, decimalStr(d.PortfolioValue), ret, decimalStr(d.CumulativeReturn)}
		}); err != nil {
		return err
	}
	if err := writeRows(s.format, base+"_positions", positions,
		[]string{"ticker", "date", "close", "market_cap", "weight", "allocation", "shares"},
		func(p positionRow) []string {
			return []string{p.Ticker, p.Date, decimalStr(p.Close), strconv.FormatInt(p.MarketCap, 10),
				decimalStr(p.Weight), decimalStr(p.Allocation), decimalStr(p.Shares)}
		}); err != nil {
		return err
	}
	if err := writeRows(s.format, base+"_augmented", augmented,
		[]string{"timestamp", "date", "ticker", "open", "high", "low", "close", "volume", "market_cap", "weight", "shares", "position_value"},
		func(a augmentedRow) []string {
			return []string{strconv.FormatInt(a.Timestamp, 10), a.Date, a.Ticker,
				decimalStr(a.Open), decimalStr(a.High), decimalStr(a.Low), decimalStr(a.Close),
				strconv.FormatInt(a.Volume, 10), strconv.FormatInt(a.MarketCap, 10),
				decimalStr(a.Weight), decimalStr(a.Shares), decimalStr(a.PositionValue)}
		}); err != nil {
		return err
	}

	s.l.Info("backtest result exported",
		applogger.String("table", r.Table),
		applogger.String("strategy", r.Strategy),
		applogger.String("format", s.format),
		applogger.String("path", base),
	)
	return nil
}

func (s *FileSink) Close() error { return nil }

func writeRows[T any](format, base string, rows []T, header []string, record func(T) []string) error {
	path := base + "." + format
	var err error
	switch format {
	case FormatParquet:
		err = parquet.WriteFile(path, rows)
	case FormatJSON:
		err = writeJSON(path, rows)
	default:
		err = writeCSV(path, rows, header, record)
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func writeJSON[T any](path string, rows []T) error {
	if rows == nil {
		rows = []T{}
	}
	b, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func writeCSV[T any](path string, rows []T, header []string, record func(T) []string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		if err := w.Write(record(r)); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

// decimalStr prints v without float noise such as 0.30000000000000004.
func decimalStr(v float64) string {
	return decimal.NewFromFloat(v).Round(8).String()
}
