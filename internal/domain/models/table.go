package models

// Column names exposed by record tables.
const (
	ColTicker         = "ticker"
	ColDate           = "date"
	ColTimestamp      = "timestamp"
	ColOpen           = "open"
	ColHigh           = "high"
	ColLow            = "low"
	ColClose          = "close"
	ColVolume         = "volume"
	ColVolumeWeighted = "volume_weighted"
	ColTrades         = "trades"
	ColMarketCap      = "market_cap"
)

// BarColumns are the columns of a base bar table.
var BarColumns = []string{
	ColTimestamp, ColDate, ColTicker, ColOpen, ColHigh, ColLow, ColClose,
	ColVolume, ColVolumeWeighted, ColTrades,
}

// JoinedColumns are BarColumns plus market_cap.
var JoinedColumns = append(append([]string{}, BarColumns...), ColMarketCap)

// JoinedRecord is a Bar extended with the market cap of the same (ticker, date).
type JoinedRecord struct {
	Bar
	MarketCap int64 `json:"market_cap"`
}

// Table is an in-memory record table handed to the backtester.
type Table struct {
	Name    string
	Columns []string
	Rows    []JoinedRecord
}

// Missing reports which of the required columns the table lacks.
func (t *Table) Missing(required ...string) []string {
	have := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		have[c] = true
	}
	var missing []string
	for _, r := range required {
		if !have[r] {
			missing = append(missing, r)
		}
	}
	return missing
}
