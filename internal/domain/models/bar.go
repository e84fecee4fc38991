package models

import "time"

// Bar is one OHLCV observation for a ticker over a fixed interval.
type Bar struct {
	Timestamp      int64     `json:"timestamp"`
	Datetime       string    `json:"datetime"`
	Date           string    `json:"date"`
	Ticker         string    `json:"ticker"`
	Open           float64   `json:"open"`
	High           float64   `json:"high"`
	Low            float64   `json:"low"`
	Close          float64   `json:"close"`
	Volume         int64     `json:"volume"`
	VolumeWeighted float64   `json:"volume_weighted"`
	Trades         int64     `json:"trades"`
	ResultsCount   int64     `json:"resultsCount"`
	RequestID      string    `json:"request_id"`
	IngestedAt     time.Time `json:"ingested_at"`
}

// MarketCapRecord is one reference snapshot of a ticker on a date.
type MarketCapRecord struct {
	Date                        string    `json:"date"`
	Ticker                      string    `json:"ticker"`
	ShareClassSharesOutstanding int64     `json:"share_class_shares_outstanding"`
	WeightedSharesOutstanding   int64     `json:"weighted_shares_outstanding"`
	MarketCap                   int64     `json:"market_cap"`
	RequestID                   string    `json:"request_id"`
	IngestedAt                  time.Time `json:"ingested_at"`
}

// RecordBatch is the validated output of a single provider request.
// Exactly one of Bars or MarketCaps is populated for a non-empty batch.
type RecordBatch struct {
	Ticker     string
	RequestID  string
	Bars       []Bar
	MarketCaps []MarketCapRecord
	// Rejected holds per-record shape errors; the rest of the batch is kept.
	Rejected []*RecordShapeError
}

// Len returns the number of accepted records.
func (b *RecordBatch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Bars) + len(b.MarketCaps)
}

// DuplicateKey is a (date, ticker) pair that does not appear exactly once.
type DuplicateKey struct {
	Date   string `json:"date"`
	Ticker string `json:"ticker"`
	Count  int    `json:"count"`
}
