package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"Aurelius/internal/domain/models"
)

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func formatIngested(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.Local().Format(ingestedLayout)
}

func parseIngested(s sql.NullString) time.Time {
	if !s.Valid {
		return time.Time{}
	}
	t, err := time.ParseInLocation(ingestedLayout, s.String, time.Local)
	if err != nil {
		return time.Time{}
	}
	return t
}

func queryBars(ctx context.Context, q queryer, query string) ([]models.Bar, error) {
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Bar
	for rows.Next() {
		var b models.Bar
		var resultsCount sql.NullInt64
		var requestID, ingested sql.NullString
		if err := rows.Scan(&b.Timestamp, &b.Datetime, &b.Date, &b.Ticker,
			&b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.VolumeWeighted, &b.Trades,
			&resultsCount, &requestID, &ingested); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.ResultsCount = resultsCount.Int64
		b.RequestID = requestID.String
		b.IngestedAt = parseIngested(ingested)
		out = append(out, b)
	}
	return out, rows.Err()
}

func queryMarketCaps(ctx context.Context, q queryer, query string) ([]models.MarketCapRecord, error) {
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.MarketCapRecord
	for rows.Next() {
		var r models.MarketCapRecord
		var requestID, ingested sql.NullString
		if err := rows.Scan(&r.Date, &r.Ticker, &r.ShareClassSharesOutstanding,
			&r.WeightedSharesOutstanding, &r.MarketCap, &requestID, &ingested); err != nil {
			return nil, fmt.Errorf("scan market cap: %w", err)
		}
		r.RequestID = requestID.String
		r.IngestedAt = parseIngested(ingested)
		out = append(out, r)
	}
	return out, rows.Err()
}

func queryDuplicates(ctx context.Context, q queryer, query string) ([]models.DuplicateKey, error) {
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DuplicateKey
	for rows.Next() {
		var d models.DuplicateKey
		var n int64
		if err := rows.Scan(&d.Date, &d.Ticker, &n); err != nil {
			return nil, fmt.Errorf("scan duplicate: %w", err)
		}
		d.Count = int(n)
		out = append(out, d)
	}
	return out, rows.Err()
}
