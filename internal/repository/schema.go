package repository

import (
	"fmt"
	"regexp"

	drepo "Aurelius/internal/domain/repository"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier rejects database and table names that cannot be used unquoted.
func ValidIdentifier(name string) error {
	if !identRe.MatchString(name) {
		return fmt.Errorf("invalid identifier %q", name)
	}
	return nil
}

const (
	barColumns = "timestamp, datetime, date, ticker, open, high, low, close, volume, volume_weighted, trades, resultsCount, request_id, ingested_at"
	capColumns = "date, ticker, share_class_shares_outstanding, weighted_shares_outstanding, market_cap, request_id, ingested_at"

	ingestedLayout = "2006-01-02 15:04:05"
)

func sqliteSchema(table string, kind drepo.TableKind) ([]string, error) {
	if err := ValidIdentifier(table); err != nil {
		return nil, err
	}
	switch kind {
	case drepo.KindBars:
		return []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id INTEGER PRIMARY KEY,
	timestamp INTEGER NOT NULL,
	datetime TEXT NOT NULL,
	date TEXT NOT NULL,
	ticker TEXT NOT NULL,
	open REAL NOT NULL,
	high REAL NOT NULL,
	low REAL NOT NULL,
	close REAL NOT NULL,
	volume INTEGER NOT NULL,
	volume_weighted REAL NOT NULL,
	trades INTEGER NOT NULL,
	resultsCount INTEGER,
	request_id TEXT,
	ingested_at TEXT,
	UNIQUE (timestamp, datetime, ticker, open, high, low, close, volume, volume_weighted, trades)
)`, table),
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_ticker_date ON %s (ticker, date)", table, table),
		}, nil
	case drepo.KindMarketCap:
		return []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id INTEGER PRIMARY KEY,
	date TEXT NOT NULL,
	ticker TEXT NOT NULL,
	share_class_shares_outstanding INTEGER NOT NULL,
	weighted_shares_outstanding INTEGER NOT NULL,
	market_cap INTEGER NOT NULL,
	request_id TEXT,
	ingested_at TEXT,
	UNIQUE (date, ticker, share_class_shares_outstanding, weighted_shares_outstanding, market_cap)
)`, table),
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_ticker_date ON %s (ticker, date)", table, table),
		}, nil
	default:
		return nil, fmt.Errorf("unknown table kind %q", kind)
	}
}

// clickhouseSchema uses ReplacingMergeTree ordered by the uniqueness tuple, so
// rows identical on that tuple collapse to one; reads use FINAL.
func clickhouseSchema(database, table string, kind drepo.TableKind) ([]string, error) {
	if err := ValidIdentifier(database); err != nil {
		return nil, err
	}
	if err := ValidIdentifier(table); err != nil {
		return nil, err
	}
	switch kind {
	case drepo.KindBars:
		return []string{fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
	timestamp Int64,
	datetime String,
	date String,
	ticker LowCardinality(String),
	open Float64,
	high Float64,
	low Float64,
	close Float64,
	volume Int64,
	volume_weighted Float64,
	trades Int64,
	resultsCount Int64,
	request_id String,
	ingested_at String
) ENGINE = ReplacingMergeTree
ORDER BY (ticker, date, timestamp, datetime, open, high, low, close, volume, volume_weighted, trades)`, database, table)}, nil
	case drepo.KindMarketCap:
		return []string{fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
	date String,
	ticker LowCardinality(String),
	share_class_shares_outstanding Int64,
	weighted_shares_outstanding Int64,
	market_cap Int64,
	request_id String,
	ingested_at String
) ENGINE = ReplacingMergeTree
ORDER BY (ticker, date, share_class_shares_outstanding, weighted_shares_outstanding, market_cap)`, database, table)}, nil
	default:
		return nil, fmt.Errorf("unknown table kind %q", kind)
	}
}
