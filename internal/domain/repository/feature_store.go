package repository

import (
	"context"

	"Aurelius/internal/domain/models"
)

// RecordReader provides read-only access to persisted tables for auditing and backtests.
type RecordReader interface {
	ReadBars(ctx context.Context, database, table string) ([]models.Bar, error)
	ReadMarketCaps(ctx context.Context, database, table string) ([]models.MarketCapRecord, error)
	FindDuplicates(ctx context.Context, database, table string, kind TableKind) ([]models.DuplicateKey, error)
	CountRows(ctx context.Context, database, table string) (int64, error)
}
