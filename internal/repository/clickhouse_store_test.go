package repository

import (
	"context"
	"strings"
	"testing"

	"Aurelius/internal/domain/models"
)

func TestInsertChunksSplitsAtChunkSize(t *testing.T) {
	n := chunkSize + 1
	chunks := insertChunks("prices.market_cap", capColumns, 7, n, func(i int) []any {
		return []any{"2024-01-02", "AAPL", 1, 1, int64(i), "r", "t"}
	})
	if len(chunks) != 2 {
		t.Fatalf("want 2 chunks, got %d", len(chunks))
	}
	if len(chunks[0].args) != chunkSize*7 || len(chunks[1].args) != 7 {
		t.Fatalf("unexpected arg counts %d and %d", len(chunks[0].args), len(chunks[1].args))
	}
	if got := strings.Count(chunks[0].query, "(?, ?, ?, ?, ?, ?, ?)"); got != chunkSize {
		t.Fatalf("want %d value tuples in the first chunk, got %d", chunkSize, got)
	}
	if !strings.HasPrefix(chunks[1].query, "INSERT INTO prices.market_cap ("+capColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)") {
		t.Fatalf("unexpected statement %q", chunks[1].query)
	}
	// rows keep their order across the chunk boundary
	if chunks[1].args[4] != int64(chunkSize) {
		t.Fatalf("last chunk should carry row %d, got %v", chunkSize, chunks[1].args[4])
	}
}

func TestInsertChunksEmpty(t *testing.T) {
	if chunks := insertChunks("prices.ohlcv_daily", barColumns, 14, 0, nil); len(chunks) != 0 {
		t.Fatalf("want no chunks, got %d", len(chunks))
	}
}

func TestClickHouseStoreRejectsBadNamesBeforeQuerying(t *testing.T) {
	// a nil client panics if any call reaches the server
	s := NewClickHouseStore(nil, nil)
	ctx := context.Background()

	if _, err := s.ReadBars(ctx, "prices", "bars; DROP TABLE x"); err == nil {
		t.Fatal("expected error for bad table name")
	}
	if _, err := s.ReadMarketCaps(ctx, "bad-db", "market_cap"); err == nil {
		t.Fatal("expected error for bad database name")
	}
	if _, err := s.InsertBars(ctx, "prices", "a.b", []models.Bar{{Ticker: "AAPL"}}); err == nil {
		t.Fatal("expected error for qualified table name")
	}
	if _, err := s.CountRows(ctx, "1prices", "ohlcv_daily"); err == nil {
		t.Fatal("expected error for bad database name")
	}
	if err := s.OpenDatabase(ctx, "prices-2024"); err == nil {
		t.Fatal("expected error for bad database name")
	}
}

func TestClickHouseStoreEmptyInsertIsNoop(t *testing.T) {
	s := NewClickHouseStore(nil, nil)
	n, err := s.InsertMarketCaps(context.Background(), "prices", "market_cap", nil)
	if err != nil || n != 0 {
		t.Fatalf("want 0 rows and no error, got %d/%v", n, err)
	}
}
