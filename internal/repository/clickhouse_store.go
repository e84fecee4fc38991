package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"Aurelius/internal/domain/models"
	drepo "Aurelius/internal/domain/repository"
	pkgch "Aurelius/pkg/clickhouse"
	applogger "Aurelius/pkg/logger"
)

const chunkSize = 2000

// ClickHouseStore maps each logical database to a ClickHouse database on one server.
type ClickHouseStore struct {
	ch *pkgch.Client
	l  *applogger.Logger

	mu   sync.Mutex
	open map[string]bool
}

func NewClickHouseStore(ch *pkgch.Client, l *applogger.Logger) *ClickHouseStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &ClickHouseStore{ch: ch, l: l, open: make(map[string]bool)}
}

func (s *ClickHouseStore) OpenDatabase(ctx context.Context, database string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open[database] {
		return nil
	}
	if err := ValidIdentifier(database); err != nil {
		return &models.StorageError{Database: database, Err: err}
	}

	existed, err := s.ch.DatabaseExists(ctx, database)
	if err != nil {
		return &models.StorageError{Database: database, Err: err}
	}
	if !existed {
		if err := s.ch.InitSchema(ctx, []string{"CREATE DATABASE IF NOT EXISTS " + database}); err != nil {
			return &models.StorageError{Database: database, Err: err}
		}
		s.l.Info("database created", applogger.String("database", database))
	} else {
		s.l.Info("database already exists", applogger.String("database", database))
	}
	s.open[database] = true
	return nil
}

func (s *ClickHouseStore) EnsureTable(ctx context.Context, database, table string, kind drepo.TableKind) (bool, error) {
	stmts, err := clickhouseSchema(database, table, kind)
	if err != nil {
		return false, err
	}
	exists, err := s.ch.TableExists(ctx, database, table)
	if err != nil {
		return false, err
	}
	if exists {
		s.l.Info("table already exists", applogger.String("database", database), applogger.String("table", table))
		return false, nil
	}
	if err := s.ch.InitSchema(ctx, stmts); err != nil {
		return false, fmt.Errorf("create %s.%s: %w", database, table, err)
	}
	s.l.Info("table created",
		applogger.String("database", database),
		applogger.String("table", table),
		applogger.String("kind", string(kind)),
	)
	return true, nil
}

// InsertBars writes bars in multi-row chunks. ReplacingMergeTree collapses
// rows identical on the sort key, so the returned count is rows submitted.
func (s *ClickHouseStore) InsertBars(ctx context.Context, database, table string, bars []models.Bar) (int64, error) {
	if len(bars) == 0 {
		return 0, nil
	}
	if err := s.qualified(database, table); err != nil {
		return 0, err
	}
	chunks := insertChunks(database+"."+table, barColumns, 14, len(bars), func(i int) []any {
		b := bars[i]
		return []any{
			b.Timestamp, b.Datetime, b.Date, b.Ticker,
			b.Open, b.High, b.Low, b.Close,
			b.Volume, b.VolumeWeighted, b.Trades,
			b.ResultsCount, b.RequestID, formatIngested(b.IngestedAt),
		}
	})
	if err := s.exec(ctx, database, table, "bars", chunks); err != nil {
		return 0, err
	}
	return int64(len(bars)), nil
}

func (s *ClickHouseStore) InsertMarketCaps(ctx context.Context, database, table string, recs []models.MarketCapRecord) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	if err := s.qualified(database, table); err != nil {
		return 0, err
	}
	chunks := insertChunks(database+"."+table, capColumns, 7, len(recs), func(i int) []any {
		r := recs[i]
		return []any{
			r.Date, r.Ticker, r.ShareClassSharesOutstanding, r.WeightedSharesOutstanding,
			r.MarketCap, r.RequestID, formatIngested(r.IngestedAt),
		}
	})
	if err := s.exec(ctx, database, table, "market caps", chunks); err != nil {
		return 0, err
	}
	return int64(len(recs)), nil
}

type insertChunk struct {
	query string
	args  []any
}

// insertChunks splits n rows of width columns into multi-row VALUES
// statements of at most chunkSize rows each.
func insertChunks(target, columns string, width, n int, row func(i int) []any) []insertChunk {
	placeholders := "(" + strings.TrimSuffix(strings.Repeat("?, ", width), ", ") + ")"
	chunks := make([]insertChunk, 0, (n+chunkSize-1)/chunkSize)
	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		values := make([]string, 0, end-start)
		args := make([]any, 0, (end-start)*width)
		for i := start; i < end; i++ {
			values = append(values, placeholders)
			args = append(args, row(i)...)
		}
		chunks = append(chunks, insertChunk{
			query: fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", target, columns, strings.Join(values, ",")),
			args:  args,
		})
	}
	return chunks
}

func (s *ClickHouseStore) exec(ctx context.Context, database, table, what string, chunks []insertChunk) error {
	for _, c := range chunks {
		if _, err := s.ch.DB().ExecContext(ctx, c.query, c.args...); err != nil {
			s.l.Error("clickhouse insert "+what+" error",
				applogger.String("database", database),
				applogger.String("table", table),
				applogger.Error(err),
			)
			return fmt.Errorf("insert %s.%s: %w", database, table, err)
		}
	}
	return nil
}

func (s *ClickHouseStore) ReadBars(ctx context.Context, database, table string) ([]models.Bar, error) {
	if err := s.qualified(database, table); err != nil {
		return nil, err
	}
	q := fmt.Sprintf("SELECT %s FROM %s.%s FINAL ORDER BY ticker, date, timestamp, close", barColumns, database, table)
	bars, err := queryBars(ctx, s.ch.DB(), q)
	if err != nil {
		return nil, fmt.Errorf("read %s.%s: %w", database, table, err)
	}
	return bars, nil
}

func (s *ClickHouseStore) ReadMarketCaps(ctx context.Context, database, table string) ([]models.MarketCapRecord, error) {
	if err := s.qualified(database, table); err != nil {
		return nil, err
	}
	q := fmt.Sprintf("SELECT %s FROM %s.%s FINAL ORDER BY ticker, date, market_cap", capColumns, database, table)
	recs, err := queryMarketCaps(ctx, s.ch.DB(), q)
	if err != nil {
		return nil, fmt.Errorf("read %s.%s: %w", database, table, err)
	}
	return recs, nil
}

func (s *ClickHouseStore) FindDuplicates(ctx context.Context, database, table string, _ drepo.TableKind) ([]models.DuplicateKey, error) {
	if err := s.qualified(database, table); err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT date, ticker, toInt64(count()) AS n
FROM %s.%s FINAL
GROUP BY date, ticker
HAVING n <> 1
ORDER BY date, ticker`, database, table)
	dups, err := queryDuplicates(ctx, s.ch.DB(), q)
	if err != nil {
		return nil, fmt.Errorf("audit %s.%s: %w", database, table, err)
	}
	return dups, nil
}

func (s *ClickHouseStore) CountRows(ctx context.Context, database, table string) (int64, error) {
	if err := s.qualified(database, table); err != nil {
		return 0, err
	}
	var n uint64
	q := fmt.Sprintf("SELECT count() FROM %s.%s FINAL", database, table)
	if err := s.ch.DB().QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s.%s: %w", database, table, err)
	}
	return int64(n), nil
}

func (s *ClickHouseStore) qualified(database, table string) error {
	if err := ValidIdentifier(database); err != nil {
		return err
	}
	return ValidIdentifier(table)
}

// Close releases the shared connection pool.
func (s *ClickHouseStore) Close() error {
	return s.ch.Close()
}
