package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"Aurelius/internal/domain/models"
	drepo "Aurelius/internal/domain/repository"
	applogger "Aurelius/pkg/logger"
	pkgsqlite "Aurelius/pkg/sqlite"
)

// SQLiteStore keeps one SQLite file per logical database under dir.
type SQLiteStore struct {
	dir         string
	busyTimeout time.Duration
	logger      *applogger.Logger

	mu  sync.Mutex
	dbs map[string]*pkgsqlite.Client
}

type SQLiteOption func(*SQLiteStore)

func WithSQLiteLogger(l *applogger.Logger) SQLiteOption {
	return func(s *SQLiteStore) { s.logger = l }
}

func WithSQLiteBusyTimeout(d time.Duration) SQLiteOption {
	return func(s *SQLiteStore) { s.busyTimeout = d }
}

// NewSQLiteStore creates a store rooted at dir.
func NewSQLiteStore(dir string, opts ...SQLiteOption) *SQLiteStore {
	s := &SQLiteStore{
		dir:         dir,
		busyTimeout: 5 * time.Second,
		logger:      applogger.Nop(),
		dbs:         make(map[string]*pkgsqlite.Client),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenDatabase opens or creates {dir}/{database}.db.
func (s *SQLiteStore) OpenDatabase(ctx context.Context, database string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.dbs[database]; ok {
		return nil
	}
	if err := ValidIdentifier(database); err != nil {
		return &models.StorageError{Database: database, Err: err}
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return &models.StorageError{Database: database, Err: err}
	}

	path := filepath.Join(s.dir, database+".db")
	_, statErr := os.Stat(path)
	existed := statErr == nil

	client, err := pkgsqlite.NewClient(
		pkgsqlite.WithPath(path),
		pkgsqlite.WithBusyTimeout(s.busyTimeout),
	)
	if err != nil {
		return &models.StorageError{Database: database, Err: err}
	}
	s.dbs[database] = client

	if existed {
		s.logger.Info("database already exists", applogger.String("database", database), applogger.String("path", path))
	} else {
		s.logger.Info("database created", applogger.String("database", database), applogger.String("path", path))
	}
	return nil
}

func (s *SQLiteStore) client(database string) (*pkgsqlite.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.dbs[database]
	if !ok {
		return nil, fmt.Errorf("database %s is not open", database)
	}
	return c, nil
}

// EnsureTable creates table if absent. An existing table is left untouched.
func (s *SQLiteStore) EnsureTable(ctx context.Context, database, table string, kind drepo.TableKind) (bool, error) {
	c, err := s.client(database)
	if err != nil {
		return false, err
	}
	stmts, err := sqliteSchema(table, kind)
	if err != nil {
		return false, err
	}

	exists, err := c.TableExists(ctx, table)
	if err != nil {
		return false, err
	}
	if exists {
		s.logger.Info("table already exists", applogger.String("database", database), applogger.String("table", table))
		return false, nil
	}

	if err := c.InitSchema(ctx, stmts); err != nil {
		return false, fmt.Errorf("create %s.%s: %w", database, table, err)
	}
	s.logger.Info("table created",
		applogger.String("database", database),
		applogger.String("table", table),
		applogger.String("kind", string(kind)),
	)
	return true, nil
}

// InsertBars inserts bars with INSERT OR IGNORE in one transaction and
// returns how many rows were actually added.
func (s *SQLiteStore) InsertBars(ctx context.Context, database, table string, bars []models.Bar) (int64, error) {
	if len(bars) == 0 {
		return 0, nil
	}
	q := fmt.Sprintf("INSERT OR IGNORE INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", table, barColumns)
	return s.insert(ctx, database, table, q, len(bars), func(stmt *sql.Stmt, i int) (sql.Result, error) {
		b := bars[i]
		return stmt.ExecContext(ctx,
			b.Timestamp, b.Datetime, b.Date, b.Ticker,
			b.Open, b.High, b.Low, b.Close,
			b.Volume, b.VolumeWeighted, b.Trades,
			b.ResultsCount, b.RequestID, formatIngested(b.IngestedAt),
		)
	})
}

// InsertMarketCaps inserts reference snapshots with INSERT OR IGNORE.
func (s *SQLiteStore) InsertMarketCaps(ctx context.Context, database, table string, recs []models.MarketCapRecord) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	q := fmt.Sprintf("INSERT OR IGNORE INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?)", table, capColumns)
	return s.insert(ctx, database, table, q, len(recs), func(stmt *sql.Stmt, i int) (sql.Result, error) {
		r := recs[i]
		return stmt.ExecContext(ctx,
			r.Date, r.Ticker, r.ShareClassSharesOutstanding, r.WeightedSharesOutstanding,
			r.MarketCap, r.RequestID, formatIngested(r.IngestedAt),
		)
	})
}

func (s *SQLiteStore) insert(ctx context.Context, database, table, q string, n int,
	exec func(stmt *sql.Stmt, i int) (sql.Result, error)) (inserted int64, err error) {
	if err := ValidIdentifier(table); err != nil {
		return 0, err
	}
	c, err := s.client(database)
	if err != nil {
		return 0, err
	}

	tx, err := c.DB().BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin %s.%s: %w", database, table, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("prepare %s.%s: %w", database, table, err)
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		res, err := exec(stmt, i)
		if err != nil {
			return 0, fmt.Errorf("insert %s.%s row %d: %w", database, table, i, err)
		}
		if affected, err := res.RowsAffected(); err == nil {
			inserted += affected
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit %s.%s: %w", database, table, err)
	}
	return inserted, nil
}

func (s *SQLiteStore) ReadBars(ctx context.Context, database, table string) ([]models.Bar, error) {
	c, err := s.readable(database, table)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf("SELECT %s FROM %s ORDER BY ticker, date, timestamp, close", barColumns, table)
	bars, err := queryBars(ctx, c.DB(), q)
	if err != nil {
		return nil, fmt.Errorf("read %s.%s: %w", database, table, err)
	}
	return bars, nil
}

func (s *SQLiteStore) ReadMarketCaps(ctx context.Context, database, table string) ([]models.MarketCapRecord, error) {
	c, err := s.readable(database, table)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf("SELECT %s FROM %s ORDER BY ticker, date, market_cap", capColumns, table)
	recs, err := queryMarketCaps(ctx, c.DB(), q)
	if err != nil {
		return nil, fmt.Errorf("read %s.%s: %w", database, table, err)
	}
	return recs, nil
}

// FindDuplicates returns every (date, ticker) whose row count is not exactly one.
func (s *SQLiteStore) FindDuplicates(ctx context.Context, database, table string, _ drepo.TableKind) ([]models.DuplicateKey, error) {
	c, err := s.readable(database, table)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf("SELECT date, ticker, COUNT(*) FROM %s GROUP BY date, ticker HAVING COUNT(*) <> 1 ORDER BY date, ticker", table)
	dups, err := queryDuplicates(ctx, c.DB(), q)
	if err != nil {
		return nil, fmt.Errorf("audit %s.%s: %w", database, table, err)
	}
	return dups, nil
}

func (s *SQLiteStore) CountRows(ctx context.Context, database, table string) (int64, error) {
	c, err := s.readable(database, table)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := c.DB().QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s.%s: %w", database, table, err)
	}
	return n, nil
}

func (s *SQLiteStore) readable(database, table string) (*pkgsqlite.Client, error) {
	if err := ValidIdentifier(table); err != nil {
		return nil, err
	}
	return s.client(database)
}

// Close closes every open database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for name, c := range s.dbs {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
		delete(s.dbs, name)
	}
	return errors.Join(errs...)
}
