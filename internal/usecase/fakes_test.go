package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"Aurelius/internal/domain/models"
	drepo "Aurelius/internal/domain/repository"
)

type fakeSource struct {
	mu      sync.Mutex
	batches map[string]*models.RecordBatch
	errs    map[string]error
	calls   []drepo.FetchRequest
}

func newFakeSource() *fakeSource {
	return &fakeSource{batches: map[string]*models.RecordBatch{}, errs: map[string]error{}}
}

func unitKey(database, table, ticker string) string { return database + "." + table + "." + ticker }

func (f *fakeSource) Fetch(ctx context.Context, req drepo.FetchRequest) (*models.RecordBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k := unitKey(req.Database, req.Table, req.Ticker)
	if err, ok := f.errs[k]; ok {
		return nil, err
	}
	if b, ok := f.batches[k]; ok {
		return b, nil
	}
	return &models.RecordBatch{Ticker: req.Ticker}, nil
}

// memStore is an in-memory Store applying the same uniqueness rules as SQLite.
type memStore struct {
	mu       sync.Mutex
	openErr  map[string]error
	dbs      map[string]bool
	tables   map[string]drepo.TableKind
	bars     map[string][]models.Bar
	caps     map[string][]models.MarketCapRecord
	failRead map[string]bool
}

func newMemStore() *memStore {
	return &memStore{
		openErr:  map[string]error{},
		dbs:      map[string]bool{},
		tables:   map[string]drepo.TableKind{},
		bars:     map[string][]models.Bar{},
		caps:     map[string][]models.MarketCapRecord{},
		failRead: map[string]bool{},
	}
}

func tkey(db, table string) string { return db + "." + table }

func (s *memStore) OpenDatabase(_ context.Context, db string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.openErr[db]; err != nil {
		return &models.StorageError{Database: db, Err: err}
	}
	s.dbs[db] = true
	return nil
}

func (s *memStore) EnsureTable(_ context.Context, db, table string, kind drepo.TableKind) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dbs[db] {
		return false, fmt.Errorf("database %s is not open", db)
	}
	if _, ok := s.tables[tkey(db, table)]; ok {
		return false, nil
	}
	s.tables[tkey(db, table)] = kind
	return true, nil
}

func (s *memStore) InsertBars(_ context.Context, db, table string, bars []models.Bar) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := tkey(db, table)
	var n int64
	for _, b := range bars {
		dup := false
		for _, have := range s.bars[k] {
			if have.Timestamp == b.Timestamp && have.Ticker == b.Ticker && have.Close == b.Close &&
				have.Open == b.Open && have.High == b.High && have.Low == b.Low && have.Volume == b.Volume {
				dup = true
				break
			}
		}
		if !dup {
			s.bars[k] = append(s.bars[k], b)
			n++
		}
	}
	return n, nil
}

func (s *memStore) InsertMarketCaps(_ context.Context, db, table string, recs []models.MarketCapRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := tkey(db, table)
	var n int64
	for _, r := range recs {
		dup := false
		for _, have := range s.caps[k] {
			if have.Date == r.Date && have.Ticker == r.Ticker && have.MarketCap == r.MarketCap &&
				have.ShareClassSharesOutstanding == r.ShareClassSharesOutstanding &&
				have.WeightedSharesOutstanding == r.WeightedSharesOutstanding {
				dup = true
				break
			}
		}
		if !dup {
			s.caps[k] = append(s.caps[k], r)
			n++
		}
	}
	return n, nil
}

func (s *memStore) ReadBars(_ context.Context, db, table string) ([]models.Bar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRead[tkey(db, table)] {
		return nil, fmt.Errorf("read %s.%s: boom", db, table)
	}
	return append([]models.Bar(nil), s.bars[tkey(db, table)]...), nil
}

func (s *memStore) ReadMarketCaps(_ context.Context, db, table string) ([]models.MarketCapRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.MarketCapRecord(nil), s.caps[tkey(db, table)]...), nil
}

func (s *memStore) FindDuplicates(_ context.Context, db, table string, kind drepo.TableKind) ([]models.DuplicateKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[[2]string]int{}
	k := tkey(db, table)
	if kind == drepo.KindMarketCap {
		for _, r := range s.caps[k] {
			counts[[2]string{r.Date, r.Ticker}]++
		}
	} else {
		for _, b := range s.bars[k] {
			counts[[2]string{b.Date, b.Ticker}]++
		}
	}
	var out []models.DuplicateKey
	for key, n := range counts {
		if n != 1 {
			out = append(out, models.DuplicateKey{Date: key[0], Ticker: key[1], Count: n})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date+out[i].Ticker < out[j].Date+out[j].Ticker })
	return out, nil
}

func (s *memStore) CountRows(_ context.Context, db, table string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := tkey(db, table)
	return int64(len(s.bars[k]) + len(s.caps[k])), nil
}

func (s *memStore) Close() error { return nil }

type recordingSink struct {
	mu      sync.Mutex
	results []*models.StrategyResult
}

func (r *recordingSink) Export(_ context.Context, res *models.StrategyResult) error {
	r.mu.Lock()
	r.results = append(r.results, res)
	r.mu.Unlock()
	return nil
}

func (r *recordingSink) Close() error { return nil }
