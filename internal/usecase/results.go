package usecase

import (
	"sort"
	"sync"

	"Aurelius/internal/services/features"
)

// ResultBook keeps summaries of finished backtests for the status API.
type ResultBook struct {
	mu   sync.RWMutex
	byID map[string]features.Summary
}

func NewResultBook() *ResultBook {
	return &ResultBook{byID: make(map[string]features.Summary)}
}

func (b *ResultBook) Put(s features.Summary) {
	b.mu.Lock()
	b.byID[s.Table+"/"+s.Strategy] = s
	b.mu.Unlock()
}

// List returns summaries matching table and strategy (empty matches all),
// ordered by table then strategy.
func (b *ResultBook) List(table, strategy string) []features.Summary {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]features.Summary, 0, len(b.byID))
	for _, s := range b.byID {
		if (table == "" || s.Table == table) && (strategy == "" || s.Strategy == strategy) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Table != out[j].Table {
			return out[i].Table < out[j].Table
		}
		return out[i].Strategy < out[j].Strategy
	})
	return out
}
