package usecase

import (
	"sync"
	"time"
)

// Progress tracks ingestion counters for the status API.
type Progress struct {
	mu      sync.RWMutex
	snap    ProgressSnapshot
	started time.Time
}

// ProgressSnapshot is a point-in-time copy of Progress.
type ProgressSnapshot struct {
	Phase     string `json:"phase"`
	Total     int    `json:"total"`
	Done      int    `json:"done"`
	Succeeded int    `json:"succeeded"`
	Empty     int    `json:"empty"`
	Failed    int    `json:"failed"`
	Rows      int64  `json:"rows"`
	Current   string `json:"current,omitempty"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

func NewProgress() *Progress {
	return &Progress{snap: ProgressSnapshot{Phase: "idle"}}
}

func (p *Progress) Start(phase string, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap = ProgressSnapshot{Phase: phase, Total: total}
	p.started = time.Now()
}

func (p *Progress) SetCurrent(unit string) {
	p.mu.Lock()
	p.snap.Current = unit
	p.mu.Unlock()
}

func (p *Progress) Finish(o Outcome, rows int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap.Done++
	p.snap.Rows += rows
	switch o {
	case OutcomeOK:
		p.snap.Succeeded++
	case OutcomeEmpty:
		p.snap.Empty++
	default:
		p.snap.Failed++
	}
}

func (p *Progress) Complete() {
	p.mu.Lock()
	p.snap.Phase = "done"
	p.snap.Current = ""
	p.mu.Unlock()
}

func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := p.snap
	if !p.started.IsZero() {
		s.ElapsedMS = time.Since(p.started).Milliseconds()
	}
	return s
}
