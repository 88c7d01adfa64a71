package store

import (
	"context"
	"sync"
)

// MemoryLog is an in-process TranscriptLog and GlossaryStore used in tests
// and when persistence is disabled.
type MemoryLog struct {
	mu      sync.Mutex
	records map[string][]Record
	terms   []Term
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{records: make(map[string][]Record)}
}

func (m *MemoryLog) Append(_ context.Context, sessionID string, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[sessionID] = append(m.records[sessionID], rec)
	return nil
}

func (m *MemoryLog) ReadAll(_ context.Context, sessionID string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.records[sessionID]))
	copy(out, m.records[sessionID])
	return out, nil
}

func (m *MemoryLog) Terms(context.Context) ([]Term, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Term, len(m.terms))
	copy(out, m.terms)
	return out, nil
}

func (m *MemoryLog) SetTerms(terms []Term) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terms = terms
}
