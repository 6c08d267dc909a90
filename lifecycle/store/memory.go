package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemStore is an in-memory Store.
//
// Records are copied on the way in and out.
type MemStore struct {
	mu          sync.RWMutex
	completions map[string][]Completion
	summaries   map[string]Summary
	closed      bool
}

// NewMemStore creates an empty in-memory journal.
func NewMemStore() *MemStore {
	return &MemStore{
		completions: make(map[string][]Completion),
		summaries:   make(map[string]Summary),
	}
}

// SaveCompletion implements Store.
func (m *MemStore) SaveCompletion(_ context.Context, c Completion) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	for _, existing := range m.completions[c.PassID] {
		if existing.Seq == c.Seq {
			return fmt.Errorf("completion %s/%d already recorded", c.PassID, c.Seq)
		}
	}
	m.completions[c.PassID] = append(m.completions[c.PassID], c)
	return nil
}

// Completions implements Store.
func (m *MemStore) Completions(_ context.Context, passID string) ([]Completion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	out := make([]Completion, len(m.completions[passID]))
	copy(out, m.completions[passID])
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// SaveSummary implements Store.
func (m *MemStore) SaveSummary(_ context.Context, s Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.summaries[s.PassID] = s
	return nil
}

// LoadSummary implements Store.
func (m *MemStore) LoadSummary(_ context.Context, passID string) (Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return Summary{}, ErrClosed
	}
	s, ok := m.summaries[passID]
	if !ok {
		return Summary{}, ErrNotFound
	}
	return s, nil
}

// Close implements Store.
func (m *MemStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
