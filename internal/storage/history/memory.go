// internal/storage/history/memory.go
package history

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/newthinker/macross/internal/core"
)

const defaultMemorySize = 1000

// MemoryStore is an in-memory run store.
type MemoryStore struct {
	runs    []Run
	maxSize int
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory store with max capacity.
func NewMemoryStore(maxSize int) *MemoryStore {
	if maxSize <= 0 {
		maxSize = defaultMemorySize
	}
	return &MemoryStore{
		runs:    make([]Run, 0),
		maxSize: maxSize,
	}
}

// Save adds or replaces a run.
func (m *MemoryStore) Save(ctx context.Context, run Run) error {
	if run.ID == "" {
		return core.WrapError(core.ErrInvalidParameter, fmt.Errorf("run id is required"))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.runs {
		if m.runs[i].ID == run.ID {
			m.runs[i] = run
			return nil
		}
	}
	m.runs = append(m.runs, run)

	// Trim if over capacity (remove oldest)
	if len(m.runs) > m.maxSize {
		m.runs = m.runs[len(m.runs)-m.maxSize:]
	}

	return nil
}

// Get retrieves a run by ID.
func (m *MemoryStore) Get(ctx context.Context, id string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := range m.runs {
		if m.runs[i].ID == id {
			run := m.runs[i]
			return &run, nil
		}
	}
	return nil, core.WrapError(core.ErrRunNotFound, fmt.Errorf("%q", id))
}

// List returns runs matching the filter, newest first.
func (m *MemoryStore) List(ctx context.Context, filter ListFilter) ([]Run, error) {
	m.mu.RLock()
	result := make([]Run, 0)
	for _, run := range m.runs {
		if m.matches(run, filter) {
			result = append(result, run)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	// Apply offset and limit
	if filter.Offset >= len(result) {
		return []Run{}, nil
	}
	if filter.Offset > 0 {
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}

	return result, nil
}

// Count returns the count of matching runs.
func (m *MemoryStore) Count(ctx context.Context, filter ListFilter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, run := range m.runs {
		if m.matches(run, filter) {
			count++
		}
	}
	return count, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}

func (m *MemoryStore) matches(run Run, filter ListFilter) bool {
	if filter.Symbol != "" && run.Symbol != filter.Symbol {
		return false
	}
	if filter.Strategy != "" && run.Strategy != filter.Strategy {
		return false
	}
	if !filter.From.IsZero() && run.CreatedAt.Before(filter.From) {
		return false
	}
	if !filter.To.IsZero() && run.CreatedAt.After(filter.To) {
		return false
	}
	return true
}
