package history

import (
	"context"
	"sync"

	"github.com/dukex/conductor/pkg/models"
)

const DefaultCapacity = 1000

// Memory is a fixed size ring of summaries. The oldest entry is evicted
// when the ring is full.
type Memory struct {
	mu       sync.RWMutex
	capacity int
	order    []string
	byID     map[string]*models.ExecutionSummary
}

func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	return &Memory{
		capacity: capacity,
		order:    make([]string, 0, capacity),
		byID:     make(map[string]*models.ExecutionSummary, capacity),
	}
}

func (m *Memory) Record(_ context.Context, summary *models.ExecutionSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byID[summary.ExecutionID]; !exists {
		if len(m.order) == m.capacity {
			delete(m.byID, m.order[0])
			m.order = m.order[1:]
		}

		m.order = append(m.order, summary.ExecutionID)
	}

	m.byID[summary.ExecutionID] = summary

	return nil
}

func (m *Memory) Get(_ context.Context, executionID string) (*models.ExecutionSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summary, ok := m.byID[executionID]
	if !ok {
		return nil, ErrExecutionNotFound
	}

	return summary, nil
}

func (m *Memory) ByWorkflow(_ context.Context, workflowID string, limit int) ([]*models.ExecutionSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summaries := make([]*models.ExecutionSummary, 0)

	for i := len(m.order) - 1; i >= 0; i-- {
		summary := m.byID[m.order[i]]
		if summary.WorkflowID != workflowID {
			continue
		}

		summaries = append(summaries, summary)
		if limit > 0 && len(summaries) == limit {
			break
		}
	}

	return summaries, nil
}

func (m *Memory) Close() error {
	return nil
}
