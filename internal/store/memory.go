package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Memory keeps records in process memory. It is used when no database is configured.
type Memory struct {
	mu      sync.RWMutex
	records map[uuid.UUID]Record
}

func NewMemory() *Memory {
	return &Memory{records: make(map[uuid.UUID]Record)}
}

func (m *Memory) Save(_ context.Context, rec Record) (uuid.UUID, error) {
	rec = prepare(rec)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[rec.ID]; ok {
		return uuid.Nil, fmt.Errorf("result %s already exists", rec.ID)
	}
	m.records[rec.ID] = rec

	return rec.ID, nil
}

func (m *Memory) Get(_ context.Context, id uuid.UUID) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return &rec, nil
}
