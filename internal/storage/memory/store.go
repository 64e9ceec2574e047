package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/tjfontaine/workflow-gateway/internal/storage"
)

// DefaultCapacity bounds the number of records kept in memory.
const DefaultCapacity = 1000

// Store is an in-memory implementation of AuditStore. Once capacity is
// reached the oldest record is dropped.
type Store struct {
	mu       sync.RWMutex
	records  []*storage.TriggerRecord
	capacity int
}

var _ storage.AuditStore = (*Store)(nil)

// New creates a new in-memory store
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{capacity: capacity}
}

func (s *Store) RecordTrigger(ctx context.Context, rec *storage.TriggerRecord) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("trigger record requires an id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *rec
	s.records = append(s.records, &copied)
	if len(s.records) > s.capacity {
		s.records = s.records[len(s.records)-s.capacity:]
	}
	return nil
}

func (s *Store) ListTriggers(ctx context.Context, limit int) ([]*storage.TriggerRecord, error) {
	limit = storage.ClampLimit(limit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*storage.TriggerRecord, 0, min(limit, len(s.records)))
	for i := len(s.records) - 1; i >= 0 && len(out) < limit; i-- {
		copied := *s.records[i]
		out = append(out, &copied)
	}
	return out, nil
}

func (s *Store) Close() error {
	return nil
}
