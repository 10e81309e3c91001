package trace

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store, used by tests and by the server when
// BACKEND_MODE is "mock".
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
	order   []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]Record{}}
}

func (s *MemoryStore) Insert(ctx context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[record.RequestID]; !exists {
		s.order = append(s.order, record.RequestID)
	}
	s.records[record.RequestID] = record
	return nil
}

func (s *MemoryStore) List(ctx context.Context, limit int) ([]Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, len(s.order))
	copy(ids, s.order)
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))

	if limit > len(ids) {
		limit = len(ids)
	}

	summaries := make([]Summary, 0, limit)
	for _, id := range ids[:limit] {
		record := s.records[id]
		summaries = append(summaries, Summary{
			RequestID:        record.RequestID,
			TenantID:         record.TenantID,
			CreatedAt:        time.Now().UTC().Format(time.RFC3339),
			StatusCode:       record.StatusCode,
			Model:            record.Model,
			LatencyMs:        record.LatencyMs,
			BackendLatencyMs: record.BackendLatencyMs,
			QueueWaitMs:      record.QueueWaitMs,
			RequestHash:      record.RequestHash,
			PolicyVersion:    record.PolicyVersion,
			CacheJson:        record.CacheJson,
			PlanJson:         record.PlanJson,
		})
	}
	return summaries, nil
}

func (s *MemoryStore) Get(ctx context.Context, requestID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[requestID]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

func (s *MemoryStore) Close() {}
