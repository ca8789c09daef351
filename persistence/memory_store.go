package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MemoryStore is the default ExecutionStore: a mutex-guarded map. Suitable
// for tests and single-process deployments without durability needs.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*ExecutionRecord
	now     func() time.Time
	logger  *zap.Logger
	closed  bool
}

// MemoryStoreOption customizes a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithMemoryClock injects a clock for tests.
func WithMemoryClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) { s.now = now }
}

// NewMemoryStore creates an empty in-memory execution store.
func NewMemoryStore(logger *zap.Logger, opts ...MemoryStoreOption) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &MemoryStore{
		records: make(map[string]*ExecutionRecord),
		now:     time.Now,
		logger:  logger.With(zap.String("component", "execution_store_memory")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SaveExecution upserts a record.
func (s *MemoryStore) SaveExecution(ctx context.Context, record *ExecutionRecord) error {
	if err := validateRecord(record); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	cp := *record
	cp.UpdatedAt = s.now()
	s.records[record.ID] = &cp
	return nil
}

// GetExecution returns a record copy.
func (s *MemoryStore) GetExecution(ctx context.Context, id string) (*ExecutionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	record, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *record
	return &cp, nil
}

// ListExecutions returns filtered records, most recently updated first.
func (s *MemoryStore) ListExecutions(ctx context.Context, filter ListFilter) ([]*ExecutionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	var out []*ExecutionRecord
	for _, record := range s.records {
		if filter.Status != "" && record.Status != filter.Status {
			continue
		}
		if filter.Mode != "" && record.Mode != filter.Mode {
			continue
		}
		cp := *record
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// DeleteExecution removes a record.
func (s *MemoryStore) DeleteExecution(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	if _, ok := s.records[id]; !ok {
		return ErrNotFound
	}
	delete(s.records, id)
	return nil
}

// Cleanup removes records older than the cutoff.
func (s *MemoryStore) Cleanup(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrStoreClosed
	}

	var removed int64
	for id, record := range s.records {
		if record.UpdatedAt.Before(olderThan) {
			delete(s.records, id)
			removed++
		}
	}
	return removed, nil
}

// Stats summarizes the store contents.
func (s *MemoryStore) Stats(ctx context.Context) (*StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	stats := &StoreStats{
		TotalRecords:   int64(len(s.records)),
		RecordsByState: make(map[string]int64),
	}
	for _, record := range s.records {
		stats.RecordsByState[record.Status]++
	}
	return stats, nil
}

// Ping reports liveness.
func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Close marks the store closed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.records = make(map[string]*ExecutionRecord)
	return nil
}
