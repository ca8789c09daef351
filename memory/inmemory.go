package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// InMemoryStore is the default Store backend: a mutex-guarded two-level map
// (scope -> key -> item) with TTL sweeping and oldest-first eviction.
type InMemoryStore struct {
	mu         sync.Mutex
	scopes     map[string]map[string]*Item
	maxEntries int // per scope, 0 = unbounded
	now        func() time.Time
	logger     *zap.Logger
	closed     bool
}

// InMemoryOption customizes an InMemoryStore.
type InMemoryOption func(*InMemoryStore)

// WithMaxEntries bounds each scope; the oldest entry is evicted first.
func WithMaxEntries(n int) InMemoryOption {
	return func(s *InMemoryStore) { s.maxEntries = n }
}

// WithClock injects a clock for TTL tests.
func WithClock(now func() time.Time) InMemoryOption {
	return func(s *InMemoryStore) { s.now = now }
}

// WithLogger sets the store logger.
func WithLogger(logger *zap.Logger) InMemoryOption {
	return func(s *InMemoryStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore(opts ...InMemoryOption) *InMemoryStore {
	s := &InMemoryStore{
		scopes: make(map[string]map[string]*Item),
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "memory_inmemory"))
	return s
}

// Put writes a value under last-write-wins; Version increments per key.
func (s *InMemoryStore) Put(ctx context.Context, scope Scope, key, content string, payload any, ttl time.Duration) (*Item, error) {
	if err := validateInput(scope, key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	now := s.now()
	sk := scope.String()
	entries, ok := s.scopes[sk]
	if !ok {
		entries = make(map[string]*Item)
		s.scopes[sk] = entries
	}
	s.cleanupExpiredLocked(entries, now)

	item := &Item{
		Key:       key,
		Content:   content,
		Payload:   payload,
		Scope:     scope,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
	if prev, exists := entries[key]; exists {
		item.CreatedAt = prev.CreatedAt
		item.Version = prev.Version + 1
	}
	if ttl > 0 {
		item.ExpiresAt = now.Add(ttl)
	}
	entries[key] = item
	s.evictIfNeededLocked(entries, key)

	cp := *item
	return &cp, nil
}

// Get reads a key; expired entries are absent.
func (s *InMemoryStore) Get(ctx context.Context, scope Scope, key string) (*Item, error) {
	if err := validateInput(scope, key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	entries, ok := s.scopes[scope.String()]
	if !ok {
		return nil, ErrNotFound
	}
	item, ok := entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	if item.Expired(s.now()) {
		delete(entries, key)
		return nil, ErrNotFound
	}
	cp := *item
	return &cp, nil
}

// Delete removes a key; deleting an absent key is not an error.
func (s *InMemoryStore) Delete(ctx context.Context, scope Scope, key string) error {
	if err := validateInput(scope, key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	if entries, ok := s.scopes[scope.String()]; ok {
		delete(entries, key)
	}
	return nil
}

// Keys lists non-expired keys in a scope matching the wildcard pattern,
// sorted for determinism.
func (s *InMemoryStore) Keys(ctx context.Context, scope Scope, pattern string) ([]string, error) {
	if err := scope.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	entries, ok := s.scopes[scope.String()]
	if !ok {
		return nil, nil
	}
	now := s.now()
	s.cleanupExpiredLocked(entries, now)

	var keys []string
	for k := range entries {
		if matchWildcard(pattern, k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// DropScope removes an entire scope region.
func (s *InMemoryStore) DropScope(ctx context.Context, scope Scope) error {
	if err := scope.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	delete(s.scopes, scope.String())
	return nil
}

// Close marks the store closed; further operations fail with ErrStoreClosed.
func (s *InMemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.scopes = make(map[string]map[string]*Item)
	return nil
}

func (s *InMemoryStore) cleanupExpiredLocked(entries map[string]*Item, now time.Time) {
	for k, it := range entries {
		if it.Expired(now) {
			delete(entries, k)
		}
	}
}

// evictIfNeededLocked drops the oldest entries (by UpdatedAt) above the
// bound, never the key just written.
func (s *InMemoryStore) evictIfNeededLocked(entries map[string]*Item, justWritten string) {
	if s.maxEntries <= 0 {
		return
	}
	for len(entries) > s.maxEntries {
		oldestKey := ""
		var oldest time.Time
		for k, it := range entries {
			if k == justWritten {
				continue
			}
			if oldestKey == "" || it.UpdatedAt.Before(oldest) {
				oldestKey = k
				oldest = it.UpdatedAt
			}
		}
		if oldestKey == "" {
			return
		}
		delete(entries, oldestKey)
		s.logger.Debug("evicted oldest entry", zap.String("key", oldestKey))
	}
}

func validateInput(scope Scope, key string) error {
	if err := scope.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidInput)
	}
	return nil
}
