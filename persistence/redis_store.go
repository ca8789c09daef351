package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	redisExecPrefix   = "teamflow:exec:"
	redisExecIndexKey = "teamflow:exec:index"
)

// RedisStore persists execution records in Redis: JSON blobs under
// teamflow:exec:<id> with an index set for listing, and an optional TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// RedisStoreConfig configures the redis execution store.
type RedisStoreConfig struct {
	Addr     string        `yaml:"addr" json:"addr"`
	Password string        `yaml:"password" json:"password"`
	DB       int           `yaml:"db" json:"db"`
	PoolSize int           `yaml:"pool_size" json:"pool_size"`
	// TTL expires records; 0 keeps them forever.
	TTL time.Duration `yaml:"ttl" json:"ttl"`
}

// NewRedisStore connects and verifies the Redis backend.
func NewRedisStore(ctx context.Context, config RedisStoreConfig, logger *zap.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
		PoolSize: config.PoolSize,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisStore{
		client: client,
		ttl:    config.TTL,
		logger: logger.With(zap.String("component", "execution_store_redis")),
	}, nil
}

// NewRedisStoreFromClient wraps an existing client (miniredis tests).
func NewRedisStoreFromClient(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{
		client: client,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "execution_store_redis")),
	}
}

// SaveExecution upserts a record.
func (s *RedisStore) SaveExecution(ctx context.Context, record *ExecutionRecord) error {
	if err := validateRecord(record); err != nil {
		return err
	}

	cp := *record
	cp.UpdatedAt = time.Now()
	data, err := json.Marshal(&cp)
	if err != nil {
		return fmt.Errorf("marshal execution record: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, redisExecPrefix+record.ID, data, s.ttl)
	pipe.SAdd(ctx, redisExecIndexKey, record.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis save execution: %w", err)
	}
	return nil
}

// GetExecution loads one record.
func (s *RedisStore) GetExecution(ctx context.Context, id string) (*ExecutionRecord, error) {
	data, err := s.client.Get(ctx, redisExecPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get execution: %w", err)
	}

	var record ExecutionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("unmarshal execution record: %w", err)
	}
	return &record, nil
}

// ListExecutions walks the index set; expired entries are pruned lazily.
func (s *RedisStore) ListExecutions(ctx context.Context, filter ListFilter) ([]*ExecutionRecord, error) {
	ids, err := s.client.SMembers(ctx, redisExecIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list executions: %w", err)
	}

	var out []*ExecutionRecord
	var stale []any
	for _, id := range ids {
		record, err := s.GetExecution(ctx, id)
		if err == ErrNotFound {
			stale = append(stale, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		if filter.Status != "" && record.Status != filter.Status {
			continue
		}
		if filter.Mode != "" && record.Mode != filter.Mode {
			continue
		}
		out = append(out, record)
	}
	if len(stale) > 0 {
		_ = s.client.SRem(ctx, redisExecIndexKey, stale...).Err()
	}

	sortByUpdatedAtDesc(out)
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

// DeleteExecution removes one record and its index entry.
func (s *RedisStore) DeleteExecution(ctx context.Context, id string) error {
	removed, err := s.client.Del(ctx, redisExecPrefix+id).Result()
	if err != nil {
		return fmt.Errorf("redis delete execution: %w", err)
	}
	_ = s.client.SRem(ctx, redisExecIndexKey, id).Err()
	if removed == 0 {
		return ErrNotFound
	}
	return nil
}

// Cleanup removes records last updated before the cutoff.
func (s *RedisStore) Cleanup(ctx context.Context, olderThan time.Time) (int64, error) {
	records, err := s.ListExecutions(ctx, ListFilter{})
	if err != nil {
		return 0, err
	}
	var removed int64
	for _, record := range records {
		if record.UpdatedAt.Before(olderThan) {
			if err := s.DeleteExecution(ctx, record.ID); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

// Stats summarizes the store contents.
func (s *RedisStore) Stats(ctx context.Context) (*StoreStats, error) {
	records, err := s.ListExecutions(ctx, ListFilter{})
	if err != nil {
		return nil, err
	}
	stats := &StoreStats{
		TotalRecords:   int64(len(records)),
		RecordsByState: make(map[string]int64),
	}
	for _, record := range records {
		stats.RecordsByState[record.Status]++
	}
	return stats, nil
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close closes the connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func sortByUpdatedAtDesc(records []*ExecutionRecord) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].UpdatedAt.After(records[j].UpdatedAt)
	})
}
