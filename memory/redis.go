package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// redisKeyPrefix 统一键前缀：teamflow:mem:<scope>:<key>
const redisKeyPrefix = "teamflow:mem:"

// RedisStore 基于 Redis 的内存后端，适用于需要跨进程存活的 global 作用域。
// 每个作用域维护一个索引集合，支撑 Keys 与 DropScope。
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
	logger *zap.Logger
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	PoolSize int    `yaml:"pool_size" json:"pool_size"`
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:     "localhost:6379",
		PoolSize: 10,
	}
}

// NewRedisStore 创建 Redis 后端并验证连通性
func NewRedisStore(ctx context.Context, config RedisConfig, logger *zap.Logger) (*RedisStore, error) {
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
		now:    time.Now,
		logger: logger.With(zap.String("component", "memory_redis")),
	}, nil
}

// NewRedisStoreFromClient 复用已有连接（miniredis 测试用）
func NewRedisStoreFromClient(client *redis.Client, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{
		client: client,
		now:    time.Now,
		logger: logger.With(zap.String("component", "memory_redis")),
	}
}

func (s *RedisStore) dataKey(scope Scope, key string) string {
	return redisKeyPrefix + scope.String() + ":" + key
}

func (s *RedisStore) indexKey(scope Scope) string {
	return redisKeyPrefix + "idx:" + scope.String()
}

// Put 写入条目；版本号基于旧值单调递增
func (s *RedisStore) Put(ctx context.Context, scope Scope, key, content string, payload any, ttl time.Duration) (*Item, error) {
	if err := validateInput(scope, key); err != nil {
		return nil, err
	}

	now := s.now()
	item := &Item{
		Key:       key,
		Content:   content,
		Payload:   payload,
		Scope:     scope,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
	if prev, err := s.Get(ctx, scope, key); err == nil {
		item.CreatedAt = prev.CreatedAt
		item.Version = prev.Version + 1
	}
	if ttl > 0 {
		item.ExpiresAt = now.Add(ttl)
	}

	data, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("marshal memory item: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.dataKey(scope, key), data, ttl)
	pipe.SAdd(ctx, s.indexKey(scope), key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis put: %w", err)
	}

	cp := *item
	return &cp, nil
}

// Get 读取条目；过期或缺失返回 ErrNotFound
func (s *RedisStore) Get(ctx context.Context, scope Scope, key string) (*Item, error) {
	if err := validateInput(scope, key); err != nil {
		return nil, err
	}

	data, err := s.client.Get(ctx, s.dataKey(scope, key)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var item Item
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("unmarshal memory item: %w", err)
	}
	// Redis 的 TTL 已经淘汰大多数过期键；这里兜底校验
	if item.Expired(s.now()) {
		return nil, ErrNotFound
	}
	return &item, nil
}

// Delete 删除条目并同步索引
func (s *RedisStore) Delete(ctx context.Context, scope Scope, key string) error {
	if err := validateInput(scope, key); err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.dataKey(scope, key))
	pipe.SRem(ctx, s.indexKey(scope), key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

// Keys 列出作用域内匹配模式的键；顺带清理索引中已过期的键
func (s *RedisStore) Keys(ctx context.Context, scope Scope, pattern string) ([]string, error) {
	if err := scope.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	members, err := s.client.SMembers(ctx, s.indexKey(scope)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis keys: %w", err)
	}

	var keys []string
	var stale []any
	for _, k := range members {
		exists, err := s.client.Exists(ctx, s.dataKey(scope, k)).Result()
		if err != nil {
			return nil, fmt.Errorf("redis exists: %w", err)
		}
		if exists == 0 {
			stale = append(stale, k)
			continue
		}
		if matchWildcard(pattern, k) {
			keys = append(keys, k)
		}
	}
	if len(stale) > 0 {
		_ = s.client.SRem(ctx, s.indexKey(scope), stale...).Err()
	}
	return keys, nil
}

// DropScope 删除整个作用域及其索引
func (s *RedisStore) DropScope(ctx context.Context, scope Scope) error {
	if err := scope.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	members, err := s.client.SMembers(ctx, s.indexKey(scope)).Result()
	if err != nil {
		return fmt.Errorf("redis drop scope: %w", err)
	}

	pipe := s.client.Pipeline()
	for _, k := range members {
		pipe.Del(ctx, s.dataKey(scope, k))
	}
	pipe.Del(ctx, s.indexKey(scope))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis drop scope: %w", err)
	}
	return nil
}

// Close 关闭连接
func (s *RedisStore) Close() error {
	return s.client.Close()
}
