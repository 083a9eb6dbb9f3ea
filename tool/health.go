package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// HealthCache stores the latest advisory health status per server. Writes
// from overlapping checks are last-write-wins.
type HealthCache interface {
	Put(ctx context.Context, status HealthStatus) error
	All(ctx context.Context) (map[int64]HealthStatus, error)
}

// MemoryHealthCache is an in-process HealthCache.
type MemoryHealthCache struct {
	mu      sync.RWMutex
	entries map[int64]HealthStatus
}

// NewMemoryHealthCache returns an empty in-process cache.
func NewMemoryHealthCache() *MemoryHealthCache {
	return &MemoryHealthCache{entries: map[int64]HealthStatus{}}
}

func (c *MemoryHealthCache) Put(_ context.Context, status HealthStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[status.ServerID] = status
	return nil
}

func (c *MemoryHealthCache) All(context.Context) (map[int64]HealthStatus, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[int64]HealthStatus, len(c.entries))
	for id, status := range c.entries {
		out[id] = status
	}
	return out, nil
}

const defaultRedisHealthKey = "toolctl:health"

// RedisHealthCacheConfig configures the Redis-backed health cache.
type RedisHealthCacheConfig struct {
	Addr     string
	Password string
	DB       int
	// Key is the hash holding one field per server id.
	Key string
	// TTL expires the whole hash when no check refreshes it.
	TTL time.Duration
	// Client overrides Addr/Password/DB.
	Client redis.UniversalClient
}

// RedisHealthCache shares health snapshots between processes through a
// Redis hash.
type RedisHealthCache struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
	owned  bool
}

// NewRedisHealthCache creates a Redis-backed cache.
func NewRedisHealthCache(cfg RedisHealthCacheConfig) (*RedisHealthCache, error) {
	client := cfg.Client
	owned := false
	if client == nil {
		if strings.TrimSpace(cfg.Addr) == "" {
			return nil, errors.New("tool: redis health cache addr is required")
		}
		client = redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		owned = true
	}
	key := strings.TrimSpace(cfg.Key)
	if key == "" {
		key = defaultRedisHealthKey
	}
	return &RedisHealthCache{client: client, key: key, ttl: cfg.TTL, owned: owned}, nil
}

func (c *RedisHealthCache) Put(ctx context.Context, status HealthStatus) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("tool: encode health status: %w", err)
	}
	field := strconv.FormatInt(status.ServerID, 10)
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, c.key, field, payload)
	if c.ttl > 0 {
		pipe.Expire(ctx, c.key, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("tool: redis store health for server %d: %w", status.ServerID, err)
	}
	return nil
}

func (c *RedisHealthCache) All(ctx context.Context) (map[int64]HealthStatus, error) {
	fields, err := c.client.HGetAll(ctx, c.key).Result()
	if err != nil {
		return nil, fmt.Errorf("tool: redis load health: %w", err)
	}
	out := make(map[int64]HealthStatus, len(fields))
	for field, raw := range fields {
		id, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			continue
		}
		var status HealthStatus
		if err := json.Unmarshal([]byte(raw), &status); err != nil {
			continue
		}
		out[id] = status
	}
	return out, nil
}

// Ping verifies the Redis connection.
func (c *RedisHealthCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the client when the cache created it.
func (c *RedisHealthCache) Close() error {
	if c == nil || !c.owned {
		return nil
	}
	return c.client.Close()
}

var (
	_ HealthCache = (*MemoryHealthCache)(nil)
	_ HealthCache = (*RedisHealthCache)(nil)
)
