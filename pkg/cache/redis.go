package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shaneisley/courtside/pkg/clock"
)

const (
	defaultRedisPrefix      = "courtside:cache:"
	defaultRedisDialTimeout = 5 * time.Second
)

// RedisConfig configures a Redis-backed cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// RedisCache stores records in Redis. Each record carries its store time
// so freshness is judged the same way as the file cache; the Redis expiry
// only reclaims space.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	clock  clock.Clock
}

type redisRecord struct {
	StoredAt int64  `json:"stored_at"`
	Payload  []byte `json:"payload"`
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(ctx context.Context, cfg RedisConfig, ttl time.Duration, clk clock.Clock) (*RedisCache, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, errors.New("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: defaultRedisDialTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisCacheWithClient(client, cfg.Prefix, ttl, clk), nil
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient(client redis.UniversalClient, prefix string, ttl time.Duration, clk clock.Clock) *RedisCache {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clk == nil {
		clk = clock.NewReal()
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl, clock: clk}
}

// Close releases the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Get returns the stored body for key when it is present and fresh.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := validateKey(key); err != nil {
		return nil, false, err
	}

	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache record: %w", err)
	}

	var record redisRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, false, fmt.Errorf("failed to decode cache record: %w", err)
	}

	entry := Entry{
		Key:      key,
		Payload:  record.Payload,
		StoredAt: time.Unix(0, record.StoredAt),
		TTL:      c.ttl,
	}
	if !entry.IsFresh(c.clock.Now()) {
		return nil, false, nil
	}
	return entry.Payload, true, nil
}

// Put overwrites the record for key.
func (c *RedisCache) Put(ctx context.Context, key string, payload []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}

	data, err := json.Marshal(redisRecord{
		StoredAt: c.clock.Now().UnixNano(),
		Payload:  payload,
	})
	if err != nil {
		return fmt.Errorf("failed to encode cache record: %w", err)
	}

	if err := c.client.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cache record: %w", err)
	}
	return nil
}
