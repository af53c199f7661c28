package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces every Mizan key in a shared Redis.
const keyPrefix = "mizan:"

// incrWithExpiry opens the TTL window on the first increment only, so later
// claims never extend it.
var incrWithExpiry = redis.NewScript(`
	local current = redis.call('INCR', KEYS[1])
	if current == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	return current
`)

// RedisCache implements domain.Cache on Redis.
// Used as the Pro tier cache and as L2 in two-phase caching.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &RedisCache{client: client}, nil
}

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get returns the value under key, or nil on a miss.
func (c *RedisCache) Get(ctx context.Context, schoolID string, key string) ([]byte, error) {
	if schoolID == "" {
		return nil, errSchoolRequired
	}

	val, err := c.client.Get(ctx, redisKey(schoolID, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

// Set stores value under key with a TTL.
func (c *RedisCache) Set(ctx context.Context, schoolID string, key string, value []byte, ttl time.Duration) error {
	if schoolID == "" {
		return errSchoolRequired
	}
	if err := c.client.Set(ctx, redisKey(schoolID, key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (c *RedisCache) Delete(ctx context.Context, schoolID string, key string) error {
	if schoolID == "" {
		return errSchoolRequired
	}
	return c.client.Del(ctx, redisKey(schoolID, key)).Err()
}

// IncrementCounter atomically increments a counter shared by every node.
func (c *RedisCache) IncrementCounter(ctx context.Context, schoolID string, key string, window time.Duration) (int64, error) {
	if schoolID == "" {
		return 0, errSchoolRequired
	}

	full := redisKey(schoolID, "counter:"+key)
	n, err := incrWithExpiry.Run(ctx, c.client, []string{full}, window.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", key, err)
	}
	return n, nil
}

// ResetCounter deletes the counter under key.
func (c *RedisCache) ResetCounter(ctx context.Context, schoolID string, key string) error {
	if schoolID == "" {
		return errSchoolRequired
	}
	if err := c.client.Del(ctx, redisKey(schoolID, "counter:"+key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// Ping checks Redis connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func redisKey(schoolID, key string) string {
	return keyPrefix + schoolID + ":" + key
}
