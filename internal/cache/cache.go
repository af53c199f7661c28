package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/tahfidz-hub/mizan/internal/domain"
)

// New creates the cache the configuration asks for.
// Community tier: LRU. Pro tier: Redis, fronted by an LRU when two-phase.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory", "":
		return NewLRUCache(cfg.LocalMaxSize), nil

	case "redis":
		if cfg.EnableTwoPhase {
			return NewTwoPhaseCache(cfg)
		}
		return NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// TwoPhaseCache reads through a local LRU (L1) into Redis (L2).
// Counters always go to Redis so dedup claims hold across nodes.
type TwoPhaseCache struct {
	local  *LRUCache
	remote *RedisCache
	l1TTL  time.Duration
}

// NewTwoPhaseCache creates a two-phase cache with LRU + Redis.
func NewTwoPhaseCache(cfg domain.CacheConfig) (*TwoPhaseCache, error) {
	remote, err := NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis cache: %w", err)
	}
	return newTwoPhase(NewLRUCache(cfg.LocalMaxSize), remote, cfg.LocalTTL), nil
}

func newTwoPhase(local *LRUCache, remote *RedisCache, l1TTL time.Duration) *TwoPhaseCache {
	if l1TTL <= 0 {
		l1TTL = time.Minute
	}
	return &TwoPhaseCache{local: local, remote: remote, l1TTL: l1TTL}
}

// Get checks L1, then L2, warming L1 on an L2 hit.
func (c *TwoPhaseCache) Get(ctx context.Context, schoolID string, key string) ([]byte, error) {
	val, err := c.local.Get(ctx, schoolID, key)
	if err != nil || val != nil {
		return val, err
	}

	val, err = c.remote.Get(ctx, schoolID, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		_ = c.local.Set(ctx, schoolID, key, val, c.l1TTL)
	}
	return val, nil
}

// Set writes L1 with the shorter of the two TTLs and L2 with ttl.
func (c *TwoPhaseCache) Set(ctx context.Context, schoolID string, key string, value []byte, ttl time.Duration) error {
	if err := c.local.Set(ctx, schoolID, key, value, min(ttl, c.l1TTL)); err != nil {
		return err
	}
	return c.remote.Set(ctx, schoolID, key, value, ttl)
}

// Delete removes key from both levels.
func (c *TwoPhaseCache) Delete(ctx context.Context, schoolID string, key string) error {
	if err := c.local.Delete(ctx, schoolID, key); err != nil {
		return err
	}
	return c.remote.Delete(ctx, schoolID, key)
}

// IncrementCounter uses Redis only.
func (c *TwoPhaseCache) IncrementCounter(ctx context.Context, schoolID string, key string, window time.Duration) (int64, error) {
	return c.remote.IncrementCounter(ctx, schoolID, key, window)
}

// ResetCounter uses Redis only.
func (c *TwoPhaseCache) ResetCounter(ctx context.Context, schoolID string, key string) error {
	return c.remote.ResetCounter(ctx, schoolID, key)
}

// Ping checks both L1 and L2 health.
func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.local.Ping(ctx); err != nil {
		return fmt.Errorf("L1 ping failed: %w", err)
	}
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("L2 ping failed: %w", err)
	}
	return nil
}

// Close closes both L1 and L2.
func (c *TwoPhaseCache) Close() error {
	_ = c.local.Close()
	return c.remote.Close()
}

// Stats returns L1 statistics.
func (c *TwoPhaseCache) Stats() Stats {
	return c.local.Stats()
}
