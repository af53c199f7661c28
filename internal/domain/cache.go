package domain

import (
	"context"
	"time"
)

// Cache stores derived insights and the notification dedup ledger.
// Keys are always scoped by school; implementations must never let one
// school read another school's entries.
type Cache interface {
	// Get returns nil, nil on a miss.
	Get(ctx context.Context, schoolID string, key string) ([]byte, error)
	Set(ctx context.Context, schoolID string, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, schoolID string, key string) error

	// IncrementCounter bumps the counter at key and returns its new value. The
	// counter expires window after its first increment, so a result above 1
	// means the key was already claimed inside the window.
	IncrementCounter(ctx context.Context, schoolID string, key string, window time.Duration) (int64, error)
	// ResetCounter drops the counter at key so the next increment returns 1.
	ResetCounter(ctx context.Context, schoolID string, key string) error

	Ping(ctx context.Context) error
	Close() error
}

// CacheConfig selects and tunes the cache backend.
type CacheConfig struct {
	Type string // "memory" or "redis"

	// In-process LRU. With EnableTwoPhase it fronts Redis as well.
	LocalMaxSize   int
	LocalTTL       time.Duration
	EnableTwoPhase bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// InsightTTL bounds how stale a cached insight may be.
	InsightTTL time.Duration
}
