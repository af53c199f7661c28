package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/tahfidz-hub/mizan/internal/domain"
)

// Insight scopes.
const (
	ScopeStudent = "student"
	ScopeGroup   = "group"
	ScopeSystem  = "system"
)

// InsightKey is the cache key of a derived insight for one subject and
// trailing window length.
func InsightKey(scope, id string, days int) string {
	return "insight:" + scope + ":" + id + ":" + strconv.Itoa(days)
}

// GetJSON decodes the value under key into a T. ok is false on a miss.
// A value that no longer decodes is treated as a miss.
func GetJSON[T any](ctx context.Context, c domain.Cache, schoolID, key string) (v T, ok bool, err error) {
	raw, err := c.Get(ctx, schoolID, key)
	if err != nil || raw == nil {
		return v, false, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		_ = c.Delete(ctx, schoolID, key)
		return v, false, nil
	}
	return v, true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, c domain.Cache, schoolID, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return c.Set(ctx, schoolID, key, raw, ttl)
}

// Invalidate drops the cached insights of one subject for the given window
// lengths. Every key is attempted; the first error is returned.
func Invalidate(ctx context.Context, c domain.Cache, schoolID, scope, id string, days ...int) error {
	var first error
	for _, d := range days {
		if err := c.Delete(ctx, schoolID, InsightKey(scope, id, d)); err != nil && first == nil {
			first = err
		}
	}
	return first
}
