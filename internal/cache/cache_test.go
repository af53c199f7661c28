package cache

import (
	"context"
	"testing"
	"time"

	"github.com/tahfidz-hub/mizan/internal/domain"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestLRU(size int) (*LRUCache, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache(size)
	c.now = clock.now
	return c, clock
}

func TestLRUCache(t *testing.T) {
	ctx := context.Background()
	schoolID := "school-001"

	t.Run("SetAndGet", func(t *testing.T) {
		c, _ := newTestLRU(100)
		if err := c.Set(ctx, schoolID, "key1", []byte("value1"), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := c.Get(ctx, schoolID, "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != "value1" {
			t.Errorf("expected 'value1', got '%s'", string(val))
		}
	})

	t.Run("MissAndDelete", func(t *testing.T) {
		c, _ := newTestLRU(100)
		if val, err := c.Get(ctx, schoolID, "nonexistent"); err != nil || val != nil {
			t.Errorf("expected clean miss, got %v, %v", val, err)
		}

		_ = c.Set(ctx, schoolID, "key2", []byte("value2"), time.Minute)
		if err := c.Delete(ctx, schoolID, "key2"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if val, _ := c.Get(ctx, schoolID, "key2"); val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		c, clock := newTestLRU(100)
		_ = c.Set(ctx, schoolID, "expiring", []byte("temp"), 10*time.Second)

		if val, _ := c.Get(ctx, schoolID, "expiring"); val == nil {
			t.Error("expected value before expiration")
		}

		clock.advance(11 * time.Second)
		if val, _ := c.Get(ctx, schoolID, "expiring"); val != nil {
			t.Error("expected nil after expiration")
		}
	})

	t.Run("LRUEviction", func(t *testing.T) {
		c, _ := newTestLRU(3)
		_ = c.Set(ctx, schoolID, "a", []byte("1"), time.Minute)
		_ = c.Set(ctx, schoolID, "b", []byte("2"), time.Minute)
		_ = c.Set(ctx, schoolID, "c", []byte("3"), time.Minute)

		_, _ = c.Get(ctx, schoolID, "a")
		_ = c.Set(ctx, schoolID, "d", []byte("4"), time.Minute)

		if val, _ := c.Get(ctx, schoolID, "b"); val != nil {
			t.Error("expected 'b' to be evicted")
		}
		if val, _ := c.Get(ctx, schoolID, "a"); val == nil {
			t.Error("expected 'a' to still exist")
		}
	})

	t.Run("SchoolIsolation", func(t *testing.T) {
		c, _ := newTestLRU(100)
		_ = c.Set(ctx, "school-001", "shared-key", []byte("one"), time.Minute)
		_ = c.Set(ctx, "school-002", "shared-key", []byte("two"), time.Minute)

		v1, _ := c.Get(ctx, "school-001", "shared-key")
		v2, _ := c.Get(ctx, "school-002", "shared-key")
		if string(v1) != "one" || string(v2) != "two" {
			t.Errorf("schools leaked into each other: %q %q", v1, v2)
		}
	})

	t.Run("RequiresSchoolID", func(t *testing.T) {
		c, _ := newTestLRU(100)
		if err := c.Set(ctx, "", "key", []byte("value"), time.Minute); err == nil {
			t.Error("expected error for empty schoolID")
		}
		if _, err := c.Get(ctx, "", "key"); err == nil {
			t.Error("expected error for empty schoolID")
		}
		if _, err := c.IncrementCounter(ctx, "", "key", time.Minute); err == nil {
			t.Error("expected error for empty schoolID")
		}
	})

	t.Run("DedupCounterWindow", func(t *testing.T) {
		c, clock := newTestLRU(100)
		key := "dispatch:absent-2:s1:evt-1:guardian"

		if n, err := c.IncrementCounter(ctx, schoolID, key, time.Hour); err != nil || n != 1 {
			t.Fatalf("first claim = %d, %v; want 1", n, err)
		}
		if n, _ := c.IncrementCounter(ctx, schoolID, key, time.Hour); n != 2 {
			t.Errorf("second claim = %d, want 2", n)
		}

		clock.advance(2 * time.Hour)
		if n, _ := c.IncrementCounter(ctx, schoolID, key, time.Hour); n != 1 {
			t.Errorf("claim after window = %d, want 1", n)
		}
	})

	t.Run("ResetCounterReleasesClaim", func(t *testing.T) {
		c, _ := newTestLRU(100)
		key := "dispatch:absent-2:s1:evt-1:guardian"

		_, _ = c.IncrementCounter(ctx, schoolID, key, time.Hour)
		if err := c.ResetCounter(ctx, schoolID, key); err != nil {
			t.Fatalf("ResetCounter failed: %v", err)
		}
		if n, _ := c.IncrementCounter(ctx, schoolID, key, time.Hour); n != 1 {
			t.Errorf("claim after reset = %d, want 1", n)
		}
		if err := c.ResetCounter(ctx, "", key); err == nil {
			t.Error("expected error for empty schoolID")
		}
	})

	t.Run("CountersSweptNotEvicted", func(t *testing.T) {
		c, clock := newTestLRU(2)
		_, _ = c.IncrementCounter(ctx, schoolID, "old", time.Minute)
		_, _ = c.IncrementCounter(ctx, schoolID, "live", time.Hour)

		clock.advance(2 * time.Minute)
		_, _ = c.IncrementCounter(ctx, schoolID, "new", time.Hour)

		if got := c.Stats().Counters; got != 2 {
			t.Errorf("expected expired counter swept, got %d counters", got)
		}
		if n, _ := c.IncrementCounter(ctx, schoolID, "live", time.Hour); n != 2 {
			t.Errorf("live claim lost: count %d", n)
		}
	})

	t.Run("Stats", func(t *testing.T) {
		c, _ := newTestLRU(50)
		_ = c.Set(ctx, schoolID, "k1", []byte("v1"), time.Minute)
		_ = c.Set(ctx, schoolID, "k2", []byte("v2"), time.Minute)
		_, _ = c.Get(ctx, schoolID, "k1")
		_, _ = c.Get(ctx, schoolID, "missing")

		s := c.Stats()
		if s.Size != 2 || s.Capacity != 50 || s.Hits != 1 || s.Misses != 1 {
			t.Errorf("unexpected stats %+v", s)
		}
	})

	t.Run("Close", func(t *testing.T) {
		c, _ := newTestLRU(10)
		_ = c.Set(ctx, schoolID, "k", []byte("v"), time.Minute)

		if err := c.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
		if val, _ := c.Get(ctx, schoolID, "k"); val != nil {
			t.Error("expected cache to be cleared after close")
		}
	})
}

func TestInsightJSON(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestLRU(10)
	key := InsightKey(ScopeStudent, "s1", 30)

	if key != "insight:student:s1:30" {
		t.Errorf("unexpected key %q", key)
	}

	if _, ok, err := GetJSON[domain.StudentInsight](ctx, c, "school-1", key); ok || err != nil {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	in := domain.StudentInsight{StudentID: "s1", StudentName: "Ahmad", OverallTrend: domain.TrendImproving}
	if err := SetJSON(ctx, c, "school-1", key, in, time.Minute); err != nil {
		t.Fatalf("SetJSON failed: %v", err)
	}

	got, ok, err := GetJSON[domain.StudentInsight](ctx, c, "school-1", key)
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if got.StudentName != "Ahmad" || got.OverallTrend != domain.TrendImproving {
		t.Errorf("round trip lost fields: %+v", got)
	}

	if err := Invalidate(ctx, c, "school-1", ScopeStudent, "s1", 7, 30); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if _, ok, _ := GetJSON[domain.StudentInsight](ctx, c, "school-1", key); ok {
		t.Error("expected miss after invalidation")
	}
}

func TestCorruptJSONIsAMiss(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestLRU(10)
	key := InsightKey(ScopeSystem, "school-1", 30)
	_ = c.Set(ctx, "school-1", key, []byte("{not json"), time.Minute)

	if _, ok, err := GetJSON[domain.SystemInsight](ctx, c, "school-1", key); ok || err != nil {
		t.Errorf("expected silent miss, got ok=%v err=%v", ok, err)
	}
	if raw, _ := c.Get(ctx, "school-1", key); raw != nil {
		t.Error("corrupt entry should be dropped")
	}
}

func TestNewCache(t *testing.T) {
	t.Run("MemoryType", func(t *testing.T) {
		c, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 100})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer c.Close()

		if _, ok := c.(*LRUCache); !ok {
			t.Error("expected LRUCache for memory type")
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		if _, err := New(domain.CacheConfig{Type: "memcached"}); err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}
