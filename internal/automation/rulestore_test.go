package automation

import (
	"context"
	"errors"
	"testing"

	"github.com/tahfidz-hub/mizan/internal/domain"
)

type memorySink struct {
	saved []*domain.AutomationRule
	err   error
}

func (m *memorySink) SaveAutomationRule(_ context.Context, _ string, rule *domain.AutomationRule) error {
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, rule.Clone())
	return nil
}

func (m *memorySink) ListAutomationRules(_ context.Context, schoolID string) ([]*domain.AutomationRule, error) {
	var out []*domain.AutomationRule
	for _, r := range m.saved {
		if r.SchoolID == schoolID {
			out = append(out, r.Clone())
		}
	}
	return out, m.err
}

func TestRuleStoreSnapshotIsolation(t *testing.T) {
	rule := absentRule()
	rule.SchoolID = "school-1"
	store := NewRuleStore(nil, rule)

	snap := store.Snapshot("school-1")
	if len(snap) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(snap))
	}

	snap[0].Conditions[ParamConsecutiveDays] = 99
	snap[0].Enabled = false
	rule.Conditions[ParamConsecutiveDays] = 42

	again, _ := store.Get("school-1", "absent-2")
	if again.Conditions[ParamConsecutiveDays] != 2 || !again.Enabled {
		t.Errorf("store was mutated through a snapshot or the seed: %+v", again)
	}

	if n := len(store.Snapshot("school-2")); n != 0 {
		t.Errorf("expected no rules for another school, got %d", n)
	}
}

func TestRuleStoreToggle(t *testing.T) {
	sink := &memorySink{}
	rule := absentRule()
	rule.SchoolID = "school-1"
	rule.Version = 1
	store := NewRuleStore(sink, rule)

	before := store.Snapshot("school-1")

	toggled, err := store.Toggle(context.Background(), "school-1", "absent-2")
	if err != nil {
		t.Fatalf("toggle failed: %v", err)
	}
	if toggled.Enabled {
		t.Error("expected rule to be disabled")
	}
	if toggled.Version != 2 {
		t.Errorf("expected version 2, got %d", toggled.Version)
	}
	if !before[0].Enabled {
		t.Error("earlier snapshot must not change")
	}
	if len(sink.saved) != 1 || sink.saved[0].Enabled {
		t.Errorf("toggle was not persisted: %+v", sink.saved)
	}

	if _, err := store.Toggle(context.Background(), "school-1", "nope"); !errors.Is(err, domain.ErrMissingEntity) {
		t.Errorf("expected ErrMissingEntity, got %v", err)
	}
}

func TestRuleStoreUpsert(t *testing.T) {
	store := NewRuleStore(nil)

	first, err := store.Upsert(context.Background(), "school-1", absentRule())
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if first.Version != 1 || first.SchoolID != "school-1" || first.UpdatedAt.IsZero() {
		t.Errorf("unexpected first version: %+v", first)
	}

	updated := absentRule()
	updated.Conditions[ParamConsecutiveDays] = 3
	second, err := store.Upsert(context.Background(), "school-1", updated)
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if second.Version != 2 || second.Conditions[ParamConsecutiveDays] != 3 {
		t.Errorf("unexpected second version: %+v", second)
	}
	if store.Count("school-1") != 1 {
		t.Errorf("expected 1 rule, got %d", store.Count("school-1"))
	}

	if _, err := store.Upsert(context.Background(), "school-1", &domain.AutomationRule{}); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration for missing id, got %v", err)
	}
}

func TestRuleStorePersistFailureKeepsState(t *testing.T) {
	sink := &memorySink{err: errors.New("disk full")}
	rule := absentRule()
	rule.SchoolID = "school-1"
	store := NewRuleStore(sink, rule)

	if _, err := store.Toggle(context.Background(), "school-1", "absent-2"); err == nil {
		t.Fatal("expected persistence error")
	}
	r, _ := store.Get("school-1", "absent-2")
	if !r.Enabled {
		t.Error("failed toggle must not change the stored rule")
	}
}

func TestRuleStoreReload(t *testing.T) {
	sink := &memorySink{}
	store := NewRuleStore(sink)
	ctx := context.Background()

	if _, err := store.Upsert(ctx, "school-1", absentRule()); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	fresh := NewRuleStore(nil, &domain.AutomationRule{ID: "stale", SchoolID: "school-1"})
	n, err := fresh.Reload(ctx, sink, "school-1")
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 rule loaded, got %d", n)
	}
	if _, err := fresh.Get("school-1", "stale"); err == nil {
		t.Error("reload must drop rules the source no longer has")
	}
	if _, err := fresh.Get("school-1", "absent-2"); err != nil {
		t.Errorf("reloaded rule missing: %v", err)
	}
}
