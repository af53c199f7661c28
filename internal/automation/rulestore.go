package automation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tahfidz-hub/mizan/internal/domain"
)

// RuleSink persists rule changes. The repository satisfies it.
type RuleSink interface {
	SaveAutomationRule(ctx context.Context, schoolID string, rule *domain.AutomationRule) error
}

// RuleSource loads the persisted rules of a school.
type RuleSource interface {
	ListAutomationRules(ctx context.Context, schoolID string) ([]*domain.AutomationRule, error)
}

// RuleStore owns the automation rules. It is constructed once and injected
// into the engine and the admin API. Readers get deep-copied snapshots, so a
// toggle never changes a rule under an evaluation already in flight.
type RuleStore struct {
	mu    sync.RWMutex
	rules map[string]*domain.AutomationRule // key: schoolID + "/" + ruleID
	sink  RuleSink
	now   func() time.Time
}

// NewRuleStore creates a store seeded with rules. sink may be nil.
func NewRuleStore(sink RuleSink, rules ...*domain.AutomationRule) *RuleStore {
	s := &RuleStore{
		rules: make(map[string]*domain.AutomationRule, len(rules)),
		sink:  sink,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, r := range rules {
		if r != nil {
			s.rules[storeKey(r.SchoolID, r.ID)] = r.Clone()
		}
	}
	return s
}

func storeKey(schoolID, ruleID string) string {
	return schoolID + "/" + ruleID
}

// Snapshot returns copies of the school's rules ordered by ID.
func (s *RuleStore) Snapshot(schoolID string) []*domain.AutomationRule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.AutomationRule, 0, len(s.rules))
	for _, r := range s.rules {
		if r.SchoolID == schoolID {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns a copy of one rule.
func (s *RuleStore) Get(schoolID, ruleID string) (*domain.AutomationRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rules[storeKey(schoolID, ruleID)]
	if !ok {
		return nil, fmt.Errorf("rule %s: %w", ruleID, domain.ErrMissingEntity)
	}
	return r.Clone(), nil
}

// Upsert stores rule, bumping its version past any existing one.
func (s *RuleStore) Upsert(ctx context.Context, schoolID string, rule *domain.AutomationRule) (*domain.AutomationRule, error) {
	if rule == nil || rule.ID == "" {
		return nil, fmt.Errorf("rule id is required: %w", domain.ErrConfiguration)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := rule.Clone()
	next.SchoolID = schoolID
	next.UpdatedAt = s.now()
	next.Version = 1
	if prev, ok := s.rules[storeKey(schoolID, rule.ID)]; ok {
		next.Version = prev.Version + 1
	}

	if err := s.persist(ctx, next); err != nil {
		return nil, err
	}
	s.rules[storeKey(schoolID, next.ID)] = next
	return next.Clone(), nil
}

// Toggle flips a rule between enabled and disabled.
func (s *RuleStore) Toggle(ctx context.Context, schoolID, ruleID string) (*domain.AutomationRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.rules[storeKey(schoolID, ruleID)]
	if !ok {
		return nil, fmt.Errorf("rule %s: %w", ruleID, domain.ErrMissingEntity)
	}

	next := prev.Clone()
	next.Enabled = !prev.Enabled
	next.Version = prev.Version + 1
	next.UpdatedAt = s.now()

	if err := s.persist(ctx, next); err != nil {
		return nil, err
	}
	s.rules[storeKey(schoolID, ruleID)] = next
	return next.Clone(), nil
}

// Replace swaps every rule of a school for rules.
func (s *RuleStore) Replace(schoolID string, rules []*domain.AutomationRule) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, r := range s.rules {
		if r.SchoolID == schoolID {
			delete(s.rules, k)
		}
	}
	for _, r := range rules {
		if r == nil {
			continue
		}
		c := r.Clone()
		c.SchoolID = schoolID
		s.rules[storeKey(schoolID, c.ID)] = c
	}
}

// Reload replaces a school's rules with what src holds.
func (s *RuleStore) Reload(ctx context.Context, src RuleSource, schoolID string) (int, error) {
	rules, err := src.ListAutomationRules(ctx, schoolID)
	if err != nil {
		return 0, fmt.Errorf("failed to load rules for school %s: %w", schoolID, err)
	}
	s.Replace(schoolID, rules)
	return len(rules), nil
}

// Count returns how many rules the store holds for a school.
func (s *RuleStore) Count(schoolID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	for _, r := range s.rules {
		if r.SchoolID == schoolID {
			n++
		}
	}
	return n
}

func (s *RuleStore) persist(ctx context.Context, rule *domain.AutomationRule) error {
	if s.sink == nil {
		return nil
	}
	if err := s.sink.SaveAutomationRule(ctx, rule.SchoolID, rule); err != nil {
		return fmt.Errorf("failed to save rule %s: %w", rule.ID, err)
	}
	return nil
}
