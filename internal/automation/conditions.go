package automation

import (
	"fmt"
	"math"
	"strings"

	"github.com/tahfidz-hub/mizan/internal/domain"
)

// Condition parameter names.
const (
	ParamMinGrade        = "minGrade"
	ParamConsecutiveDays = "consecutiveDays"
	ParamDaysBefore      = "daysBefore"
	ParamMinSeverity     = "minSeverity"
)

type paramSpec struct {
	name     string
	min, max float64
}

type triggerSpec struct {
	condition string
	params    []paramSpec
}

// Each trigger kind is a CEL condition over the activation built in
// activation.go. params is the rule's condition map.
var triggers = map[domain.TriggerKind]triggerSpec{
	domain.TriggerHafalanCompleted: {
		condition: "has_grade && grade >= params.minGrade",
		params:    []paramSpec{{ParamMinGrade, 0, 100}},
	},
	domain.TriggerAttendanceAbsent: {
		condition: "consecutive_absent_days >= int(params.consecutiveDays)",
		params:    []paramSpec{{ParamConsecutiveDays, 1, 365}},
	},
	domain.TriggerPaymentDue: {
		condition: "has_payment && days_until_due >= 0 && days_until_due <= int(params.daysBefore)",
		params:    []paramSpec{{ParamDaysBefore, 0, 365}},
	},
	domain.TriggerBehaviorIncident: {
		condition: "severity_level >= int(params.minSeverity)",
		params:    []paramSpec{{ParamMinSeverity, 1, 4}},
	},
	domain.TriggerMonthlyReport: {
		condition: "true",
	},
}

// conditionFor validates the rule's trigger and parameters and returns the
// full CEL source to compile.
func conditionFor(rule *domain.AutomationRule) (string, error) {
	spec, ok := triggers[rule.Trigger]
	if !ok {
		return "", &domain.ConfigError{RuleID: rule.ID, Reason: fmt.Sprintf("unknown trigger %q", rule.Trigger)}
	}

	for _, p := range spec.params {
		v, ok := rule.Conditions[p.name]
		if !ok {
			return "", &domain.ConfigError{RuleID: rule.ID, Reason: fmt.Sprintf("missing condition %q", p.name)}
		}
		if math.IsNaN(v) || math.IsInf(v, 0) || v < p.min || v > p.max {
			return "", &domain.ConfigError{
				RuleID: rule.ID,
				Reason: fmt.Sprintf("condition %q = %v outside [%v, %v]", p.name, v, p.min, p.max),
			}
		}
	}

	if expr := strings.TrimSpace(rule.Expression); expr != "" {
		return "(" + spec.condition + ") && (" + expr + ")", nil
	}
	return spec.condition, nil
}

// MaxDaysBefore returns the widest payment reminder horizon of the enabled
// payment rules, or -1 when there are none.
func MaxDaysBefore(rules []*domain.AutomationRule) int {
	horizon := -1
	for _, r := range rules {
		if !r.Enabled || r.Trigger != domain.TriggerPaymentDue {
			continue
		}
		if d, ok := r.Conditions[ParamDaysBefore]; ok && int(d) > horizon {
			horizon = int(d)
		}
	}
	return horizon
}

// MaxConsecutiveDays returns the longest absence streak the enabled absence
// rules wait for, or 0 when there are none.
func MaxConsecutiveDays(rules []*domain.AutomationRule) int {
	longest := 0
	for _, r := range rules {
		if !r.Enabled || r.Trigger != domain.TriggerAttendanceAbsent {
			continue
		}
		if d, ok := r.Conditions[ParamConsecutiveDays]; ok && int(d) > longest {
			longest = int(d)
		}
	}
	return longest
}
