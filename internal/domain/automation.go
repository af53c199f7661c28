package domain

import "time"

// TriggerKind selects which domain event an automation rule reacts to.
type TriggerKind string

const (
	TriggerHafalanCompleted TriggerKind = "hafalan_completed"
	TriggerAttendanceAbsent TriggerKind = "attendance_absent"
	TriggerPaymentDue       TriggerKind = "payment_due"
	TriggerBehaviorIncident TriggerKind = "behavior_incident"
	TriggerMonthlyReport    TriggerKind = "monthly_report"
)

// EventKind is the kind of a domain event fed to the automation engine.
type EventKind string

const (
	EventMemorizationApproved EventKind = "memorization_approved"
	EventAbsenceRecorded      EventKind = "absence_recorded"
	EventPaymentDue           EventKind = "payment_due"
	EventBehaviorRecorded     EventKind = "behavior_recorded"
	EventMonthlyTick          EventKind = "monthly_tick"
)

// EventKind returns the event kind a trigger listens to, or "" when unknown.
func (k TriggerKind) EventKind() EventKind {
	switch k {
	case TriggerHafalanCompleted:
		return EventMemorizationApproved
	case TriggerAttendanceAbsent:
		return EventAbsenceRecorded
	case TriggerPaymentDue:
		return EventPaymentDue
	case TriggerBehaviorIncident:
		return EventBehaviorRecorded
	case TriggerMonthlyReport:
		return EventMonthlyTick
	default:
		return ""
	}
}

// Audience selects who receives the notifications a rule emits.
type Audience string

const (
	AudienceGuardian Audience = "guardian"
	AudienceMusyrif  Audience = "musyrif"
	AudienceBoth     Audience = "both"
)

// AutomationRule is configuration data: read by the engine, mutated only by
// the administrative path.
type AutomationRule struct {
	ID         string             `json:"id" validate:"required"`
	SchoolID   string             `json:"schoolId,omitempty"`
	Name       string             `json:"name" validate:"required"`
	Trigger    TriggerKind        `json:"trigger" validate:"required"`
	Enabled    bool               `json:"enabled"`
	Conditions map[string]float64 `json:"conditions,omitempty"`

	// Expression is an optional CEL condition AND-ed with the trigger's own.
	Expression string   `json:"expression,omitempty"`
	TemplateID string   `json:"templateId" validate:"required"`
	Audience   Audience `json:"audience" validate:"required,oneof=guardian musyrif both"`

	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Clone returns a deep copy so snapshots never share the conditions map.
func (r *AutomationRule) Clone() *AutomationRule {
	c := *r
	if r.Conditions != nil {
		c.Conditions = make(map[string]float64, len(r.Conditions))
		for k, v := range r.Conditions {
			c.Conditions[k] = v
		}
	}
	return &c
}

// DomainEvent is a fact the automation engine reacts to. Only the fields
// relevant to Kind are populated.
type DomainEvent struct {
	ID         string    `json:"id"`
	SchoolID   string    `json:"schoolId"`
	Kind       EventKind `json:"kind" validate:"required,oneof=memorization_approved absence_recorded payment_due behavior_recorded monthly_tick"`
	StudentIDs []string  `json:"studentIds,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`

	Memorization *MemorizationRecord `json:"memorization,omitempty"`
	Attendance   *AttendanceRecord   `json:"attendance,omitempty"`
	Behavior     *BehaviorRecord     `json:"behavior,omitempty"`
	Payment      *PaymentRecord      `json:"payment,omitempty"`
	Month        string              `json:"month,omitempty"` // YYYY-MM for monthly ticks
}

// NotificationRequest is what the engine hands to the delivery collaborator.
type NotificationRequest struct {
	ID         string    `json:"id"`
	SchoolID   string    `json:"schoolId"`
	RuleID     string    `json:"ruleId"`
	EventID    string    `json:"eventId"`
	StudentID  string    `json:"studentId"`
	Recipient  Contact   `json:"recipient"`
	Role       Audience  `json:"role"`
	TemplateID string    `json:"templateId"`
	Params     []string  `json:"params"`
	CreatedAt  time.Time `json:"createdAt"`
}

// DedupKey identifies the (rule, student, event, recipient) tuple a request is
// unique for.
func (n *NotificationRequest) DedupKey() string {
	return "dispatch:" + n.RuleID + ":" + n.StudentID + ":" + n.EventID + ":" + string(n.Role)
}

// RuleState is a step of the per-evaluation rule state machine.
type RuleState string

const (
	RuleDisabled         RuleState = "DISABLED"
	RuleEvaluating       RuleState = "EVALUATING"
	RuleConditionsMet    RuleState = "CONDITIONS_MET"
	RuleConditionsNotMet RuleState = "CONDITIONS_NOT_MET"
	RuleDispatched       RuleState = "DISPATCHED"
	RuleIdle             RuleState = "IDLE"
	RuleSkipped          RuleState = "SKIPPED"
)

// RuleEvaluation is the outcome of evaluating one rule for one student.
type RuleEvaluation struct {
	RuleID    string                 `json:"ruleId"`
	StudentID string                 `json:"studentId"`
	State     RuleState              `json:"state"`
	Trace     []RuleState            `json:"trace"`
	Reason    string                 `json:"reason,omitempty"`
	Requests  []*NotificationRequest `json:"requests,omitempty"`
	ProcessMs int64                  `json:"processMs"`
}
