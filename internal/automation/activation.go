package automation

import (
	"time"

	"github.com/google/cel-go/cel"

	"github.com/tahfidz-hub/mizan/internal/domain"
)

// Subject is one student an event concerns, with what rules need to know
// about them. The worker fills it from the repository.
type Subject struct {
	Student domain.Student
	Group   *domain.Group

	// RecentAttendance is most recent first.
	RecentAttendance []*domain.AttendanceRecord

	// Digest is the student's monthly insight; only monthly reports use it.
	Digest *domain.StudentInsight
}

// Input is one domain event and the students it concerns.
type Input struct {
	Event    *domain.DomainEvent
	Subjects []Subject
	Now      time.Time
}

func envOptions() []cel.EnvOption {
	return []cel.EnvOption{
		cel.Variable("params", cel.MapType(cel.StringType, cel.DoubleType)),
		cel.Variable("event_kind", cel.StringType),
		cel.Variable("student_id", cel.StringType),
		cel.Variable("group_id", cel.StringType),

		// memorization_approved
		cel.Variable("has_grade", cel.BoolType),
		cel.Variable("grade", cel.DoubleType),
		cel.Variable("unit_id", cel.StringType),
		cel.Variable("submission_type", cel.StringType),

		// absence_recorded
		cel.Variable("consecutive_absent_days", cel.IntType),

		// payment_due
		cel.Variable("has_payment", cel.BoolType),
		cel.Variable("days_until_due", cel.IntType),
		cel.Variable("amount", cel.DoubleType),

		// behavior_recorded
		cel.Variable("severity_level", cel.IntType),
		cel.Variable("points", cel.IntType),
		cel.Variable("category", cel.StringType),
		cel.Variable("polarity", cel.StringType),

		// monthly_tick
		cel.Variable("month", cel.StringType),
		cel.Variable("attendance_rate", cel.DoubleType),
		cel.Variable("average_grade", cel.DoubleType),
		cel.Variable("behavior_score", cel.IntType),
	}
}

// ConsecutiveAbsences counts the run of absences at the head of records
// (most recent first). The first non-absent record ends the run.
func ConsecutiveAbsences(records []*domain.AttendanceRecord) int {
	var n int
	for _, r := range records {
		if r == nil || r.Status != domain.AttendanceAbsent {
			break
		}
		n++
	}
	return n
}

// activation builds the CEL variables for one rule and one subject. Every
// declared variable is always bound so conditions never fail on a missing
// key; fields of other event kinds hold neutral values.
func activation(rule *domain.AutomationRule, ev *domain.DomainEvent, sub *Subject, now time.Time) map[string]any {
	params := make(map[string]float64, len(rule.Conditions))
	for k, v := range rule.Conditions {
		params[k] = v
	}

	act := map[string]any{
		"params":                  params,
		"event_kind":              string(ev.Kind),
		"student_id":              sub.Student.ID,
		"group_id":                sub.Student.GroupID,
		"has_grade":               false,
		"grade":                   0.0,
		"unit_id":                 "",
		"submission_type":         "",
		"consecutive_absent_days": int64(ConsecutiveAbsences(sub.RecentAttendance)),
		"has_payment":             false,
		"days_until_due":          int64(-1),
		"amount":                  0.0,
		"severity_level":          int64(0),
		"points":                  int64(0),
		"category":                "",
		"polarity":                "",
		"month":                   ev.Month,
		"attendance_rate":         0.0,
		"average_grade":           0.0,
		"behavior_score":          int64(0),
	}

	if m := ev.Memorization; m != nil && m.StudentID == sub.Student.ID {
		act["unit_id"] = m.UnitID
		act["submission_type"] = string(m.Type)
		if m.Grade != nil && m.Status == domain.SubmissionApproved {
			act["has_grade"] = true
			act["grade"] = *m.Grade
		}
	}
	if p := ev.Payment; p != nil && p.StudentID == sub.Student.ID && p.Status != domain.PaymentPaid && p.PaidAt == nil {
		act["has_payment"] = true
		act["days_until_due"] = int64(p.DaysUntilDue(now))
		act["amount"] = p.Amount
	}
	if b := ev.Behavior; b != nil && b.StudentID == sub.Student.ID {
		act["severity_level"] = int64(b.Criterion.Severity.Level())
		act["points"] = int64(b.Criterion.Points)
		act["category"] = string(b.Criterion.Category)
		act["polarity"] = string(b.Criterion.Polarity)
	}
	if d := sub.Digest; d != nil {
		act["attendance_rate"] = d.Risk.AttendanceRate
		act["average_grade"] = d.Risk.AcademicAverage
		act["behavior_score"] = int64(d.Behavior.BehaviorScore)
	}

	return act
}
