package automation

import (
	"fmt"
	"strconv"
	"time"

	"github.com/tahfidz-hub/mizan/internal/domain"
)

// templateParams returns the ordered substitution parameters of the
// notification a rule sends about sub. The order is part of each template's
// contract with the delivery service.
func templateParams(rule *domain.AutomationRule, ev *domain.DomainEvent, sub *Subject, now time.Time) []string {
	name := sub.Student.Name
	if name == "" {
		name = sub.Student.ID
	}

	switch rule.Trigger {
	case domain.TriggerHafalanCompleted:
		m := ev.Memorization
		if m == nil {
			return []string{name, "", "", ""}
		}
		grade := ""
		if m.Grade != nil {
			grade = strconv.FormatFloat(*m.Grade, 'f', 0, 64)
		}
		unit := m.UnitName
		if unit == "" {
			unit = m.UnitID
		}
		return []string{name, unit, fmt.Sprintf("%d-%d", m.RangeStart, m.RangeEnd), grade}

	case domain.TriggerAttendanceAbsent:
		return []string{name, strconv.Itoa(ConsecutiveAbsences(sub.RecentAttendance))}

	case domain.TriggerPaymentDue:
		p := ev.Payment
		if p == nil {
			return []string{name, "", "", "", ""}
		}
		return []string{
			name,
			p.Description,
			strconv.FormatFloat(p.Amount, 'f', 0, 64),
			p.DueDate.Format("2006-01-02"),
			strconv.Itoa(p.DaysUntilDue(now)),
		}

	case domain.TriggerBehaviorIncident:
		b := ev.Behavior
		if b == nil {
			return []string{name, "", "", "", ""}
		}
		return []string{
			name,
			b.Criterion.Name,
			b.Criterion.Category.Label(),
			string(b.Criterion.Severity),
			b.Description,
		}

	case domain.TriggerMonthlyReport:
		d := sub.Digest
		if d == nil {
			return []string{name, ev.Month, "-", "-", "-"}
		}
		return []string{
			name,
			ev.Month,
			fmt.Sprintf("%.0f%%", d.Risk.AttendanceRate),
			fmt.Sprintf("%.1f", d.Risk.AcademicAverage),
			d.Behavior.CharacterGrade,
		}
	}

	return []string{name}
}
