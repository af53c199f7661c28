package insight

import (
	"fmt"
	"time"

	"github.com/tahfidz-hub/mizan/internal/domain"
	"github.com/tahfidz-hub/mizan/internal/progress"
	"github.com/tahfidz-hub/mizan/internal/risk"
)

// Alert kinds.
const (
	AlertLowAttendance   = "low_attendance"
	AlertLowPerformance  = "low_performance"
	AlertOverduePayments = "overdue_payments"
	AlertGroupCapacity   = "group_capacity"
)

// System thresholds.
const (
	systemAttendanceTarget  = 80.0
	systemPerformanceTarget = 70.0
	groupCapacityAlert      = 90.0
	MonthlyPoints           = 6
)

// SchoolRecords is the school-wide input. Attendance and Memorization should
// cover at least the six calendar months ending at the window end.
type SchoolRecords struct {
	SchoolID     string
	Students     []*domain.Student
	Groups       []*domain.Group
	Attendance   []*domain.AttendanceRecord
	Memorization []*domain.MemorizationRecord
	Payments     []*domain.PaymentRecord
}

// System builds the school-wide insight. The window end is the evaluation
// instant for overdue payments and the monthly trend.
func (s *Synthesizer) System(window domain.Window, in SchoolRecords) domain.SystemInsight {
	now := window.To
	if now.IsZero() {
		now = time.Now().UTC()
	}

	insight := domain.SystemInsight{
		SchoolID:      in.SchoolID,
		Window:        window,
		TotalStudents: len(in.Students),
		MonthlyTrend:  MonthlyTrend(now, in.Attendance, in.Memorization),
		Alerts:        []domain.Alert{},
	}

	perGroup := make(map[string]int)
	for _, st := range in.Students {
		if st != nil && st.Active {
			insight.ActiveStudents++
			perGroup[st.GroupID]++
		}
	}

	att := filterAttendance(window, in.Attendance)
	grades := progress.GradeSeries(filterMemorization(window, in.Memorization))
	insight.AttendanceAverage = round1(risk.AttendanceRate(att))
	insight.PerformanceAverage = round1(mean(grades))

	for _, p := range in.Payments {
		if p != nil && p.IsOverdue(now) {
			insight.OverduePayments++
		}
	}

	insight.InsufficientData = len(in.Students) == 0 && len(att) == 0 && len(grades) == 0

	if len(att) > 0 && insight.AttendanceAverage < systemAttendanceTarget {
		insight.Alerts = append(insight.Alerts, domain.Alert{
			Kind:      AlertLowAttendance,
			Severity:  domain.AlertWarning,
			Message:   fmt.Sprintf("School attendance averages %s over %s", pct(insight.AttendanceAverage), window.Label()),
			Value:     insight.AttendanceAverage,
			Threshold: systemAttendanceTarget,
		})
	}
	if len(grades) > 0 && insight.PerformanceAverage < systemPerformanceTarget {
		insight.Alerts = append(insight.Alerts, domain.Alert{
			Kind:      AlertLowPerformance,
			Severity:  domain.AlertWarning,
			Message:   fmt.Sprintf("Average hafalan grade is %.1f over %s", insight.PerformanceAverage, window.Label()),
			Value:     insight.PerformanceAverage,
			Threshold: systemPerformanceTarget,
		})
	}
	if insight.OverduePayments > 0 {
		sev := domain.AlertWarning
		if insight.OverduePayments > s.cfg.OverduePaymentCritical {
			sev = domain.AlertCritical
		}
		insight.Alerts = append(insight.Alerts, domain.Alert{
			Kind:      AlertOverduePayments,
			Severity:  sev,
			Message:   fmt.Sprintf("%d payment(s) are overdue", insight.OverduePayments),
			Value:     float64(insight.OverduePayments),
			Threshold: float64(s.cfg.OverduePaymentCritical),
		})
	}
	for _, g := range in.Groups {
		if g == nil || g.Capacity <= 0 {
			continue
		}
		fill := float64(perGroup[g.ID]) / float64(g.Capacity) * 100
		if fill > groupCapacityAlert {
			insight.Alerts = append(insight.Alerts, domain.Alert{
				Kind:      AlertGroupCapacity,
				Severity:  domain.AlertWarning,
				Message:   fmt.Sprintf("Halaqah %s is at %s of capacity", g.Name, pct(min(fill, 100))),
				Value:     round1(fill),
				Threshold: groupCapacityAlert,
				GroupID:   g.ID,
			})
		}
	}

	return insight
}

// MonthlyTrend returns one point per calendar month, oldest first, ending
// with the month containing now. Empty months are zero.
func MonthlyTrend(now time.Time, attendance []*domain.AttendanceRecord, memorization []*domain.MemorizationRecord) []domain.MonthlyPoint {
	now = now.UTC()
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(MonthlyPoints - 1), 0)

	points := make([]domain.MonthlyPoint, MonthlyPoints)
	att := make([][]*domain.AttendanceRecord, MonthlyPoints)
	mem := make([][]*domain.MemorizationRecord, MonthlyPoints)

	for i := range points {
		points[i].Month = first.AddDate(0, i, 0).Format("2006-01")
	}

	index := func(t time.Time) int {
		t = t.UTC()
		i := (t.Year()-first.Year())*12 + int(t.Month()) - int(first.Month())
		if i < 0 || i >= MonthlyPoints {
			return -1
		}
		return i
	}

	for _, r := range attendance {
		if r == nil {
			continue
		}
		if i := index(r.Date); i >= 0 {
			att[i] = append(att[i], r)
		}
	}
	for _, r := range memorization {
		if r == nil {
			continue
		}
		if i := index(r.Timestamp); i >= 0 {
			mem[i] = append(mem[i], r)
		}
	}

	for i := range points {
		points[i].AttendanceRate = round1(risk.AttendanceRate(att[i]))
		points[i].PerformanceAverage = round1(progress.AverageGrade(mem[i]))
		points[i].Sessions = len(att[i])
	}
	return points
}
