package insight

import (
	"fmt"

	"github.com/tahfidz-hub/mizan/internal/domain"
	"github.com/tahfidz-hub/mizan/internal/progress"
	"github.com/tahfidz-hub/mizan/internal/risk"
	"github.com/tahfidz-hub/mizan/internal/trend"
)

// Thresholds of the student-level narrative.
const (
	strongAttendance = 90.0
	weakAttendance   = 80.0
	strongGrade      = 85.0
	weakGrade        = 70.0
	goodCharacter    = 80
	poorCharacter    = 55
)

// StudentRecords is everything known about one student. Memorization holds
// the full history so unit progress is cumulative; attendance and behavior
// may be wider than the window and are filtered here.
type StudentRecords struct {
	Student      domain.Student
	Units        []*domain.Unit
	Memorization []*domain.MemorizationRecord
	Attendance   []*domain.AttendanceRecord
	Behavior     []*domain.BehaviorRecord
}

// Student builds the insight of one student over window.
func (s *Synthesizer) Student(window domain.Window, in StudentRecords) domain.StudentInsight {
	studentID := in.Student.ID

	memInWindow := filterMemorization(window, in.Memorization)
	attInWindow := filterAttendance(window, in.Attendance)
	grades := progress.GradeSeries(memInWindow)

	insight := domain.StudentInsight{
		StudentID:       studentID,
		StudentName:     in.Student.Name,
		Window:          window,
		Progress:        s.progress.AggregateAll(in.Units, in.Memorization),
		Behavior:        s.behavior.Score(studentID, window, in.Behavior),
		HafalanTrend:    domain.TrendStable,
		AttendanceTrend: domain.TrendStable,
		OverallTrend:    domain.TrendStable,
		Strengths:       []string{},
		Weaknesses:      []string{},
		Recommendations: []string{},
	}
	cumulative := domain.Window{To: window.To}
	for i := range insight.Progress {
		insight.Progress[i].Window = cumulative
	}

	if len(grades) == 0 && len(attInWindow) == 0 {
		insight.InsufficientData = true
		insight.Risk = emptyRisk(studentID, window)
		insight.Strengths = appendUnique(insight.Strengths, insight.Behavior.Strengths...)
		insight.Weaknesses = appendUnique(insight.Weaknesses, insight.Behavior.Weaknesses...)
		insight.Recommendations = appendUnique(insight.Recommendations, insight.Behavior.Recommendations...)
		return insight
	}

	insight.Risk = s.risk.Assess(risk.Input{
		StudentID:       studentID,
		Window:          window,
		AttendanceRate:  risk.AttendanceRate(attInWindow),
		AcademicAverage: progress.AverageGrade(memInWindow),
		Grades:          grades,
		Attendance:      risk.WeeklyAttendance(window, attInWindow),
		NoGrades:        len(grades) == 0,
		NoAttendance:    len(attInWindow) == 0,
	})
	insight.HafalanTrend = insight.Risk.GradeTrend
	insight.AttendanceTrend = insight.Risk.AttendanceTrend
	insight.OverallTrend = trend.Combine(insight.HafalanTrend, insight.AttendanceTrend)

	s.narrateStudent(&insight, len(grades) > 0, len(attInWindow) > 0)
	return insight
}

func (s *Synthesizer) narrateStudent(in *domain.StudentInsight, hasGrades, hasAttendance bool) {
	r := in.Risk
	period := in.Window.Label()

	var strengths, weaknesses, recs []string

	if hasAttendance {
		switch {
		case r.AttendanceRate >= strongAttendance:
			strengths = append(strengths, fmt.Sprintf("Excellent attendance (%s over %s)", pct(r.AttendanceRate), period))
		case r.AttendanceRate < weakAttendance:
			weaknesses = append(weaknesses, fmt.Sprintf("Attendance at %s over %s", pct(r.AttendanceRate), period))
		}
	}
	if hasGrades {
		switch {
		case r.AcademicAverage >= strongGrade:
			strengths = append(strengths, fmt.Sprintf("Strong hafalan quality (average grade %.1f)", round1(r.AcademicAverage)))
		case r.AcademicAverage < weakGrade:
			weaknesses = append(weaknesses, fmt.Sprintf("Average hafalan grade %.1f is below target", round1(r.AcademicAverage)))
		}
	}

	var mastered int
	for _, p := range in.Progress {
		if p.Status == domain.MasteryMastered {
			mastered++
		}
	}
	if mastered > 0 {
		strengths = append(strengths, fmt.Sprintf("Mastered %d unit(s)", mastered))
	}

	switch in.HafalanTrend {
	case domain.TrendImproving:
		strengths = append(strengths, "Hafalan grades are improving")
	case domain.TrendDeclining:
		weaknesses = append(weaknesses, fmt.Sprintf("Hafalan grades declined over %s", period))
	}
	if in.AttendanceTrend == domain.TrendDeclining {
		weaknesses = append(weaknesses, fmt.Sprintf("Attendance declined over %s", period))
	}

	b := in.Behavior
	if b.TotalRecords > 0 {
		switch {
		case b.BehaviorScore >= goodCharacter:
			strengths = append(strengths, fmt.Sprintf("Good character (grade %s)", b.CharacterGrade))
		case b.BehaviorScore < poorCharacter:
			weaknesses = append(weaknesses, fmt.Sprintf("Character grade %s needs guidance", b.CharacterGrade))
		}
	}
	strengths = append(strengths, b.Strengths...)
	weaknesses = append(weaknesses, b.Weaknesses...)

	recs = append(recs, r.RecommendedActions...)
	recs = append(recs, b.Recommendations...)
	if r.Category == domain.RiskHigh {
		recs = append(recs, "Schedule a meeting with the guardian")
	}
	if in.OverallTrend == domain.TrendImproving {
		recs = append(recs, "Acknowledge the student's progress to keep motivation up")
	}

	in.Strengths = appendUnique(in.Strengths, strengths...)
	in.Weaknesses = appendUnique(in.Weaknesses, weaknesses...)
	in.Recommendations = appendUnique(in.Recommendations, recs...)
}

func emptyRisk(studentID string, window domain.Window) domain.RiskAssessment {
	return domain.RiskAssessment{
		StudentID:          studentID,
		Window:             window,
		GradeTrend:         domain.TrendStable,
		AttendanceTrend:    domain.TrendStable,
		Penalties:          []domain.Penalty{},
		RecommendedActions: []string{},
	}
}

func filterMemorization(window domain.Window, records []*domain.MemorizationRecord) []*domain.MemorizationRecord {
	out := make([]*domain.MemorizationRecord, 0, len(records))
	for _, r := range records {
		if r != nil && (window.From.IsZero() || window.Contains(r.Timestamp)) {
			out = append(out, r)
		}
	}
	return out
}

func filterAttendance(window domain.Window, records []*domain.AttendanceRecord) []*domain.AttendanceRecord {
	out := make([]*domain.AttendanceRecord, 0, len(records))
	for _, r := range records {
		if r != nil && (window.From.IsZero() || window.Contains(r.Date)) {
			out = append(out, r)
		}
	}
	return out
}
