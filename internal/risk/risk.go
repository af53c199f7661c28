// Package risk classifies a student's overall performance and accumulates an
// auditable dropout-risk score from named penalties.
package risk

import (
	"math"

	"github.com/tahfidz-hub/mizan/internal/domain"
	"github.com/tahfidz-hub/mizan/internal/trend"
)

// Weights of the overall score.
const (
	AcademicWeight   = 0.6
	AttendanceWeight = 0.4
)

// Category bands of the overall score.
const (
	LowRiskMin    = 80
	MediumRiskMin = 60
)

// SteepDeclineSlope is the grade slope below which a decline is steep.
const SteepDeclineSlope = -2.0

// Penalty names. Each maps to exactly one recommendation.
const (
	PenaltyAttendanceCritical = "attendance_critical"
	PenaltyAttendanceLow      = "attendance_low"
	PenaltyAcademicCritical   = "academic_critical"
	PenaltyAcademicLow        = "academic_low"
	PenaltyGradeSteepDecline  = "grade_steep_decline"
	PenaltyGradeDecline       = "grade_decline"
)

var recommendations = map[string]string{
	PenaltyAttendanceCritical: "Contact the guardian about frequent absences",
	PenaltyAttendanceLow:      "Monitor attendance closely this month",
	PenaltyAcademicCritical:   "Arrange intensive muraja'ah with the musyrif",
	PenaltyAcademicLow:        "Add a weekly review session",
	PenaltyGradeSteepDecline:  "Review the student's recent submissions with the musyrif",
	PenaltyGradeDecline:       "Check in with the student about recent study habits",
}

// Input is what the classifier needs about one student.
type Input struct {
	StudentID       string
	Window          domain.Window
	AttendanceRate  float64
	AcademicAverage float64

	// Grades and Attendance are oldest first. They drive the trends and the
	// prediction; either may be empty.
	Grades     []float64
	Attendance []float64

	// NoGrades and NoAttendance mark a stream with no records in the window.
	// A missing stream is left out of the overall score and raises no
	// penalties; its rate or average above is ignored.
	NoGrades     bool
	NoAttendance bool
}

// Classifier computes RiskAssessments. It holds configuration only.
type Classifier struct {
	GradeThreshold      float64
	AttendanceThreshold float64
	Lookahead           int
}

// NewClassifier creates a classifier from the analytics configuration.
func NewClassifier(cfg domain.AnalyticsConfig) *Classifier {
	c := &Classifier{
		GradeThreshold:      cfg.GradeTrendThreshold,
		AttendanceThreshold: cfg.AttendanceTrendThreshold,
		Lookahead:           cfg.LookaheadPeriods,
	}
	if c.Lookahead <= 0 {
		c.Lookahead = 1
	}
	return c
}

// OverallScore weighs academic average and attendance rate into 0..100.
func OverallScore(academicAverage, attendanceRate float64) int {
	score := math.Round(academicAverage*AcademicWeight + attendanceRate*AttendanceWeight)
	return int(clamp(score, 0, 100))
}

// CategoryFor bands an overall score.
func CategoryFor(overall int) domain.RiskCategory {
	switch {
	case overall >= LowRiskMin:
		return domain.RiskLow
	case overall >= MediumRiskMin:
		return domain.RiskMedium
	default:
		return domain.RiskHigh
	}
}

// Assess classifies one student.
func (c *Classifier) Assess(in Input) domain.RiskAssessment {
	attendance := clamp(in.AttendanceRate, 0, 100)
	academic := clamp(in.AcademicAverage, 0, 100)

	grades := trend.Detect(in.Grades, c.GradeThreshold)
	att := trend.Detect(in.Attendance, c.AttendanceThreshold)

	var overall int
	switch {
	case in.NoGrades && !in.NoAttendance:
		overall = int(math.Round(attendance))
	case in.NoAttendance && !in.NoGrades:
		overall = int(math.Round(academic))
	default:
		overall = OverallScore(academic, attendance)
	}

	penalties := []domain.Penalty{}
	if !in.NoAttendance {
		penalties = append(penalties, attendancePenalties(attendance)...)
	}
	if !in.NoGrades {
		penalties = append(penalties, academicPenalties(academic, grades)...)
	}

	a := domain.RiskAssessment{
		StudentID:          in.StudentID,
		Window:             in.Window,
		AttendanceRate:     attendance,
		AcademicAverage:    academic,
		GradeTrend:         grades.Direction,
		GradeSlope:         grades.Slope,
		AttendanceTrend:    att.Direction,
		OverallScore:       overall,
		Category:           CategoryFor(overall),
		NoGrades:           in.NoGrades,
		NoAttendance:       in.NoAttendance,
		Penalties:          penalties,
		RecommendedActions: []string{},
	}

	var sum int
	seen := make(map[string]bool)
	for _, p := range a.Penalties {
		sum += p.Points
		if rec := recommendations[p.Name]; rec != "" && !seen[rec] {
			seen[rec] = true
			a.RecommendedActions = append(a.RecommendedActions, rec)
		}
	}
	a.DropoutRiskScore = int(clamp(float64(sum), 0, 100))
	a.PredictedNextValue = c.predict(in.Grades, grades.Slope, academic)

	return a
}

// Penalties returns every penalty rule that fires. Rules are independent, so
// the dropout score is their plain sum.
func Penalties(attendance, academic float64, grades trend.Result) []domain.Penalty {
	penalties := []domain.Penalty{}
	penalties = append(penalties, attendancePenalties(attendance)...)
	return append(penalties, academicPenalties(academic, grades)...)
}

func attendancePenalties(attendance float64) []domain.Penalty {
	switch {
	case attendance < 70:
		return []domain.Penalty{{Name: PenaltyAttendanceCritical, Points: 30, Reason: "attendance below 70%"}}
	case attendance < 85:
		return []domain.Penalty{{Name: PenaltyAttendanceLow, Points: 15, Reason: "attendance between 70% and 84%"}}
	}
	return nil
}

func academicPenalties(academic float64, grades trend.Result) []domain.Penalty {
	var penalties []domain.Penalty

	switch {
	case academic < 60:
		penalties = append(penalties, domain.Penalty{Name: PenaltyAcademicCritical, Points: 25, Reason: "academic average below 60"})
	case academic < 75:
		penalties = append(penalties, domain.Penalty{Name: PenaltyAcademicLow, Points: 10, Reason: "academic average between 60 and 74"})
	}

	switch {
	case grades.Slope < SteepDeclineSlope:
		penalties = append(penalties, domain.Penalty{Name: PenaltyGradeSteepDecline, Points: 20, Reason: "grades declining steeply"})
	case grades.Direction == domain.TrendDeclining:
		penalties = append(penalties, domain.Penalty{Name: PenaltyGradeDecline, Points: 10, Reason: "grades declining"})
	}

	return penalties
}

// predict projects the most recent grade forward. Without grades the current
// average is the best guess.
func (c *Classifier) predict(grades []float64, slope, fallback float64) float64 {
	if len(grades) == 0 {
		return fallback
	}
	last := grades[len(grades)-1]
	return clamp(last+slope*float64(c.Lookahead), 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
