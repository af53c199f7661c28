package risk

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tahfidz-hub/mizan/internal/domain"
)

func classifier() *Classifier {
	return NewClassifier(domain.DefaultAnalyticsConfig())
}

func penaltyNames(ps []domain.Penalty) []string {
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = p.Name
	}
	return names
}

func TestAssess_Bands(t *testing.T) {
	tests := []struct {
		name       string
		attendance float64
		academic   float64
		overall    int
		category   domain.RiskCategory
	}{
		{"all fifty", 50, 50, 50, domain.RiskHigh},
		{"perfect", 100, 100, 100, domain.RiskLow},
		{"exactly low boundary", 80, 80, 80, domain.RiskLow},
		{"medium", 70, 65, 67, domain.RiskMedium},
		{"rounding", 61, 59, 60, domain.RiskMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := classifier().Assess(Input{AttendanceRate: tt.attendance, AcademicAverage: tt.academic})
			assert.Equal(t, tt.overall, a.OverallScore)
			assert.Equal(t, tt.category, a.Category)
		})
	}
}

func TestAssess_Penalties(t *testing.T) {
	t.Run("none fire for a strong student", func(t *testing.T) {
		a := classifier().Assess(Input{AttendanceRate: 95, AcademicAverage: 90, Grades: []float64{88, 90, 92}})
		assert.Empty(t, a.Penalties)
		assert.Equal(t, 0, a.DropoutRiskScore)
		assert.Empty(t, a.RecommendedActions)
	})

	t.Run("moderate bands", func(t *testing.T) {
		a := classifier().Assess(Input{AttendanceRate: 80, AcademicAverage: 70})
		assert.Equal(t, []string{PenaltyAttendanceLow, PenaltyAcademicLow}, penaltyNames(a.Penalties))
		assert.Equal(t, 25, a.DropoutRiskScore)
		assert.Len(t, a.RecommendedActions, 2)
	})

	t.Run("steep decline", func(t *testing.T) {
		a := classifier().Assess(Input{AttendanceRate: 60, AcademicAverage: 55, Grades: []float64{90, 80, 70, 60}})
		assert.Equal(t, []string{PenaltyAttendanceCritical, PenaltyAcademicCritical, PenaltyGradeSteepDecline}, penaltyNames(a.Penalties))
		assert.Equal(t, 75, a.DropoutRiskScore)
		assert.Equal(t, domain.TrendDeclining, a.GradeTrend)
		assert.InDelta(t, -10, a.GradeSlope, 1e-9)
	})

	t.Run("mild decline", func(t *testing.T) {
		a := classifier().Assess(Input{AttendanceRate: 90, AcademicAverage: 85, Grades: []float64{90, 88.5, 87}})
		assert.Equal(t, []string{PenaltyGradeDecline}, penaltyNames(a.Penalties))
		assert.Equal(t, 10, a.DropoutRiskScore)
	})
}

func TestAssess_MissingStreams(t *testing.T) {
	t.Run("attendance only", func(t *testing.T) {
		a := classifier().Assess(Input{AttendanceRate: 100, Attendance: []float64{100}, NoGrades: true})
		assert.Equal(t, 100, a.OverallScore)
		assert.Equal(t, domain.RiskLow, a.Category)
		assert.Empty(t, a.Penalties)
		assert.Equal(t, 0, a.DropoutRiskScore)
		assert.True(t, a.NoGrades)
		assert.False(t, a.NoAttendance)
	})

	t.Run("poor attendance still counts without grades", func(t *testing.T) {
		a := classifier().Assess(Input{AttendanceRate: 50, NoGrades: true})
		assert.Equal(t, 50, a.OverallScore)
		assert.Equal(t, domain.RiskHigh, a.Category)
		assert.Equal(t, []string{PenaltyAttendanceCritical}, penaltyNames(a.Penalties))
		assert.Equal(t, 30, a.DropoutRiskScore)
	})

	t.Run("grades only", func(t *testing.T) {
		a := classifier().Assess(Input{AcademicAverage: 72, Grades: []float64{72}, NoAttendance: true})
		assert.Equal(t, 72, a.OverallScore)
		assert.Equal(t, domain.RiskMedium, a.Category)
		assert.Equal(t, []string{PenaltyAcademicLow}, penaltyNames(a.Penalties))
		assert.True(t, a.NoAttendance)
	})
}

func TestAssess_Prediction(t *testing.T) {
	a := classifier().Assess(Input{AttendanceRate: 90, AcademicAverage: 80, Grades: []float64{70, 80, 90}})
	assert.InDelta(t, 100, a.PredictedNextValue, 1e-9)

	a = classifier().Assess(Input{AttendanceRate: 90, AcademicAverage: 80, Grades: []float64{96, 98, 100}})
	assert.Equal(t, 100.0, a.PredictedNextValue, "prediction is clamped")

	a = classifier().Assess(Input{AttendanceRate: 90, AcademicAverage: 77})
	assert.Equal(t, 77.0, a.PredictedNextValue, "no grades falls back to the average")
}

func TestAssess_BoundsUnderRandomInput(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	c := classifier()

	for i := 0; i < 500; i++ {
		grades := make([]float64, rng.Intn(12))
		for j := range grades {
			grades[j] = rng.Float64()*300 - 100
		}
		in := Input{
			AttendanceRate:  rng.Float64()*300 - 100,
			AcademicAverage: rng.Float64()*300 - 100,
			Grades:          grades,
		}

		a := c.Assess(in)
		require.GreaterOrEqual(t, a.OverallScore, 0)
		require.LessOrEqual(t, a.OverallScore, 100)
		require.GreaterOrEqual(t, a.DropoutRiskScore, 0)
		require.LessOrEqual(t, a.DropoutRiskScore, 100)
		require.GreaterOrEqual(t, a.PredictedNextValue, 0.0)
		require.LessOrEqual(t, a.PredictedNextValue, 100.0)
	}
}

func TestAttendanceRate(t *testing.T) {
	day := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	records := []*domain.AttendanceRecord{
		{Date: day, Status: domain.AttendancePresent},
		{Date: day.AddDate(0, 0, 1), Status: domain.AttendanceLate},
		{Date: day.AddDate(0, 0, 2), Status: domain.AttendanceAbsent},
		{Date: day.AddDate(0, 0, 3), Status: domain.AttendanceSick},
	}

	assert.Equal(t, 50.0, AttendanceRate(records))
	assert.Equal(t, 0.0, AttendanceRate(nil))
}

func TestWeeklyAttendance(t *testing.T) {
	now := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	w := domain.TrailingWindow(now, 21)
	at := func(daysAgo int, s domain.AttendanceStatus) *domain.AttendanceRecord {
		return &domain.AttendanceRecord{Date: now.AddDate(0, 0, -daysAgo), Status: s}
	}

	series := WeeklyAttendance(w, []*domain.AttendanceRecord{
		at(20, domain.AttendancePresent),
		at(19, domain.AttendanceAbsent),
		// second week has no records
		at(3, domain.AttendancePresent),
		at(2, domain.AttendancePresent),
		at(40, domain.AttendanceAbsent),
	})

	assert.Equal(t, []float64{50, 100}, series)
	assert.Nil(t, WeeklyAttendance(w, nil))
}
