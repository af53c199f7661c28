package insight

import (
	"fmt"
	"sort"

	"github.com/tahfidz-hub/mizan/internal/domain"
)

// Class ranking and recommendation thresholds.
const (
	GradeWeight      = 0.7
	AttendanceWeight = 0.3

	TopPerformerMin   = 80.0
	NeedsAttentionMax = 60.0
	RankedCount       = 3

	classPerformanceTarget = 70.0
	classAttendanceTarget  = 80.0
	minEnrollmentRate      = 50.0
)

// Composite is the class ranking score of one student.
func Composite(averageGrade, attendanceRate float64) float64 {
	return averageGrade*GradeWeight + attendanceRate*AttendanceWeight
}

// compositeOf scores m on the streams it has records for. A missing stream is
// left out rather than counted as zero; ok is false when both are missing.
func compositeOf(m domain.StudentMetrics) (score float64, ok bool) {
	switch {
	case m.NoGrades && m.NoAttendance:
		return 0, false
	case m.NoGrades:
		return m.AttendanceRate, true
	case m.NoAttendance:
		return m.AverageGrade, true
	default:
		return Composite(m.AverageGrade, m.AttendanceRate), true
	}
}

// Class builds the insight of one halaqah from per-student metrics. Students
// without any records in the window are counted but not ranked or averaged.
func (s *Synthesizer) Class(window domain.Window, group domain.Group, students []domain.StudentMetrics) domain.ClassInsight {
	insight := domain.ClassInsight{
		GroupID:         group.ID,
		GroupName:       group.Name,
		Window:          window,
		StudentCount:    len(students),
		Capacity:        group.Capacity,
		TopPerformers:   []domain.RankedStudent{},
		NeedsAttention:  []domain.RankedStudent{},
		Recommendations: []string{},
	}
	if group.Capacity > 0 {
		insight.EnrollmentRate = min(100, float64(len(students))/float64(group.Capacity)*100)
	}

	if len(students) == 0 {
		insight.InsufficientData = true
		if group.Capacity > 0 {
			insight.Recommendations = append(insight.Recommendations, "Consider recruitment: the halaqah has no active students")
		}
		return insight
	}

	ranked := make([]domain.RankedStudent, 0, len(students))
	var grades, attendance, composites []float64
	var unrecorded int
	for _, m := range students {
		composite, ok := compositeOf(m)
		if !ok {
			unrecorded++
			continue
		}
		r := domain.RankedStudent{
			StudentID:      m.StudentID,
			Name:           m.Name,
			AverageGrade:   m.AverageGrade,
			AttendanceRate: m.AttendanceRate,
			Composite:      round1(composite),
			NoGrades:       m.NoGrades,
			NoAttendance:   m.NoAttendance,
		}
		ranked = append(ranked, r)
		if !m.NoGrades {
			grades = append(grades, m.AverageGrade)
		}
		if !m.NoAttendance {
			attendance = append(attendance, m.AttendanceRate)
		}
		composites = append(composites, r.Composite)
	}
	insight.InsufficientData = len(ranked) == 0

	insight.AverageGrade = round1(mean(grades))
	insight.AverageAttendance = round1(mean(attendance))
	insight.AveragePerformance = round1(mean(composites))

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Composite != ranked[j].Composite {
			return ranked[i].Composite > ranked[j].Composite
		}
		return lessByName(ranked[i], ranked[j])
	})
	for _, r := range ranked {
		if r.Composite < TopPerformerMin || len(insight.TopPerformers) == RankedCount {
			break
		}
		insight.TopPerformers = append(insight.TopPerformers, r)
	}

	// Lowest first; ties keep name order at both ends.
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Composite != ranked[j].Composite {
			return ranked[i].Composite < ranked[j].Composite
		}
		return lessByName(ranked[i], ranked[j])
	})
	for _, r := range ranked {
		if r.Composite >= NeedsAttentionMax || len(insight.NeedsAttention) == RankedCount {
			break
		}
		insight.NeedsAttention = append(insight.NeedsAttention, r)
	}

	var recs []string
	if len(composites) > 0 && insight.AveragePerformance < classPerformanceTarget {
		recs = append(recs, fmt.Sprintf("Improve teaching method: class performance averages %.1f", insight.AveragePerformance))
	}
	if len(attendance) > 0 && insight.AverageAttendance < classAttendanceTarget {
		recs = append(recs, fmt.Sprintf("Follow up on attendance: the halaqah averages %s over %s", pct(insight.AverageAttendance), window.Label()))
	}
	if group.Capacity > 0 && insight.EnrollmentRate < minEnrollmentRate {
		recs = append(recs, fmt.Sprintf("Consider recruitment: %d of %d places filled", len(students), group.Capacity))
	}
	if n := len(insight.NeedsAttention); n > 0 {
		recs = append(recs, fmt.Sprintf("Give extra guidance to %d student(s) who need attention", n))
	}
	if unrecorded > 0 {
		recs = append(recs, fmt.Sprintf("Record attendance for %d student(s) with no records over %s", unrecorded, window.Label()))
	}
	insight.Recommendations = appendUnique(insight.Recommendations, recs...)

	return insight
}

func lessByName(a, b domain.RankedStudent) bool {
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	return a.StudentID < b.StudentID
}
