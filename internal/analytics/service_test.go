package analytics

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/tahfidz-hub/mizan/internal/cache"
	"github.com/tahfidz-hub/mizan/internal/domain"
	"github.com/tahfidz-hub/mizan/internal/insight"
	"github.com/tahfidz-hub/mizan/internal/repository"
)

const school = "school-001"

var now = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func grade(v float64) *float64 { return &v }

func newTestService(t *testing.T) (*Service, *repository.SQLRepository) {
	t.Helper()
	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "analytics.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	svc := NewService(repo, cache.NewLRUCache(100), insight.New(domain.DefaultAnalyticsConfig()), time.Minute, nil)
	svc.now = func() time.Time { return now }
	return svc, repo
}

func seed(t *testing.T, repo *repository.SQLRepository) {
	t.Helper()
	ctx := context.Background()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}

	must(repo.SaveGroup(ctx, school, &domain.Group{ID: "g1", Name: "Al-Fatih", Capacity: 4}))
	must(repo.SaveUnit(ctx, school, &domain.Unit{ID: "114", Name: "An-Nas", TotalSubUnits: 6}))
	must(repo.SaveStudent(ctx, school, &domain.Student{ID: "s1", Name: "Ahmad", GroupID: "g1", Active: true, EnrolledAt: now.AddDate(-1, 0, 0)}))
	must(repo.SaveStudent(ctx, school, &domain.Student{ID: "s2", Name: "Bilal", GroupID: "g1", Active: true, EnrolledAt: now.AddDate(-1, 0, 0)}))
	must(repo.SaveStudent(ctx, school, &domain.Student{ID: "s3", Name: "Umar", GroupID: "g1", Active: false, EnrolledAt: now.AddDate(-1, 0, 0)}))

	// Ahmad: full unit at 95, present every day of the last ten.
	must(repo.SaveMemorization(ctx, school, &domain.MemorizationRecord{
		ID: "m1", StudentID: "s1", UnitID: "114", RangeStart: 1, RangeEnd: 6,
		Type: domain.SubmissionNew, Status: domain.SubmissionApproved, Grade: grade(95), Timestamp: now.AddDate(0, 0, -3),
	}))
	for i := 1; i <= 10; i++ {
		must(repo.SaveAttendance(ctx, school, &domain.AttendanceRecord{
			ID: fmt.Sprintf("a1-%d", i), StudentID: "s1", Date: now.AddDate(0, 0, -i), Status: domain.AttendancePresent,
		}))
	}

	// Bilal: weak grade, absent half the time.
	must(repo.SaveMemorization(ctx, school, &domain.MemorizationRecord{
		ID: "m2", StudentID: "s2", UnitID: "114", RangeStart: 1, RangeEnd: 2,
		Type: domain.SubmissionNew, Status: domain.SubmissionApproved, Grade: grade(40), Timestamp: now.AddDate(0, 0, -2),
	}))
	for i := 1; i <= 4; i++ {
		st := domain.AttendancePresent
		if i%2 == 0 {
			st = domain.AttendanceAbsent
		}
		must(repo.SaveAttendance(ctx, school, &domain.AttendanceRecord{
			ID: fmt.Sprintf("a2-%d", i), StudentID: "s2", Date: now.AddDate(0, 0, -i), Status: st,
		}))
	}
}

func TestStudentInsight(t *testing.T) {
	svc, repo := newTestService(t)
	seed(t, repo)
	ctx := context.Background()

	got, err := svc.StudentInsight(ctx, school, "s1", 30)
	if err != nil {
		t.Fatalf("StudentInsight failed: %v", err)
	}
	if got.InsufficientData {
		t.Fatal("expected data for s1")
	}
	if got.Risk.AttendanceRate != 100 || got.Risk.AcademicAverage != 95 || got.Risk.Category != domain.RiskLow {
		t.Errorf("unexpected risk %+v", got.Risk)
	}
	if len(got.Progress) != 1 || got.Progress[0].Status != domain.MasteryMastered {
		t.Errorf("expected An-Nas mastered, got %+v", got.Progress)
	}

	t.Run("ServedFromCache", func(t *testing.T) {
		_ = repo.SaveAttendance(ctx, school, &domain.AttendanceRecord{ID: "late-absence", StudentID: "s1", Date: now.Add(-time.Hour), Status: domain.AttendanceAbsent})

		again, _ := svc.StudentInsight(ctx, school, "s1", 30)
		if again.Risk.AttendanceRate != 100 {
			t.Errorf("expected cached insight, got attendance %.1f", again.Risk.AttendanceRate)
		}

		svc.Invalidate(ctx, school, "s1", "g1")
		fresh, _ := svc.StudentInsight(ctx, school, "s1", 30)
		if fresh.Risk.AttendanceRate >= 100 {
			t.Errorf("expected recomputed attendance below 100, got %.1f", fresh.Risk.AttendanceRate)
		}
	})

	t.Run("Projections", func(t *testing.T) {
		b, err := svc.StudentBehavior(ctx, school, "s1", 30)
		if err != nil || b.BehaviorScore != 50 {
			t.Errorf("StudentBehavior = %+v, %v", b, err)
		}
		p, err := svc.StudentProgress(ctx, school, "s1")
		if err != nil || len(p) != 1 {
			t.Errorf("StudentProgress = %d snapshots, %v", len(p), err)
		}
		r, err := svc.StudentRisk(ctx, school, "s2", 30)
		if err != nil || r.Category != domain.RiskHigh {
			t.Errorf("expected s2 at high risk, got %+v, %v", r.Category, err)
		}
	})

	t.Run("MissingStudent", func(t *testing.T) {
		_, err := svc.StudentInsight(ctx, school, "ghost", 30)
		if !errors.Is(err, domain.ErrMissingEntity) {
			t.Errorf("expected ErrMissingEntity, got %v", err)
		}
	})

	t.Run("NoRecords", func(t *testing.T) {
		_ = repo.SaveStudent(ctx, school, &domain.Student{ID: "s9", Name: "Zaid", Active: true, EnrolledAt: now})
		got, err := svc.StudentInsight(ctx, school, "s9", 7)
		if err != nil {
			t.Fatalf("StudentInsight failed: %v", err)
		}
		if !got.InsufficientData {
			t.Error("expected InsufficientData for a student with no records")
		}
	})
}

func TestClassInsight(t *testing.T) {
	svc, repo := newTestService(t)
	seed(t, repo)

	got, err := svc.ClassInsight(context.Background(), school, "g1", 30)
	if err != nil {
		t.Fatalf("ClassInsight failed: %v", err)
	}
	if got.StudentCount != 2 {
		t.Errorf("expected the two active members, got %d", got.StudentCount)
	}
	if len(got.TopPerformers) != 1 || got.TopPerformers[0].StudentID != "s1" {
		t.Errorf("expected s1 on top, got %+v", got.TopPerformers)
	}
	if len(got.NeedsAttention) != 1 || got.NeedsAttention[0].StudentID != "s2" {
		t.Errorf("expected s2 to need attention, got %+v", got.NeedsAttention)
	}

	if _, err := svc.ClassInsight(context.Background(), school, "nope", 30); !errors.Is(err, domain.ErrMissingEntity) {
		t.Errorf("expected ErrMissingEntity, got %v", err)
	}
}

func TestSingleStreamStudents(t *testing.T) {
	svc, repo := newTestService(t)
	seed(t, repo)
	ctx := context.Background()

	// Khalid: present six days running, nothing memorized yet.
	_ = repo.SaveStudent(ctx, school, &domain.Student{ID: "s4", Name: "Khalid", GroupID: "g1", Active: true, EnrolledAt: now.AddDate(0, -1, 0)})
	for i := 1; i <= 6; i++ {
		_ = repo.SaveAttendance(ctx, school, &domain.AttendanceRecord{
			ID: fmt.Sprintf("a4-%d", i), StudentID: "s4", Date: now.AddDate(0, 0, -i), Status: domain.AttendancePresent,
		})
	}
	// Salman: one graded submission, no attendance taken.
	_ = repo.SaveStudent(ctx, school, &domain.Student{ID: "s5", Name: "Salman", GroupID: "g1", Active: true, EnrolledAt: now.AddDate(0, -1, 0)})
	_ = repo.SaveMemorization(ctx, school, &domain.MemorizationRecord{
		ID: "m5", StudentID: "s5", UnitID: "114", RangeStart: 1, RangeEnd: 3,
		Type: domain.SubmissionNew, Status: domain.SubmissionApproved, Grade: grade(88), Timestamp: now.AddDate(0, 0, -1),
	})

	t.Run("AttendanceOnly", func(t *testing.T) {
		got, err := svc.StudentRisk(ctx, school, "s4", 7)
		if err != nil {
			t.Fatalf("StudentRisk failed: %v", err)
		}
		if !got.NoGrades || got.NoAttendance {
			t.Errorf("expected only grades marked missing, got %+v", got)
		}
		if got.OverallScore != 100 || got.Category != domain.RiskLow {
			t.Errorf("expected 100/LOW from attendance alone, got %d/%s", got.OverallScore, got.Category)
		}
		if got.DropoutRiskScore != 0 || len(got.Penalties) != 0 {
			t.Errorf("expected no penalties, got %+v", got.Penalties)
		}
	})

	t.Run("GradesOnly", func(t *testing.T) {
		got, err := svc.StudentRisk(ctx, school, "s5", 7)
		if err != nil {
			t.Fatalf("StudentRisk failed: %v", err)
		}
		if got.NoGrades || !got.NoAttendance {
			t.Errorf("expected only attendance marked missing, got %+v", got)
		}
		if got.OverallScore != 88 || got.Category != domain.RiskLow || len(got.Penalties) != 0 {
			t.Errorf("expected 88/LOW without penalties, got %d/%s %+v", got.OverallScore, got.Category, got.Penalties)
		}
	})

	t.Run("ClassRanking", func(t *testing.T) {
		got, err := svc.ClassInsight(ctx, school, "g1", 7)
		if err != nil {
			t.Fatalf("ClassInsight failed: %v", err)
		}
		for _, r := range got.NeedsAttention {
			if r.StudentID == "s4" || r.StudentID == "s5" {
				t.Errorf("single-stream student %s should not need attention: %+v", r.StudentID, r)
			}
		}
		if len(got.TopPerformers) == 0 || got.TopPerformers[0].StudentID != "s4" || got.TopPerformers[0].Composite != 100 {
			t.Errorf("expected s4 on top at 100, got %+v", got.TopPerformers)
		}
	})
}

func TestSystemInsight(t *testing.T) {
	svc, repo := newTestService(t)
	seed(t, repo)
	ctx := context.Background()
	_ = repo.SavePayment(ctx, school, &domain.PaymentRecord{
		ID: "p1", StudentID: "s2", Amount: 300000, DueDate: now.AddDate(0, 0, -5), Status: domain.PaymentPending,
	})

	got, err := svc.SystemInsight(ctx, school, 30)
	if err != nil {
		t.Fatalf("SystemInsight failed: %v", err)
	}
	if got.TotalStudents != 3 || got.ActiveStudents != 2 || got.OverduePayments != 1 {
		t.Errorf("unexpected counts %+v", got)
	}
	if len(got.MonthlyTrend) != insight.MonthlyPoints || got.MonthlyTrend[5].Month != "2026-10" {
		t.Errorf("unexpected monthly trend %+v", got.MonthlyTrend)
	}
}

func TestMetricsSkipsInactive(t *testing.T) {
	students := []*domain.Student{
		{ID: "a", Name: "A", Active: true},
		{ID: "b", Name: "B", Active: false},
	}
	att := []*domain.AttendanceRecord{
		{StudentID: "a", Status: domain.AttendancePresent},
		{StudentID: "a", Status: domain.AttendanceAbsent},
	}
	got := Metrics(students, att, nil)
	if len(got) != 1 || got[0].AttendanceRate != 50 || got[0].AverageGrade != 0 {
		t.Errorf("unexpected metrics %+v", got)
	}
	if !got[0].NoGrades || got[0].NoAttendance {
		t.Errorf("expected grades marked missing, got %+v", got[0])
	}
}

func TestMetricsMarksMissingAttendance(t *testing.T) {
	students := []*domain.Student{{ID: "a", Name: "A", Active: true}, {ID: "b", Name: "B", Active: true}}
	mem := []*domain.MemorizationRecord{
		{StudentID: "a", Status: domain.SubmissionApproved, Grade: grade(80)},
		{StudentID: "b", Status: domain.SubmissionPending},
	}

	got := Metrics(students, nil, mem)
	if len(got) != 2 {
		t.Fatalf("expected two metrics, got %d", len(got))
	}
	if got[0].NoGrades || !got[0].NoAttendance || got[0].AverageGrade != 80 {
		t.Errorf("unexpected metrics for a %+v", got[0])
	}
	if !got[1].NoGrades || !got[1].NoAttendance {
		t.Errorf("an ungraded submission should leave b without grades, got %+v", got[1])
	}
}

func TestWindowDefault(t *testing.T) {
	svc, _ := newTestService(t)
	w := svc.Window(0)
	if w.Days != 30 || !w.To.Equal(now) {
		t.Errorf("unexpected default window %+v", w)
	}
}
