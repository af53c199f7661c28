// Package analytics is the application service in front of the pure
// analytics packages: it pulls records through the repository, runs the
// synthesizer and caches what it derives.
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tahfidz-hub/mizan/internal/cache"
	"github.com/tahfidz-hub/mizan/internal/domain"
	"github.com/tahfidz-hub/mizan/internal/insight"
	"github.com/tahfidz-hub/mizan/internal/progress"
	"github.com/tahfidz-hub/mizan/internal/risk"
)

// Service computes insights on demand.
type Service struct {
	repo   domain.Repository
	cache  domain.Cache
	synth  *insight.Synthesizer
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	// window lengths served since start, so invalidation can reach them
	daysMu sync.Mutex
	days   map[int]struct{}
}

// NewService creates the analytics service. A nil cache disables caching.
func NewService(repo domain.Repository, c domain.Cache, synth *insight.Synthesizer, ttl time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Service{
		repo:   repo,
		cache:  c,
		synth:  synth,
		ttl:    ttl,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		days:   map[int]struct{}{synth.Config().WindowDays: {}},
	}
}

// Synthesizer returns the synthesizer the service runs.
func (s *Service) Synthesizer() *insight.Synthesizer {
	return s.synth
}

// Window returns the trailing window of the given length ending now. A
// non-positive length selects the configured default.
func (s *Service) Window(days int) domain.Window {
	if days <= 0 {
		days = s.synth.Config().WindowDays
	}
	return domain.TrailingWindow(s.now(), days)
}

// StudentInsight returns the insight of one student.
func (s *Service) StudentInsight(ctx context.Context, schoolID, studentID string, days int) (domain.StudentInsight, error) {
	window := s.Window(days)
	key := cache.InsightKey(cache.ScopeStudent, studentID, window.Days)

	return cached(ctx, s, schoolID, key, window.Days, func() (domain.StudentInsight, error) {
		student, err := s.repo.GetStudent(ctx, schoolID, studentID)
		if err != nil {
			return domain.StudentInsight{}, err
		}
		return s.Digest(ctx, schoolID, student, window)
	})
}

// Digest computes the insight of student over window without the cache.
// The worker uses it for monthly reports.
func (s *Service) Digest(ctx context.Context, schoolID string, student *domain.Student, window domain.Window) (domain.StudentInsight, error) {
	in, err := s.studentRecords(ctx, schoolID, student, window)
	if err != nil {
		return domain.StudentInsight{}, err
	}
	return s.synth.Student(window, in), nil
}

// StudentProgress returns the cumulative unit progress of one student.
func (s *Service) StudentProgress(ctx context.Context, schoolID, studentID string) ([]domain.ProgressSnapshot, error) {
	in, err := s.StudentInsight(ctx, schoolID, studentID, 0)
	if err != nil {
		return nil, err
	}
	return in.Progress, nil
}

// StudentBehavior returns the behavior summary of one student.
func (s *Service) StudentBehavior(ctx context.Context, schoolID, studentID string, days int) (domain.BehaviorSummary, error) {
	in, err := s.StudentInsight(ctx, schoolID, studentID, days)
	if err != nil {
		return domain.BehaviorSummary{}, err
	}
	return in.Behavior, nil
}

// StudentRisk returns the risk assessment of one student.
func (s *Service) StudentRisk(ctx context.Context, schoolID, studentID string, days int) (domain.RiskAssessment, error) {
	in, err := s.StudentInsight(ctx, schoolID, studentID, days)
	if err != nil {
		return domain.RiskAssessment{}, err
	}
	return in.Risk, nil
}

func (s *Service) studentRecords(ctx context.Context, schoolID string, student *domain.Student, window domain.Window) (insight.StudentRecords, error) {
	in := insight.StudentRecords{Student: *student}
	inWindow := domain.RecordFilter{StudentID: student.ID, From: window.From, To: window.To}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		in.Units, err = s.repo.ListUnits(gctx, schoolID)
		return err
	})
	g.Go(func() (err error) {
		// Progress is cumulative, so memorization is read up to the window end.
		in.Memorization, err = s.repo.ListMemorization(gctx, schoolID, domain.RecordFilter{StudentID: student.ID, To: window.To})
		return err
	})
	g.Go(func() (err error) {
		in.Attendance, err = s.repo.ListAttendance(gctx, schoolID, inWindow)
		return err
	})
	g.Go(func() (err error) {
		in.Behavior, err = s.repo.ListBehavior(gctx, schoolID, inWindow)
		return err
	})
	if err := g.Wait(); err != nil {
		return in, fmt.Errorf("load records of student %s: %w", student.ID, err)
	}
	return in, nil
}

// ClassInsight returns the insight of one halaqah. Every active member is
// counted; members with no records in the window are left out of the ranking.
func (s *Service) ClassInsight(ctx context.Context, schoolID, groupID string, days int) (domain.ClassInsight, error) {
	window := s.Window(days)
	key := cache.InsightKey(cache.ScopeGroup, groupID, window.Days)

	return cached(ctx, s, schoolID, key, window.Days, func() (domain.ClassInsight, error) {
		group, err := s.repo.GetGroup(ctx, schoolID, groupID)
		if err != nil {
			return domain.ClassInsight{}, err
		}

		var (
			students   []*domain.Student
			attendance []*domain.AttendanceRecord
			mem        []*domain.MemorizationRecord
		)
		f := domain.RecordFilter{GroupID: groupID, From: window.From, To: window.To}
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			students, err = s.repo.ListStudents(gctx, schoolID, groupID)
			return err
		})
		g.Go(func() (err error) {
			attendance, err = s.repo.ListAttendance(gctx, schoolID, f)
			return err
		})
		g.Go(func() (err error) {
			mem, err = s.repo.ListMemorization(gctx, schoolID, f)
			return err
		})
		if err := g.Wait(); err != nil {
			return domain.ClassInsight{}, fmt.Errorf("load records of group %s: %w", groupID, err)
		}

		return s.synth.Class(window, *group, Metrics(students, attendance, mem)), nil
	})
}

// Metrics derives the per-student class inputs of the active students.
func Metrics(students []*domain.Student, attendance []*domain.AttendanceRecord, mem []*domain.MemorizationRecord) []domain.StudentMetrics {
	attBy := make(map[string][]*domain.AttendanceRecord)
	for _, r := range attendance {
		attBy[r.StudentID] = append(attBy[r.StudentID], r)
	}
	memBy := make(map[string][]*domain.MemorizationRecord)
	for _, r := range mem {
		memBy[r.StudentID] = append(memBy[r.StudentID], r)
	}

	metrics := make([]domain.StudentMetrics, 0, len(students))
	for _, st := range students {
		if !st.Active {
			continue
		}
		metrics = append(metrics, domain.StudentMetrics{
			StudentID:      st.ID,
			Name:           st.Name,
			AverageGrade:   progress.AverageGrade(memBy[st.ID]),
			AttendanceRate: risk.AttendanceRate(attBy[st.ID]),
			NoGrades:       len(progress.GradeSeries(memBy[st.ID])) == 0,
			NoAttendance:   len(attBy[st.ID]) == 0,
		})
	}
	return metrics
}

// SystemInsight returns the school-wide insight.
func (s *Service) SystemInsight(ctx context.Context, schoolID string, days int) (domain.SystemInsight, error) {
	window := s.Window(days)
	key := cache.InsightKey(cache.ScopeSystem, schoolID, window.Days)

	return cached(ctx, s, schoolID, key, window.Days, func() (domain.SystemInsight, error) {
		in := insight.SchoolRecords{SchoolID: schoolID}

		// Records back to the first monthly trend point, or the window start
		// when that is earlier.
		y, m, _ := window.To.Date()
		from := time.Date(y, m-time.Month(insight.MonthlyPoints-1), 1, 0, 0, 0, 0, time.UTC)
		if window.From.Before(from) {
			from = window.From
		}
		f := domain.RecordFilter{From: from, To: window.To}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			in.Students, err = s.repo.ListStudents(gctx, schoolID, "")
			return err
		})
		g.Go(func() (err error) {
			in.Groups, err = s.repo.ListGroups(gctx, schoolID)
			return err
		})
		g.Go(func() (err error) {
			in.Attendance, err = s.repo.ListAttendance(gctx, schoolID, f)
			return err
		})
		g.Go(func() (err error) {
			in.Memorization, err = s.repo.ListMemorization(gctx, schoolID, f)
			return err
		})
		g.Go(func() (err error) {
			in.Payments, err = s.repo.ListPayments(gctx, schoolID, domain.RecordFilter{To: window.To})
			return err
		})
		if err := g.Wait(); err != nil {
			return domain.SystemInsight{}, fmt.Errorf("load records of school %s: %w", schoolID, err)
		}

		return s.synth.System(window, in), nil
	})
}

// Invalidate drops the cached insights a new record of studentID affects.
// groupID may be empty when unknown.
func (s *Service) Invalidate(ctx context.Context, schoolID, studentID, groupID string) {
	if s.cache == nil {
		return
	}

	s.daysMu.Lock()
	days := make([]int, 0, len(s.days))
	for d := range s.days {
		days = append(days, d)
	}
	s.daysMu.Unlock()

	errs := []error{
		cache.Invalidate(ctx, s.cache, schoolID, cache.ScopeSystem, schoolID, days...),
	}
	if studentID != "" {
		errs = append(errs, cache.Invalidate(ctx, s.cache, schoolID, cache.ScopeStudent, studentID, days...))
	}
	if groupID != "" {
		errs = append(errs, cache.Invalidate(ctx, s.cache, schoolID, cache.ScopeGroup, groupID, days...))
	}
	for _, err := range errs {
		if err != nil {
			s.logger.Warn("insight invalidation failed",
				"school_id", schoolID,
				"student_id", studentID,
				"error", err,
			)
		}
	}
}

func (s *Service) remember(days int) {
	s.daysMu.Lock()
	s.days[days] = struct{}{}
	s.daysMu.Unlock()
}

// cached serves key from the cache or computes, stores and returns it.
// Cache failures degrade to computing on every call.
func cached[T any](ctx context.Context, s *Service, schoolID, key string, days int, compute func() (T, error)) (T, error) {
	if s.cache == nil {
		return compute()
	}
	s.remember(days)

	if v, ok, err := cache.GetJSON[T](ctx, s.cache, schoolID, key); err != nil {
		s.logger.Warn("insight cache read failed", "school_id", schoolID, "key", key, "error", err)
	} else if ok {
		return v, nil
	}

	v, err := compute()
	if err != nil {
		return v, err
	}
	if err := cache.SetJSON(ctx, s.cache, schoolID, key, v, s.ttl); err != nil {
		s.logger.Warn("insight cache write failed", "school_id", schoolID, "key", key, "error", err)
	}
	return v, nil
}
