// Package scheduler publishes the time-driven domain events: the monthly
// report tick and the daily payment due-date scan.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tahfidz-hub/mizan/internal/automation"
	"github.com/tahfidz-hub/mizan/internal/bus"
	"github.com/tahfidz-hub/mizan/internal/domain"
)

// Scheduler runs the periodic jobs for a fixed set of schools.
type Scheduler struct {
	bus     domain.EventBus
	repo    domain.Repository
	rules   *automation.RuleStore
	cfg     domain.ScheduleConfig
	schools []string
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	lastRuns map[string]JobResult

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// JobResult is the outcome of the latest run of a job.
type JobResult struct {
	Job       string    `json:"job"`
	StartedAt time.Time `json:"startedAt"`
	Published int       `json:"published"`
	Error     string    `json:"error,omitempty"`
}

// Job names.
const (
	JobMonthlyTick = "monthly_tick"
	JobPaymentScan = "payment_scan"
)

// New creates a scheduler for schools.
func New(b domain.EventBus, repo domain.Repository, rules *automation.RuleStore, cfg domain.ScheduleConfig, schools []string, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PaymentScanEvery <= 0 {
		cfg.PaymentScanEvery = 24 * time.Hour
	}
	if cfg.MonthlyCheckEvery <= 0 {
		cfg.MonthlyCheckEvery = time.Hour
	}
	return &Scheduler{
		bus:      b,
		repo:     repo,
		rules:    rules,
		cfg:      cfg,
		schools:  schools,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		lastRuns: make(map[string]JobResult),
	}
}

// Start runs both jobs once and then on their intervals until Stop.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.loop(ctx, JobMonthlyTick, s.cfg.MonthlyCheckEvery, s.MonthlyTick)
	s.loop(ctx, JobPaymentScan, s.cfg.PaymentScanEvery, s.PaymentScan)

	s.logger.Info("scheduler started",
		"school_count", len(s.schools),
		"monthly_check_every", s.cfg.MonthlyCheckEvery.String(),
		"payment_scan_every", s.cfg.PaymentScanEvery.String(),
	)
}

func (s *Scheduler) loop(ctx context.Context, name string, every time.Duration, run func(context.Context) (int, error)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(every)
		defer ticker.Stop()

		for {
			s.runJob(ctx, name, run)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func (s *Scheduler) runJob(ctx context.Context, name string, run func(context.Context) (int, error)) {
	result := JobResult{Job: name, StartedAt: s.now()}
	n, err := run(ctx)
	result.Published = n
	if err != nil {
		result.Error = err.Error()
		s.logger.Error("scheduled job failed", "job", name, "published", n, "error", err)
	} else if n > 0 {
		s.logger.Info("scheduled job completed", "job", name, "published", n)
	}

	s.mu.Lock()
	s.lastRuns[name] = result
	s.mu.Unlock()
}

// Stop cancels the jobs and waits for a running one to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// LastRuns returns the latest result of every job that has run.
func (s *Scheduler) LastRuns() []JobResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobResult, 0, len(s.lastRuns))
	for _, name := range []string{JobMonthlyTick, JobPaymentScan} {
		if r, ok := s.lastRuns[name]; ok {
			out = append(out, r)
		}
	}
	return out
}

// MonthlyTick publishes the monthly_tick event of every school on the first
// day of a month. The event ID is derived from the month, so a replay on the
// same day is suppressed by the dispatch dedup ledger.
func (s *Scheduler) MonthlyTick(ctx context.Context) (int, error) {
	now := s.now()
	if now.Day() != 1 {
		return 0, nil
	}
	month := now.Format("2006-01")

	var published int
	var firstErr error
	for _, schoolID := range s.schools {
		ev := &domain.DomainEvent{
			ID:         MonthlyEventID(month),
			SchoolID:   schoolID,
			Kind:       domain.EventMonthlyTick,
			OccurredAt: now,
			Month:      month,
		}
		if err := bus.PublishEvent(ctx, s.bus, ev); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("publish monthly tick for %s: %w", schoolID, err)
			}
			continue
		}
		published++
	}
	return published, firstErr
}

// PaymentScan publishes a payment_due event for every unpaid payment due
// within the widest reminder horizon of the school's enabled payment rules.
// Schools without such rules are skipped.
func (s *Scheduler) PaymentScan(ctx context.Context) (int, error) {
	now := s.now()
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	var published int
	var firstErr error
	fail := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}

	for _, schoolID := range s.schools {
		horizon := automation.MaxDaysBefore(s.rules.Snapshot(schoolID))
		if horizon < 0 {
			continue
		}

		payments, err := s.repo.ListPayments(ctx, schoolID, domain.RecordFilter{
			From: today,
			To:   today.AddDate(0, 0, horizon+1),
		})
		if err != nil {
			fail(fmt.Errorf("list payments of %s: %w", schoolID, err))
			continue
		}

		for _, p := range payments {
			if p.Status == domain.PaymentPaid || p.PaidAt != nil {
				continue
			}
			ev := &domain.DomainEvent{
				ID:         PaymentEventID(p.ID, today),
				SchoolID:   schoolID,
				Kind:       domain.EventPaymentDue,
				StudentIDs: []string{p.StudentID},
				OccurredAt: now,
				Payment:    p,
			}
			if err := bus.PublishEvent(ctx, s.bus, ev); err != nil {
				fail(fmt.Errorf("publish payment due %s: %w", p.ID, err))
				continue
			}
			published++
		}
	}
	return published, firstErr
}

// MonthlyEventID is the event ID of the monthly tick of month (YYYY-MM).
func MonthlyEventID(month string) string {
	return "monthly:" + month
}

// PaymentEventID is the event ID of the reminder of a payment on day. One
// reminder per payment per day reaches the dedup ledger.
func PaymentEventID(paymentID string, day time.Time) string {
	return "payment:" + paymentID + ":" + day.Format("2006-01-02")
}
