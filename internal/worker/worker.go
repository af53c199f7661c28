// Package worker runs the automation pipeline on domain events taken from the
// EventBus.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/tahfidz-hub/mizan/internal/analytics"
	"github.com/tahfidz-hub/mizan/internal/automation"
	"github.com/tahfidz-hub/mizan/internal/bus"
	"github.com/tahfidz-hub/mizan/internal/domain"
)

var tracer = otel.Tracer("mizan-worker")

// Worker evaluates automation rules for every event it receives and hands
// the resulting requests to the dispatcher.
type Worker struct {
	bus        domain.EventBus
	repo       domain.Repository
	engine     *automation.Engine
	dispatcher *automation.Dispatcher
	analytics  *analytics.Service
	logger     *slog.Logger
	now        func() time.Time

	recentAttendance int

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc

	handled    atomic.Int64
	failed     atomic.Int64
	dispatched atomic.Int64
}

// Config holds worker configuration.
type Config struct {
	// SchoolIDs is the list of schools to process.
	SchoolIDs []string

	// RecentAttendance is the minimum number of a student's latest attendance
	// records loaded for absence rules. Longer rule streaks raise it.
	RecentAttendance int
}

// Result is the outcome of handling one event.
type Result struct {
	EventID     string                    `json:"eventId"`
	Subjects    int                       `json:"subjects"`
	Evaluations []domain.RuleEvaluation   `json:"evaluations"`
	Dispatch    automation.DispatchReport `json:"dispatch"`
}

// NewWorker creates a new async worker. svc may be nil, in which case
// monthly digests are not computed and caches are not invalidated.
func NewWorker(b domain.EventBus, repo domain.Repository, engine *automation.Engine, dispatcher *automation.Dispatcher, svc *analytics.Service, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:              b,
		repo:             repo,
		engine:           engine,
		dispatcher:       dispatcher,
		analytics:        svc,
		logger:           logger,
		now:              func() time.Time { return time.Now().UTC() },
		recentAttendance: 14,
		ctx:              ctx,
		cancel:           cancel,
	}
}

// Start subscribes to every domain event topic of the given schools.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.SchoolIDs) == 0 {
		return fmt.Errorf("at least one school is required")
	}
	if cfg.RecentAttendance > 0 {
		w.recentAttendance = cfg.RecentAttendance
	}

	for _, schoolID := range cfg.SchoolIDs {
		if err := w.startSchoolWorker(schoolID); err != nil {
			w.logger.Error("failed to start worker for school",
				"school_id", schoolID,
				"error", err,
			)
			continue
		}
	}

	w.logger.Info("workers started",
		"school_count", len(cfg.SchoolIDs),
		"subscription_count", w.GetStats().SubscriptionCount,
	)
	return nil
}

func (w *Worker) startSchoolWorker(schoolID string) error {
	for _, topic := range domain.EventTopics() {
		sub, err := w.bus.Subscribe(w.ctx, schoolID, topic, w.handleMessage)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
		w.mu.Lock()
		w.subscriptions = append(w.subscriptions, sub)
		w.mu.Unlock()
	}

	w.logger.Info("school worker started", "school_id", schoolID)
	return nil
}

func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	ev, err := bus.DecodeEvent(msg)
	if err != nil {
		w.failed.Add(1)
		w.logger.Error("failed to decode event",
			"message_id", msg.ID,
			"topic", msg.Topic,
			"error", err,
		)
		return err
	}
	_, err = w.Handle(ctx, ev)
	return err
}

// Handle runs one event through the pipeline: resolve the students it
// concerns, evaluate the rules, dispatch the requests and drop the insights
// the event made stale.
func (w *Worker) Handle(ctx context.Context, ev *domain.DomainEvent) (*Result, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "worker.handle_event")
	defer span.End()
	span.SetAttributes(
		attribute.String("school.id", ev.SchoolID),
		attribute.String("event.id", ev.ID),
		attribute.String("event.kind", string(ev.Kind)),
	)

	now := w.now()
	subjects, err := w.subjects(ctx, ev)
	if err != nil {
		w.failed.Add(1)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		w.logger.Error("failed to resolve event subjects",
			"school_id", ev.SchoolID,
			"event_id", ev.ID,
			"kind", ev.Kind,
			"error", err,
		)
		return nil, err
	}

	evals := w.engine.Evaluate(ctx, &automation.Input{Event: ev, Subjects: subjects, Now: now})
	reqs := automation.Requests(evals)

	var report automation.DispatchReport
	if len(reqs) > 0 && w.dispatcher != nil {
		report = w.dispatcher.Dispatch(ctx, reqs)
		w.dispatched.Add(int64(report.Delivered))
	}

	if w.analytics != nil && ev.Kind != domain.EventMonthlyTick {
		for _, s := range subjects {
			w.analytics.Invalidate(ctx, ev.SchoolID, s.Student.ID, s.Student.GroupID)
		}
	}

	w.handled.Add(1)
	span.SetAttributes(
		attribute.Int("event.subjects", len(subjects)),
		attribute.Int("notification.requests", len(reqs)),
	)

	w.logger.Info("event processed",
		"school_id", ev.SchoolID,
		"event_id", ev.ID,
		"kind", ev.Kind,
		"subjects", len(subjects),
		"evaluations", len(evals),
		"requests", len(reqs),
		"delivered", report.Delivered,
		"duplicates", report.Duplicates,
		"failed", report.Failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &Result{
		EventID:     ev.ID,
		Subjects:    len(subjects),
		Evaluations: evals,
		Dispatch:    report,
	}, nil
}

// subjects loads the students an event concerns. Students that no longer
// exist are skipped; a monthly tick without students covers every active
// student of the school.
func (w *Worker) subjects(ctx context.Context, ev *domain.DomainEvent) ([]automation.Subject, error) {
	var students []*domain.Student
	ids := studentIDs(ev)

	if len(ids) == 0 && ev.Kind == domain.EventMonthlyTick {
		all, err := w.repo.ListStudents(ctx, ev.SchoolID, "")
		if err != nil {
			return nil, err
		}
		for _, s := range all {
			if s.Active {
				students = append(students, s)
			}
		}
	}
	for _, id := range ids {
		s, err := w.repo.GetStudent(ctx, ev.SchoolID, id)
		if err != nil {
			w.logger.Warn("skipping unknown student",
				"school_id", ev.SchoolID,
				"event_id", ev.ID,
				"student_id", id,
				"error", err,
			)
			continue
		}
		students = append(students, s)
	}

	groups := make(map[string]*domain.Group)
	var window domain.Window
	if w.analytics != nil {
		window = w.analytics.Window(0)
	}

	depth := w.attendanceDepth(ev)

	subjects := make([]automation.Subject, 0, len(students))
	for _, s := range students {
		sub := automation.Subject{Student: *s}

		if s.GroupID != "" {
			g, ok := groups[s.GroupID]
			if !ok {
				var err error
				g, err = w.repo.GetGroup(ctx, ev.SchoolID, s.GroupID)
				if err != nil {
					w.logger.Warn("student group not found",
						"school_id", ev.SchoolID,
						"student_id", s.ID,
						"group_id", s.GroupID,
					)
				}
				groups[s.GroupID] = g
			}
			sub.Group = g
		}

		switch ev.Kind {
		case domain.EventAbsenceRecorded:
			recent, err := w.repo.ListAttendance(ctx, ev.SchoolID, domain.RecordFilter{
				StudentID: s.ID,
				Limit:     depth,
			})
			if err != nil {
				return nil, err
			}
			sub.RecentAttendance = mostRecentFirst(recent)

		case domain.EventMonthlyTick:
			if w.analytics == nil {
				break
			}
			digest, err := w.analytics.Digest(ctx, ev.SchoolID, s, window)
			if err != nil {
				return nil, err
			}
			sub.Digest = &digest
		}

		subjects = append(subjects, sub)
	}
	return subjects, nil
}

// attendanceDepth is how many recent attendance records an absence event
// needs: enough to see the longest streak any enabled rule waits for, plus
// the record that breaks it.
func (w *Worker) attendanceDepth(ev *domain.DomainEvent) int {
	if ev.Kind != domain.EventAbsenceRecorded {
		return 0
	}
	depth := w.recentAttendance
	if longest := automation.MaxConsecutiveDays(w.engine.Store().Snapshot(ev.SchoolID)); longest+1 > depth {
		depth = longest + 1
	}
	return depth
}

// studentIDs collects the students named by the event and its records.
func studentIDs(ev *domain.DomainEvent) []string {
	seen := make(map[string]bool)
	var ids []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	for _, id := range ev.StudentIDs {
		add(id)
	}
	if ev.Memorization != nil {
		add(ev.Memorization.StudentID)
	}
	if ev.Attendance != nil {
		add(ev.Attendance.StudentID)
	}
	if ev.Behavior != nil {
		add(ev.Behavior.StudentID)
	}
	if ev.Payment != nil {
		add(ev.Payment.StudentID)
	}
	return ids
}

// mostRecentFirst reverses the repository's oldest-first order.
func mostRecentFirst(records []*domain.AttendanceRecord) []*domain.AttendanceRecord {
	out := make([]*domain.AttendanceRecord, len(records))
	for i, r := range records {
		out[len(records)-1-i] = r
	}
	return out
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	subs := w.subscriptions
	w.subscriptions = nil
	w.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			w.logger.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}

	w.logger.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	EventsHandled     int64    `json:"eventsHandled"`
	EventsFailed      int64    `json:"eventsFailed"`
	Delivered         int64    `json:"delivered"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	w.mu.Unlock()

	return Stats{
		SubscriptionCount: len(topics),
		Topics:            topics,
		EventsHandled:     w.handled.Load(),
		EventsFailed:      w.failed.Load(),
		Delivered:         w.dispatched.Load(),
	}
}
