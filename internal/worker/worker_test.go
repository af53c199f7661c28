package worker

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/tahfidz-hub/mizan/internal/analytics"
	"github.com/tahfidz-hub/mizan/internal/automation"
	"github.com/tahfidz-hub/mizan/internal/bus"
	"github.com/tahfidz-hub/mizan/internal/cache"
	"github.com/tahfidz-hub/mizan/internal/domain"
	"github.com/tahfidz-hub/mizan/internal/insight"
	"github.com/tahfidz-hub/mizan/internal/repository"
)

const school = "school-001"

var now = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

// outbox records every delivered request.
type outbox struct {
	mu   sync.Mutex
	reqs []*domain.NotificationRequest
	got  chan struct{}
}

func newOutbox() *outbox {
	return &outbox{got: make(chan struct{}, 100)}
}

func (o *outbox) Deliver(_ context.Context, req *domain.NotificationRequest) (bool, error) {
	o.mu.Lock()
	o.reqs = append(o.reqs, req)
	o.mu.Unlock()
	o.got <- struct{}{}
	return true, nil
}

func (o *outbox) sent() []*domain.NotificationRequest {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*domain.NotificationRequest(nil), o.reqs...)
}

type fixture struct {
	worker *Worker
	bus    *bus.ChannelBus
	repo   *repository.SQLRepository
	out    *outbox
}

func newFixture(t *testing.T, rules ...*domain.AutomationRule) *fixture {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "worker.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	for _, r := range rules {
		r.SchoolID = school
	}
	engine, err := automation.NewEngine(automation.NewRuleStore(repo, rules...), 4, nil)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	out := newOutbox()
	dispatcher := automation.NewDispatcher(out, cache.NewLRUCache(100), repo, domain.DispatchConfig{Workers: 2}, nil)
	svc := analytics.NewService(repo, cache.NewLRUCache(100), insight.New(domain.DefaultAnalyticsConfig()), time.Minute, nil)

	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	w := NewWorker(eventBus, repo, engine, dispatcher, svc, nil)
	w.now = func() time.Time { return now }

	seedRoster(t, repo)
	return &fixture{worker: w, bus: eventBus, repo: repo, out: out}
}

func seedRoster(t *testing.T, repo *repository.SQLRepository) {
	t.Helper()
	ctx := context.Background()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}

	must(repo.SaveGroup(ctx, school, &domain.Group{
		ID: "g1", Name: "Halaqah Abu Bakar", Capacity: 10,
		Musyrif: domain.Contact{Name: "Ustadz Hasan", Phone: "+62811"},
	}))
	must(repo.SaveStudent(ctx, school, &domain.Student{
		ID: "s1", Name: "Ahmad", GroupID: "g1", Active: true, EnrolledAt: now.AddDate(-1, 0, 0),
		Guardian: domain.Contact{Name: "Bapak Ahmad", Phone: "+62801"},
	}))
	must(repo.SaveStudent(ctx, school, &domain.Student{
		ID: "s2", Name: "Bilal", GroupID: "g1", Active: true, EnrolledAt: now.AddDate(-1, 0, 0),
		Guardian: domain.Contact{Name: "Ibu Bilal", Phone: "+62802"},
	}))
	must(repo.SaveStudent(ctx, school, &domain.Student{
		ID: "s3", Name: "Umar", GroupID: "g1", Active: false, EnrolledAt: now.AddDate(-1, 0, 0),
		Guardian: domain.Contact{Name: "Bapak Umar", Phone: "+62803"},
	}))
}

func absentRule() *domain.AutomationRule {
	return &domain.AutomationRule{
		ID:         "absent-2",
		Name:       "Two days absent",
		Trigger:    domain.TriggerAttendanceAbsent,
		Enabled:    true,
		Conditions: map[string]float64{automation.ParamConsecutiveDays: 2},
		TemplateID: "absence_alert",
		Audience:   domain.AudienceGuardian,
	}
}

func monthlyRule() *domain.AutomationRule {
	return &domain.AutomationRule{
		ID:         "monthly",
		Name:       "Monthly report",
		Trigger:    domain.TriggerMonthlyReport,
		Enabled:    true,
		TemplateID: "monthly_report",
		Audience:   domain.AudienceGuardian,
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestWorkerStartAndStop(t *testing.T) {
	f := newFixture(t)

	if err := f.worker.Start(Config{}); err == nil {
		t.Error("expected error without schools")
	}

	if err := f.worker.Start(Config{SchoolIDs: []string{school, "school-002"}}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	stats := f.worker.GetStats()
	if want := 2 * len(domain.EventTopics()); stats.SubscriptionCount != want {
		t.Errorf("expected %d subscriptions, got %d", want, stats.SubscriptionCount)
	}

	if err := f.worker.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if stats := f.worker.GetStats(); stats.SubscriptionCount != 0 {
		t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
	}
}

func TestWorkerAbsenceStreak(t *testing.T) {
	f := newFixture(t, absentRule())
	ctx := context.Background()

	if err := f.worker.Start(Config{SchoolIDs: []string{school}}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer f.worker.Stop()

	record := func(id string, daysAgo int, status domain.AttendanceStatus) *domain.AttendanceRecord {
		r := &domain.AttendanceRecord{ID: id, StudentID: "s1", Date: now.AddDate(0, 0, -daysAgo), Status: status}
		if err := f.repo.SaveAttendance(ctx, school, r); err != nil {
			t.Fatalf("SaveAttendance failed: %v", err)
		}
		return r
	}

	record("a3", 3, domain.AttendancePresent)
	first := record("a2", 2, domain.AttendanceAbsent)

	t.Run("SingleAbsenceIsQuiet", func(t *testing.T) {
		if err := bus.PublishEvent(ctx, f.bus, &domain.DomainEvent{
			ID: "evt-1", SchoolID: school, Kind: domain.EventAbsenceRecorded, Attendance: first,
		}); err != nil {
			t.Fatalf("PublishEvent failed: %v", err)
		}
		waitFor(t, func() bool { return f.worker.GetStats().EventsHandled == 1 })
		if n := len(f.out.sent()); n != 0 {
			t.Errorf("expected no notification after one absence, got %d", n)
		}
	})

	t.Run("SecondAbsenceNotifiesGuardian", func(t *testing.T) {
		second := record("a1", 1, domain.AttendanceAbsent)
		if err := bus.PublishEvent(ctx, f.bus, &domain.DomainEvent{
			ID: "evt-2", SchoolID: school, Kind: domain.EventAbsenceRecorded, Attendance: second,
		}); err != nil {
			t.Fatalf("PublishEvent failed: %v", err)
		}

		select {
		case <-f.out.got:
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for notification")
		}

		sent := f.out.sent()
		if len(sent) != 1 {
			t.Fatalf("expected 1 notification, got %d", len(sent))
		}
		if sent[0].Recipient.Phone != "+62801" || sent[0].TemplateID != "absence_alert" || sent[0].StudentID != "s1" {
			t.Errorf("unexpected request %+v", sent[0])
		}

		waitFor(t, func() bool { return f.worker.GetStats().Delivered == 1 })
		logged, err := f.repo.CountNotifications(ctx, school, time.Now().Add(-time.Hour))
		if err != nil || logged != 1 {
			t.Errorf("expected 1 logged notification, got %d, %v", logged, err)
		}
	})
}

func TestWorkerLongAbsenceStreak(t *testing.T) {
	rule := absentRule()
	rule.ID = "absent-20"
	rule.Conditions[automation.ParamConsecutiveDays] = 20
	f := newFixture(t, rule)
	ctx := context.Background()

	var latest *domain.AttendanceRecord
	for daysAgo := 30; daysAgo >= 1; daysAgo-- {
		latest = &domain.AttendanceRecord{
			ID:        fmt.Sprintf("abs-%02d", daysAgo),
			StudentID: "s1",
			Date:      now.AddDate(0, 0, -daysAgo),
			Status:    domain.AttendanceAbsent,
		}
		if err := f.repo.SaveAttendance(ctx, school, latest); err != nil {
			t.Fatalf("SaveAttendance failed: %v", err)
		}
	}

	res, err := f.worker.Handle(ctx, &domain.DomainEvent{
		ID: "evt-long", SchoolID: school, Kind: domain.EventAbsenceRecorded, Attendance: latest,
	})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if len(res.Evaluations) != 1 || res.Evaluations[0].State != domain.RuleDispatched {
		t.Fatalf("expected the 20-day rule to fire, got %+v", res.Evaluations)
	}
	if res.Dispatch.Delivered != 1 {
		t.Errorf("expected 1 delivery, got %+v", res.Dispatch)
	}

	if got := f.worker.attendanceDepth(&domain.DomainEvent{SchoolID: school, Kind: domain.EventAbsenceRecorded}); got != 21 {
		t.Errorf("attendanceDepth = %d, want 21", got)
	}
}

func TestWorkerMonthlyTick(t *testing.T) {
	f := newFixture(t, monthlyRule())
	ctx := context.Background()

	res, err := f.worker.Handle(ctx, &domain.DomainEvent{
		ID: "monthly:2026-10", SchoolID: school, Kind: domain.EventMonthlyTick, Month: "2026-10",
	})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if res.Subjects != 2 {
		t.Errorf("expected the 2 active students, got %d", res.Subjects)
	}
	if res.Dispatch.Delivered != 2 {
		t.Errorf("expected 2 deliveries, got %+v", res.Dispatch)
	}
	for _, req := range f.out.sent() {
		if req.StudentID == "s3" {
			t.Error("inactive student must not get a monthly report")
		}
	}

	t.Run("ReplayIsDeduplicated", func(t *testing.T) {
		again, err := f.worker.Handle(ctx, &domain.DomainEvent{
			ID: "monthly:2026-10", SchoolID: school, Kind: domain.EventMonthlyTick, Month: "2026-10",
		})
		if err != nil {
			t.Fatalf("Handle failed: %v", err)
		}
		if again.Dispatch.Duplicates != 2 || again.Dispatch.Delivered != 0 {
			t.Errorf("expected replay to be suppressed, got %+v", again.Dispatch)
		}
	})
}

func TestWorkerUnknownStudent(t *testing.T) {
	f := newFixture(t, absentRule())

	res, err := f.worker.Handle(context.Background(), &domain.DomainEvent{
		ID: "evt-ghost", SchoolID: school, Kind: domain.EventAbsenceRecorded, StudentIDs: []string{"ghost"},
	})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if res.Subjects != 0 || len(f.out.sent()) != 0 {
		t.Errorf("expected nothing for an unknown student, got %+v", res)
	}
}

func TestWorkerBadPayload(t *testing.T) {
	f := newFixture(t)
	if err := f.worker.Start(Config{SchoolIDs: []string{school}}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer f.worker.Stop()

	if err := f.bus.Publish(context.Background(), school, domain.TopicBehaviorRecorded, []byte("{not json")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	waitFor(t, func() bool { return f.worker.GetStats().EventsFailed == 1 })
}

func TestStudentIDs(t *testing.T) {
	ev := &domain.DomainEvent{
		StudentIDs: []string{"s1", "s2"},
		Attendance: &domain.AttendanceRecord{StudentID: "s2"},
		Payment:    &domain.PaymentRecord{StudentID: "s3"},
	}
	got := studentIDs(ev)
	if len(got) != 3 || got[0] != "s1" || got[1] != "s2" || got[2] != "s3" {
		t.Errorf("unexpected ids %v", got)
	}
}

func TestMostRecentFirst(t *testing.T) {
	in := []*domain.AttendanceRecord{{ID: "old"}, {ID: "mid"}, {ID: "new"}}
	got := mostRecentFirst(in)
	if got[0].ID != "new" || got[2].ID != "old" {
		t.Errorf("unexpected order %s, %s, %s", got[0].ID, got[1].ID, got[2].ID)
	}
}
