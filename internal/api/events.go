package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tahfidz-hub/mizan/internal/bus"
	"github.com/tahfidz-hub/mizan/internal/domain"
)

// IngestEvent handles POST /events. The record the event carries is stored
// first, then the event is published for the automation worker.
func (h *Handler) IngestEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	schoolID := GetSchoolID(ctx)
	now := time.Now().UTC()

	var ev domain.DomainEvent
	if !h.decodeValid(w, r, &ev, func() { fillEvent(&ev, schoolID, now) }) {
		return
	}
	if err := checkEventRecord(&ev); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	studentIDs, err := h.storeEventRecord(ctx, schoolID, &ev)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if h.analytics != nil {
		for _, id := range studentIDs {
			h.analytics.Invalidate(ctx, schoolID, id, "")
		}
	}

	if err := bus.PublishEvent(ctx, h.bus, &ev); err != nil {
		slog.Error("failed to publish event",
			"school_id", schoolID,
			"event_id", ev.ID,
			"kind", ev.Kind,
			"error", err,
		)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "event bus unavailable"})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"eventId": ev.ID,
		"kind":    string(ev.Kind),
		"status":  "accepted",
	})
}

// fillEvent sets the server-side fields of the event and its record.
func fillEvent(ev *domain.DomainEvent, schoolID string, now time.Time) {
	ev.SchoolID = schoolID
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = now
	}

	if m := ev.Memorization; m != nil {
		m.SchoolID = schoolID
		if m.ID == "" {
			m.ID = uuid.New().String()
		}
		if m.Timestamp.IsZero() {
			m.Timestamp = now
		}
	}
	if a := ev.Attendance; a != nil {
		a.SchoolID = schoolID
		if a.ID == "" {
			a.ID = uuid.New().String()
		}
		if a.Date.IsZero() {
			a.Date = now
		}
	}
	if b := ev.Behavior; b != nil {
		b.SchoolID = schoolID
		if b.ID == "" {
			b.ID = uuid.New().String()
		}
		if b.OccurredAt.IsZero() {
			b.OccurredAt = now
		}
	}
	if p := ev.Payment; p != nil {
		p.SchoolID = schoolID
		if p.ID == "" {
			p.ID = uuid.New().String()
		}
	}
	if ev.Kind == domain.EventMonthlyTick && ev.Month == "" {
		ev.Month = now.Format("2006-01")
	}
}

// checkEventRecord verifies the event carries the record its kind needs.
func checkEventRecord(ev *domain.DomainEvent) error {
	switch ev.Kind {
	case domain.EventMemorizationApproved:
		if ev.Memorization == nil || ev.Memorization.Status != domain.SubmissionApproved {
			return fmt.Errorf("%s requires an approved memorization record", ev.Kind)
		}
	case domain.EventAbsenceRecorded:
		if ev.Attendance == nil || ev.Attendance.Status != domain.AttendanceAbsent {
			return fmt.Errorf("%s requires an absent attendance record", ev.Kind)
		}
	case domain.EventBehaviorRecorded:
		if ev.Behavior == nil {
			return fmt.Errorf("%s requires a behavior record", ev.Kind)
		}
	case domain.EventPaymentDue:
		if ev.Payment == nil {
			return fmt.Errorf("%s requires a payment record", ev.Kind)
		}
	case domain.EventMonthlyTick:
		if _, err := time.Parse("2006-01", ev.Month); err != nil {
			return fmt.Errorf("month must be YYYY-MM")
		}
	}
	return nil
}

// storeEventRecord persists the event's record and returns the students
// whose insights it changes.
func (h *Handler) storeEventRecord(ctx context.Context, schoolID string, ev *domain.DomainEvent) ([]string, error) {
	var studentID string
	var save func() error

	switch {
	case ev.Memorization != nil:
		studentID = ev.Memorization.StudentID
		save = func() error { return h.repo.SaveMemorization(ctx, schoolID, ev.Memorization) }
	case ev.Attendance != nil:
		studentID = ev.Attendance.StudentID
		save = func() error { return h.repo.SaveAttendance(ctx, schoolID, ev.Attendance) }
	case ev.Behavior != nil:
		studentID = ev.Behavior.StudentID
		save = func() error { return h.repo.SaveBehavior(ctx, schoolID, ev.Behavior) }
	case ev.Payment != nil:
		studentID = ev.Payment.StudentID
		save = func() error { return h.repo.SavePayment(ctx, schoolID, ev.Payment) }
	default:
		return ev.StudentIDs, nil
	}

	if _, err := h.repo.GetStudent(ctx, schoolID, studentID); err != nil {
		return nil, err
	}
	if err := save(); err != nil {
		return nil, err
	}
	return []string{studentID}, nil
}

// SaveStudent handles POST /students.
func (h *Handler) SaveStudent(w http.ResponseWriter, r *http.Request) {
	schoolID := GetSchoolID(r.Context())
	var s domain.Student
	if !h.decodeValid(w, r, &s, func() {
		s.SchoolID = schoolID
		if s.ID == "" {
			s.ID = uuid.New().String()
		}
		if s.EnrolledAt.IsZero() {
			s.EnrolledAt = time.Now().UTC()
		}
	}) {
		return
	}
	if s.GroupID != "" {
		if _, err := h.repo.GetGroup(r.Context(), schoolID, s.GroupID); err != nil {
			writeError(w, r, err)
			return
		}
	}
	if err := h.repo.SaveStudent(r.Context(), schoolID, &s); err != nil {
		writeError(w, r, err)
		return
	}
	if h.analytics != nil {
		h.analytics.Invalidate(r.Context(), schoolID, s.ID, s.GroupID)
	}
	writeJSON(w, http.StatusCreated, s)
}

// SaveGroup handles POST /groups.
func (h *Handler) SaveGroup(w http.ResponseWriter, r *http.Request) {
	schoolID := GetSchoolID(r.Context())
	var g domain.Group
	if !h.decodeValid(w, r, &g, func() {
		g.SchoolID = schoolID
		if g.ID == "" {
			g.ID = uuid.New().String()
		}
	}) {
		return
	}
	if err := h.repo.SaveGroup(r.Context(), schoolID, &g); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

// SaveUnit handles POST /units.
func (h *Handler) SaveUnit(w http.ResponseWriter, r *http.Request) {
	var u domain.Unit
	if !h.decodeValid(w, r, &u, nil) {
		return
	}
	if err := h.repo.SaveUnit(r.Context(), GetSchoolID(r.Context()), &u); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// ResolveBehavior handles POST /behavior/{id}/resolve. Only the follow-up
// fields of a behavior record change.
func (h *Handler) ResolveBehavior(w http.ResponseWriter, r *http.Request) {
	schoolID := GetSchoolID(r.Context())
	var res domain.Resolution
	if !h.decodeValid(w, r, &res, func() {
		if res.Resolved && res.ResolvedAt == nil {
			at := time.Now().UTC()
			res.ResolvedAt = &at
		}
	}) {
		return
	}
	if err := h.repo.ResolveBehavior(r.Context(), schoolID, chi.URLParam(r, "id"), res); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
