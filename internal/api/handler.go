// Package api is the JSON surface over the analytics service, the event
// intake and the automation rule administration.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/tahfidz-hub/mizan/internal/analytics"
	"github.com/tahfidz-hub/mizan/internal/automation"
	"github.com/tahfidz-hub/mizan/internal/domain"
	"github.com/tahfidz-hub/mizan/internal/repository"
)

// maxWindowDays bounds the days query parameter.
const maxWindowDays = 366

// Deps are the collaborators the handlers call.
type Deps struct {
	Repo      domain.Repository
	Cache     domain.Cache
	Bus       domain.EventBus
	Analytics *analytics.Service
	Engine    *automation.Engine
	Version   string
}

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	analytics *analytics.Service
	engine    *automation.Engine
	rules     *automation.RuleStore
	validate  *validator.Validate
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps) *Handler {
	h := &Handler{
		repo:      deps.Repo,
		cache:     deps.Cache,
		bus:       deps.Bus,
		analytics: deps.Analytics,
		engine:    deps.Engine,
		validate:  validator.New(),
		version:   deps.Version,
	}
	if deps.Engine != nil {
		h.rules = deps.Engine.Store()
	}
	return h
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	status := "healthy"

	check := func(name string, ping func() error) {
		if err := ping(); err != nil {
			checks[name] = err.Error()
			status = "degraded"
			return
		}
		checks[name] = "ok"
	}
	if h.repo != nil {
		check("repository", func() error { return h.repo.Ping(r.Context()) })
	}
	if h.cache != nil {
		check("cache", func() error { return h.cache.Ping(r.Context()) })
	}
	if h.bus != nil {
		check("bus", func() error { return h.bus.Ping(r.Context()) })
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": h.version,
		"checks":  checks,
	})
}

// Ready reports whether the process can serve traffic: the repository and
// the bus must answer.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil || h.repo.Ping(r.Context()) != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"ready": "false", "reason": "repository unavailable"})
		return
	}
	if h.bus != nil && h.bus.Ping(r.Context()) != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"ready": "false", "reason": "event bus unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ready": "true"})
}

// StudentInsight handles GET /students/{id}/insight.
func (h *Handler) StudentInsight(w http.ResponseWriter, r *http.Request) {
	days, ok := windowDays(w, r)
	if !ok {
		return
	}
	in, err := h.analytics.StudentInsight(r.Context(), GetSchoolID(r.Context()), chi.URLParam(r, "id"), days)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, in)
}

// StudentProgress handles GET /students/{id}/progress. Progress is
// cumulative, so it takes no window.
func (h *Handler) StudentProgress(w http.ResponseWriter, r *http.Request) {
	snapshots, err := h.analytics.StudentProgress(r.Context(), GetSchoolID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if snapshots == nil {
		snapshots = []domain.ProgressSnapshot{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"studentId": chi.URLParam(r, "id"),
		"progress":  snapshots,
	})
}

// StudentBehavior handles GET /students/{id}/behavior.
func (h *Handler) StudentBehavior(w http.ResponseWriter, r *http.Request) {
	days, ok := windowDays(w, r)
	if !ok {
		return
	}
	summary, err := h.analytics.StudentBehavior(r.Context(), GetSchoolID(r.Context()), chi.URLParam(r, "id"), days)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// StudentRisk handles GET /students/{id}/risk.
func (h *Handler) StudentRisk(w http.ResponseWriter, r *http.Request) {
	days, ok := windowDays(w, r)
	if !ok {
		return
	}
	assessment, err := h.analytics.StudentRisk(r.Context(), GetSchoolID(r.Context()), chi.URLParam(r, "id"), days)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, assessment)
}

// ClassInsight handles GET /groups/{id}/insight.
func (h *Handler) ClassInsight(w http.ResponseWriter, r *http.Request) {
	days, ok := windowDays(w, r)
	if !ok {
		return
	}
	in, err := h.analytics.ClassInsight(r.Context(), GetSchoolID(r.Context()), chi.URLParam(r, "id"), days)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, in)
}

// SystemInsight handles GET /system/insight.
func (h *Handler) SystemInsight(w http.ResponseWriter, r *http.Request) {
	days, ok := windowDays(w, r)
	if !ok {
		return
	}
	in, err := h.analytics.SystemInsight(r.Context(), GetSchoolID(r.Context()), days)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, in)
}

// windowDays parses the optional days query. Zero selects the default.
func windowDays(w http.ResponseWriter, r *http.Request) (int, bool) {
	v := r.URL.Query().Get("days")
	if v == "" {
		return 0, true
	}
	days, err := strconv.Atoi(v)
	if err != nil || days <= 0 || days > maxWindowDays {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "days must be an integer between 1 and " + strconv.Itoa(maxWindowDays),
		})
		return 0, false
	}
	return days, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError maps the error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrMissingEntity):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrConfiguration), errors.Is(err, repository.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		slog.Error("request failed",
			"path", r.URL.Path,
			"school_id", GetSchoolID(r.Context()),
			"trace_id", GetTraceID(r.Context()),
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

// decodeValid decodes the JSON body into v after fill sets server-side
// defaults, then validates it.
func (h *Handler) decodeValid(w http.ResponseWriter, r *http.Request, v any, fill func()) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON request body"})
		return false
	}
	if fill != nil {
		fill()
	}
	if err := h.validate.Struct(v); err != nil {
		writeValidationError(w, err)
		return false
	}
	return true
}

func writeValidationError(w http.ResponseWriter, err error) {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid input"})
		return
	}

	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		fields[fe.Namespace()] = fe.Tag()
	}
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error":  "validation failed",
		"fields": fields,
	})
}
