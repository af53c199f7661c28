package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tahfidz-hub/mizan/internal/domain"
)

// ListRules handles GET /automation/rules.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules := h.rules.Snapshot(GetSchoolID(r.Context()))
	writeJSON(w, http.StatusOK, map[string]any{
		"rules": rules,
		"count": len(rules),
	})
}

// SaveRule handles POST /automation/rules. The rule is compiled before it is
// stored, so a rule the engine would skip is rejected here.
func (h *Handler) SaveRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	schoolID := GetSchoolID(ctx)

	var rule domain.AutomationRule
	if !h.decodeValid(w, r, &rule, func() { rule.SchoolID = schoolID }) {
		return
	}
	if err := h.engine.ValidateRule(&rule); err != nil {
		writeError(w, r, err)
		return
	}

	saved, err := h.rules.Upsert(ctx, schoolID, &rule)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("automation rule saved",
		"school_id", schoolID,
		"rule_id", saved.ID,
		"trigger", saved.Trigger,
		"version", saved.Version,
	)
	writeJSON(w, http.StatusCreated, saved)
}

// ToggleRule handles POST /automation/rules/{id}/toggle.
func (h *Handler) ToggleRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	schoolID := GetSchoolID(ctx)

	rule, err := h.rules.Toggle(ctx, schoolID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("automation rule toggled",
		"school_id", schoolID,
		"rule_id", rule.ID,
		"enabled", rule.Enabled,
	)
	writeJSON(w, http.StatusOK, rule)
}

// ReloadRules handles POST /automation/rules/reload: the school's rules are
// replaced with what the repository holds.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	schoolID := GetSchoolID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	n, err := h.rules.Reload(ctx, h.repo, schoolID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("automation rules reloaded", "school_id", schoolID, "count", n)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded successfully",
		"count":   n,
	})
}
