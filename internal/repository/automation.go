package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tahfidz-hub/mizan/internal/domain"
)

// SaveAutomationRule inserts or replaces a rule.
func (r *SQLRepository) SaveAutomationRule(ctx context.Context, schoolID string, rule *domain.AutomationRule) error {
	if err := requireSchool(schoolID); err != nil {
		return err
	}
	if rule.ID == "" {
		return fmt.Errorf("%w: rule id is required", ErrInvalidInput)
	}

	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return fmt.Errorf("encode conditions of rule %s: %w", rule.ID, err)
	}
	updated := rule.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}

	query := `
		INSERT INTO automation_rules (
			id, school_id, name, trigger_kind, enabled, conditions, expression,
			template_id, audience, version, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, school_id) DO UPDATE SET
			name = excluded.name,
			trigger_kind = excluded.trigger_kind,
			enabled = excluded.enabled,
			conditions = excluded.conditions,
			expression = excluded.expression,
			template_id = excluded.template_id,
			audience = excluded.audience,
			version = excluded.version,
			updated_at = excluded.updated_at
	`
	_, err = r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, schoolID, rule.Name, rule.Trigger, boolInt(rule.Enabled), string(conditions), rule.Expression,
		rule.TemplateID, rule.Audience, rule.Version, updated.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save rule %s: %w", rule.ID, err)
	}
	return nil
}

// ListAutomationRules returns every rule of a school, enabled or not,
// ordered by ID.
func (r *SQLRepository) ListAutomationRules(ctx context.Context, schoolID string) ([]*domain.AutomationRule, error) {
	if err := requireSchool(schoolID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, school_id, name, trigger_kind, enabled, conditions, expression,
			   template_id, audience, version, updated_at
		FROM automation_rules
		WHERE school_id = ?
		ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, r.rebind(query), schoolID)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var rules []*domain.AutomationRule
	for rows.Next() {
		var rule domain.AutomationRule
		var enabled int
		var conditions string
		if err := rows.Scan(
			&rule.ID, &rule.SchoolID, &rule.Name, &rule.Trigger, &enabled, &conditions, &rule.Expression,
			&rule.TemplateID, &rule.Audience, &rule.Version, &rule.UpdatedAt,
		); err != nil {
			return nil, err
		}
		rule.Enabled = enabled == 1
		if err := json.Unmarshal([]byte(conditions), &rule.Conditions); err != nil {
			return nil, fmt.Errorf("failed to parse conditions of rule %s: %w", rule.ID, err)
		}
		rules = append(rules, &rule)
	}
	return rules, rows.Err()
}

// LogNotification records one dispatch attempt and its outcome.
func (r *SQLRepository) LogNotification(ctx context.Context, schoolID string, req *domain.NotificationRequest, delivered bool, detail string) error {
	if err := requireSchool(schoolID); err != nil {
		return err
	}

	recipient, _ := json.Marshal(req.Recipient)
	params, _ := json.Marshal(req.Params)

	// A retried request is a new attempt, so the log row gets its own ID.
	query := `
		INSERT INTO notification_log (
			id, school_id, rule_id, event_id, student_id, role, recipient,
			template_id, params, delivered, detail, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, r.rebind(query),
		uuid.New().String(), schoolID, req.RuleID, req.EventID, req.StudentID, req.Role, string(recipient),
		req.TemplateID, string(params), boolInt(delivered), detail, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("log notification %s: %w", req.ID, err)
	}
	return nil
}

// CountNotifications counts logged attempts since the given instant.
func (r *SQLRepository) CountNotifications(ctx context.Context, schoolID string, since time.Time) (int, error) {
	if err := requireSchool(schoolID); err != nil {
		return 0, err
	}

	var n int
	query := `SELECT COUNT(*) FROM notification_log WHERE school_id = ? AND created_at >= ?`
	if err := r.db.QueryRowContext(ctx, r.rebind(query), schoolID, since.UTC()).Scan(&n); err != nil {
		return 0, fmt.Errorf("count notifications: %w", err)
	}
	return n, nil
}
