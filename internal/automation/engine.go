// Package automation evaluates automation rules against domain events and
// turns matches into notification requests.
package automation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/uuid"

	"github.com/tahfidz-hub/mizan/internal/domain"
)

// Engine is the CEL-based automation rule engine. Rules come from the
// injected RuleStore on every evaluation; compiled programs are cached by
// condition source.
type Engine struct {
	mu         sync.RWMutex
	env        *cel.Env
	programs   map[string]cel.Program
	store      *RuleStore
	maxWorkers int
	logger     *slog.Logger
}

// NewEngine creates an engine reading rules from store.
func NewEngine(store *RuleStore, maxWorkers int, logger *slog.Logger) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("rule store is required")
	}
	if maxWorkers <= 0 {
		maxWorkers = 10
	}
	if logger == nil {
		logger = slog.Default()
	}

	env, err := cel.NewEnv(envOptions()...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:        env,
		programs:   make(map[string]cel.Program),
		store:      store,
		maxWorkers: maxWorkers,
		logger:     logger,
	}, nil
}

// Store returns the rule store the engine reads.
func (e *Engine) Store() *RuleStore {
	return e.store
}

// ValidateRule checks a rule's trigger, parameters and expression without
// storing it. Errors match domain.ErrConfiguration.
func (e *Engine) ValidateRule(rule *domain.AutomationRule) error {
	if rule == nil {
		return &domain.ConfigError{Reason: "rule is required"}
	}
	if rule.Audience != domain.AudienceGuardian && rule.Audience != domain.AudienceMusyrif && rule.Audience != domain.AudienceBoth {
		return &domain.ConfigError{RuleID: rule.ID, Reason: fmt.Sprintf("unknown audience %q", rule.Audience)}
	}
	_, err := e.program(rule)
	return err
}

// program returns the compiled condition of rule.
func (e *Engine) program(rule *domain.AutomationRule) (cel.Program, error) {
	src, err := conditionFor(rule)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	prg, ok := e.programs[src]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, issues := e.env.Compile(src)
	if issues != nil && issues.Err() != nil {
		return nil, &domain.ConfigError{RuleID: rule.ID, Reason: fmt.Sprintf("failed to compile condition: %v", issues.Err())}
	}
	if ast.OutputType() != cel.BoolType {
		return nil, &domain.ConfigError{RuleID: rule.ID, Reason: fmt.Sprintf("condition must return bool, got %s", ast.OutputType())}
	}
	prg, err = e.env.Program(ast)
	if err != nil {
		return nil, &domain.ConfigError{RuleID: rule.ID, Reason: fmt.Sprintf("failed to create program: %v", err)}
	}

	e.mu.Lock()
	e.programs[src] = prg
	e.mu.Unlock()
	return prg, nil
}

type job struct {
	rule    *domain.AutomationRule
	prg     cel.Program
	subject *Subject
}

// Evaluate runs every rule of the event's school whose trigger listens to the
// event kind. A rule that cannot be evaluated is reported as SKIPPED and does
// not affect the others. At most one request is emitted per rule, student and
// audience role for one event.
func (e *Engine) Evaluate(ctx context.Context, in *Input) []domain.RuleEvaluation {
	if in == nil || in.Event == nil {
		return nil
	}
	ev := in.Event
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	subjects := uniqueSubjects(in.Subjects)

	var results []domain.RuleEvaluation
	var jobs []job

	for _, rule := range e.store.Snapshot(ev.SchoolID) {
		kind := rule.Trigger.EventKind()
		if kind != "" && kind != ev.Kind {
			continue
		}

		if !rule.Enabled {
			results = append(results, domain.RuleEvaluation{
				RuleID: rule.ID,
				State:  domain.RuleDisabled,
				Trace:  []domain.RuleState{domain.RuleDisabled},
				Reason: "rule disabled",
			})
			continue
		}

		prg, err := e.program(rule)
		if err != nil {
			e.logger.Warn("skipping automation rule",
				"school_id", ev.SchoolID,
				"rule_id", rule.ID,
				"event_id", ev.ID,
				"error", err,
			)
			results = append(results, domain.RuleEvaluation{
				RuleID: rule.ID,
				State:  domain.RuleSkipped,
				Trace:  []domain.RuleState{domain.RuleSkipped},
				Reason: err.Error(),
			})
			continue
		}

		for i := range subjects {
			jobs = append(jobs, job{rule: rule, prg: prg, subject: &subjects[i]})
		}
	}

	if len(jobs) == 0 {
		return results
	}

	// Parallel evaluation using worker pool pattern
	evaluated := make([]domain.RuleEvaluation, len(jobs))
	var wg sync.WaitGroup
	sem := make(chan struct{}, e.maxWorkers)

	for i, j := range jobs {
		wg.Add(1)
		go func(idx int, j job) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			evaluated[idx] = e.evaluateRule(ctx, j, ev, now)
		}(i, j)
	}
	wg.Wait()

	return append(results, evaluated...)
}

// evaluateRule walks one rule for one student through the state machine.
func (e *Engine) evaluateRule(ctx context.Context, j job, ev *domain.DomainEvent, now time.Time) domain.RuleEvaluation {
	start := time.Now()

	result := domain.RuleEvaluation{
		RuleID:    j.rule.ID,
		StudentID: j.subject.Student.ID,
		State:     domain.RuleEvaluating,
		Trace:     []domain.RuleState{domain.RuleEvaluating},
	}
	finish := func(state domain.RuleState, reason string) domain.RuleEvaluation {
		result.State = state
		result.Trace = append(result.Trace, state)
		result.Reason = reason
		result.ProcessMs = time.Since(start).Milliseconds()
		return result
	}

	out, _, err := j.prg.ContextEval(ctx, activation(j.rule, ev, j.subject, now))
	if err != nil {
		cfgErr := &domain.ConfigError{RuleID: j.rule.ID, Reason: fmt.Sprintf("evaluation error: %v", err)}
		e.logger.Warn("automation rule evaluation failed",
			"school_id", ev.SchoolID,
			"rule_id", j.rule.ID,
			"student_id", j.subject.Student.ID,
			"error", cfgErr,
		)
		return finish(domain.RuleSkipped, cfgErr.Error())
	}

	if out != types.True {
		result.Trace = append(result.Trace, domain.RuleConditionsNotMet)
		return finish(domain.RuleIdle, "conditions not met")
	}

	result.Trace = append(result.Trace, domain.RuleConditionsMet)
	result.Requests = e.requests(j.rule, ev, j.subject, now)
	if len(result.Requests) == 0 {
		e.logger.Warn("no recipient for automation rule",
			"school_id", ev.SchoolID,
			"rule_id", j.rule.ID,
			"student_id", j.subject.Student.ID,
			"audience", j.rule.Audience,
		)
		result.State = domain.RuleConditionsMet
		result.Reason = fmt.Sprintf("no %s contact", j.rule.Audience)
		result.ProcessMs = time.Since(start).Milliseconds()
		return result
	}

	return finish(domain.RuleDispatched, fmt.Sprintf("%d notification(s) emitted", len(result.Requests)))
}

// requests resolves the rule's audience to recipients, one request each.
func (e *Engine) requests(rule *domain.AutomationRule, ev *domain.DomainEvent, sub *Subject, now time.Time) []*domain.NotificationRequest {
	type recipient struct {
		role    domain.Audience
		contact domain.Contact
	}
	var recipients []recipient

	if rule.Audience == domain.AudienceGuardian || rule.Audience == domain.AudienceBoth {
		if !sub.Student.Guardian.IsZero() {
			recipients = append(recipients, recipient{domain.AudienceGuardian, sub.Student.Guardian})
		}
	}
	if rule.Audience == domain.AudienceMusyrif || rule.Audience == domain.AudienceBoth {
		if sub.Group != nil && !sub.Group.Musyrif.IsZero() {
			recipients = append(recipients, recipient{domain.AudienceMusyrif, sub.Group.Musyrif})
		}
	}

	params := templateParams(rule, ev, sub, now)
	reqs := make([]*domain.NotificationRequest, 0, len(recipients))
	for _, r := range recipients {
		p := make([]string, len(params))
		copy(p, params)
		reqs = append(reqs, &domain.NotificationRequest{
			ID:         uuid.New().String(),
			SchoolID:   ev.SchoolID,
			RuleID:     rule.ID,
			EventID:    ev.ID,
			StudentID:  sub.Student.ID,
			Recipient:  r.contact,
			Role:       r.role,
			TemplateID: rule.TemplateID,
			Params:     p,
			CreatedAt:  now,
		})
	}
	return reqs
}

// Requests flattens the notification requests of evaluations.
func Requests(evals []domain.RuleEvaluation) []*domain.NotificationRequest {
	var out []*domain.NotificationRequest
	for _, ev := range evals {
		out = append(out, ev.Requests...)
	}
	return out
}

// uniqueSubjects drops repeated students so one event never yields two
// requests for the same rule, student and role.
func uniqueSubjects(subjects []Subject) []Subject {
	seen := make(map[string]bool, len(subjects))
	out := make([]Subject, 0, len(subjects))
	for _, s := range subjects {
		if s.Student.ID == "" || seen[s.Student.ID] {
			continue
		}
		seen[s.Student.ID] = true
		out = append(out, s)
	}
	return out
}
