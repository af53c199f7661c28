package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every component. Callers match with errors.Is.
var (
	// ErrMissingEntity: a requested student, unit or group does not exist.
	ErrMissingEntity = errors.New("entity not found")

	// ErrEmptyInput: no records in the requested window.
	ErrEmptyInput = errors.New("no records in window")

	// ErrDeliveryFailure: the delivery channel rejected or timed out a request.
	ErrDeliveryFailure = errors.New("notification delivery failed")

	// ErrConfiguration: an automation rule cannot be evaluated.
	ErrConfiguration = errors.New("invalid automation rule")
)

// ConfigError reports a rule that was skipped during evaluation.
type ConfigError struct {
	RuleID string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("rule %s: %s", e.RuleID, e.Reason)
}

// Unwrap lets errors.Is match ErrConfiguration.
func (e *ConfigError) Unwrap() error {
	return ErrConfiguration
}
