/*
errors.go - Schedule-level error types

PURPOSE:
  Errors raised while turning a legal entity's configuration into a
  generated schedule set. Calendar-level errors (unbounded walks, missing
  entities, bad dates) live in generic/errors.go and pass through unchanged.

ERROR CATEGORIES:
  1. Configuration errors - Bad frequency, bad target rule, no target milestone
  2. Pass-through errors  - generic.ErrUnboundedWalk, generic.ErrEntityNotFound

  All fatal kinds abort the whole Generate call. Missing entity data is the
  one non-fatal condition and is reported as a Warning instead.

SEE ALSO:
  - generic/errors.go: Calendar errors
  - api/handlers.go: Maps these to HTTP status codes
*/
package schedule

import (
	"errors"
	"fmt"

	"github.com/warp/payroll-schedules/generic"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidFrequency is returned when a legal entity has no frequency or
	// an unknown one.
	ErrInvalidFrequency = errors.New("invalid frequency")

	// ErrInvalidTargetRule is returned when a target rule entry cannot be parsed.
	ErrInvalidTargetRule = errors.New("invalid target rule")

	// ErrNoTargetMilestone is returned when a legal entity has no milestones.
	ErrNoTargetMilestone = errors.New("no target milestone")

	// ErrMultipleTargets is returned by validation when more than one
	// milestone is flagged as the target.
	ErrMultipleTargets = errors.New("more than one target milestone")

	// ErrInvalidMilestone is returned for duplicate indexes or negative intervals.
	ErrInvalidMilestone = errors.New("invalid milestone")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// FrequencyError names the rejected frequency.
type FrequencyError struct {
	Value string
}

func (e *FrequencyError) Error() string {
	if e.Value == "" {
		return "invalid frequency: none configured"
	}
	return fmt.Sprintf("invalid frequency %q", e.Value)
}

func (e *FrequencyError) Unwrap() error { return ErrInvalidFrequency }

// TargetRuleError names the rejected entry.
type TargetRuleError struct {
	Rule   string
	Entry  string
	Reason string
}

func (e *TargetRuleError) Error() string {
	if e.Entry == "" {
		return fmt.Sprintf("invalid target rule %q: %s", e.Rule, e.Reason)
	}
	return fmt.Sprintf("invalid target rule entry %q in %q: %s", e.Entry, e.Rule, e.Reason)
}

func (e *TargetRuleError) Unwrap() error { return ErrInvalidTargetRule }

// MilestoneError describes a rejected milestone set.
type MilestoneError struct {
	LegalEntityID string
	Reason        string
	Err           error
}

func (e *MilestoneError) Error() string {
	return fmt.Sprintf("milestones of legal entity %q: %s", e.LegalEntityID, e.Reason)
}

func (e *MilestoneError) Unwrap() error { return e.Err }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid configuration or input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidFrequency) ||
		errors.Is(err, ErrInvalidTargetRule) ||
		errors.Is(err, ErrNoTargetMilestone) ||
		errors.Is(err, ErrMultipleTargets) ||
		errors.Is(err, ErrInvalidMilestone) ||
		generic.IsClientError(err)
}

// FailureReason is a low-cardinality label for metrics and events.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidFrequency):
		return "invalid_frequency"
	case errors.Is(err, ErrInvalidTargetRule):
		return "invalid_target_rule"
	case errors.Is(err, ErrNoTargetMilestone), errors.Is(err, ErrMultipleTargets):
		return "no_target_milestone"
	case errors.Is(err, generic.ErrUnboundedWalk):
		return "unbounded_walk"
	case generic.IsNotFound(err):
		return "not_found"
	case generic.IsClientError(err):
		return "invalid_input"
	}
	return "internal"
}
