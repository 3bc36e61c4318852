/*
errors.go - Centralized error types for the calendar engine

PURPOSE:
  All calendar-level error types in one place for consistency and
  discoverability. The schedule package wraps these with domain context.

ERROR CATEGORIES:
  1. Walk errors - The working-day walk could not terminate
  2. Lookup errors - Entity or locality data is missing
  3. Input errors - Malformed dates, ranges or entity types

USAGE:
  Callers test with errors.Is:

    if errors.Is(err, generic.ErrUnboundedWalk) {
        // surface as a generation failure
    }

SEE ALSO:
  - workdays.go: Raises UnboundedWalkError
  - store.go: Collaborators return ErrEntityNotFound
  - schedule/errors.go: Schedule-level errors
*/
package generic

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrUnboundedWalk is returned when a working-day walk cannot find its
	// target within the iteration cap, or can never find one at all.
	ErrUnboundedWalk = errors.New("working-day walk exceeded its bound")

	// ErrEntityNotFound is returned by collaborators when a referenced
	// organisation (legal entity, provider, client, service centre) is unknown.
	ErrEntityNotFound = errors.New("entity not found")

	// ErrMissingEntityData marks a milestone whose entity could not be resolved
	// to any locality. It is reported as a warning, never as a failure.
	ErrMissingEntityData = errors.New("missing entity data")

	// ErrInvalidEntityType is returned for entity discriminators outside the closed set.
	ErrInvalidEntityType = errors.New("invalid entity type")

	// ErrInvalidDate is returned when a date string cannot be parsed.
	ErrInvalidDate = errors.New("invalid date")

	// ErrInvalidPeriod is returned when a range is malformed (end before
	// start, or wider than MaxRangeYears).
	ErrInvalidPeriod = errors.New("invalid period")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// UnboundedWalkError describes a walk that was stopped.
type UnboundedWalkError struct {
	Start     Date
	Days      int
	Direction string
	Steps     int
	Countries []string
	Reason    string
}

func (e *UnboundedWalkError) Error() string {
	return fmt.Sprintf("working-day walk %s from %s for %d day(s) over [%s] stopped after %d step(s): %s",
		e.Direction, e.Start, e.Days, strings.Join(e.Countries, ","), e.Steps, e.Reason)
}

func (e *UnboundedWalkError) Unwrap() error {
	return ErrUnboundedWalk
}

// EntityNotFoundError names the missing entity.
type EntityNotFoundError struct {
	Type EntityType
	ID   string
}

func (e *EntityNotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Type, e.ID)
}

func (e *EntityNotFoundError) Unwrap() error {
	return ErrEntityNotFound
}

// DateError wraps a parse failure.
type DateError struct {
	Value string
	Err   error
}

func (e *DateError) Error() string {
	return fmt.Sprintf("invalid date %q: expected YYYY-MM-DD", e.Value)
}

func (e *DateError) Unwrap() []error {
	return []error{ErrInvalidDate, e.Err}
}

// RangeError describes a rejected range.
type RangeError struct {
	Range  Range
	Reason string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("invalid period %s: %s", e.Range, e.Reason)
}

func (e *RangeError) Unwrap() error {
	return ErrInvalidPeriod
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidDate) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrInvalidEntityType) ||
		errors.Is(err, ErrUnboundedWalk)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEntityNotFound)
}
