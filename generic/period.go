package generic

import "fmt"

// =============================================================================
// RANGE - The requested generation window
// =============================================================================

// MaxRangeYears bounds a generation window. It matches DefaultMaxWalk.
const MaxRangeYears = 10

// Range is an inclusive span of calendar days.
//
// Examples:
//   - Calendar year 2024: 2024-01-01 .. 2024-12-31
//   - A single month:     2024-03-01 .. 2024-03-31
type Range struct {
	Start Date
	End   Date
}

// Validate rejects ranges whose end precedes the start, and ranges longer
// than MaxRangeYears.
func (r Range) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return &RangeError{Range: r, Reason: "start and end are required"}
	}
	if r.End.Before(r.Start) {
		return &RangeError{Range: r, Reason: "end before start"}
	}
	if r.End.After(r.Start.AddMonths(12 * MaxRangeYears).AddDays(-1)) {
		return &RangeError{Range: r, Reason: fmt.Sprintf("longer than %d years", MaxRangeYears)}
	}
	return nil
}

// Contains returns true if d is within [Start, End].
func (r Range) Contains(d Date) bool {
	return d.AfterOrEqual(r.Start) && d.BeforeOrEqual(r.End)
}

func (r Range) String() string {
	return "[" + r.Start.String() + ", " + r.End.String() + "]"
}

// YearRange covers the calendar year.
func YearRange(year int) Range {
	return Range{Start: NewDate(year, 1, 1), End: NewDate(year, 12, 31)}
}
