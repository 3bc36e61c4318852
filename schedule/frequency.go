/*
frequency.go - Payroll frequencies and their period arithmetic

PURPOSE:
  A Frequency decides how a date range is cut into periods: which anchor
  dates exist, where each period ends, and what it is called.

ANCHORS (DatesFor):
  weekly        StartOfWeek(start) + 7i           i = 0, 1, 2 ...
  bi-weekly     StartOfWeek(start) + 7i           i = 0, 2, 4 ...
  four-weekly   StartOfWeek(start) + 7i           i = 0, 4, 8 ...
  monthly       StartOfMonth(start) + i months    i = 0, 1, 2 ...
  semi-monthly  1st and 15th of every month
  tri-monthly   1st, 10th and 20th of every month
  quarterly     StartOfMonth(start) + i months    i = 3, 6, 9 ...
  half-yearly   StartOfMonth(start) + i months    i = 5, 11, 17 ...
  yearly        StartOfMonth(start) + i months    i = 11, 23, 35 ...

  The number of steps is the calendar-week (or calendar-month) distance
  between start and end, counted inclusively. Anchors are not clipped to
  the range: a weekly range starting on a Wednesday begins on that week's
  Monday.

SUB-PERIODS:
  Semi- and tri-monthly frequencies have several anchors per month. Each
  anchor uses the target-rule entry at SubPeriodIndex(anchor).

SEE ALSO:
  - target.go: Uses EndOf / FollowingOf to build target suggestions
  - generator.go: Enumerates periods with DatesFor
*/
package schedule

import (
	"fmt"
	"strings"

	"github.com/warp/payroll-schedules/generic"
)

// Frequency is the payroll cadence of a legal entity.
type Frequency string

const (
	Weekly      Frequency = "weekly"
	BiWeekly    Frequency = "bi-weekly"
	FourWeekly  Frequency = "four-weekly"
	Monthly     Frequency = "monthly"
	TriMonthly  Frequency = "tri-monthly"
	SemiMonthly Frequency = "semi-monthly"
	Quarterly   Frequency = "quarterly"
	HalfYearly  Frequency = "half-yearly"
	Yearly      Frequency = "yearly"
)

// Frequencies lists every supported cadence.
var Frequencies = []Frequency{
	Weekly, BiWeekly, FourWeekly, Monthly, TriMonthly, SemiMonthly, Quarterly, HalfYearly, Yearly,
}

// ParseFrequency is case-insensitive and accepts underscores for hyphens.
func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-"))
	if !f.Valid() {
		return "", &FrequencyError{Value: s}
	}
	return f, nil
}

func (f Frequency) Valid() bool {
	switch f {
	case Weekly, BiWeekly, FourWeekly, Monthly, TriMonthly, SemiMonthly, Quarterly, HalfYearly, Yearly:
		return true
	}
	return false
}

func (f Frequency) String() string { return string(f) }

// SubPeriods is the number of anchors per month for frequencies that split
// a month, and 1 otherwise.
func (f Frequency) SubPeriods() int {
	switch f {
	case SemiMonthly:
		return 2
	case TriMonthly:
		return 3
	}
	return 1
}

// =============================================================================
// ANCHORS
// =============================================================================

// DatesFor returns one anchor per period, ascending.
func DatesFor(f Frequency, start, end generic.Date) ([]generic.Date, error) {
	if end.Before(start) {
		return nil, &generic.RangeError{Range: generic.Range{Start: start, End: end}, Reason: "end before start"}
	}

	switch f {
	case Weekly:
		return weekAnchors(start, end, 1), nil
	case BiWeekly:
		return weekAnchors(start, end, 2), nil
	case FourWeekly:
		return weekAnchors(start, end, 4), nil
	case Monthly:
		return monthAnchors(start, end, func(int) bool { return true }, 1), nil
	case SemiMonthly:
		return monthAnchors(start, end, func(int) bool { return true }, 1, 15), nil
	case TriMonthly:
		return monthAnchors(start, end, func(int) bool { return true }, 1, 10, 20), nil
	case Quarterly:
		return monthAnchors(start, end, func(i int) bool { return i >= 3 && i%3 == 0 }, 1), nil
	case HalfYearly:
		return monthAnchors(start, end, func(i int) bool { return i%6 == 5 }, 1), nil
	case Yearly:
		return monthAnchors(start, end, func(i int) bool { return i%12 == 11 }, 1), nil
	}
	return nil, &FrequencyError{Value: string(f)}
}

func weekAnchors(start, end generic.Date, step int) []generic.Date {
	base := generic.StartOfWeek(start)
	n := generic.CalendarWeeksBetween(start, end)

	var out []generic.Date
	for i := 0; i <= n; i += step {
		out = append(out, base.AddDays(7*i))
	}
	return out
}

func monthAnchors(start, end generic.Date, keep func(offset int) bool, days ...int) []generic.Date {
	base := generic.StartOfMonth(start)
	n := generic.CalendarMonthsBetween(start, end)

	var out []generic.Date
	for i := 0; i <= n; i++ {
		if !keep(i) {
			continue
		}
		month := base.AddMonths(i)
		for _, day := range days {
			out = append(out, generic.SetDate(month, day, nil))
		}
	}
	return out
}

// =============================================================================
// PERIOD SHAPE
// =============================================================================

// EndOf is the last day of the period starting at anchor.
func EndOf(f Frequency, anchor generic.Date) generic.Date {
	switch f {
	case Weekly:
		return anchor.AddDays(6)
	case BiWeekly:
		return anchor.AddDays(13)
	case FourWeekly:
		return anchor.AddDays(27)
	case Monthly, Quarterly, HalfYearly, Yearly:
		return generic.EndOfMonth(anchor)
	case SemiMonthly:
		if anchor.Day() < 15 {
			return generic.SetDate(anchor, 14, nil)
		}
		return generic.EndOfMonth(anchor)
	case TriMonthly:
		switch {
		case anchor.Day() < 10:
			return generic.SetDate(anchor, 9, nil)
		case anchor.Day() < 20:
			return generic.SetDate(anchor, 19, nil)
		}
		return generic.EndOfMonth(anchor)
	}
	return anchor
}

// NameFor is the human label of the period starting at anchor.
func NameFor(f Frequency, anchor generic.Date) string {
	switch f {
	case Weekly, BiWeekly, FourWeekly:
		return fmt.Sprintf("Week %d", anchor.ISOWeek())
	case Monthly:
		return anchor.Month().String()
	case SemiMonthly, TriMonthly:
		return fmt.Sprintf("%s %d", anchor.Month(), anchor.Day())
	case Quarterly:
		return fmt.Sprintf("Q%d %d", (int(anchor.Month())-1)/3+1, anchor.Year())
	case HalfYearly:
		half := 1
		if anchor.Month() > 6 {
			half = 2
		}
		return fmt.Sprintf("H%d %d", half, anchor.Year())
	case Yearly:
		return fmt.Sprintf("%d", anchor.Year())
	}
	return anchor.String()
}

// FollowingOf is day-of-month `day` in the month after the anchor's month,
// clamped to that month's length.
func FollowingOf(anchor generic.Date, day int) generic.Date {
	return generic.SetDate(generic.StartOfMonth(anchor).AddMonths(1), day, nil)
}

// SubPeriodIndex selects the target-rule entry an anchor uses.
func SubPeriodIndex(f Frequency, anchor generic.Date) int {
	switch f {
	case SemiMonthly:
		if anchor.Day() >= 15 {
			return 1
		}
	case TriMonthly:
		switch {
		case anchor.Day() >= 20:
			return 2
		case anchor.Day() >= 10:
			return 1
		}
	}
	return 0
}
