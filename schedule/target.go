/*
target.go - Target (due) date resolution

PURPOSE:
  Turns a period anchor and a target rule into the period's due date, snapped
  onto a working day.

RULE SYNTAX:
  A comma-joined list of "<kind> <arg>" entries, one per sub-period:

    last N        period end, then N working days back (N defaults to 1)
    following D   day D of the month after the anchor's month
    day W         last weekday W on or before the period end
    date D        day D of the anchor's month, or the period end if the
                  month has no day D

  Entries are parsed once into []TargetRule at the boundary; nothing below
  this file handles the string form.

SNAPPING:
  Every suggestion goes through Resolver.DeterminePrevious. "last N" walks
  N working days; the other kinds walk 0, which keeps a suggestion that is
  already a working day and otherwise moves to the previous one.

SEE ALSO:
  - frequency.go: EndOf, FollowingOf
  - generic/workdays.go: The walk
*/
package schedule

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/warp/payroll-schedules/generic"
)

// TargetKind selects how a due date is suggested.
type TargetKind string

const (
	TargetLast      TargetKind = "last"
	TargetFollowing TargetKind = "following"
	TargetDay       TargetKind = "day"
	TargetDate      TargetKind = "date"
)

// TargetRule is one parsed entry. Only the field matching Kind is meaningful.
type TargetRule struct {
	Kind    TargetKind
	Day     int          // following, date
	Weekday time.Weekday // day
	Offset  int          // last
}

func (r TargetRule) String() string {
	switch r.Kind {
	case TargetLast:
		return fmt.Sprintf("last %d", r.Offset)
	case TargetFollowing, TargetDate:
		return fmt.Sprintf("%s %d", r.Kind, r.Day)
	case TargetDay:
		return "day " + strings.ToLower(r.Weekday.String())
	}
	return string(r.Kind)
}

// ParseTargetRules parses the comma-joined form.
func ParseTargetRules(s string) ([]TargetRule, error) {
	if strings.TrimSpace(s) == "" {
		return nil, &TargetRuleError{Rule: s, Reason: "no target rule configured"}
	}
	var rules []TargetRule
	for _, entry := range strings.Split(s, ",") {
		rule, err := ParseTargetRule(entry)
		if err != nil {
			if re, ok := err.(*TargetRuleError); ok {
				re.Rule = s
			}
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// ParseTargetRule parses a single "<kind> <arg>" entry.
func ParseTargetRule(entry string) (TargetRule, error) {
	fields := strings.Fields(entry)
	if len(fields) == 0 || len(fields) > 2 {
		return TargetRule{}, &TargetRuleError{Rule: entry, Entry: entry, Reason: `expected "<kind> <arg>"`}
	}
	kind := TargetKind(strings.ToLower(fields[0]))
	arg := ""
	if len(fields) == 2 {
		arg = fields[1]
	}
	fail := func(reason string) (TargetRule, error) {
		return TargetRule{}, &TargetRuleError{Rule: entry, Entry: strings.TrimSpace(entry), Reason: reason}
	}

	switch kind {
	case TargetLast:
		if arg == "" {
			return TargetRule{Kind: kind, Offset: generic.DefaultWalkDays}, nil
		}
		n, err := strconv.Atoi(arg)
		if err != nil || n < 0 {
			return fail("offset must be a non-negative integer")
		}
		return TargetRule{Kind: kind, Offset: n}, nil
	case TargetFollowing, TargetDate:
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 || n > 31 {
			return fail("day of month must be between 1 and 31")
		}
		return TargetRule{Kind: kind, Day: n}, nil
	case TargetDay:
		wd, err := generic.ParseWeekday(arg)
		if err != nil {
			return fail("unknown weekday")
		}
		return TargetRule{Kind: kind, Weekday: wd}, nil
	}
	return fail(fmt.Sprintf("unknown kind %q", fields[0]))
}

// FormatTargetRules is the inverse of ParseTargetRules.
func FormatTargetRules(rules []TargetRule) string {
	parts := make([]string, len(rules))
	for i, r := range rules {
		parts[i] = r.String()
	}
	return strings.Join(parts, ",")
}

// RuleFor picks the entry an anchor uses, falling back to the first entry
// when the rule lists fewer entries than the frequency has sub-periods.
func RuleFor(f Frequency, anchor generic.Date, rules []TargetRule) TargetRule {
	if len(rules) == 0 {
		return TargetRule{Kind: TargetLast}
	}
	if i := SubPeriodIndex(f, anchor); i < len(rules) {
		return rules[i]
	}
	return rules[0]
}

// =============================================================================
// SUGGESTION
// =============================================================================

// Suggest returns the unsnapped due date and the working days to walk back.
func Suggest(f Frequency, anchor generic.Date, rule TargetRule) (generic.Date, int) {
	end := EndOf(f, anchor)
	switch rule.Kind {
	case TargetLast:
		return end, rule.Offset
	case TargetFollowing:
		return FollowingOf(anchor, rule.Day), 0
	case TargetDay:
		back := (int(end.Weekday()) - int(rule.Weekday) + 7) % 7
		return end.AddDays(-back), 0
	case TargetDate:
		if !generic.DayFits(anchor.Year(), anchor.Month(), rule.Day) {
			return end, 0
		}
		return generic.SetDate(anchor, rule.Day, nil), 0
	}
	return end, 0
}

// =============================================================================
// RESOLVER
// =============================================================================

// TargetInput describes one target resolution.
type TargetInput struct {
	Countries []generic.CountrySet
	Date      generic.Date // period anchor
	Frequency Frequency
	Rules     []TargetRule
}

// TargetResolver snaps suggestions onto working days.
type TargetResolver struct {
	Resolver *generic.Resolver
}

func NewTargetResolver(r *generic.Resolver) *TargetResolver {
	return &TargetResolver{Resolver: r}
}

// DetermineTargetDate returns one due date per rule entry.
func (t *TargetResolver) DetermineTargetDate(ctx context.Context, in TargetInput) ([]generic.Date, error) {
	dates, _, err := t.DetermineTargetDateWithHolidays(ctx, in)
	return dates, err
}

// DetermineTargetDateWithHolidays also returns the holidays the walks consulted.
func (t *TargetResolver) DetermineTargetDateWithHolidays(ctx context.Context, in TargetInput) ([]generic.Date, []generic.Holiday, error) {
	if !in.Frequency.Valid() {
		return nil, nil, &FrequencyError{Value: string(in.Frequency)}
	}
	if len(in.Rules) == 0 {
		return nil, nil, &TargetRuleError{Reason: "no target rule configured"}
	}

	consulted := generic.NewHolidaySet()
	dates := make([]generic.Date, 0, len(in.Rules))
	for _, rule := range in.Rules {
		suggestion, days := Suggest(in.Frequency, in.Date, rule)
		res, err := t.Resolver.DeterminePrevious(ctx, generic.WalkInput{
			Countries: in.Countries,
			Start:     suggestion,
			Days:      days,
		})
		if err != nil {
			return nil, nil, err
		}
		dates = append(dates, res.Date)
		consulted.Add(res.Holidays...)
	}
	return dates, consulted.Sorted(), nil
}
