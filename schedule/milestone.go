/*
milestone.go - Milestone sets and their projection around a target date

PURPOSE:
  A milestone set is the ordered list of steps of one payroll cycle
  (inputs cut-off, approval, payment...). Exactly one milestone is the
  target; the others are placed by walking working days away from it.

PROJECTION (per period):
  1. The target milestone takes the period's target date verbatim. Its own
     interval is ignored.
  2. "Before" milestones (index <= target index) are processed by descending
     index, each walking Interval working days back from the previous date.
  3. "After" milestones (index > target index) are processed by ascending
     index, each walking Interval working days forward.
  4. A nil Interval places the milestone on the previous date, no walk.

  Chains are strictly sequential: each start depends on the previous result.

COUNTRIES:
  Each milestone's country sets come from ProjectionInput.CountriesFor, so
  one milestone may follow the legal entity's calendar and the next the
  provider's.

SEE ALSO:
  - generator.go: Resolves country sets and runs one projection per period
  - generic/workdays.go: The walks
*/
package schedule

import (
	"context"
	"sort"

	"github.com/warp/payroll-schedules/generic"
)

// Milestone is one step of a payroll cycle.
type Milestone struct {
	ID         string
	Identifier string
	Name       string
	Index      int
	Interval   *int // working days from the previous milestone; nil = same day
	Target     bool
	Entities   []generic.EntityType
}

// IntervalOf is a helper for literals.
func IntervalOf(n int) *int { return &n }

// EntitiesOrDefault returns the calendars the milestone follows; an empty
// list means the legal entity's.
func (m Milestone) EntitiesOrDefault() []generic.EntityType {
	if len(m.Entities) == 0 {
		return []generic.EntityType{generic.EntityLegalEntity}
	}
	return m.Entities
}

// SortMilestones orders by index, then id.
func SortMilestones(ms []Milestone) {
	sort.SliceStable(ms, func(i, j int) bool {
		if ms[i].Index != ms[j].Index {
			return ms[i].Index < ms[j].Index
		}
		return ms[i].ID < ms[j].ID
	})
}

// FindTarget returns the flagged milestone, or the first by index when none
// is flagged.
func FindTarget(ms []Milestone) (Milestone, error) {
	if len(ms) == 0 {
		return Milestone{}, ErrNoTargetMilestone
	}
	sorted := append([]Milestone(nil), ms...)
	SortMilestones(sorted)
	for _, m := range sorted {
		if m.Target {
			return m, nil
		}
	}
	return sorted[0], nil
}

// SetTarget flags the milestone with the given id and clears every other
// flag, keeping the single-target invariant.
func SetTarget(ms []Milestone, id string) ([]Milestone, error) {
	out := make([]Milestone, len(ms))
	found := false
	for i, m := range ms {
		m.Target = m.ID == id
		found = found || m.Target
		out[i] = m
	}
	if !found {
		return nil, &MilestoneError{Reason: "no milestone " + id, Err: generic.ErrEntityNotFound}
	}
	return out, nil
}

// ValidateMilestones checks a set before it is stored.
func ValidateMilestones(legalEntityID string, ms []Milestone) error {
	if len(ms) == 0 {
		return &MilestoneError{LegalEntityID: legalEntityID, Reason: "at least one milestone is required", Err: ErrNoTargetMilestone}
	}
	targets := 0
	indexes := make(map[int]bool)
	for _, m := range ms {
		if m.Target {
			targets++
		}
		if indexes[m.Index] {
			return &MilestoneError{LegalEntityID: legalEntityID, Reason: "duplicate index", Err: ErrInvalidMilestone}
		}
		indexes[m.Index] = true
		if m.Interval != nil && *m.Interval < 0 {
			return &MilestoneError{LegalEntityID: legalEntityID, Reason: "interval of " + m.Identifier + " is negative", Err: ErrInvalidMilestone}
		}
		for _, t := range m.Entities {
			if !t.Valid() {
				return &generic.EntityTypeError{Value: string(t)}
			}
		}
	}
	if targets > 1 {
		return &MilestoneError{LegalEntityID: legalEntityID, Reason: "more than one target", Err: ErrMultipleTargets}
	}
	return nil
}

// =============================================================================
// PROJECTOR
// =============================================================================

// ProjectionInput is one period's projection.
type ProjectionInput struct {
	Milestones   []Milestone
	Target       generic.Date
	CountriesFor func(Milestone) []generic.CountrySet
}

// ProjectionResult holds one date per milestone, ordered by index, and the
// deduplicated holidays consulted by all walks.
type ProjectionResult struct {
	Dates    []GeneratedScheduleDate
	Holidays []generic.Holiday
}

// Projector places milestones around a target date.
type Projector struct {
	Resolver *generic.Resolver
}

func NewProjector(r *generic.Resolver) *Projector {
	return &Projector{Resolver: r}
}

func (p *Projector) Project(ctx context.Context, in ProjectionInput) (ProjectionResult, error) {
	target, err := FindTarget(in.Milestones)
	if err != nil {
		return ProjectionResult{}, err
	}

	var before, after []Milestone
	for _, m := range in.Milestones {
		if m.ID == target.ID && m.Index == target.Index {
			continue
		}
		if m.Index <= target.Index {
			before = append(before, m)
		} else {
			after = append(after, m)
		}
	}
	SortMilestones(before)
	SortMilestones(after)
	for i, j := 0, len(before)-1; i < j; i, j = i+1, j-1 {
		before[i], before[j] = before[j], before[i]
	}

	consulted := generic.NewHolidaySet()
	dates := []GeneratedScheduleDate{dateOf(target, in.Target, true)}

	chain := func(ms []Milestone, dir generic.Direction) error {
		prev := in.Target
		for _, m := range ms {
			if m.Interval != nil {
				res, err := p.Resolver.Walk(ctx, generic.WalkInput{
					Countries: p.countries(in, m),
					Start:     prev,
					Days:      *m.Interval,
				}, dir)
				if err != nil {
					return err
				}
				consulted.Add(res.Holidays...)
				prev = res.Date
			}
			dates = append(dates, dateOf(m, prev, false))
		}
		return nil
	}
	if err := chain(before, generic.Backward); err != nil {
		return ProjectionResult{}, err
	}
	if err := chain(after, generic.Forward); err != nil {
		return ProjectionResult{}, err
	}

	sort.SliceStable(dates, func(i, j int) bool { return dates[i].Index < dates[j].Index })
	return ProjectionResult{Dates: dates, Holidays: consulted.Sorted()}, nil
}

func (p *Projector) countries(in ProjectionInput, m Milestone) []generic.CountrySet {
	if in.CountriesFor == nil {
		return nil
	}
	return in.CountriesFor(m)
}

func dateOf(m Milestone, d generic.Date, target bool) GeneratedScheduleDate {
	return GeneratedScheduleDate{
		MilestoneID: m.ID,
		Identifier:  m.Identifier,
		Date:        d,
		Index:       m.Index,
		Target:      target,
	}
}
