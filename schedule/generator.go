/*
generator.go - Generation entry point

PURPOSE:
  Generate turns one legal entity's configuration and a date range into a
  complete GeneratedScheduleSet: every period, its target date, every
  milestone date and the holidays consulted on the way.

FLOW:
  1. Load legal entity and milestones
  2. Validate frequency, target rule and target milestone (fatal)
  3. Resolve each milestone's country sets once (missing data = warning)
  4. Enumerate period anchors (DatesFor)
  5. Per period, in parallel up to Concurrency:
       target rule entry -> target date -> milestone projection
  6. Assemble in ascending anchor order

CONCURRENCY:
  Periods share no mutable state apart from a read-through holiday cache
  that lives for one Generate call. Within a period the milestone chains are
  sequential. Output order never depends on completion order.

PERSISTENCE:
  GenerateAndSave hands the complete set to ScheduleStore.SaveScheduleSet,
  which is all-or-nothing, then notifies. A failed generation persists
  nothing.

SEE ALSO:
  - frequency.go, target.go, milestone.go: The three stages
  - store.go: Collaborators
  - api/scheduler.go: Rolling background generation
*/
package schedule

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/warp/payroll-schedules/generic"
	"github.com/warp/payroll-schedules/metrics"
)

// DefaultConcurrency bounds parallel period projections.
const DefaultConcurrency = 4

// GenerateInput selects the legal entity and the range.
type GenerateInput struct {
	LegalEntityID string
	Start         generic.Date
	End           generic.Date
}

// Range returns the input as a generic.Range.
func (in GenerateInput) Range() generic.Range {
	return generic.Range{Start: in.Start, End: in.End}
}

// Generator wires the collaborators together.
type Generator struct {
	LegalEntities LegalEntityStore
	Milestones    MilestoneStore
	Schedules     ScheduleStore // required by GenerateAndSave only
	Locator       generic.EntityLocator
	Resolver      *generic.Resolver
	Notifier      Notifier // optional
	Concurrency   int
	Logger        zerolog.Logger
}

// Store is the union of collaborators a single backend usually provides.
type Store interface {
	LegalEntityStore
	MilestoneStore
	ScheduleStore
	generic.EntityLocator
	generic.HolidayProvider
	generic.WorkingDaysOverride
}

// NewGenerator builds a generator over one backend.
func NewGenerator(s Store, logger zerolog.Logger) *Generator {
	return &Generator{
		LegalEntities: s,
		Milestones:    s,
		Schedules:     s,
		Locator:       s,
		Resolver:      generic.NewResolver(s, s),
		Concurrency:   DefaultConcurrency,
		Logger:        logger,
	}
}

// Generate computes the schedule set without persisting it.
func (g *Generator) Generate(ctx context.Context, in GenerateInput) (*GeneratedScheduleSet, error) {
	started := time.Now()
	set, err := g.generate(ctx, in)
	if err != nil {
		metrics.RecordGenerationFailure(FailureReason(err))
		g.Logger.Error().Err(err).
			Str("legal_entity_id", in.LegalEntityID).
			Str("range", in.Range().String()).
			Msg("schedule generation failed")
		return nil, err
	}

	metrics.RecordGeneration(string(set.Frequency), len(set.Schedules), time.Since(started).Seconds())
	g.Logger.Info().
		Str("legal_entity_id", set.LegalEntityID).
		Str("frequency", string(set.Frequency)).
		Int("periods", len(set.Schedules)).
		Int("warnings", len(set.Warnings)).
		Dur("took", time.Since(started)).
		Msg("schedule set generated")
	return set, nil
}

// GenerateAndSave generates, persists atomically, then notifies.
func (g *Generator) GenerateAndSave(ctx context.Context, in GenerateInput) (*GeneratedScheduleSet, error) {
	set, err := g.Generate(ctx, in)
	if err != nil {
		g.notifyFailure(ctx, in.LegalEntityID, err)
		return nil, err
	}
	if g.Schedules == nil {
		return nil, errors.New("schedule store not configured")
	}
	if err := g.Schedules.SaveScheduleSet(ctx, set); err != nil {
		err = errors.Wrapf(err, "save schedules of legal entity %s", set.LegalEntityID)
		metrics.RecordGenerationFailure("persistence")
		g.notifyFailure(ctx, in.LegalEntityID, err)
		return nil, err
	}
	if g.Notifier != nil {
		if nerr := g.Notifier.ScheduleSetGenerated(ctx, set); nerr != nil {
			g.Logger.Warn().Err(nerr).Str("legal_entity_id", set.LegalEntityID).Msg("notify generated failed")
		}
	}
	return set, nil
}

func (g *Generator) notifyFailure(ctx context.Context, legalEntityID string, cause error) {
	if g.Notifier == nil {
		return
	}
	if err := g.Notifier.ScheduleGenerationFailed(ctx, legalEntityID, cause); err != nil {
		g.Logger.Warn().Err(err).Str("legal_entity_id", legalEntityID).Msg("notify failure failed")
	}
}

// =============================================================================
// GENERATION
// =============================================================================

func (g *Generator) generate(ctx context.Context, in GenerateInput) (*GeneratedScheduleSet, error) {
	rng := in.Range()
	if err := rng.Validate(); err != nil {
		return nil, err
	}

	le, err := g.LegalEntities.GetLegalEntity(ctx, in.LegalEntityID)
	if err != nil {
		return nil, errors.Wrapf(err, "load legal entity %s", in.LegalEntityID)
	}
	if !le.Frequency.Valid() {
		return nil, &FrequencyError{Value: string(le.Frequency)}
	}
	rules, err := ParseTargetRules(le.TargetRule)
	if err != nil {
		return nil, err
	}

	milestones, err := g.Milestones.ListMilestones(ctx, le.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "load milestones of legal entity %s", le.ID)
	}
	SortMilestones(milestones)
	target, err := FindTarget(milestones)
	if err != nil {
		return nil, &MilestoneError{LegalEntityID: le.ID, Reason: "no milestones configured", Err: err}
	}

	countries, warnings, err := g.resolveCountries(ctx, le, milestones)
	if err != nil {
		return nil, err
	}

	anchors, err := DatesFor(le.Frequency, in.Start, in.End)
	if err != nil {
		return nil, err
	}

	resolver := g.walker()
	targets := NewTargetResolver(resolver)
	projector := NewProjector(resolver)
	countriesFor := func(m Milestone) []generic.CountrySet { return countries[m.ID] }

	schedules := make([]GeneratedSchedule, len(anchors))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.concurrency())
	for i, anchor := range anchors {
		eg.Go(func() error {
			rule := RuleFor(le.Frequency, anchor, rules)
			dates, targetHolidays, err := targets.DetermineTargetDateWithHolidays(egCtx, TargetInput{
				Countries: countries[target.ID],
				Date:      anchor,
				Frequency: le.Frequency,
				Rules:     []TargetRule{rule},
			})
			if err != nil {
				return errors.Wrapf(err, "target date of period %s", anchor)
			}

			projection, err := projector.Project(egCtx, ProjectionInput{
				Milestones:   milestones,
				Target:       dates[0],
				CountriesFor: countriesFor,
			})
			if err != nil {
				return errors.Wrapf(err, "milestones of period %s", anchor)
			}

			holidays := generic.NewHolidaySet()
			holidays.Add(targetHolidays...)
			holidays.Add(projection.Holidays...)

			schedules[i] = GeneratedSchedule{
				ID:            ScheduleID(le.ID, anchor),
				LegalEntityID: le.ID,
				Name:          NameFor(le.Frequency, anchor),
				Date:          anchor,
				End:           EndOf(le.Frequency, anchor),
				TargetDate:    dates[0],
				ScheduleDates: projection.Dates,
				Holidays:      holidays.Sorted(),
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return &GeneratedScheduleSet{
		LegalEntityID: le.ID,
		Frequency:     le.Frequency,
		Range:         rng,
		Schedules:     schedules,
		Warnings:      warnings,
	}, nil
}

// walker returns a resolver whose holiday lookups share one cache for the
// duration of a Generate call.
func (g *Generator) walker() *generic.Resolver {
	base := g.Resolver
	if base == nil {
		base = generic.NewResolver(nil, nil)
	}
	if base.Holidays == nil {
		return base
	}
	return base.WithHolidays(generic.NewCachedHolidayProvider(base.Holidays))
}

func (g *Generator) concurrency() int {
	if g.Concurrency <= 0 {
		return DefaultConcurrency
	}
	return g.Concurrency
}

// resolveCountries maps each milestone id to the country sets of the
// entities it follows. Unresolvable entities produce warnings.
func (g *Generator) resolveCountries(ctx context.Context, le LegalEntity, ms []Milestone) (map[string][]generic.CountrySet, []Warning, error) {
	type lookup struct {
		sets []generic.CountrySet
		warn *Warning
	}
	cache := make(map[generic.EntityType]lookup)

	resolve := func(t generic.EntityType) (lookup, error) {
		if l, ok := cache[t]; ok {
			return l, nil
		}
		id := le.EntityIDFor(t)
		var l lookup
		switch {
		case id == "":
			l.warn = &Warning{
				Code: WarningMissingEntityData, EntityType: t,
				Message: "legal entity " + le.ID + " has no " + t.String(),
			}
		case g.Locator == nil:
			l.sets = []generic.CountrySet{{EntityID: id, Countries: le.Localities}}
		default:
			countries, err := g.Locator.GetLocalitiesForEntity(ctx, t, id)
			switch {
			case generic.IsNotFound(err):
				l.warn = &Warning{
					Code: WarningMissingEntityData, EntityType: t, EntityID: id,
					Message: t.String() + " " + id + " not found",
				}
			case err != nil:
				return lookup{}, errors.Wrapf(err, "localities of %s %s", t, id)
			case len(countries) == 0:
				l.warn = &Warning{
					Code: WarningMissingEntityData, EntityType: t, EntityID: id,
					Message: t.String() + " " + id + " has no localities",
				}
			default:
				l.sets = []generic.CountrySet{{EntityID: id, Countries: countries}}
			}
		}
		cache[t] = l
		return l, nil
	}

	out := make(map[string][]generic.CountrySet, len(ms))
	var warnings []Warning
	for _, m := range ms {
		var sets []generic.CountrySet
		for _, t := range m.EntitiesOrDefault() {
			if !t.Valid() {
				return nil, nil, &generic.EntityTypeError{Value: string(t)}
			}
			l, err := resolve(t)
			if err != nil {
				return nil, nil, err
			}
			if l.warn != nil {
				w := *l.warn
				w.MilestoneID = m.ID
				warnings = append(warnings, w)
				metrics.RecordEntityWarning(t.String())
				g.Logger.Warn().
					Err(w).
					Str("legal_entity_id", le.ID).
					Str("milestone_id", m.ID).
					Str("entity_type", t.String()).
					Str("entity_id", w.EntityID).
					Msg(w.Message)
				continue
			}
			sets = append(sets, l.sets...)
		}
		out[m.ID] = sets
	}
	return out, warnings, nil
}

// ScheduleID is stable for a (legal entity, anchor) pair so regenerating a
// period upserts the same row.
func ScheduleID(legalEntityID string, anchor generic.Date) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(legalEntityID+"|"+anchor.String())).String()
}
