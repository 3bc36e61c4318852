/*
workdays.go - Working-day walks across one or more country calendars

PURPOSE:
  Moves a date forward or backward by a number of working days, where a
  working day must be one in EVERY referenced country at once.

WORKING DAY:
  A date is a working day iff
    (a) its weekday is in the intersection of all countries' working weeks
        (Mon-Fri unless WorkingDaysOverride says otherwise), and
    (b) it is not a holiday in any referenced (country, entity) pair.

DAYS SEMANTICS:
  Days = 0  Snap: keep Start when it is a working day, otherwise behave as 1.
  Days = n  Step n working days; Start itself never counts.

HOLIDAY LOADING:
  Holidays are fetched per calendar year, lazily, the first time the walk
  evaluates a date in that year. The cache lives for one call only.

BOUNDS:
  An empty weekday intersection fails immediately. Otherwise the walk stops
  with ErrUnboundedWalk after MaxWalk calendar days.

EXAMPLE:
  r := generic.NewResolver(holidays, workingDays)
  res, err := r.DeterminePrevious(ctx, generic.WalkInput{
      Countries: []generic.CountrySet{{EntityID: "le-1", Countries: []string{"GB"}}},
      Start:     generic.NewDate(2024, time.March, 31),
      Days:      0,
  })
  // res.Date == 2024-03-28 (Good Friday and the weekend are skipped)

SEE ALSO:
  - store.go: HolidayProvider, WorkingDaysOverride
  - schedule/target.go, schedule/milestone.go: Callers
*/
package generic

import (
	"context"
	"time"

	"github.com/warp/payroll-schedules/metrics"
)

// DefaultMaxWalk bounds a walk to roughly ten years of calendar days.
const DefaultMaxWalk = 3660

// DefaultWalkDays is used when a caller has no explicit offset.
const DefaultWalkDays = 1

// Direction of a walk.
type Direction int

const (
	Backward Direction = -1
	Forward  Direction = 1
)

func (d Direction) String() string {
	if d == Backward {
		return "previous"
	}
	return "next"
}

// WalkInput describes one walk.
type WalkInput struct {
	Countries []CountrySet
	Start     Date
	Days      int
}

// WalkResult is the landing date plus every holiday met on the way.
type WalkResult struct {
	Date     Date
	Holidays []Holiday
}

// =============================================================================
// RESOLVER
// =============================================================================

// Resolver walks working days. It holds no per-walk state and is safe for
// concurrent use when its collaborators are.
type Resolver struct {
	Holidays    HolidayProvider
	WorkingDays WorkingDaysOverride

	// MaxWalk caps the calendar days one walk may step. Zero means DefaultMaxWalk.
	MaxWalk int
}

func NewResolver(holidays HolidayProvider, workingDays WorkingDaysOverride) *Resolver {
	return &Resolver{Holidays: holidays, WorkingDays: workingDays, MaxWalk: DefaultMaxWalk}
}

// WithHolidays returns a copy of the resolver reading holidays from p.
func (r *Resolver) WithHolidays(p HolidayProvider) *Resolver {
	cp := *r
	cp.Holidays = p
	return &cp
}

// DeterminePrevious walks backward.
func (r *Resolver) DeterminePrevious(ctx context.Context, in WalkInput) (WalkResult, error) {
	return r.walk(ctx, in, Backward)
}

// DetermineNext walks forward.
func (r *Resolver) DetermineNext(ctx context.Context, in WalkInput) (WalkResult, error) {
	return r.walk(ctx, in, Forward)
}

// Walk dispatches on direction.
func (r *Resolver) Walk(ctx context.Context, in WalkInput, dir Direction) (WalkResult, error) {
	return r.walk(ctx, in, dir)
}

// IsWorkingDay evaluates a single date.
func (r *Resolver) IsWorkingDay(ctx context.Context, countries []CountrySet, d Date) (bool, error) {
	week, err := r.workingWeek(ctx, countries)
	if err != nil {
		return false, err
	}
	cal := newYearCache(r.Holidays, countries)
	return cal.isWorkingDay(ctx, d, week)
}

func (r *Resolver) walk(ctx context.Context, in WalkInput, dir Direction) (WalkResult, error) {
	week, err := r.workingWeek(ctx, in.Countries)
	if err != nil {
		return WalkResult{}, err
	}
	if week.empty() {
		return WalkResult{}, &UnboundedWalkError{
			Start: in.Start, Days: in.Days, Direction: dir.String(),
			Countries: Localities(in.Countries), Reason: "countries share no working weekday",
		}
	}

	cal := newYearCache(r.Holidays, in.Countries)
	cursor := in.Start
	remaining := in.Days

	if remaining <= 0 {
		working, err := cal.isWorkingDay(ctx, cursor, week)
		if err != nil {
			return WalkResult{}, err
		}
		if working {
			metrics.ObserveWalk(dir.String(), 0)
			return WalkResult{Date: cursor, Holidays: cal.consulted.Sorted()}, nil
		}
		remaining = 1
	}

	limit := r.MaxWalk
	if limit <= 0 {
		limit = DefaultMaxWalk
	}
	for step := 1; step <= limit; step++ {
		if err := ctx.Err(); err != nil {
			return WalkResult{}, err
		}
		cursor = cursor.AddDays(int(dir))
		working, err := cal.isWorkingDay(ctx, cursor, week)
		if err != nil {
			return WalkResult{}, err
		}
		if !working {
			continue
		}
		remaining--
		if remaining == 0 {
			metrics.ObserveWalk(dir.String(), step)
			return WalkResult{Date: cursor, Holidays: cal.consulted.Sorted()}, nil
		}
	}

	return WalkResult{}, &UnboundedWalkError{
		Start: in.Start, Days: in.Days, Direction: dir.String(), Steps: limit,
		Countries: Localities(in.Countries), Reason: "iteration cap reached",
	}
}

// =============================================================================
// WORKING WEEK - Intersection of every country's weekdays
// =============================================================================

type weekdaySet [7]bool

func weekdaysOf(days []time.Weekday) weekdaySet {
	var s weekdaySet
	for _, d := range days {
		if d >= time.Sunday && d <= time.Saturday {
			s[d] = true
		}
	}
	return s
}

func (s weekdaySet) intersect(other weekdaySet) weekdaySet {
	for i := range s {
		s[i] = s[i] && other[i]
	}
	return s
}

func (s weekdaySet) empty() bool {
	for _, ok := range s {
		if ok {
			return false
		}
	}
	return true
}

func (s weekdaySet) list() []time.Weekday {
	var out []time.Weekday
	for i, ok := range s {
		if ok {
			out = append(out, time.Weekday(i))
		}
	}
	return out
}

// WorkingWeekdays returns the weekdays that are working days in every country.
func (r *Resolver) WorkingWeekdays(ctx context.Context, countries []CountrySet) ([]time.Weekday, error) {
	week, err := r.workingWeek(ctx, countries)
	if err != nil {
		return nil, err
	}
	return week.list(), nil
}

func (r *Resolver) workingWeek(ctx context.Context, countries []CountrySet) (weekdaySet, error) {
	codes := Localities(countries)
	defaults := weekdaysOf(DefaultWorkingWeekdays)
	if len(codes) == 0 {
		return defaults, nil
	}

	var overrides map[string][]time.Weekday
	if r.WorkingDays != nil {
		var err error
		overrides, err = r.WorkingDays.GetWorkingWeekdays(ctx, codes)
		if err != nil {
			return weekdaySet{}, err
		}
	}

	week := weekdaysOf([]time.Weekday{
		time.Sunday, time.Monday, time.Tuesday, time.Wednesday,
		time.Thursday, time.Friday, time.Saturday,
	})
	for _, code := range codes {
		if days, ok := overrides[code]; ok {
			week = week.intersect(weekdaysOf(days))
			continue
		}
		week = week.intersect(defaults)
	}
	return week, nil
}

// =============================================================================
// YEAR CACHE - Holidays of one walk, loaded a year at a time
// =============================================================================

type localityPair struct {
	locality string
	entityID string
}

type yearCache struct {
	provider  HolidayProvider
	pairs     []localityPair
	years     map[int]map[string][]Holiday // year -> YYYY-MM-DD -> holidays
	consulted *HolidaySet
}

func newYearCache(provider HolidayProvider, countries []CountrySet) *yearCache {
	seen := make(map[localityPair]bool)
	var pairs []localityPair
	for _, set := range countries {
		for _, c := range set.Countries {
			p := localityPair{locality: NormalizeCountry(c), entityID: set.EntityID}
			if p.locality == "" || seen[p] {
				continue
			}
			seen[p] = true
			pairs = append(pairs, p)
		}
	}
	return &yearCache{
		provider:  provider,
		pairs:     pairs,
		years:     make(map[int]map[string][]Holiday),
		consulted: NewHolidaySet(),
	}
}

func (c *yearCache) load(ctx context.Context, year int) (map[string][]Holiday, error) {
	if byDay, ok := c.years[year]; ok {
		return byDay, nil
	}
	byDay := make(map[string][]Holiday)
	if c.provider != nil {
		for _, p := range c.pairs {
			metrics.RecordHolidayFetch()
			hs, err := c.provider.ListHolidaysForEntityAndYear(ctx, p.locality, p.entityID, year)
			if err != nil {
				return nil, err
			}
			for _, h := range hs {
				k := h.Day().String()
				byDay[k] = append(byDay[k], h)
			}
		}
	}
	c.years[year] = byDay
	return byDay, nil
}

func (c *yearCache) isWorkingDay(ctx context.Context, d Date, week weekdaySet) (bool, error) {
	byDay, err := c.load(ctx, d.Year())
	if err != nil {
		return false, err
	}
	holidays := byDay[d.String()]
	c.consulted.Add(holidays...)
	return week[d.Weekday()] && len(holidays) == 0, nil
}
