/*
store.go - Collaborator interfaces consumed by the calendar engine

PURPOSE:
  Defines the boundary between date computation and the data that feeds it.
  The engine never reads a database directly: holiday feeds, entity
  localities and working-week overrides all arrive through these interfaces.

KEY INTERFACES:
  HolidayProvider:     Effective holidays for one locality/entity/year
  EntityLocator:       Which countries an organisation operates in
  WorkingDaysOverride: Custom working weekdays per country

MERGE CONTRACT:
  ListHolidaysForEntityAndYear returns the merged list: country-wide holidays
  plus the entity's custom holidays, a custom holiday replacing a country one
  on the same day (see MergeHolidays).

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - generic/store/memory.go: In-memory for testing
  - cache.go: Read-through cache over any HolidayProvider

SEE ALSO:
  - workdays.go: The consumer of all three interfaces
*/
package generic

import (
	"context"
	"time"
)

// HolidayProvider supplies holiday data.
type HolidayProvider interface {
	// ListHolidaysForEntityAndYear returns the effective holidays of one
	// locality for one entity in one calendar year. An empty entityID
	// returns the country-wide list only.
	ListHolidaysForEntityAndYear(ctx context.Context, locality, entityID string, year int) ([]Holiday, error)
}

// EntityLocator resolves an organisation to its countries.
type EntityLocator interface {
	// GetLocalitiesForEntity returns ISO country codes.
	// Returns an error wrapping ErrEntityNotFound for unknown entities.
	GetLocalitiesForEntity(ctx context.Context, entityType EntityType, entityID string) ([]string, error)
}

// WorkingDaysOverride supplies custom working weeks.
type WorkingDaysOverride interface {
	// GetWorkingWeekdays returns the overrides that exist for the given
	// countries. Countries without an override are absent from the map and
	// use DefaultWorkingWeekdays.
	GetWorkingWeekdays(ctx context.Context, countries []string) (map[string][]time.Weekday, error)
}

// DefaultWorkingWeekdays is Monday to Friday.
var DefaultWorkingWeekdays = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
}
