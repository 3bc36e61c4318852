/*
store.go - Persistence and notification collaborators

PURPOSE:
  The generator reads configuration and writes results only through these
  interfaces. Calendar collaborators (holidays, localities, working weeks)
  are defined in generic/store.go.

KEY INTERFACES:
  LegalEntityStore: Legal entity configuration
  MilestoneStore:   Milestone sets per legal entity
  ScheduleStore:    Atomic persistence of generated schedule sets
  Notifier:         Generation outcome notifications

ATOMICITY:
  SaveScheduleSet must persist the whole set or nothing. Schedules are
  upserted by (legal entity, anchor date), replacing their dates and
  holidays.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - events/: Notifier over Kafka
*/
package schedule

import (
	"context"

	"github.com/warp/payroll-schedules/generic"
)

// LegalEntityStore reads legal entity configuration.
type LegalEntityStore interface {
	// GetLegalEntity returns an error wrapping generic.ErrEntityNotFound for unknown ids.
	GetLegalEntity(ctx context.Context, id string) (LegalEntity, error)
	ListLegalEntities(ctx context.Context) ([]LegalEntity, error)
}

// MilestoneStore reads milestone sets.
type MilestoneStore interface {
	// ListMilestones returns the set ordered by index. An empty slice is not an error.
	ListMilestones(ctx context.Context, legalEntityID string) ([]Milestone, error)
}

// ScheduleStore persists generated schedules.
type ScheduleStore interface {
	SaveScheduleSet(ctx context.Context, set *GeneratedScheduleSet) error
	ListSchedules(ctx context.Context, legalEntityID string, r generic.Range) ([]GeneratedSchedule, error)
}

// Notifier is told about every generation outcome.
type Notifier interface {
	ScheduleSetGenerated(ctx context.Context, set *GeneratedScheduleSet) error
	ScheduleGenerationFailed(ctx context.Context, legalEntityID string, cause error) error
}
