package schedule

import (
	"github.com/warp/payroll-schedules/generic"
)

// =============================================================================
// LEGAL ENTITY - The employer whose payroll is scheduled
// =============================================================================

// LegalEntity carries the schedule configuration of one employer and the ids
// of the organisations whose calendars its milestones may follow.
type LegalEntity struct {
	ID         string
	Name       string
	Frequency  Frequency
	TargetRule string // e.g. "last 0" or "date 14,last 0"
	Localities []string

	ServiceCentreID string
	ProviderID      string
	ClientID        string
}

// EntityIDFor resolves a milestone entity reference to a concrete id.
// An empty result means the legal entity is not linked to that kind of
// organisation.
func (le LegalEntity) EntityIDFor(t generic.EntityType) string {
	switch t {
	case generic.EntityLegalEntity:
		return le.ID
	case generic.EntityServiceCentre:
		return le.ServiceCentreID
	case generic.EntityProvider:
		return le.ProviderID
	case generic.EntityClient:
		return le.ClientID
	}
	return ""
}

// Organization is a service centre, provider or client with its own calendar.
type Organization struct {
	ID         string
	Type       generic.EntityType
	Name       string
	Localities []string
}

// =============================================================================
// PERIOD - One payroll cycle
// =============================================================================

// Period is computed on demand and never persisted on its own.
type Period struct {
	Date       generic.Date // anchor
	End        generic.Date
	TargetDate generic.Date
	Name       string
}

// =============================================================================
// GENERATED SCHEDULE
// =============================================================================

// GeneratedScheduleDate is one milestone's date within one period.
type GeneratedScheduleDate struct {
	MilestoneID string
	Identifier  string
	Date        generic.Date
	Index       int
	Target      bool
}

// GeneratedSchedule is the bundle persisted per period.
type GeneratedSchedule struct {
	ID            string
	LegalEntityID string
	Name          string
	Date          generic.Date
	End           generic.Date
	TargetDate    generic.Date
	ScheduleDates []GeneratedScheduleDate
	Holidays      []generic.Holiday
}

// Period returns the period view of the schedule.
func (s GeneratedSchedule) Period() Period {
	return Period{Date: s.Date, End: s.End, TargetDate: s.TargetDate, Name: s.Name}
}

// DateFor returns the date resolved for a milestone.
func (s GeneratedSchedule) DateFor(milestoneID string) (generic.Date, bool) {
	for _, sd := range s.ScheduleDates {
		if sd.MilestoneID == milestoneID {
			return sd.Date, true
		}
	}
	return generic.Date{}, false
}

// WarningMissingEntityData is the code of a milestone entity that could not
// be resolved to any locality.
const WarningMissingEntityData = "missing_entity_data"

// Warning is a non-fatal problem found during generation.
type Warning struct {
	Code        string
	MilestoneID string
	EntityType  generic.EntityType
	EntityID    string
	Message     string
}

func (w Warning) Error() string {
	return w.Code + ": " + w.Message
}

// Unwrap lets callers match a warning with errors.Is.
func (w Warning) Unwrap() error {
	if w.Code == WarningMissingEntityData {
		return generic.ErrMissingEntityData
	}
	return nil
}

// GeneratedScheduleSet is the complete, self-consistent output of one
// Generate call, suitable for atomic persistence.
type GeneratedScheduleSet struct {
	LegalEntityID string
	Frequency     Frequency
	Range         generic.Range
	Schedules     []GeneratedSchedule
	Warnings      []Warning
}

// Holidays returns every consulted holiday across all schedules, deduplicated.
func (s *GeneratedScheduleSet) Holidays() []generic.Holiday {
	set := generic.NewHolidaySet()
	for _, sch := range s.Schedules {
		set.Add(sch.Holidays...)
	}
	return set.Sorted()
}
