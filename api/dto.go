/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract: dates travel
  as YYYY-MM-DD strings, enums as their string values, and field names are
  snake_case.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Legal entities: LegalEntityDTO
  Milestones:     MilestoneDTO, ReplaceMilestonesRequest
  Schedules:      GenerateRequest, ScheduleSetDTO, ScheduleDTO, ScheduleDateDTO, WarningDTO
  Calendars:      HolidayDTO, WorkingDaysDTO, WalkRequest, WalkDTO
  Scenarios:      ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Validation is done in handlers and the domain packages, not in DTOs.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/payroll-schedules/generic"
	"github.com/warp/payroll-schedules/schedule"
)

// =============================================================================
// LEGAL ENTITIES AND MILESTONES
// =============================================================================

// LegalEntityDTO is both the response and the create/update request.
type LegalEntityDTO struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Frequency       string   `json:"frequency"`
	TargetRule      string   `json:"target_rule"`
	Localities      []string `json:"localities"`
	ServiceCentreID string   `json:"service_centre_id,omitempty"`
	ProviderID      string   `json:"provider_id,omitempty"`
	ClientID        string   `json:"client_id,omitempty"`
}

// MilestoneDTO represents one milestone.
type MilestoneDTO struct {
	ID         string   `json:"id"`
	Identifier string   `json:"identifier"`
	Name       string   `json:"name,omitempty"`
	Index      int      `json:"index"`
	Interval   *int     `json:"interval"`
	Target     bool     `json:"target"`
	Entities   []string `json:"entities,omitempty"`
}

// ReplaceMilestonesRequest swaps a legal entity's whole milestone set.
type ReplaceMilestonesRequest struct {
	Milestones []MilestoneDTO `json:"milestones"`
}

// =============================================================================
// SCHEDULES
// =============================================================================

// GenerateRequest selects the range. Persist saves the set and publishes an event.
type GenerateRequest struct {
	Start   string `json:"start"`
	End     string `json:"end"`
	Persist bool   `json:"persist"`
}

// ScheduleSetDTO is the result of a generation.
type ScheduleSetDTO struct {
	LegalEntityID string        `json:"legal_entity_id"`
	Frequency     string        `json:"frequency"`
	Start         string        `json:"start"`
	End           string        `json:"end"`
	Persisted     bool          `json:"persisted"`
	Schedules     []ScheduleDTO `json:"schedules"`
	Warnings      []WarningDTO  `json:"warnings"`
	Holidays      []HolidayDTO  `json:"holidays"`
}

// ScheduleDTO represents one period's schedule.
type ScheduleDTO struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Date          string            `json:"date"`
	End           string            `json:"end"`
	TargetDate    string            `json:"target_date"`
	ScheduleDates []ScheduleDateDTO `json:"schedule_dates"`
	Holidays      []HolidayDTO      `json:"holidays"`
}

// ScheduleDateDTO is one milestone's date.
type ScheduleDateDTO struct {
	MilestoneID string `json:"milestone_id"`
	Identifier  string `json:"identifier,omitempty"`
	Date        string `json:"date"`
	Index       int    `json:"index"`
	Target      bool   `json:"target"`
}

// WarningDTO is a non-fatal generation problem.
type WarningDTO struct {
	Code        string `json:"code"`
	MilestoneID string `json:"milestone_id"`
	EntityType  string `json:"entity_type"`
	EntityID    string `json:"entity_id,omitempty"`
	Message     string `json:"message"`
}

// =============================================================================
// CALENDARS
// =============================================================================

// HolidayDTO is both the response and the create request.
type HolidayDTO struct {
	ID         string `json:"id,omitempty"`
	Name       string `json:"name"`
	Date       string `json:"date"`
	Observed   string `json:"observed,omitempty"`
	Locality   string `json:"locality"`
	EntityType string `json:"entity_type,omitempty"`
	EntityID   string `json:"entity_id,omitempty"`
}

// WorkingDaysDTO is a country's working week.
type WorkingDaysDTO struct {
	Country  string   `json:"country"`
	Weekdays []string `json:"weekdays"`
	Default  bool     `json:"default"`
}

// CountrySetDTO is one entity's countries.
type CountrySetDTO struct {
	EntityID  string   `json:"entity_id"`
	Countries []string `json:"countries"`
}

// WalkRequest is an ad-hoc working-day walk.
type WalkRequest struct {
	Countries []CountrySetDTO `json:"countries"`
	Start     string          `json:"start"`
	Days      int             `json:"days"`
	Direction string          `json:"direction"` // "previous" or "next"
}

// WalkDTO is the walk result.
type WalkDTO struct {
	Date     string       `json:"date"`
	Holidays []HolidayDTO `json:"holidays"`
}

// =============================================================================
// SCENARIOS AND ERRORS
// =============================================================================

// ScenarioDTO describes a demo data set.
type ScenarioDTO struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	LegalEntityID string `json:"legal_entity_id"`
}

// LoadScenarioRequest selects a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the body of every error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toLegalEntityDTO(le schedule.LegalEntity) LegalEntityDTO {
	localities := le.Localities
	if localities == nil {
		localities = []string{}
	}
	return LegalEntityDTO{
		ID:              le.ID,
		Name:            le.Name,
		Frequency:       string(le.Frequency),
		TargetRule:      le.TargetRule,
		Localities:      localities,
		ServiceCentreID: le.ServiceCentreID,
		ProviderID:      le.ProviderID,
		ClientID:        le.ClientID,
	}
}

func toMilestoneDTO(m schedule.Milestone) MilestoneDTO {
	dto := MilestoneDTO{
		ID:         m.ID,
		Identifier: m.Identifier,
		Name:       m.Name,
		Index:      m.Index,
		Interval:   m.Interval,
		Target:     m.Target,
	}
	for _, e := range m.Entities {
		dto.Entities = append(dto.Entities, e.String())
	}
	return dto
}

func fromMilestoneDTO(legalEntityID string, dto MilestoneDTO) (schedule.Milestone, error) {
	m := schedule.Milestone{
		ID:         dto.ID,
		Identifier: dto.Identifier,
		Name:       dto.Name,
		Index:      dto.Index,
		Interval:   dto.Interval,
		Target:     dto.Target,
	}
	if m.ID == "" {
		m.ID = legalEntityID + "-" + m.Identifier
	}
	for _, e := range dto.Entities {
		t, err := generic.ParseEntityType(e)
		if err != nil {
			return schedule.Milestone{}, err
		}
		m.Entities = append(m.Entities, t)
	}
	return m, nil
}

// NewScheduleSetDTO converts a generation result for the API and CLI.
func NewScheduleSetDTO(set *schedule.GeneratedScheduleSet, persisted bool) ScheduleSetDTO {
	dto := ScheduleSetDTO{
		LegalEntityID: set.LegalEntityID,
		Frequency:     string(set.Frequency),
		Start:         set.Range.Start.String(),
		End:           set.Range.End.String(),
		Persisted:     persisted,
		Schedules:     toScheduleDTOs(set.Schedules),
		Warnings:      make([]WarningDTO, 0, len(set.Warnings)),
		Holidays:      toHolidayDTOs(set.Holidays()),
	}
	for _, w := range set.Warnings {
		dto.Warnings = append(dto.Warnings, WarningDTO{
			Code:        w.Code,
			MilestoneID: w.MilestoneID,
			EntityType:  w.EntityType.String(),
			EntityID:    w.EntityID,
			Message:     w.Message,
		})
	}
	return dto
}

func toScheduleDTOs(schedules []schedule.GeneratedSchedule) []ScheduleDTO {
	out := make([]ScheduleDTO, 0, len(schedules))
	for _, s := range schedules {
		dto := ScheduleDTO{
			ID:            s.ID,
			Name:          s.Name,
			Date:          s.Date.String(),
			End:           s.End.String(),
			TargetDate:    s.TargetDate.String(),
			ScheduleDates: make([]ScheduleDateDTO, 0, len(s.ScheduleDates)),
			Holidays:      toHolidayDTOs(s.Holidays),
		}
		for _, sd := range s.ScheduleDates {
			dto.ScheduleDates = append(dto.ScheduleDates, ScheduleDateDTO{
				MilestoneID: sd.MilestoneID,
				Identifier:  sd.Identifier,
				Date:        sd.Date.String(),
				Index:       sd.Index,
				Target:      sd.Target,
			})
		}
		out = append(out, dto)
	}
	return out
}

func toHolidayDTOs(hs []generic.Holiday) []HolidayDTO {
	out := make([]HolidayDTO, 0, len(hs))
	for _, h := range hs {
		dto := HolidayDTO{
			ID:         h.ID,
			Name:       h.Name,
			Date:       h.Date.String(),
			Locality:   h.Locality,
			EntityType: h.EntityType.String(),
			EntityID:   h.EntityID,
		}
		if !h.Observed.IsZero() {
			dto.Observed = h.Observed.String()
		}
		out = append(out, dto)
	}
	return out
}

func weekdayNames(days []time.Weekday) []string {
	out := make([]string, 0, len(days))
	for _, d := range days {
		out = append(out, d.String())
	}
	return out
}
