/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	schedule configuration. Each scenario is a YAML template parsed by the
	template factory and written to the store: legal entity, linked
	organisations, milestones, holidays and working-week overrides.

AVAILABLE SCENARIOS:

	uk-monthly:      Single country, monthly, last working day, four milestones
	gulf-weekly:     Weekly on Thursday, Dubai service centre working Sun-Thu
	us-semi-monthly: Semi-monthly on the 15th and last working day, client calendar

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Parse the scenario template
 3. Save organisations, then the legal entity
 4. Replace milestones
 5. Save holidays and working-day overrides

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "gulf-weekly"}

ADDING NEW SCENARIOS:
 1. Add a YAML template constant
 2. Add to 'scenarios' slice with ID, name, description and template

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler
  - factory/template.go: Template schema
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/warp/payroll-schedules/factory"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type scenario struct {
	ScenarioDTO
	template string
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:            "uk-monthly",
			Name:          "UK Monthly",
			Description:   "Monthly payroll paid on the last working day in England, with inputs, approval and reporting milestones around it",
			LegalEntityID: "le-uk",
		},
		template: ukMonthlyTemplate,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:            "gulf-weekly",
			Name:          "Gulf Weekly",
			Description:   "Weekly payroll paid on Thursday; inputs follow both the UK calendar and a Dubai service centre working Sunday to Thursday",
			LegalEntityID: "le-gulf",
		},
		template: gulfWeeklyTemplate,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:            "us-semi-monthly",
			Name:          "US Semi-Monthly",
			Description:   "Semi-monthly payroll paid on the 15th and the last working day, approvals on the client's calendar",
			LegalEntityID: "le-us",
		},
		template: usSemiMonthlyTemplate,
	},
}

// Scenarios returns the available scenarios.
func Scenarios() []ScenarioDTO {
	out := make([]ScenarioDTO, 0, len(scenarios))
	for _, s := range scenarios {
		out = append(out, s.ScenarioDTO)
	}
	return out
}

// =============================================================================
// SCENARIO HANDLERS
// =============================================================================

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Scenarios())
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	current := h.CurrentScenario()
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s.ScenarioDTO)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	s, ok := findScenario(req.ScenarioID)
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}
	if err := h.LoadScenarioByID(r.Context(), s.ID); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":          "loaded",
		"scenario":        s.ID,
		"legal_entity_id": s.LegalEntityID,
	})
}

// LoadScenarioByID resets the store and loads one scenario.
func (h *Handler) LoadScenarioByID(ctx context.Context, id string) error {
	s, ok := findScenario(id)
	if !ok {
		return fmt.Errorf("unknown scenario %q", id)
	}

	tpl, err := h.Templates.ParseYAML(s.template)
	if err != nil {
		return fmt.Errorf("scenario %s: %w", id, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset database: %w", err)
	}
	h.currentScenario = ""

	if err := h.ApplyTemplate(ctx, tpl); err != nil {
		return err
	}
	h.currentScenario = id
	h.Logger.Info().Str("scenario", id).Str("legal_entity_id", tpl.LegalEntity.ID).Msg("scenario loaded")
	return nil
}

// ApplyTemplate writes every part of a template to the store.
func (h *Handler) ApplyTemplate(ctx context.Context, tpl *factory.Template) error {
	for _, org := range tpl.Organizations {
		if err := h.Store.SaveOrganization(ctx, org); err != nil {
			return err
		}
	}
	if err := h.Store.SaveLegalEntity(ctx, tpl.LegalEntity); err != nil {
		return err
	}
	if err := h.Store.ReplaceMilestones(ctx, tpl.LegalEntity.ID, tpl.Milestones); err != nil {
		return err
	}
	if err := h.Store.SaveHolidays(ctx, tpl.Holidays); err != nil {
		return err
	}
	for country, days := range tpl.WorkingDays {
		if err := h.Store.SetWorkingWeekdays(ctx, country, days); err != nil {
			return err
		}
	}
	return nil
}

func findScenario(id string) (scenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return scenario{}, false
}

// =============================================================================
// SCENARIO TEMPLATES
// =============================================================================

const ukMonthlyTemplate = `
legal_entity:
  id: le-uk
  name: Acme UK Ltd
  frequency: monthly
  target_rule: "last 0"
  localities: [GB]
  provider:
    id: pr-uk
    name: Northern Payroll Services
    localities: [GB]
milestones:
  - {identifier: inputs, name: Payroll inputs due, index: 0, interval: 5}
  - {identifier: approval, name: Payroll approved, index: 1, interval: 2, entities: [provider]}
  - {identifier: payment, name: Employees paid, index: 2, target: true}
  - {identifier: reporting, name: RTI submitted, index: 3, interval: 2, entities: [provider]}
holidays:
  - {name: Good Friday, date: "2025-04-18", locality: GB}
  - {name: Easter Monday, date: "2025-04-21", locality: GB}
  - {name: Early May Bank Holiday, date: "2025-05-05", locality: GB}
  - {name: Spring Bank Holiday, date: "2025-05-26", locality: GB}
  - {name: Summer Bank Holiday, date: "2025-08-25", locality: GB}
  - {name: Christmas Day, date: "2025-12-25", locality: GB}
  - {name: Boxing Day, date: "2025-12-26", locality: GB}
  - {name: New Year's Day, date: "2026-01-01", locality: GB}
  - {name: Good Friday, date: "2026-04-03", locality: GB}
  - {name: Easter Monday, date: "2026-04-06", locality: GB}
  - {name: Early May Bank Holiday, date: "2026-05-04", locality: GB}
  - {name: Spring Bank Holiday, date: "2026-05-25", locality: GB}
  - {name: Summer Bank Holiday, date: "2026-08-31", locality: GB}
  - {name: Christmas Day, date: "2026-12-25", locality: GB}
  - {name: Boxing Day, date: "2026-12-26", observed: "2026-12-28", locality: GB}
  - {name: New Year's Day, date: "2027-01-01", locality: GB}
  - {name: Provider Shutdown, date: "2026-12-31", locality: GB, entity_type: provider, entity_id: pr-uk}
`

const gulfWeeklyTemplate = `
legal_entity:
  id: le-gulf
  name: Gulf Trading LLC
  frequency: weekly
  target_rule: "day thursday"
  localities: [GB]
  service_centre:
    id: sc-dubai
    name: Dubai Service Centre
    localities: [AE]
milestones:
  - {identifier: inputs, name: Timesheets locked, index: 0, interval: 2, entities: [legal-entity, service-centre]}
  - {identifier: payment, name: Employees paid, index: 1, target: true}
holidays:
  - {name: Christmas Day, date: "2025-12-25", locality: GB}
  - {name: Boxing Day, date: "2025-12-26", locality: GB}
  - {name: National Day, date: "2025-12-02", locality: AE}
  - {name: National Day Holiday, date: "2025-12-03", locality: AE}
  - {name: New Year's Day, date: "2026-01-01", locality: AE}
  - {name: New Year's Day, date: "2026-01-01", locality: GB}
  - {name: National Day, date: "2026-12-02", locality: AE}
  - {name: National Day Holiday, date: "2026-12-03", locality: AE}
  - {name: Christmas Day, date: "2026-12-25", locality: GB}
working_days:
  AE: [sunday, monday, tuesday, wednesday, thursday]
`

const usSemiMonthlyTemplate = `
legal_entity:
  id: le-us
  name: Acme Inc
  frequency: semi-monthly
  target_rule: "date 15, last 0"
  localities: [US]
  client:
    id: cl-acme
    name: Acme Holdings
    localities: [US]
milestones:
  - {identifier: approve, name: Client approval, index: 0, interval: 3, entities: [client]}
  - {identifier: fund, name: Funding received, index: 1, interval: 1}
  - {identifier: pay, name: Employees paid, index: 2, target: true}
holidays:
  - {name: Independence Day, date: "2025-07-04", locality: US}
  - {name: Labor Day, date: "2025-09-01", locality: US}
  - {name: Thanksgiving Day, date: "2025-11-27", locality: US}
  - {name: Christmas Day, date: "2025-12-25", locality: US}
  - {name: New Year's Day, date: "2026-01-01", locality: US}
  - {name: Memorial Day, date: "2026-05-25", locality: US}
  - {name: Independence Day, date: "2026-07-04", observed: "2026-07-03", locality: US}
  - {name: Labor Day, date: "2026-09-07", locality: US}
  - {name: Thanksgiving Day, date: "2026-11-26", locality: US}
  - {name: Christmas Day, date: "2026-12-25", locality: US}
  - {name: Client Year-End Close, date: "2026-12-31", locality: US, entity_type: client, entity_id: cl-acme}
`
