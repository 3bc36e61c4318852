/*
handlers.go - HTTP API handlers for payroll schedule generation

PURPOSE:
  Exposes schedule configuration, calendars and generation via REST API.
  Handles HTTP request/response, JSON serialization, and delegates to the
  schedule and generic packages.

ENDPOINTS:
  Legal entities:
    GET    /api/legal-entities                          List legal entities
    POST   /api/legal-entities                          Create or update a legal entity
    GET    /api/legal-entities/{id}                     Get one legal entity
    GET    /api/legal-entities/{id}/milestones          Milestone set, ordered by index
    PUT    /api/legal-entities/{id}/milestones          Replace the milestone set

  Schedules:
    POST   /api/legal-entities/{id}/schedules/generate  Generate a range (optionally persist)
    GET    /api/legal-entities/{id}/schedules           Persisted schedules in a range
    GET    /api/legal-entities/{id}/schedules/export    Generated range as an xlsx workbook

  Calendars:
    GET    /api/holidays                                List holidays (filters)
    POST   /api/holidays                                Create or update a holiday
    DELETE /api/holidays/{id}                           Delete a holiday
    GET    /api/working-days/{country}                  Working week of a country
    PUT    /api/working-days/{country}                  Override a country's working week
    POST   /api/working-days/walk                       Ad-hoc previous/next working day

  Scenarios:
    GET    /api/scenarios                               List demo scenarios
    GET    /api/scenarios/current                       Currently loaded scenario
    POST   /api/scenarios/load                          Load a demo scenario

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: Database access
  - Generator: Schedule generation over the store
  - Templates: YAML/JSON template conversion for scenarios

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Malformed body, dates, ranges, entity types, frequencies, rules
  - 404: Legal entity, organisation or holiday not found
  - 422: Configuration that cannot produce a schedule (no target
         milestone, invalid stored frequency or rule, unbounded walk)
  - 500: Internal errors

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/warp/payroll-schedules/export"
	"github.com/warp/payroll-schedules/factory"
	"github.com/warp/payroll-schedules/generic"
	"github.com/warp/payroll-schedules/schedule"
	"github.com/warp/payroll-schedules/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     *sqlite.Store
	Generator *schedule.Generator
	Templates *factory.TemplateFactory
	Logger    zerolog.Logger

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler. A nil generator is built over the store.
func NewHandler(store *sqlite.Store, gen *schedule.Generator, logger zerolog.Logger) *Handler {
	if gen == nil {
		gen = schedule.NewGenerator(store, logger)
	}
	return &Handler{
		Store:     store,
		Generator: gen,
		Templates: factory.NewTemplateFactory(),
		Logger:    logger,
	}
}

// CurrentScenario returns the id of the loaded scenario, or "".
func (h *Handler) CurrentScenario() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.currentScenario
}

// =============================================================================
// LEGAL ENTITY HANDLERS
// =============================================================================

// ListLegalEntities returns all legal entities.
// GET /api/legal-entities
func (h *Handler) ListLegalEntities(w http.ResponseWriter, r *http.Request) {
	entities, err := h.Store.ListLegalEntities(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list legal entities", err)
		return
	}

	dtos := make([]LegalEntityDTO, 0, len(entities))
	for _, le := range entities {
		dtos = append(dtos, toLegalEntityDTO(le))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetLegalEntity returns one legal entity.
// GET /api/legal-entities/{id}
func (h *Handler) GetLegalEntity(w http.ResponseWriter, r *http.Request) {
	le, err := h.Store.GetLegalEntity(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Failed to get legal entity", err)
		return
	}
	writeJSON(w, http.StatusOK, toLegalEntityDTO(le))
}

// CreateLegalEntity creates or updates a legal entity. Frequency and target
// rule are validated here so that a stored entity can always generate.
// POST /api/legal-entities
func (h *Handler) CreateLegalEntity(w http.ResponseWriter, r *http.Request) {
	var req LegalEntityDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		writeError(w, http.StatusBadRequest, "id is required", nil)
		return
	}

	freq, err := schedule.ParseFrequency(req.Frequency)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid frequency", err)
		return
	}
	rules, err := schedule.ParseTargetRules(req.TargetRule)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid target rule", err)
		return
	}

	le := schedule.LegalEntity{
		ID:              req.ID,
		Name:            req.Name,
		Frequency:       freq,
		TargetRule:      schedule.FormatTargetRules(rules),
		ServiceCentreID: req.ServiceCentreID,
		ProviderID:      req.ProviderID,
		ClientID:        req.ClientID,
	}
	for _, c := range req.Localities {
		if c = generic.NormalizeCountry(c); c != "" {
			le.Localities = append(le.Localities, c)
		}
	}

	if err := h.Store.SaveLegalEntity(r.Context(), le); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save legal entity", err)
		return
	}
	writeJSON(w, http.StatusCreated, toLegalEntityDTO(le))
}

// =============================================================================
// MILESTONE HANDLERS
// =============================================================================

// GetMilestones returns the milestone set ordered by index.
// GET /api/legal-entities/{id}/milestones
func (h *Handler) GetMilestones(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if _, err := h.Store.GetLegalEntity(ctx, id); err != nil {
		writeDomainError(w, "Failed to get legal entity", err)
		return
	}
	ms, err := h.Store.ListMilestones(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list milestones", err)
		return
	}

	dtos := make([]MilestoneDTO, 0, len(ms))
	for _, m := range ms {
		dtos = append(dtos, toMilestoneDTO(m))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ReplaceMilestones swaps the whole milestone set. When none is flagged as
// the target the first by index is.
// PUT /api/legal-entities/{id}/milestones
func (h *Handler) ReplaceMilestones(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	var req ReplaceMilestonesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if _, err := h.Store.GetLegalEntity(ctx, id); err != nil {
		writeDomainError(w, "Failed to get legal entity", err)
		return
	}

	ms := make([]schedule.Milestone, 0, len(req.Milestones))
	for _, dto := range req.Milestones {
		m, err := fromMilestoneDTO(id, dto)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid milestone", err)
			return
		}
		ms = append(ms, m)
	}
	if err := schedule.ValidateMilestones(id, ms); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid milestones", err)
		return
	}
	schedule.SortMilestones(ms)
	target, err := schedule.FindTarget(ms)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid milestones", err)
		return
	}
	if ms, err = schedule.SetTarget(ms, target.ID); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid milestones", err)
		return
	}

	if err := h.Store.ReplaceMilestones(ctx, id, ms); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save milestones", err)
		return
	}

	dtos := make([]MilestoneDTO, 0, len(ms))
	for _, m := range ms {
		dtos = append(dtos, toMilestoneDTO(m))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// SCHEDULE HANDLERS
// =============================================================================

// GenerateSchedules generates every period in [start, end]. With persist
// the set is saved atomically and a generated event is published.
// POST /api/legal-entities/{id}/schedules/generate
func (h *Handler) GenerateSchedules(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rng, err := parseRange(req.Start, req.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid range", err)
		return
	}
	in := schedule.GenerateInput{LegalEntityID: chi.URLParam(r, "id"), Start: rng.Start, End: rng.End}

	var set *schedule.GeneratedScheduleSet
	if req.Persist {
		set, err = h.Generator.GenerateAndSave(r.Context(), in)
	} else {
		set, err = h.Generator.Generate(r.Context(), in)
	}
	if err != nil {
		writeDomainError(w, "Failed to generate schedules", err)
		return
	}
	writeJSON(w, http.StatusOK, NewScheduleSetDTO(set, req.Persist))
}

// ListSchedules returns persisted schedules whose anchor falls in the range.
// The range defaults to the current calendar year.
// GET /api/legal-entities/{id}/schedules?start=YYYY-MM-DD&end=YYYY-MM-DD
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	rng, err := queryRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid range", err)
		return
	}
	if _, err := h.Store.GetLegalEntity(ctx, id); err != nil {
		writeDomainError(w, "Failed to get legal entity", err)
		return
	}

	schedules, err := h.Store.ListSchedules(ctx, id, rng)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list schedules", err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleDTOs(schedules))
}

// ExportSchedules generates the range and streams it as a workbook.
// GET /api/legal-entities/{id}/schedules/export?start=YYYY-MM-DD&end=YYYY-MM-DD
func (h *Handler) ExportSchedules(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rng, err := queryRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid range", err)
		return
	}
	set, err := h.Generator.Generate(r.Context(), schedule.GenerateInput{LegalEntityID: id, Start: rng.Start, End: rng.End})
	if err != nil {
		writeDomainError(w, "Failed to generate schedules", err)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-%s-%s.xlsx"`, id, rng.Start, rng.End))
	if err := export.WriteScheduleSet(w, set); err != nil {
		h.Logger.Error().Err(err).Str("legal_entity_id", id).Msg("export failed")
	}
}

// =============================================================================
// HOLIDAY HANDLERS
// =============================================================================

// ListHolidays returns holidays matching the query filters.
// GET /api/holidays?locality=GB&entity_id=pr-1&country_only=true&year=2024
func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := sqlite.HolidayFilter{
		Locality: generic.NormalizeCountry(q.Get("locality")),
		EntityID: q.Get("entity_id"),
	}
	if v := q.Get("country_only"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid country_only", err)
			return
		}
		filter.CountryOnly = b
	}
	if v := q.Get("year"); v != "" {
		year, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid year", err)
			return
		}
		filter.Year = year
	}

	holidays, err := h.Store.ListHolidays(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get holidays", err)
		return
	}
	writeJSON(w, http.StatusOK, toHolidayDTOs(holidays))
}

// CreateHoliday creates or updates a country or entity holiday.
// POST /api/holidays
func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	var req HolidayDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Date == "" || req.Name == "" || req.Locality == "" {
		writeError(w, http.StatusBadRequest, "Date, name and locality are required", nil)
		return
	}

	hol, err := holidayFromDTO(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid holiday", err)
		return
	}
	if err := h.Store.SaveHoliday(r.Context(), hol); err != nil {
		writeDomainError(w, "Failed to create holiday", err)
		return
	}
	writeJSON(w, http.StatusCreated, toHolidayDTOs([]generic.Holiday{hol})[0])
}

// DeleteHoliday deletes a holiday.
// DELETE /api/holidays/{id}
func (h *Handler) DeleteHoliday(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteHoliday(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, "Failed to delete holiday", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}

func holidayFromDTO(dto HolidayDTO) (generic.Holiday, error) {
	date, err := generic.ParseDate(dto.Date)
	if err != nil {
		return generic.Holiday{}, err
	}
	hol := generic.Holiday{
		ID:       dto.ID,
		Name:     dto.Name,
		Date:     date,
		Locality: generic.NormalizeCountry(dto.Locality),
		EntityID: dto.EntityID,
	}
	if dto.Observed != "" {
		if hol.Observed, err = generic.ParseDate(dto.Observed); err != nil {
			return generic.Holiday{}, err
		}
	}
	if dto.EntityType != "" {
		if hol.EntityType, err = generic.ParseEntityType(dto.EntityType); err != nil {
			return generic.Holiday{}, err
		}
	}
	if hol.EntityID != "" && hol.EntityType == "" {
		return generic.Holiday{}, errors.New("entity_type is required with entity_id")
	}
	if hol.ID == "" {
		hol.ID = factory.HolidayID(hol)
	}
	return hol, nil
}

// =============================================================================
// WORKING DAY HANDLERS
// =============================================================================

// GetWorkingDays returns a country's working week.
// GET /api/working-days/{country}
func (h *Handler) GetWorkingDays(w http.ResponseWriter, r *http.Request) {
	country := generic.NormalizeCountry(chi.URLParam(r, "country"))

	overrides, err := h.Store.GetWorkingWeekdays(r.Context(), []string{country})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get working days", err)
		return
	}

	days, ok := overrides[country]
	if !ok {
		days = generic.DefaultWorkingWeekdays
	}
	writeJSON(w, http.StatusOK, WorkingDaysDTO{Country: country, Weekdays: weekdayNames(days), Default: !ok})
}

// SetWorkingDays overrides a country's working week. An empty list restores
// the Monday to Friday default.
// PUT /api/working-days/{country}
func (h *Handler) SetWorkingDays(w http.ResponseWriter, r *http.Request) {
	country := generic.NormalizeCountry(chi.URLParam(r, "country"))

	var req WorkingDaysDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	days, err := parseWeekdays(req.Weekdays)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid weekday", err)
		return
	}
	if err := h.Store.SetWorkingWeekdays(r.Context(), country, days); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save working days", err)
		return
	}

	if len(days) == 0 {
		writeJSON(w, http.StatusOK, WorkingDaysDTO{Country: country, Weekdays: weekdayNames(generic.DefaultWorkingWeekdays), Default: true})
		return
	}
	// Re-read for the stored, de-duplicated order.
	h.GetWorkingDays(w, r)
}

// Walk resolves the previous or next working day of an ad-hoc calendar.
// POST /api/working-days/walk
func (h *Handler) Walk(w http.ResponseWriter, r *http.Request) {
	var req WalkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	start, err := generic.ParseDate(req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start", err)
		return
	}
	if req.Days < 0 {
		writeError(w, http.StatusBadRequest, "days must not be negative", nil)
		return
	}

	var dir generic.Direction
	switch strings.ToLower(req.Direction) {
	case "", generic.Backward.String():
		dir = generic.Backward
	case generic.Forward.String():
		dir = generic.Forward
	default:
		writeError(w, http.StatusBadRequest, "direction must be previous or next", nil)
		return
	}

	in := generic.WalkInput{Start: start, Days: req.Days}
	for _, cs := range req.Countries {
		set := generic.CountrySet{EntityID: cs.EntityID}
		for _, c := range cs.Countries {
			if c = generic.NormalizeCountry(c); c != "" {
				set.Countries = append(set.Countries, c)
			}
		}
		in.Countries = append(in.Countries, set)
	}

	res, err := h.Generator.Resolver.Walk(r.Context(), in, dir)
	if err != nil {
		writeDomainError(w, "Failed to resolve working day", err)
		return
	}
	writeJSON(w, http.StatusOK, WalkDTO{Date: res.Date.String(), Holidays: toHolidayDTOs(res.Holidays)})
}

// =============================================================================
// ADMIN
// =============================================================================

// ResetDatabase clears all data (for development/testing).
// POST /api/reset
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError picks the status from the error's kind.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	writeError(w, statusFor(err), message, err)
}

func statusFor(err error) int {
	switch {
	case generic.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, generic.ErrUnboundedWalk):
		return http.StatusUnprocessableEntity
	case generic.IsClientError(err):
		return http.StatusBadRequest
	case schedule.IsClientError(err):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func parseRange(start, end string) (generic.Range, error) {
	s, err := generic.ParseDate(start)
	if err != nil {
		return generic.Range{}, err
	}
	e, err := generic.ParseDate(end)
	if err != nil {
		return generic.Range{}, err
	}
	rng := generic.Range{Start: s, End: e}
	return rng, rng.Validate()
}

// queryRange reads start/end query parameters, defaulting to this year.
func queryRange(r *http.Request) (generic.Range, error) {
	q := r.URL.Query()
	if q.Get("start") == "" && q.Get("end") == "" {
		return generic.YearRange(generic.Today().Year()), nil
	}
	return parseRange(q.Get("start"), q.Get("end"))
}

func parseWeekdays(names []string) ([]time.Weekday, error) {
	days := make([]time.Weekday, 0, len(names))
	for _, name := range names {
		d, err := generic.ParseWeekday(name)
		if err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	return days, nil
}
