/*
handlers_test.go - Tests for API handlers

Tests for:
- Legal entity and milestone configuration
- Generation, persistence, listing and export of schedules
- Holiday and working-day endpoints, ad-hoc walks
- Error status mapping
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/warp/payroll-schedules/export"
	"github.com/warp/payroll-schedules/generic"
	"github.com/warp/payroll-schedules/schedule"
	"github.com/warp/payroll-schedules/store/sqlite"
)

func setupTestHandler(t *testing.T) (*Handler, *chi.Mux) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := NewHandler(store, nil, testLogger())
	return h, NewRouter(h)
}

func testLogger() zerolog.Logger { return zerolog.Nop() }

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func ukLegalEntity() LegalEntityDTO {
	return LegalEntityDTO{ID: "le-1", Name: "Acme UK Ltd", Frequency: "Monthly", TargetRule: "last 0", Localities: []string{"gb"}}
}

// =============================================================================
// LEGAL ENTITIES AND MILESTONES
// =============================================================================

func TestLegalEntities_CreateGetList(t *testing.T) {
	_, router := setupTestHandler(t)

	rec := do(t, router, http.MethodPost, "/api/legal-entities", ukLegalEntity())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[LegalEntityDTO](t, rec)
	assert.Equal(t, "monthly", created.Frequency)
	assert.Equal(t, []string{"GB"}, created.Localities)

	rec = do(t, router, http.MethodGet, "/api/legal-entities/le-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "last 0", decode[LegalEntityDTO](t, rec).TargetRule)

	rec = do(t, router, http.MethodGet, "/api/legal-entities", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]LegalEntityDTO](t, rec), 1)

	rec = do(t, router, http.MethodGet, "/api/legal-entities/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateLegalEntity_Validation(t *testing.T) {
	_, router := setupTestHandler(t)

	bad := ukLegalEntity()
	bad.Frequency = "fortnightly"
	rec := do(t, router, http.MethodPost, "/api/legal-entities", bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid frequency", decode[ErrorResponse](t, rec).Error)

	bad = ukLegalEntity()
	bad.TargetRule = "last x"
	rec = do(t, router, http.MethodPost, "/api/legal-entities", bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	bad = ukLegalEntity()
	bad.ID = " "
	rec = do(t, router, http.MethodPost, "/api/legal-entities", bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReplaceMilestones(t *testing.T) {
	// GIVEN: A legal entity
	// WHEN: Replacing its milestones without flagging a target
	// THEN: The first by index becomes the target and the set is ordered

	_, router := setupTestHandler(t)
	require.Equal(t, http.StatusCreated, do(t, router, http.MethodPost, "/api/legal-entities", ukLegalEntity()).Code)

	five := 5
	rec := do(t, router, http.MethodPut, "/api/legal-entities/le-1/milestones", ReplaceMilestonesRequest{
		Milestones: []MilestoneDTO{
			{Identifier: "payment", Index: 1},
			{Identifier: "inputs", Index: 0, Interval: &five, Entities: []string{"legal_entity"}},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodGet, "/api/legal-entities/le-1/milestones", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ms := decode[[]MilestoneDTO](t, rec)
	require.Len(t, ms, 2)
	assert.Equal(t, "le-1-inputs", ms[0].ID)
	assert.True(t, ms[0].Target)
	assert.Equal(t, []string{"legal-entity"}, ms[0].Entities)
	require.NotNil(t, ms[0].Interval)
	assert.Equal(t, 5, *ms[0].Interval)
	assert.False(t, ms[1].Target)
	assert.Nil(t, ms[1].Interval)
}

func TestReplaceMilestones_Errors(t *testing.T) {
	_, router := setupTestHandler(t)
	require.Equal(t, http.StatusCreated, do(t, router, http.MethodPost, "/api/legal-entities", ukLegalEntity()).Code)

	dup := ReplaceMilestonesRequest{Milestones: []MilestoneDTO{{Identifier: "a", Index: 0}, {Identifier: "b", Index: 0}}}
	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodPut, "/api/legal-entities/le-1/milestones", dup).Code)

	twoTargets := ReplaceMilestonesRequest{Milestones: []MilestoneDTO{{Identifier: "a", Index: 0, Target: true}, {Identifier: "b", Index: 1, Target: true}}}
	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodPut, "/api/legal-entities/le-1/milestones", twoTargets).Code)

	badEntity := ReplaceMilestonesRequest{Milestones: []MilestoneDTO{{Identifier: "a", Index: 0, Entities: []string{"bank"}}}}
	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodPut, "/api/legal-entities/le-1/milestones", badEntity).Code)

	ok := ReplaceMilestonesRequest{Milestones: []MilestoneDTO{{Identifier: "a", Index: 0}}}
	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodPut, "/api/legal-entities/missing/milestones", ok).Code)
}

// =============================================================================
// SCHEDULES
// =============================================================================

func TestGenerateSchedules_PersistAndList(t *testing.T) {
	// GIVEN: The UK monthly scenario
	// WHEN: Generating December 2026 with persist
	// THEN: Milestones walk around Christmas, the observed Boxing Day and
	//       New Year, and the schedule can be listed afterwards

	h, router := setupTestHandler(t)
	require.NoError(t, h.LoadScenarioByID(context.Background(), "uk-monthly"))

	rec := do(t, router, http.MethodPost, "/api/legal-entities/le-uk/schedules/generate", GenerateRequest{
		Start: "2026-12-01", End: "2026-12-31", Persist: true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	set := decode[ScheduleSetDTO](t, rec)
	assert.True(t, set.Persisted)
	assert.Equal(t, "monthly", set.Frequency)
	assert.Empty(t, set.Warnings)
	require.Len(t, set.Schedules, 1)

	s := set.Schedules[0]
	assert.Equal(t, "December", s.Name)
	assert.Equal(t, "2026-12-31", s.TargetDate)
	assert.Equal(t, map[string]string{
		"inputs":    "2026-12-18",
		"approval":  "2026-12-29",
		"payment":   "2026-12-31",
		"reporting": "2027-01-05",
	}, datesByIdentifier(s))

	rec = do(t, router, http.MethodGet, "/api/legal-entities/le-uk/schedules?start=2026-12-01&end=2026-12-31", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	listed := decode[[]ScheduleDTO](t, rec)
	require.Len(t, listed, 1)
	assert.Equal(t, s.ID, listed[0].ID)
	assert.Equal(t, datesByIdentifier(s), datesByIdentifier(listed[0]))
}

func TestGenerateSchedules_MultiCountryWeekly(t *testing.T) {
	// GIVEN: The Gulf scenario, inputs following GB and a Sun-Thu AE centre
	// WHEN: Generating the week of 2026-11-30
	// THEN: Payment is Thursday; inputs skip the AE National Day holiday

	h, router := setupTestHandler(t)
	require.NoError(t, h.LoadScenarioByID(context.Background(), "gulf-weekly"))

	rec := do(t, router, http.MethodPost, "/api/legal-entities/le-gulf/schedules/generate", GenerateRequest{
		Start: "2026-11-30", End: "2026-12-06",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	set := decode[ScheduleSetDTO](t, rec)
	assert.False(t, set.Persisted)
	require.Len(t, set.Schedules, 1)
	assert.Equal(t, "2026-12-03", set.Schedules[0].TargetDate)
	assert.Equal(t, "2026-11-30", datesByIdentifier(set.Schedules[0])["inputs"])
}

func TestGenerateSchedules_Errors(t *testing.T) {
	_, router := setupTestHandler(t)
	require.Equal(t, http.StatusCreated, do(t, router, http.MethodPost, "/api/legal-entities", ukLegalEntity()).Code)

	path := "/api/legal-entities/le-1/schedules/generate"

	rec := do(t, router, http.MethodPost, path, GenerateRequest{Start: "2024-02-01", End: "2024-01-01"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, path, GenerateRequest{Start: "2024-13-01", End: "2024-12-31"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// No milestones configured.
	rec = do(t, router, http.MethodPost, path, GenerateRequest{Start: "2024-01-01", End: "2024-01-31"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodPost, "/api/legal-entities/missing/schedules/generate", GenerateRequest{Start: "2024-01-01", End: "2024-01-31"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportSchedules(t *testing.T) {
	h, router := setupTestHandler(t)
	require.NoError(t, h.LoadScenarioByID(context.Background(), "us-semi-monthly"))

	rec := do(t, router, http.MethodGet, "/api/legal-entities/le-us/schedules/export?start=2026-12-01&end=2026-12-31", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, export.ContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "le-us-2026-12-01-2026-12-31.xlsx")

	f, err := excelize.OpenReader(rec.Body)
	require.NoError(t, err)
	defer f.Close()

	periods, err := f.GetRows(export.SheetPeriods)
	require.NoError(t, err)
	require.Len(t, periods, 3)
	assert.Equal(t, "2026-12-15", periods[1][3])
	assert.Equal(t, "2026-12-31", periods[2][3])
}

func datesByIdentifier(s ScheduleDTO) map[string]string {
	out := make(map[string]string, len(s.ScheduleDates))
	for _, sd := range s.ScheduleDates {
		out[sd.Identifier] = sd.Date
	}
	return out
}

// =============================================================================
// CALENDARS
// =============================================================================

func TestHolidays_CreateListDelete(t *testing.T) {
	_, router := setupTestHandler(t)

	rec := do(t, router, http.MethodPost, "/api/holidays", HolidayDTO{
		Name: "Boxing Day", Date: "2026-12-26", Observed: "2026-12-28", Locality: "gb",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[HolidayDTO](t, rec)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "GB", created.Locality)

	rec = do(t, router, http.MethodPost, "/api/holidays", HolidayDTO{
		Name: "Shutdown", Date: "2026-12-31", Locality: "GB", EntityType: "provider", EntityID: "pr-1",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodGet, "/api/holidays?locality=GB&year=2026", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]HolidayDTO](t, rec), 2)

	rec = do(t, router, http.MethodGet, "/api/holidays?locality=GB&country_only=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	countryOnly := decode[[]HolidayDTO](t, rec)
	require.Len(t, countryOnly, 1)
	assert.Equal(t, "2026-12-28", countryOnly[0].Observed)

	assert.Equal(t, http.StatusOK, do(t, router, http.MethodDelete, "/api/holidays/"+created.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodDelete, "/api/holidays/"+created.ID, nil).Code)
}

func TestCreateHoliday_Validation(t *testing.T) {
	_, router := setupTestHandler(t)

	for name, dto := range map[string]HolidayDTO{
		"missing locality":       {Name: "X", Date: "2026-01-01"},
		"bad date":               {Name: "X", Date: "2026-02-30", Locality: "GB"},
		"bad entity type":        {Name: "X", Date: "2026-01-01", Locality: "GB", EntityType: "bank", EntityID: "b-1"},
		"entity id without type": {Name: "X", Date: "2026-01-01", Locality: "GB", EntityID: "b-1"},
	} {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodPost, "/api/holidays", dto).Code)
		})
	}
}

func TestWorkingDays_OverrideAndWalk(t *testing.T) {
	// GIVEN: GB on the default week, AE overridden to Sunday-Thursday
	// WHEN: Walking over both countries
	// THEN: Only Monday-Thursday count as working days

	_, router := setupTestHandler(t)

	rec := do(t, router, http.MethodGet, "/api/working-days/gb", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	gb := decode[WorkingDaysDTO](t, rec)
	assert.True(t, gb.Default)
	assert.Equal(t, []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"}, gb.Weekdays)

	rec = do(t, router, http.MethodPut, "/api/working-days/ae", WorkingDaysDTO{Weekdays: []string{"thu", "sun", "mon", "tue", "wed"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	ae := decode[WorkingDaysDTO](t, rec)
	assert.False(t, ae.Default)
	assert.Equal(t, "AE", ae.Country)
	assert.Equal(t, []string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday"}, ae.Weekdays)

	both := []CountrySetDTO{{EntityID: "le-1", Countries: []string{"GB", "AE"}}}

	rec = do(t, router, http.MethodPost, "/api/working-days/walk", WalkRequest{Countries: both, Start: "2026-12-04", Days: 0})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "2026-12-03", decode[WalkDTO](t, rec).Date)

	rec = do(t, router, http.MethodPost, "/api/working-days/walk", WalkRequest{Countries: both, Start: "2026-12-03", Days: 1, Direction: "next"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "2026-12-07", decode[WalkDTO](t, rec).Date)

	// Restore the default.
	rec = do(t, router, http.MethodPut, "/api/working-days/ae", WorkingDaysDTO{})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[WorkingDaysDTO](t, rec).Default)
}

func TestWalk_Errors(t *testing.T) {
	_, router := setupTestHandler(t)

	require.Equal(t, http.StatusOK, do(t, router, http.MethodPut, "/api/working-days/xx", WorkingDaysDTO{Weekdays: []string{"saturday"}}).Code)
	disjoint := []CountrySetDTO{{EntityID: "le-1", Countries: []string{"GB", "XX"}}}

	rec := do(t, router, http.MethodPost, "/api/working-days/walk", WalkRequest{Countries: disjoint, Start: "2026-12-04"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/working-days/walk", WalkRequest{Start: "2026-12-04", Direction: "sideways"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/working-days/walk", WalkRequest{Start: "2026-12-04", Days: -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPut, "/api/working-days/gb", WorkingDaysDTO{Weekdays: []string{"funday"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// HELPERS
// =============================================================================

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&generic.EntityNotFoundError{Type: generic.EntityLegalEntity, ID: "x"}, http.StatusNotFound},
		{&generic.UnboundedWalkError{Reason: "iteration cap reached"}, http.StatusUnprocessableEntity},
		{&generic.DateError{Value: "x", Err: errors.New("bad")}, http.StatusBadRequest},
		{&schedule.FrequencyError{Value: "x"}, http.StatusUnprocessableEntity},
		{schedule.ErrNoTargetMilestone, http.StatusUnprocessableEntity},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, router := setupTestHandler(t)
	rec := do(t, router, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
