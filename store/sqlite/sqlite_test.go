package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-schedules/generic"
	"github.com/warp/payroll-schedules/schedule"
	"github.com/warp/payroll-schedules/store/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func d(s string) generic.Date { return generic.MustParseDate(s) }

func ukEntity() schedule.LegalEntity {
	return schedule.LegalEntity{
		ID: "le-1", Name: "Acme UK Ltd", Frequency: schedule.Monthly,
		TargetRule: "last 0", Localities: []string{"gb"}, ProviderID: "pr-1",
	}
}

// =============================================================================
// LEGAL ENTITIES AND ORGANISATIONS
// =============================================================================

func TestLegalEntity_SaveAndGet(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveLegalEntity(ctx, ukEntity()))

	le, err := store.GetLegalEntity(ctx, "le-1")
	require.NoError(t, err)
	assert.Equal(t, schedule.Monthly, le.Frequency)
	assert.Equal(t, []string{"GB"}, le.Localities)
	assert.Equal(t, "pr-1", le.ProviderID)

	le.TargetRule = "date 25"
	require.NoError(t, store.SaveLegalEntity(ctx, le))
	all, err := store.ListLegalEntities(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "date 25", all[0].TargetRule)

	_, err = store.GetLegalEntity(ctx, "missing")
	assert.True(t, generic.IsNotFound(err))
}

func TestGetLocalitiesForEntity(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveLegalEntity(ctx, ukEntity()))
	require.NoError(t, store.SaveOrganization(ctx, schedule.Organization{
		ID: "pr-1", Type: generic.EntityProvider, Name: "Payroll Partner", Localities: []string{"ie", "GB"},
	}))

	got, err := store.GetLocalitiesForEntity(ctx, generic.EntityLegalEntity, "le-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"GB"}, got)

	got, err = store.GetLocalitiesForEntity(ctx, generic.EntityProvider, "pr-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"IE", "GB"}, got)

	_, err = store.GetLocalitiesForEntity(ctx, generic.EntityClient, "pr-1")
	assert.True(t, generic.IsNotFound(err), "lookups are keyed by type")

	err = store.SaveOrganization(ctx, schedule.Organization{ID: "x", Type: generic.EntityLegalEntity})
	assert.ErrorIs(t, err, generic.ErrInvalidEntityType)
}

// =============================================================================
// HOLIDAYS
// =============================================================================

func TestListHolidaysForEntityAndYear_MergesCustom(t *testing.T) {
	// GIVEN: Country Christmas and Boxing Day, plus le-1's own Christmas
	// WHEN: Listing for le-1 and for the country alone
	// THEN: le-1 sees its Christmas instead of the country's; the country
	//       list is untouched

	store := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveHolidays(ctx, []generic.Holiday{
		{Name: "Christmas Day", Date: d("2024-12-25"), Locality: "GB"},
		{Name: "Boxing Day", Date: d("2024-12-26"), Locality: "GB"},
		{Name: "Company Christmas", Date: d("2024-12-25"), Locality: "gb", EntityType: generic.EntityLegalEntity, EntityID: "le-1"},
		{Name: "Christmas Day", Date: d("2024-12-25"), Locality: "IE"},
	}))

	country, err := store.ListHolidaysForEntityAndYear(ctx, "GB", "", 2024)
	require.NoError(t, err)
	assert.Equal(t, []string{"Christmas Day", "Boxing Day"}, names(country))

	merged, err := store.ListHolidaysForEntityAndYear(ctx, "GB", "le-1", 2024)
	require.NoError(t, err)
	assert.Equal(t, []string{"Company Christmas", "Boxing Day"}, names(merged))
	assert.Equal(t, generic.EntityLegalEntity, merged[0].EntityType)

	none, err := store.ListHolidaysForEntityAndYear(ctx, "GB", "le-1", 2025)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestHolidays_ObservedDayDrivesYear(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveHoliday(ctx, generic.Holiday{
		Name: "New Year's Day", Date: d("2022-01-01"), Observed: d("2022-01-03"), Locality: "GB",
	}))
	require.NoError(t, store.SaveHoliday(ctx, generic.Holiday{
		Name: "New Year's Eve", Date: d("2022-12-31"), Observed: d("2023-01-02"), Locality: "GB",
	}))

	got, err := store.ListHolidaysForEntityAndYear(ctx, "GB", "", 2023)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "2023-01-02", got[0].Day().String())
	assert.Equal(t, "2022-12-31", got[0].Date.String())
}

func TestHolidays_UpsertListAndDelete(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	h := generic.Holiday{ID: "gb-gf", Name: "Good Friday", Date: d("2024-03-29"), Locality: "GB"}
	require.NoError(t, store.SaveHoliday(ctx, h))

	h.Observed = d("2024-04-02")
	require.NoError(t, store.SaveHoliday(ctx, h))

	all, err := store.ListHolidays(ctx, sqlite.HolidayFilter{Locality: "gb", Year: 2024, CountryOnly: true})
	require.NoError(t, err)
	require.Len(t, all, 1, "same locality, entity, date and name is one row")
	assert.Equal(t, "2024-04-02", all[0].Observed.String())

	require.NoError(t, store.DeleteHoliday(ctx, "gb-gf"))
	assert.True(t, generic.IsNotFound(store.DeleteHoliday(ctx, "gb-gf")))

	err = store.SaveHoliday(ctx, generic.Holiday{Name: "undated", Locality: "GB"})
	assert.ErrorIs(t, err, generic.ErrInvalidDate)
}

// =============================================================================
// WORKING DAYS AND MILESTONES
// =============================================================================

func TestWorkingWeekdays(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.SetWorkingWeekdays(ctx, "ae",
		[]time.Weekday{time.Thursday, time.Sunday, time.Monday, time.Tuesday, time.Wednesday, time.Sunday}))

	got, err := store.GetWorkingWeekdays(ctx, []string{"AE", "GB"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]time.Weekday{
		"AE": {time.Sunday, time.Monday, time.Tuesday, time.Wednesday, time.Thursday},
	}, got)

	require.NoError(t, store.SetWorkingWeekdays(ctx, "AE", nil))
	got, err = store.GetWorkingWeekdays(ctx, []string{"AE"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMilestones_ReplaceAndList(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveLegalEntity(ctx, ukEntity()))

	require.NoError(t, store.ReplaceMilestones(ctx, "le-1", []schedule.Milestone{
		{ID: "pay", Identifier: "payment", Index: 1, Target: true},
		{ID: "inputs", Identifier: "inputs", Index: 0, Interval: schedule.IntervalOf(5),
			Entities: []generic.EntityType{generic.EntityLegalEntity, generic.EntityProvider}},
	}))

	ms, err := store.ListMilestones(ctx, "le-1")
	require.NoError(t, err)
	require.Len(t, ms, 2)
	assert.Equal(t, "inputs", ms[0].ID)
	assert.Equal(t, 5, *ms[0].Interval)
	assert.Equal(t, []generic.EntityType{generic.EntityLegalEntity, generic.EntityProvider}, ms[0].Entities)
	assert.Nil(t, ms[1].Interval)
	assert.True(t, ms[1].Target)

	require.NoError(t, store.ReplaceMilestones(ctx, "le-1", []schedule.Milestone{{ID: "only", Index: 0, Target: true}}))
	ms, err = store.ListMilestones(ctx, "le-1")
	require.NoError(t, err)
	assert.Len(t, ms, 1)

	ms, err = store.ListMilestones(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, ms)
}

// =============================================================================
// SCHEDULES
// =============================================================================

func TestSaveScheduleSet_UpsertsByAnchor(t *testing.T) {
	// GIVEN: A stored schedule for January
	// WHEN: Saving a regenerated January with different dates
	// THEN: Still one January row, carrying only the new dates and holidays

	store := newStore(t)
	ctx := context.Background()

	january := schedule.GeneratedSchedule{
		ID: schedule.ScheduleID("le-1", d("2024-01-01")), LegalEntityID: "le-1", Name: "January",
		Date: d("2024-01-01"), End: d("2024-01-31"), TargetDate: d("2024-01-31"),
		ScheduleDates: []schedule.GeneratedScheduleDate{
			{MilestoneID: "inputs", Identifier: "inputs", Date: d("2024-01-24"), Index: 0},
			{MilestoneID: "pay", Identifier: "payment", Date: d("2024-01-31"), Index: 1, Target: true},
		},
	}
	require.NoError(t, store.SaveScheduleSet(ctx, &schedule.GeneratedScheduleSet{
		LegalEntityID: "le-1", Schedules: []schedule.GeneratedSchedule{january},
	}))

	january.TargetDate = d("2024-01-30")
	january.ScheduleDates = january.ScheduleDates[1:]
	january.ScheduleDates[0].Date = d("2024-01-30")
	january.Holidays = []generic.Holiday{{ID: "le-1-x", Name: "Office Move", Date: d("2024-01-31"), Locality: "GB", EntityID: "le-1"}}
	february := schedule.GeneratedSchedule{
		ID: schedule.ScheduleID("le-1", d("2024-02-01")), LegalEntityID: "le-1", Name: "February",
		Date: d("2024-02-01"), End: d("2024-02-29"), TargetDate: d("2024-02-29"),
	}
	require.NoError(t, store.SaveScheduleSet(ctx, &schedule.GeneratedScheduleSet{
		LegalEntityID: "le-1", Schedules: []schedule.GeneratedSchedule{january, february},
	}))

	got, err := store.ListSchedules(ctx, "le-1", generic.Range{Start: d("2024-01-01"), End: d("2024-12-31")})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "January", got[0].Name)
	assert.Equal(t, "2024-01-30", got[0].TargetDate.String())
	require.Len(t, got[0].ScheduleDates, 1)
	assert.True(t, got[0].ScheduleDates[0].Target)
	require.Len(t, got[0].Holidays, 1)
	assert.Equal(t, "Office Move", got[0].Holidays[0].Name)
	assert.Empty(t, got[1].ScheduleDates)

	got, err = store.ListSchedules(ctx, "le-1", generic.Range{Start: d("2024-02-01"), End: d("2024-02-29")})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "February", got[0].Name)
}

func TestListSchedules_CorruptDateIsAnError(t *testing.T) {
	// GIVEN: A stored schedule whose target date, then a milestone date, is not a date
	// WHEN: Listing schedules
	// THEN: The parse error is returned instead of a zero date

	store := newStore(t)
	ctx := context.Background()
	rng := generic.Range{Start: d("2024-01-01"), End: d("2024-12-31")}

	require.NoError(t, store.SaveScheduleSet(ctx, &schedule.GeneratedScheduleSet{
		LegalEntityID: "le-1",
		Schedules: []schedule.GeneratedSchedule{{
			ID: schedule.ScheduleID("le-1", d("2024-01-01")), LegalEntityID: "le-1", Name: "January",
			Date: d("2024-01-01"), End: d("2024-01-31"), TargetDate: d("2024-01-31"),
			ScheduleDates: []schedule.GeneratedScheduleDate{
				{MilestoneID: "pay", Identifier: "payment", Date: d("2024-01-31"), Target: true},
			},
		}},
	}))

	corrupt := func(stmt string) {
		require.NoError(t, store.WithTx(ctx, func(q sqlite.Querier) error {
			_, err := q.ExecContext(ctx, stmt)
			return err
		}))
	}

	corrupt(`UPDATE schedules SET target_date = 'end of month'`)
	_, err := store.ListSchedules(ctx, "le-1", rng)
	assert.ErrorIs(t, err, generic.ErrInvalidDate)

	corrupt(`UPDATE schedules SET target_date = '2024-01-31'`)
	corrupt(`UPDATE schedule_dates SET date = '31/01/2024'`)
	_, err = store.ListSchedules(ctx, "le-1", rng)
	assert.ErrorIs(t, err, generic.ErrInvalidDate)
}

func TestGenerateAndSave_OverSQLite(t *testing.T) {
	// GIVEN: A UK monthly entity with a 2-day inputs cut-off, Easter 2024 stored
	// WHEN: Generating and saving Q1 twice
	// THEN: March pays on 2024-03-28, inputs on 03-26, and rows are not duplicated

	store := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveLegalEntity(ctx, ukEntity()))
	require.NoError(t, store.ReplaceMilestones(ctx, "le-1", []schedule.Milestone{
		{ID: "inputs", Index: 0, Interval: schedule.IntervalOf(2)},
		{ID: "pay", Index: 1, Target: true},
	}))
	require.NoError(t, store.SaveHolidays(ctx, []generic.Holiday{
		{Name: "Good Friday", Date: d("2024-03-29"), Locality: "GB"},
		{Name: "Easter Monday", Date: d("2024-04-01"), Locality: "GB"},
	}))

	gen := schedule.NewGenerator(store, zerolog.Nop())
	in := schedule.GenerateInput{LegalEntityID: "le-1", Start: d("2024-01-01"), End: d("2024-03-31")}
	_, err := gen.GenerateAndSave(ctx, in)
	require.NoError(t, err)
	_, err = gen.GenerateAndSave(ctx, in)
	require.NoError(t, err)

	got, err := store.ListSchedules(ctx, "le-1", in.Range())
	require.NoError(t, err)
	require.Len(t, got, 3)

	march := got[2]
	assert.Equal(t, "2024-03-28", march.TargetDate.String())
	inputs, ok := march.DateFor("inputs")
	require.True(t, ok)
	assert.Equal(t, "2024-03-26", inputs.String())
	assert.Equal(t, []string{"Good Friday"}, names(march.Holidays))
}

func TestReset(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveLegalEntity(ctx, ukEntity()))
	require.NoError(t, store.Reset(ctx))

	all, err := store.ListLegalEntities(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func names(hs []generic.Holiday) []string {
	out := make([]string, 0, len(hs))
	for _, h := range hs {
		out = append(out, h.Name)
	}
	return out
}
