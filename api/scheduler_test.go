package api

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-schedules/generic"
)

func TestScheduleScheduler_Horizon(t *testing.T) {
	s := NewScheduleScheduler(nil, testLogger())
	s.HorizonMonths = 3

	rng := s.Horizon(generic.MustParseDate("2026-10-18"))
	assert.Equal(t, "2026-10-01", rng.Start.String())
	assert.Equal(t, "2026-12-31", rng.End.String())
}

func TestScheduleScheduler_RunOnce(t *testing.T) {
	// GIVEN: The US scenario plus a legal entity with no milestones
	// WHEN: Running one pass with a two-month horizon
	// THEN: The US entity gets four persisted periods, the other fails alone

	h, _ := setupTestHandler(t)
	ctx := context.Background()
	require.NoError(t, h.LoadScenarioByID(ctx, "us-semi-monthly"))

	broken, err := h.Store.GetLegalEntity(ctx, "le-us")
	require.NoError(t, err)
	broken.ID = "le-empty"
	require.NoError(t, h.Store.SaveLegalEntity(ctx, broken))

	s := NewScheduleScheduler(h.Generator, testLogger())
	s.HorizonMonths = 2

	res := s.RunOnce(ctx, generic.MustParseDate("2026-11-20"))
	assert.Equal(t, 1, res.Generated)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 4, res.Periods)

	saved, err := h.Store.ListSchedules(ctx, "le-us", res.Range)
	require.NoError(t, err)
	assert.Len(t, saved, 4)

	// A second pass upserts instead of duplicating.
	s.RunOnce(ctx, generic.MustParseDate("2026-11-21"))
	saved, err = h.Store.ListSchedules(ctx, "le-us", res.Range)
	require.NoError(t, err)
	assert.Len(t, saved, 4)
}

func TestScheduleScheduler_StartStop(t *testing.T) {
	h, _ := setupTestHandler(t)

	s := NewScheduleScheduler(h.Generator, testLogger())
	s.Start() // disabled: no goroutine
	s.Stop()

	s.Enabled = true
	s.Start()
	s.Stop()
	s.Stop()
}
