package schedule_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-schedules/generic"
	"github.com/warp/payroll-schedules/generic/store"
	"github.com/warp/payroll-schedules/schedule"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// fakeStore layers legal entities, milestones and saved schedules over the
// in-memory calendar store.
type fakeStore struct {
	*store.Memory

	mu         sync.Mutex
	entities   map[string]schedule.LegalEntity
	milestones map[string][]schedule.Milestone
	saved      []*schedule.GeneratedScheduleSet
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		Memory:     store.NewMemory(),
		entities:   make(map[string]schedule.LegalEntity),
		milestones: make(map[string][]schedule.Milestone),
	}
}

func (f *fakeStore) addLegalEntity(le schedule.LegalEntity, ms ...schedule.Milestone) {
	f.entities[le.ID] = le
	f.milestones[le.ID] = ms
	f.SetLocalities(generic.EntityLegalEntity, le.ID, le.Localities...)
}

func (f *fakeStore) GetLegalEntity(_ context.Context, id string) (schedule.LegalEntity, error) {
	le, ok := f.entities[id]
	if !ok {
		return schedule.LegalEntity{}, &generic.EntityNotFoundError{Type: generic.EntityLegalEntity, ID: id}
	}
	return le, nil
}

func (f *fakeStore) ListLegalEntities(context.Context) ([]schedule.LegalEntity, error) {
	var out []schedule.LegalEntity
	for _, le := range f.entities {
		out = append(out, le)
	}
	return out, nil
}

func (f *fakeStore) ListMilestones(_ context.Context, legalEntityID string) ([]schedule.Milestone, error) {
	return append([]schedule.Milestone(nil), f.milestones[legalEntityID]...), nil
}

func (f *fakeStore) SaveScheduleSet(_ context.Context, set *schedule.GeneratedScheduleSet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, set)
	return nil
}

func (f *fakeStore) ListSchedules(_ context.Context, legalEntityID string, r generic.Range) ([]schedule.GeneratedSchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []schedule.GeneratedSchedule
	for _, set := range f.saved {
		for _, s := range set.Schedules {
			if s.LegalEntityID == legalEntityID && r.Contains(s.Date) {
				out = append(out, s)
			}
		}
	}
	return out, nil
}

type recordingNotifier struct {
	generated []string
	failed    []error
}

func (n *recordingNotifier) ScheduleSetGenerated(_ context.Context, set *schedule.GeneratedScheduleSet) error {
	n.generated = append(n.generated, set.LegalEntityID)
	return nil
}

func (n *recordingNotifier) ScheduleGenerationFailed(_ context.Context, _ string, cause error) error {
	n.failed = append(n.failed, cause)
	return nil
}

func newTestGenerator(t *testing.T) (*schedule.Generator, *fakeStore) {
	t.Helper()
	fs := newFakeStore()
	g := schedule.NewGenerator(fs, zerolog.Nop())
	require.NotNil(t, g.Resolver)
	return g, fs
}

func d(s string) generic.Date { return generic.MustParseDate(s) }

func dates(ds []generic.Date) []string {
	out := make([]string, len(ds))
	for i, x := range ds {
		out[i] = x.String()
	}
	return out
}

func gbHoliday(name, date string) generic.Holiday {
	return generic.Holiday{ID: "gb-" + date, Name: name, Date: d(date), Locality: "GB"}
}

func ukCalendar() []generic.Holiday {
	return []generic.Holiday{
		gbHoliday("New Year's Day", "2024-01-01"),
		gbHoliday("Good Friday", "2024-03-29"),
		gbHoliday("Easter Monday", "2024-04-01"),
		gbHoliday("Christmas Day", "2024-12-25"),
		gbHoliday("Boxing Day", "2024-12-26"),
	}
}

var sunToThu = []time.Weekday{time.Sunday, time.Monday, time.Tuesday, time.Wednesday, time.Thursday}
