// Package store provides in-memory calendar collaborators.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/payroll-schedules/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements generic.HolidayProvider, generic.EntityLocator and
// generic.WorkingDaysOverride.
type Memory struct {
	mu          sync.RWMutex
	holidays    map[holidayKey][]generic.Holiday
	localities  map[entityKey][]string
	workingDays map[string][]time.Weekday
	calls       int
}

type holidayKey struct {
	Locality string
	EntityID string
	Year     int
}

type entityKey struct {
	Type generic.EntityType
	ID   string
}

func NewMemory() *Memory {
	return &Memory{
		holidays:    make(map[holidayKey][]generic.Holiday),
		localities:  make(map[entityKey][]string),
		workingDays: make(map[string][]time.Weekday),
	}
}

// AddHoliday stores a holiday under its locality and owning entity. The year
// bucket is taken from the observed day.
func (m *Memory) AddHoliday(h generic.Holiday) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h.Locality = generic.NormalizeCountry(h.Locality)
	k := holidayKey{Locality: h.Locality, EntityID: h.EntityID, Year: h.Day().Year()}
	m.holidays[k] = append(m.holidays[k], h)
}

// AddHolidays is AddHoliday for a slice.
func (m *Memory) AddHolidays(hs ...generic.Holiday) {
	for _, h := range hs {
		m.AddHoliday(h)
	}
}

// SetLocalities registers an organisation's countries.
func (m *Memory) SetLocalities(t generic.EntityType, id string, countries ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(countries))
	for _, c := range countries {
		out = append(out, generic.NormalizeCountry(c))
	}
	m.localities[entityKey{Type: t, ID: id}] = out
}

// SetWorkingDays overrides one country's working week.
func (m *Memory) SetWorkingDays(country string, days ...time.Weekday) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workingDays[generic.NormalizeCountry(country)] = append([]time.Weekday(nil), days...)
}

// Calls reports how many holiday lookups reached the store.
func (m *Memory) Calls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls
}

func (m *Memory) ListHolidaysForEntityAndYear(_ context.Context, locality, entityID string, year int) ([]generic.Holiday, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	locality = generic.NormalizeCountry(locality)
	country := m.holidays[holidayKey{Locality: locality, Year: year}]
	if entityID == "" {
		out := append([]generic.Holiday(nil), country...)
		generic.SortHolidays(out)
		return out, nil
	}
	custom := m.holidays[holidayKey{Locality: locality, EntityID: entityID, Year: year}]
	return generic.MergeHolidays(country, custom), nil
}

func (m *Memory) GetLocalitiesForEntity(_ context.Context, t generic.EntityType, id string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	countries, ok := m.localities[entityKey{Type: t, ID: id}]
	if !ok {
		return nil, &generic.EntityNotFoundError{Type: t, ID: id}
	}
	return append([]string(nil), countries...), nil
}

func (m *Memory) GetWorkingWeekdays(_ context.Context, countries []string) (map[string][]time.Weekday, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string][]time.Weekday)
	for _, c := range countries {
		c = generic.NormalizeCountry(c)
		if days, ok := m.workingDays[c]; ok {
			sorted := append([]time.Weekday(nil), days...)
			sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
			out[c] = sorted
		}
	}
	return out, nil
}
