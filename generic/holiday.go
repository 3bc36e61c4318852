package generic

import (
	"sort"
)

// =============================================================================
// HOLIDAY - Public or entity-specific non-working day
// =============================================================================

// Holiday is one non-working day in one locality. Country-wide holidays have an
// empty EntityID; custom holidays belong to a single organisation.
type Holiday struct {
	ID         string
	Name       string
	Date       Date
	Observed   Date // zero when the holiday is observed on Date
	Locality   string
	EntityType EntityType
	EntityID   string
}

// Day is the calendar day the holiday closes: the observed day when set.
func (h Holiday) Day() Date {
	if !h.Observed.IsZero() {
		return h.Observed
	}
	return h.Date
}

// IsCustom reports whether the holiday belongs to an organisation.
func (h Holiday) IsCustom() bool { return h.EntityID != "" }

// Key identifies a holiday for de-duplication: date, locality and name.
func (h Holiday) Key() string {
	return h.Date.String() + "|" + h.Locality + "|" + h.Name
}

// MergeHolidays builds an entity's effective holiday list for one locality:
// the union of country-wide and custom holidays, where a custom holiday that
// carries an owning entity replaces any country holiday on the same day.
func MergeHolidays(country, custom []Holiday) []Holiday {
	overridden := make(map[string]bool)
	for _, h := range custom {
		if h.IsCustom() {
			overridden[h.Day().String()] = true
		}
	}

	merged := make([]Holiday, 0, len(country)+len(custom))
	for _, h := range country {
		if overridden[h.Day().String()] {
			continue
		}
		merged = append(merged, h)
	}
	merged = append(merged, custom...)
	SortHolidays(merged)
	return merged
}

// SortHolidays orders by day, then locality, then name.
func SortHolidays(hs []Holiday) {
	sort.SliceStable(hs, func(i, j int) bool {
		a, b := hs[i], hs[j]
		if !SameDate(a.Day(), b.Day()) {
			return a.Day().Before(b.Day())
		}
		if a.Locality != b.Locality {
			return a.Locality < b.Locality
		}
		return a.Name < b.Name
	})
}

// HolidaySet accumulates holidays, dropping repeats by Key. Insertion order is kept.
type HolidaySet struct {
	seen  map[string]bool
	items []Holiday
}

func NewHolidaySet() *HolidaySet {
	return &HolidaySet{seen: make(map[string]bool)}
}

func (s *HolidaySet) Add(hs ...Holiday) {
	for _, h := range hs {
		k := h.Key()
		if s.seen[k] {
			continue
		}
		s.seen[k] = true
		s.items = append(s.items, h)
	}
}

func (s *HolidaySet) Len() int { return len(s.items) }

// Sorted returns a sorted copy.
func (s *HolidaySet) Sorted() []Holiday {
	out := make([]Holiday, len(s.items))
	copy(out, s.items)
	SortHolidays(out)
	return out
}
