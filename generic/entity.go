package generic

import "strings"

// =============================================================================
// ENTITY TYPE - Whose holiday calendar applies
// =============================================================================

// EntityType is the closed set of organisations that own a calendar.
type EntityType string

const (
	EntityLegalEntity   EntityType = "legal-entity"
	EntityServiceCentre EntityType = "service-centre"
	EntityProvider      EntityType = "provider"
	EntityClient        EntityType = "client"
)

// EntityTypes lists every variant in a stable order.
var EntityTypes = []EntityType{EntityLegalEntity, EntityServiceCentre, EntityProvider, EntityClient}

// ParseEntityType accepts the kebab-case discriminator, with underscores tolerated.
func ParseEntityType(s string) (EntityType, error) {
	t := EntityType(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-"))
	if !t.Valid() {
		return "", &EntityTypeError{Value: s}
	}
	return t, nil
}

func (t EntityType) Valid() bool {
	switch t {
	case EntityLegalEntity, EntityServiceCentre, EntityProvider, EntityClient:
		return true
	}
	return false
}

func (t EntityType) String() string { return string(t) }

// EntityTypeError reports an unknown discriminator.
type EntityTypeError struct {
	Value string
}

func (e *EntityTypeError) Error() string {
	return "invalid entity type " + `"` + e.Value + `"`
}

func (e *EntityTypeError) Unwrap() error { return ErrInvalidEntityType }

// =============================================================================
// COUNTRY SET - One entity's localities
// =============================================================================

// CountrySet pairs an owning entity with the countries whose calendars it uses.
// A date is a working day only when it is one for every set of a walk.
type CountrySet struct {
	EntityID  string
	Countries []string
}

// Localities flattens the sets into unique country codes, first-seen order.
func Localities(sets []CountrySet) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range sets {
		for _, c := range s.Countries {
			c = NormalizeCountry(c)
			if c == "" || seen[c] {
				continue
			}
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

// NormalizeCountry upper-cases an ISO code.
func NormalizeCountry(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
