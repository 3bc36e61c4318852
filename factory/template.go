/*
Package factory converts legal-entity schedule templates into domain types.

PURPOSE:
  A template describes one legal entity's payroll schedule in JSON or YAML:
  its frequency, target rule, localities, the organisations whose calendars
  its milestones follow, the milestone set itself, and optional calendar data
  (holidays and working-week overrides). Onboarding a new entity becomes a
  document instead of a code change.

YAML SCHEMA:
  legal_entity:
    id: le-uk
    name: Acme UK Ltd
    frequency: monthly
    target_rule: "last 0"
    localities: [GB]
    service_centre: {id: sc-dubai, name: Dubai SC, localities: [AE]}
  milestones:
    - {identifier: inputs, index: 0, interval: 5, entities: [legal-entity]}
    - {identifier: payment, index: 1, target: true}
  holidays:
    - {name: Good Friday, date: 2024-03-29, locality: GB}
  working_days:
    AE: [sunday, monday, tuesday, wednesday, thursday]

  JSON uses the same field names.

VALIDATION:
  - frequency and target_rule must parse
  - at least one milestone; at most one flagged target
  - when no milestone is flagged, the first by index becomes the target
  - entity types, dates and weekdays must parse

SEE ALSO:
  - schedule/types.go: LegalEntity, Organization
  - api/scenarios.go: Demo data built from templates
*/
package factory

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/warp/payroll-schedules/generic"
	"github.com/warp/payroll-schedules/schedule"
)

// =============================================================================
// DOCUMENT TYPES
// =============================================================================

// TemplateDocument is the serialized form.
type TemplateDocument struct {
	LegalEntity LegalEntityDocument `json:"legal_entity" yaml:"legal_entity"`
	Milestones  []MilestoneDocument `json:"milestones" yaml:"milestones"`
	Holidays    []HolidayDocument   `json:"holidays,omitempty" yaml:"holidays,omitempty"`
	WorkingDays map[string][]string `json:"working_days,omitempty" yaml:"working_days,omitempty"`
}

type LegalEntityDocument struct {
	ID            string                `json:"id" yaml:"id"`
	Name          string                `json:"name" yaml:"name"`
	Frequency     string                `json:"frequency" yaml:"frequency"`
	TargetRule    string                `json:"target_rule" yaml:"target_rule"`
	Localities    []string              `json:"localities" yaml:"localities"`
	ServiceCentre *OrganizationDocument `json:"service_centre,omitempty" yaml:"service_centre,omitempty"`
	Provider      *OrganizationDocument `json:"provider,omitempty" yaml:"provider,omitempty"`
	Client        *OrganizationDocument `json:"client,omitempty" yaml:"client,omitempty"`
}

type OrganizationDocument struct {
	ID         string   `json:"id" yaml:"id"`
	Name       string   `json:"name" yaml:"name"`
	Localities []string `json:"localities" yaml:"localities"`
}

type MilestoneDocument struct {
	ID         string   `json:"id,omitempty" yaml:"id,omitempty"`
	Identifier string   `json:"identifier" yaml:"identifier"`
	Name       string   `json:"name,omitempty" yaml:"name,omitempty"`
	Index      int      `json:"index" yaml:"index"`
	Interval   *int     `json:"interval,omitempty" yaml:"interval,omitempty"`
	Target     bool     `json:"target,omitempty" yaml:"target,omitempty"`
	Entities   []string `json:"entities,omitempty" yaml:"entities,omitempty"`
}

type HolidayDocument struct {
	Name       string `json:"name" yaml:"name"`
	Date       string `json:"date" yaml:"date"`
	Observed   string `json:"observed,omitempty" yaml:"observed,omitempty"`
	Locality   string `json:"locality" yaml:"locality"`
	EntityType string `json:"entity_type,omitempty" yaml:"entity_type,omitempty"`
	EntityID   string `json:"entity_id,omitempty" yaml:"entity_id,omitempty"`
}

// Template is the validated result.
type Template struct {
	LegalEntity   schedule.LegalEntity
	Organizations []schedule.Organization
	Milestones    []schedule.Milestone
	Holidays      []generic.Holiday
	WorkingDays   map[string][]time.Weekday
}

// =============================================================================
// TEMPLATE FACTORY
// =============================================================================

// Format of a serialized template.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the format from a file extension, YAML by default.
func FormatFromPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// TemplateFactory converts documents to templates.
type TemplateFactory struct{}

func NewTemplateFactory() *TemplateFactory {
	return &TemplateFactory{}
}

// Parse decodes data in the given format and converts it.
func (f *TemplateFactory) Parse(data []byte, format Format) (*Template, error) {
	var doc TemplateDocument
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse template JSON: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse template YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown template format %q", format)
	}
	return f.FromDocument(doc)
}

// ParseJSON is Parse for JSON strings.
func (f *TemplateFactory) ParseJSON(s string) (*Template, error) {
	return f.Parse([]byte(s), FormatJSON)
}

// ParseYAML is Parse for YAML strings.
func (f *TemplateFactory) ParseYAML(s string) (*Template, error) {
	return f.Parse([]byte(s), FormatYAML)
}

// FromDocument validates and converts a decoded document.
func (f *TemplateFactory) FromDocument(doc TemplateDocument) (*Template, error) {
	led := doc.LegalEntity
	if strings.TrimSpace(led.ID) == "" {
		return nil, fmt.Errorf("legal_entity.id is required")
	}

	freq, err := schedule.ParseFrequency(led.Frequency)
	if err != nil {
		return nil, err
	}
	rules, err := schedule.ParseTargetRules(led.TargetRule)
	if err != nil {
		return nil, err
	}

	tpl := &Template{
		LegalEntity: schedule.LegalEntity{
			ID:         led.ID,
			Name:       led.Name,
			Frequency:  freq,
			TargetRule: schedule.FormatTargetRules(rules),
			Localities: normalizeAll(led.Localities),
		},
		WorkingDays: make(map[string][]time.Weekday),
	}

	for _, org := range []struct {
		doc *OrganizationDocument
		typ generic.EntityType
		id  *string
	}{
		{led.ServiceCentre, generic.EntityServiceCentre, &tpl.LegalEntity.ServiceCentreID},
		{led.Provider, generic.EntityProvider, &tpl.LegalEntity.ProviderID},
		{led.Client, generic.EntityClient, &tpl.LegalEntity.ClientID},
	} {
		if org.doc == nil {
			continue
		}
		if org.doc.ID == "" {
			return nil, fmt.Errorf("%s.id is required", org.typ)
		}
		*org.id = org.doc.ID
		tpl.Organizations = append(tpl.Organizations, schedule.Organization{
			ID:         org.doc.ID,
			Type:       org.typ,
			Name:       org.doc.Name,
			Localities: normalizeAll(org.doc.Localities),
		})
	}

	if tpl.Milestones, err = parseMilestones(led.ID, doc.Milestones); err != nil {
		return nil, err
	}
	if tpl.Holidays, err = parseHolidays(doc.Holidays); err != nil {
		return nil, err
	}
	for country, names := range doc.WorkingDays {
		var days []time.Weekday
		for _, name := range names {
			wd, err := generic.ParseWeekday(name)
			if err != nil {
				return nil, fmt.Errorf("working_days.%s: %w", country, err)
			}
			days = append(days, wd)
		}
		tpl.WorkingDays[generic.NormalizeCountry(country)] = days
	}
	return tpl, nil
}

func parseMilestones(legalEntityID string, docs []MilestoneDocument) ([]schedule.Milestone, error) {
	ms := make([]schedule.Milestone, 0, len(docs))
	for _, md := range docs {
		m := schedule.Milestone{
			ID:         md.ID,
			Identifier: md.Identifier,
			Name:       md.Name,
			Index:      md.Index,
			Interval:   md.Interval,
			Target:     md.Target,
		}
		if m.Identifier == "" {
			m.Identifier = fmt.Sprintf("milestone-%d", md.Index)
		}
		if m.ID == "" {
			m.ID = legalEntityID + "-" + m.Identifier
		}
		for _, e := range md.Entities {
			t, err := generic.ParseEntityType(e)
			if err != nil {
				return nil, fmt.Errorf("milestone %s: %w", m.Identifier, err)
			}
			m.Entities = append(m.Entities, t)
		}
		ms = append(ms, m)
	}

	if err := schedule.ValidateMilestones(legalEntityID, ms); err != nil {
		return nil, err
	}
	schedule.SortMilestones(ms)
	target, err := schedule.FindTarget(ms)
	if err != nil {
		return nil, err
	}
	return schedule.SetTarget(ms, target.ID)
}

func parseHolidays(docs []HolidayDocument) ([]generic.Holiday, error) {
	var out []generic.Holiday
	for _, hd := range docs {
		date, err := generic.ParseDate(hd.Date)
		if err != nil {
			return nil, fmt.Errorf("holiday %q: %w", hd.Name, err)
		}
		h := generic.Holiday{
			Name:     hd.Name,
			Date:     date,
			Locality: generic.NormalizeCountry(hd.Locality),
			EntityID: hd.EntityID,
		}
		if hd.Observed != "" {
			if h.Observed, err = generic.ParseDate(hd.Observed); err != nil {
				return nil, fmt.Errorf("holiday %q: %w", hd.Name, err)
			}
		}
		if hd.EntityType != "" {
			if h.EntityType, err = generic.ParseEntityType(hd.EntityType); err != nil {
				return nil, fmt.Errorf("holiday %q: %w", hd.Name, err)
			}
		}
		h.ID = HolidayID(h)
		out = append(out, h)
	}
	return out, nil
}

// HolidayID derives a stable id from the holiday's identity.
func HolidayID(h generic.Holiday) string {
	id := strings.ToLower(h.Locality + "-" + h.Date.String() + "-" + strings.ReplaceAll(h.Name, " ", "-"))
	if h.EntityID != "" {
		id = h.EntityID + "-" + id
	}
	return id
}

func normalizeAll(codes []string) []string {
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		if c = generic.NormalizeCountry(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// =============================================================================
// ENCODING
// =============================================================================

// ToDocument converts a template back into its serialized form.
func ToDocument(tpl *Template) TemplateDocument {
	le := tpl.LegalEntity
	doc := TemplateDocument{
		LegalEntity: LegalEntityDocument{
			ID: le.ID, Name: le.Name, Frequency: string(le.Frequency),
			TargetRule: le.TargetRule, Localities: le.Localities,
		},
	}
	for _, org := range tpl.Organizations {
		od := &OrganizationDocument{ID: org.ID, Name: org.Name, Localities: org.Localities}
		switch org.Type {
		case generic.EntityServiceCentre:
			doc.LegalEntity.ServiceCentre = od
		case generic.EntityProvider:
			doc.LegalEntity.Provider = od
		case generic.EntityClient:
			doc.LegalEntity.Client = od
		}
	}
	for _, m := range tpl.Milestones {
		md := MilestoneDocument{
			ID: m.ID, Identifier: m.Identifier, Name: m.Name,
			Index: m.Index, Interval: m.Interval, Target: m.Target,
		}
		for _, e := range m.Entities {
			md.Entities = append(md.Entities, e.String())
		}
		doc.Milestones = append(doc.Milestones, md)
	}
	return doc
}

// MarshalYAML renders a template as YAML.
func MarshalYAML(tpl *Template) ([]byte, error) {
	return yaml.Marshal(ToDocument(tpl))
}
