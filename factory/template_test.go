package factory_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-schedules/factory"
	"github.com/warp/payroll-schedules/generic"
	"github.com/warp/payroll-schedules/schedule"
)

const gulfYAML = `
legal_entity:
  id: le-gulf
  name: Gulf Trading LLC
  frequency: Weekly
  target_rule: "day thursday"
  localities: [gb]
  service_centre:
    id: sc-dubai
    name: Dubai Service Centre
    localities: [AE]
milestones:
  - identifier: inputs
    index: 0
    interval: 2
    entities: [legal-entity, service-centre]
  - identifier: payment
    index: 1
    entities: [legal_entity]
holidays:
  - name: National Day
    date: "2024-12-02"
    observed: "2024-12-03"
    locality: ae
working_days:
  AE: [sun, mon, tue, wed, thu]
`

func TestParseYAML_GulfTemplate(t *testing.T) {
	// GIVEN: A weekly template with a service centre and no flagged target
	// WHEN: Parsing
	// THEN: Organisations are linked, the first milestone becomes the target

	tpl, err := factory.NewTemplateFactory().ParseYAML(gulfYAML)
	require.NoError(t, err)

	le := tpl.LegalEntity
	assert.Equal(t, schedule.Weekly, le.Frequency)
	assert.Equal(t, "day thursday", le.TargetRule)
	assert.Equal(t, []string{"GB"}, le.Localities)
	assert.Equal(t, "sc-dubai", le.ServiceCentreID)

	require.Len(t, tpl.Organizations, 1)
	assert.Equal(t, generic.EntityServiceCentre, tpl.Organizations[0].Type)

	require.Len(t, tpl.Milestones, 2)
	assert.Equal(t, "le-gulf-inputs", tpl.Milestones[0].ID)
	assert.True(t, tpl.Milestones[0].Target)
	assert.False(t, tpl.Milestones[1].Target)
	assert.Nil(t, tpl.Milestones[1].Interval)
	assert.Equal(t, []generic.EntityType{generic.EntityLegalEntity, generic.EntityServiceCentre}, tpl.Milestones[0].Entities)

	require.Len(t, tpl.Holidays, 1)
	assert.Equal(t, "AE", tpl.Holidays[0].Locality)
	assert.Equal(t, "2024-12-03", tpl.Holidays[0].Day().String())

	assert.Equal(t, []time.Weekday{time.Sunday, time.Monday, time.Tuesday, time.Wednesday, time.Thursday}, tpl.WorkingDays["AE"])
}

func TestParseJSON_SemiMonthly(t *testing.T) {
	tpl, err := factory.NewTemplateFactory().ParseJSON(`{
		"legal_entity": {"id": "le-us", "frequency": "semi-monthly", "target_rule": "date 15, last 0", "localities": ["US"]},
		"milestones": [
			{"identifier": "approve", "index": 0, "interval": 3},
			{"identifier": "pay", "index": 1, "target": true}
		]
	}`)
	require.NoError(t, err)
	assert.Equal(t, "date 15,last 0", tpl.LegalEntity.TargetRule)
	assert.False(t, tpl.Milestones[0].Target)
	assert.True(t, tpl.Milestones[1].Target)
	assert.Equal(t, 3, *tpl.Milestones[0].Interval)
}

func TestParse_Rejects(t *testing.T) {
	f := factory.NewTemplateFactory()

	cases := map[string]struct {
		doc  string
		want error
	}{
		"bad frequency": {
			`{"legal_entity": {"id": "x", "frequency": "daily", "target_rule": "last 0"}, "milestones": [{"index": 0}]}`,
			schedule.ErrInvalidFrequency,
		},
		"bad rule": {
			`{"legal_entity": {"id": "x", "frequency": "monthly", "target_rule": "soon 1"}, "milestones": [{"index": 0}]}`,
			schedule.ErrInvalidTargetRule,
		},
		"no milestones": {
			`{"legal_entity": {"id": "x", "frequency": "monthly", "target_rule": "last 0"}}`,
			schedule.ErrNoTargetMilestone,
		},
		"two targets": {
			`{"legal_entity": {"id": "x", "frequency": "monthly", "target_rule": "last 0"},
			  "milestones": [{"index": 0, "target": true}, {"index": 1, "target": true}]}`,
			schedule.ErrMultipleTargets,
		},
		"bad entity": {
			`{"legal_entity": {"id": "x", "frequency": "monthly", "target_rule": "last 0"},
			  "milestones": [{"index": 0, "entities": ["vendor"]}]}`,
			generic.ErrInvalidEntityType,
		},
		"bad holiday date": {
			`{"legal_entity": {"id": "x", "frequency": "monthly", "target_rule": "last 0"},
			  "milestones": [{"index": 0}], "holidays": [{"name": "h", "date": "31/12/2024", "locality": "GB"}]}`,
			generic.ErrInvalidDate,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.ParseJSON(tc.doc)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	_, err := f.ParseYAML("legal_entity: [")
	assert.Error(t, err)
}

func TestMarshalYAML_ParsesBack(t *testing.T) {
	f := factory.NewTemplateFactory()
	tpl, err := f.ParseYAML(gulfYAML)
	require.NoError(t, err)

	data, err := factory.MarshalYAML(tpl)
	require.NoError(t, err)

	back, err := f.Parse(data, factory.FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, tpl.LegalEntity, back.LegalEntity)
	assert.Equal(t, tpl.Milestones, back.Milestones)
}

func TestFormatFromPath(t *testing.T) {
	assert.Equal(t, factory.FormatJSON, factory.FormatFromPath("seed/le.JSON"))
	assert.Equal(t, factory.FormatYAML, factory.FormatFromPath("seed/le.yml"))
}
