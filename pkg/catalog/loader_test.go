package catalog

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guivernoir/CISO-sim/pkg/integrity"
	"github.com/Guivernoir/CISO-sim/pkg/simerr"
)

const oneTurn = `
catalog_version: "0.1.0"
engine: ">= 1.0.0"
decisions:
  - id: turn_1_hello
    turn: 1
    title: "Café Meeting"
    category: POLITICAL_NAVIGATION
    choices:
      - id: bury_it
        label: Bury it
        impact:
          risk: {data_exposure: 35}
          audit_trail: CLEAN
          delayed:
            - delay: 2
              integrity: {kind: BURIED_INCIDENT}
`

func TestParseValidFile(t *testing.T) {
	l, err := NewLoader()
	require.NoError(t, err)

	f, err := l.Parse([]byte(oneTurn))
	require.NoError(t, err)
	require.Len(t, f.Decisions, 1)

	d := f.Decisions[0]
	assert.Equal(t, "Café Meeting", d.Title, "title is NFC-normalized")
	c, ok := d.Choice("bury_it")
	require.True(t, ok)
	assert.Equal(t, 35.0, c.Impact.Risk.DataExposure)
	require.Len(t, c.Impact.Delayed, 1)
	assert.Equal(t, integrity.BuriedIncident, c.Impact.Delayed[0].Integrity.Kind)
	assert.Equal(t, 1.0, c.Impact.Delayed[0].Integrity.Magnitude, "omitted magnitude defaults to 1")
}

func TestParseRejectsSchemaViolations(t *testing.T) {
	l, err := NewLoader()
	require.NoError(t, err)

	cases := map[string]string{
		"unknown field": `
catalog_version: "1"
decisions:
  - {id: a, turn: 1, title: t, category: STRATEGIC_DIRECTION, surprise: true, choices: [{id: x, label: X, impact: {}}]}
`,
		"bad category": `
catalog_version: "1"
decisions:
  - {id: a, turn: 1, title: t, category: VIBES, choices: [{id: x, label: X, impact: {}}]}
`,
		"bad integrity kind": `
catalog_version: "1"
decisions:
  - {id: a, turn: 1, title: t, category: STRATEGIC_DIRECTION, choices: [{id: x, label: X, impact: {integrity: [{kind: FIB}]}}]}
`,
		"no choices": `
catalog_version: "1"
decisions:
  - {id: a, turn: 1, title: t, category: STRATEGIC_DIRECTION, choices: []}
`,
		"not yaml": "decisions: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := l.Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestParseRejectsIncompatibleEngine(t *testing.T) {
	l, err := NewLoader()
	require.NoError(t, err)
	doc := `
catalog_version: "9.0.0"
engine: ">= 9.0.0"
decisions: []
`
	_, err = l.Parse([]byte(doc))
	assert.Error(t, err)
}

func TestLoadFSMergesFiles(t *testing.T) {
	second := `
catalog_version: "0.2.0"
decisions:
  - id: turn_2_bye
    turn: 2
    title: Bye
    category: TEAM_MANAGEMENT
    choices:
      - {id: leave, label: Leave, impact: {audit_trail: CLEAN}}
`
	fsys := fstest.MapFS{
		"content/a.yaml":    {Data: []byte(oneTurn)},
		"content/b.yaml":    {Data: []byte(second)},
		"content/notes.txt": {Data: []byte("ignored")},
	}
	l, err := NewLoader()
	require.NoError(t, err)

	c, err := l.LoadFS(context.Background(), fsys, "content")
	require.NoError(t, err)
	assert.Equal(t, 2, c.FinalTurn())
	assert.Equal(t, "0.1.0+0.2.0", c.Version())
}

func TestLoadFSFailuresAreConfigurationErrors(t *testing.T) {
	l, err := NewLoader()
	require.NoError(t, err)

	_, err = l.LoadFS(context.Background(), fstest.MapFS{}, "missing")
	assert.True(t, errors.Is(err, simerr.ErrConfigurationError))

	gap := fstest.MapFS{"c/a.yaml": {Data: []byte(`
catalog_version: "1"
decisions:
  - {id: a, turn: 2, title: t, category: STRATEGIC_DIRECTION, choices: [{id: x, label: X, impact: {}}]}
`)}}
	_, err = l.LoadFS(context.Background(), gap, "c")
	assert.True(t, errors.Is(err, simerr.ErrConfigurationError))
}

func TestDefaultScenario(t *testing.T) {
	c, err := Default(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8, c.FinalTurn())

	first, err := c.ForTurn(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "turn_1_inheritance", first.ID)
	assert.Len(t, first.Choices, 3)

	for _, d := range c.Decisions() {
		require.NoError(t, d.Validate(), d.ID)
		for _, ch := range d.Choices {
			assert.NotEmpty(t, ch.Impact.AuditTrail, "%s/%s", d.ID, ch.ID)
		}
	}
}
