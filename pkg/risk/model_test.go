package risk

import (
	"bytes"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultModel(t *testing.T) *Model {
	t.Helper()
	m, err := NewModel(DefaultConfig())
	require.NoError(t, err)
	return m
}

func TestInitialExposure(t *testing.T) {
	m := defaultModel(t)
	assert.InDelta(t, 35.0, m.TotalExposure(m.Initial()), 1e-9)
}

func TestApplyWithoutAmplification(t *testing.T) {
	m := defaultModel(t)
	next := m.Apply(m.Initial(), Delta{DataExposure: 35, Detection: -3})

	assert.InDelta(t, 45.0, next.DataExposure, 1e-9)
	assert.InDelta(t, 2.0, next.Detection, 1e-9)
	assert.InDelta(t, 67.0, m.TotalExposure(next), 1e-9)
}

func TestApplyClampsToBounds(t *testing.T) {
	m := defaultModel(t)
	next := m.Apply(Vector{DataExposure: 95, AccessControl: 3}, Delta{DataExposure: 40, AccessControl: -50})

	assert.Equal(t, MaxMagnitude, next.DataExposure)
	assert.Equal(t, MinMagnitude, next.AccessControl)
}

func TestApplyBoundsOversizedDelta(t *testing.T) {
	m := defaultModel(t)
	next := m.Apply(Vector{}, Delta{InsiderThreat: 1e9, VendorRisk: -1e9})
	assert.Equal(t, MaxMagnitude, next.InsiderThreat)
	assert.Equal(t, MinMagnitude, next.VendorRisk)
}

func TestAccessControlAmplifiesDataExposure(t *testing.T) {
	m := defaultModel(t)
	current := Vector{AccessControl: 60}
	next := m.Apply(current, Delta{DataExposure: 10, InsiderThreat: 10})

	assert.InDelta(t, 12.0, next.DataExposure, 1e-9)
	assert.InDelta(t, 10.0, next.InsiderThreat, 1e-9)
	assert.Equal(t, []string{"broken-access-control"}, m.Fired(current))
}

func TestWeakDetectionAmplifiesEverything(t *testing.T) {
	m := defaultModel(t)
	current := Vector{Detection: 70, AccessControl: 65}
	next := m.Apply(current, Delta{DataExposure: 10, VendorRisk: 4})

	// 10 * 1.5 * 1.2 on DataExposure, 4 * 1.5 on VendorRisk.
	assert.InDelta(t, 18.0, next.DataExposure, 1e-9)
	assert.InDelta(t, 6.0, next.VendorRisk, 1e-9)
}

func TestMitigationsAreNotAmplified(t *testing.T) {
	m := defaultModel(t)
	current := Vector{Detection: 80, DataExposure: 50}
	next := m.Apply(current, Delta{DataExposure: -20})
	assert.InDelta(t, 30.0, next.DataExposure, 1e-9)
}

func TestRulesUsePreUpdateVector(t *testing.T) {
	m := defaultModel(t)
	// The delta pushes AccessControl over the line, but the rule looks at the current vector.
	next := m.Apply(Vector{AccessControl: 55}, Delta{AccessControl: 10, DataExposure: 10})
	assert.InDelta(t, 10.0, next.DataExposure, 1e-9)
}

func TestApplyIsPure(t *testing.T) {
	m := defaultModel(t)
	current := m.Initial()
	before := current
	_ = m.Apply(current, Delta{DataExposure: 50})
	assert.Equal(t, before, current)
}

func TestCritical(t *testing.T) {
	m := defaultModel(t)
	assert.Equal(t, []Category{AccessControl, InsiderThreat}, m.Critical(Vector{AccessControl: 80, InsiderThreat: 99, DataExposure: 79.9}))
	assert.Empty(t, m.Critical(m.Initial()))
}

func TestNewModelRejectsBadRules(t *testing.T) {
	cases := map[string]RuleConfig{
		"syntax":       {Name: "x", When: "risk.Detection >=", Targets: []string{"*"}, Factor: 1.2},
		"non-boolean":  {Name: "x", When: "risk.Detection + 1.0", Targets: []string{"*"}, Factor: 1.2},
		"unknown key":  {Name: "x", When: "risk.Firewall > 1.0", Targets: []string{"*"}, Factor: 1.2},
		"bad target":   {Name: "x", When: "true", Targets: []string{"Firewall"}, Factor: 1.2},
		"no target":    {Name: "x", When: "true", Factor: 1.2},
		"dampening":    {Name: "x", When: "true", Targets: []string{"*"}, Factor: 0.5},
		"missing name": {When: "true", Targets: []string{"*"}, Factor: 1.2},
	}
	for name, rc := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Rules = []RuleConfig{rc}
			_, err := NewModel(cfg)
			assert.Error(t, err)
		})
	}
}

func TestNewModelRejectsWeights(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights.Detection = 1.5
	_, err := NewModel(cfg)
	assert.Error(t, err)
}

func TestRulePriorityOrdering(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Rules = []RuleConfig{
		{Name: "late", Priority: 50, When: "true", Targets: []string{"DataExposure"}, Factor: 2},
		{Name: "early", Priority: 1, When: "true", Targets: []string{"DataExposure"}, Factor: 1.1},
	}
	m, err := NewModel(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"early", "late"}, m.Fired(Vector{}))
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory("VendorRisk")
	require.NoError(t, err)
	assert.Equal(t, VendorRisk, c)
	_, err = ParseCategory("Physical")
	assert.Error(t, err)
}

func TestDriftCreepsEachTurn(t *testing.T) {
	m := defaultModel(t)
	next := m.Drift(m.Initial())

	assert.InDelta(t, 11.0, next.DataExposure, 1e-9)
	assert.InDelta(t, 11.0, next.AccessControl, 1e-9)
	assert.InDelta(t, 37.0, m.TotalExposure(next), 1e-9)
}

func TestDriftIsAmplifiedByCascades(t *testing.T) {
	m := defaultModel(t)
	next := m.Drift(Vector{DataExposure: 10, AccessControl: 70, Detection: 60})

	// weak-detection x1.5 then broken-access-control x1.2 on DataExposure.
	assert.InDelta(t, 11.8, next.DataExposure, 1e-9)
	assert.InDelta(t, 71.5, next.AccessControl, 1e-9)
}

func TestNoDriftConfigured(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Drift = Delta{}
	m, err := NewModel(cfg)
	require.NoError(t, err)
	assert.Equal(t, m.Initial(), m.Drift(m.Initial()))

	cfg.Drift = Delta{VendorRisk: 101}
	_, err = NewModel(cfg)
	assert.Error(t, err)
}

func TestNaNDeltaChangesNothing(t *testing.T) {
	m := defaultModel(t)
	next := m.Apply(m.Initial(), Delta{DataExposure: math.NaN(), AccessControl: 4})

	assert.InDelta(t, 10.0, next.DataExposure, 1e-9)
	assert.InDelta(t, 14.0, next.AccessControl, 1e-9)
}

func TestRuleEvaluationFailureIsLogged(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Rules = []RuleConfig{{
		Name:    "fragile",
		When:    "int(risk.Detection) / int(risk.DataExposure - 10.0) > 0",
		Targets: []string{AllCategories},
		Factor:  2,
	}}
	var buf bytes.Buffer
	m, err := NewModel(cfg, WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	require.NoError(t, err)

	next := m.Apply(m.Initial(), Delta{InsiderThreat: 5})
	assert.InDelta(t, 10.0, next.InsiderThreat, 1e-9)
	assert.Contains(t, buf.String(), "amplification rule skipped")
	assert.Contains(t, buf.String(), "rule=fragile")
}
