package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guivernoir/CISO-sim/pkg/catalog"
	"github.com/Guivernoir/CISO-sim/pkg/consequence"
	"github.com/Guivernoir/CISO-sim/pkg/ending"
	"github.com/Guivernoir/CISO-sim/pkg/integrity"
	"github.com/Guivernoir/CISO-sim/pkg/metrics"
	"github.com/Guivernoir/CISO-sim/pkg/risk"
	"github.com/Guivernoir/CISO-sim/pkg/simerr"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(DefaultConfig())
	require.NoError(t, err)
	return e
}

func quiet(turn int) catalog.Decision {
	return catalog.Decision{
		ID:       "quiet",
		Turn:     turn,
		Title:    "Quiet week",
		Category: catalog.TeamManagement,
		Choices: []catalog.Choice{
			{ID: "carry_on", Label: "Carry on", Impact: catalog.Impact{AuditTrail: integrity.Clean}},
		},
	}
}

func buryDecision(turn int) catalog.Decision {
	return catalog.Decision{
		ID:       "cover_up",
		Turn:     turn,
		Title:    "Cover-up",
		Category: catalog.IncidentResponse,
		Choices: []catalog.Choice{
			{
				ID:    "bury",
				Label: "Bury it",
				Impact: catalog.Impact{
					Risk:       risk.Delta{DataExposure: 35},
					AuditTrail: integrity.Clean,
					Delayed: []catalog.DelayedEffect{{
						Delay:     2,
						Integrity: &consequence.IntegrityEffect{Kind: integrity.BuriedIncident, Magnitude: 1},
					}},
				},
			},
			{ID: "disclose", Label: "Disclose", Impact: catalog.Impact{AuditTrail: integrity.Clean}},
		},
	}
}

func TestNewGameOpeningState(t *testing.T) {
	e := newEngine(t)
	s, err := e.NewGame(8)
	require.NoError(t, err)

	assert.Equal(t, 1, s.Turn)
	assert.NotEmpty(t, s.SessionID)
	assert.Equal(t, uint8(100), e.Score(s))
	assert.InDelta(t, 35.0, e.TotalExposure(s), 1e-9)
	assert.Equal(t, integrity.Clean, e.AuditQuality(s))
	assert.False(t, s.Ended())
	require.NoError(t, s.Validate(e.Config().Bounds))
}

func TestNewGameRejectsZeroTurns(t *testing.T) {
	_, err := newEngine(t).NewGame(0)
	assert.True(t, errors.Is(err, simerr.ErrConfigurationError))
}

func TestBuriedIncidentMaterializesTwoTurnsLater(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	s, err := e.NewGame(8)
	require.NoError(t, err)

	s1, report, err := e.AdvanceTurn(ctx, s, buryDecision(1), "bury")
	require.NoError(t, err)
	assert.Equal(t, 2, s1.Turn)
	// 35 from the choice plus one turn of drift on DataExposure and AccessControl.
	assert.InDelta(t, 46.0, s1.Risk.DataExposure, 1e-9)
	assert.InDelta(t, 72.0, e.TotalExposure(s1), 1e-9)
	assert.Equal(t, uint8(100), e.Score(s1))
	assert.Equal(t, integrity.Clean, e.AuditQuality(s1))
	require.Len(t, report.Scheduled, 1)
	assert.Equal(t, 3, report.Scheduled[0].TriggerTurn)
	assert.Empty(t, report.Materialized)

	s2, report, err := e.AdvanceTurn(ctx, s1, quiet(2), "carry_on")
	require.NoError(t, err)
	assert.Equal(t, 3, s2.Turn)
	require.Len(t, report.Materialized, 1)
	assert.Equal(t, uint8(100-20), e.Score(s2))
	assert.Equal(t, integrity.Flagged, e.AuditQuality(s2))
	assert.Equal(t, 0, s2.Consequences.Len())

	buried := s2.Ledger.Events()[len(s2.Ledger.Events())-1]
	assert.Equal(t, integrity.BuriedIncident, buried.Kind)
	assert.Equal(t, 3, buried.Turn)
	assert.Equal(t, "cover_up", buried.DecisionID)
}

func TestInvalidChoiceLeavesStateUntouched(t *testing.T) {
	e := newEngine(t)
	s, err := e.NewGame(8)
	require.NoError(t, err)
	before := s.Clone()

	out, _, err := e.AdvanceTurn(context.Background(), s, buryDecision(1), "flee")
	assert.True(t, errors.Is(err, simerr.ErrInvalidAction))
	assert.Equal(t, State{}, out)
	assert.Equal(t, before, s)
}

func TestDecisionForAnotherTurnIsInvalid(t *testing.T) {
	e := newEngine(t)
	s, err := e.NewGame(8)
	require.NoError(t, err)

	_, _, err = e.AdvanceTurn(context.Background(), s, quiet(2), "carry_on")
	assert.True(t, errors.Is(err, simerr.ErrInvalidAction))
}

func TestMalformedDecisionIsConfigurationError(t *testing.T) {
	e := newEngine(t)
	s, err := e.NewGame(8)
	require.NoError(t, err)

	d := quiet(1)
	d.Choices = append(d.Choices, d.Choices[0])
	_, _, err = e.AdvanceTurn(context.Background(), s, d, "carry_on")
	assert.True(t, errors.Is(err, simerr.ErrConfigurationError))
}

func TestAdvanceDoesNotMutateInput(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	s, err := e.NewGame(8)
	require.NoError(t, err)
	s, _, err = e.AdvanceTurn(ctx, s, buryDecision(1), "bury")
	require.NoError(t, err)
	before := s.Clone()

	_, _, err = e.AdvanceTurn(ctx, s, quiet(2), "carry_on")
	require.NoError(t, err)
	assert.Equal(t, before, s)
	assert.Equal(t, 1, s.Consequences.Len())
}

func TestAdvanceIsDeterministic(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	s, err := e.NewGame(8)
	require.NoError(t, err)

	a, ra, err := e.AdvanceTurn(ctx, s, buryDecision(1), "bury")
	require.NoError(t, err)
	b, rb, err := e.AdvanceTurn(ctx, s, buryDecision(1), "bury")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, ra, rb)
}

func TestCriminalInvestigationAfterThreeBuriedIncidents(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	s, err := e.NewGame(5)
	require.NoError(t, err)

	for turn := 1; turn <= 3; turn++ {
		s, _, err = e.AdvanceTurn(ctx, s, buryDecision(turn), "bury")
		require.NoError(t, err)
	}
	for turn := 4; turn <= 5; turn++ {
		s, _, err = e.AdvanceTurn(ctx, s, quiet(turn), "carry_on")
		require.NoError(t, err)
	}

	require.True(t, s.Ended())
	assert.Equal(t, 3, s.Ledger.BuriedIncidents())
	assert.Less(t, e.Score(s), uint8(30))
	assert.Equal(t, ending.CriminalInvestigation, s.Ending.Kind)
	assert.Equal(t, integrity.Toxic, e.AuditQuality(s))
}

func TestEndedGameRejectsMoves(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	s, err := e.NewGame(1)
	require.NoError(t, err)

	s, report, err := e.AdvanceTurn(ctx, s, quiet(1), "carry_on")
	require.NoError(t, err)
	require.NotNil(t, report.Ending)
	assert.Equal(t, ending.GoldenCISO, report.Ending.Kind)
	require.NoError(t, s.Validate(e.Config().Bounds))

	_, _, err = e.AdvanceTurn(ctx, s, quiet(2), "carry_on")
	assert.True(t, errors.Is(err, simerr.ErrInvalidAction))
}

func TestAuditTrailImpliesIntegrityEvents(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	s, err := e.NewGame(8)
	require.NoError(t, err)

	d := quiet(1)
	d.Choices = []catalog.Choice{
		{ID: "flagged", Label: "F", Impact: catalog.Impact{AuditTrail: integrity.Flagged}},
		{ID: "toxic", Label: "T", Impact: catalog.Impact{AuditTrail: integrity.Toxic}},
	}

	f, report, err := e.AdvanceTurn(ctx, s, d, "flagged")
	require.NoError(t, err)
	require.Len(t, report.Recorded, 1)
	assert.Equal(t, integrity.DelayedEscalation, report.Recorded[0].Kind)
	assert.Equal(t, uint8(96), e.Score(f))

	tx, _, err := e.AdvanceTurn(ctx, s, d, "toxic")
	require.NoError(t, err)
	assert.Equal(t, uint8(85), e.Score(tx))
}

func TestImmediateAndDelayedMetrics(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	s, err := e.NewGame(8)
	require.NoError(t, err)

	d := quiet(1)
	d.Choices = []catalog.Choice{{
		ID:    "cut",
		Label: "Cut corners",
		Impact: catalog.Impact{
			Business:   metrics.BusinessDelta{BoardConfidence: 10},
			Political:  metrics.PoliticalDelta{TeamMorale: -20},
			AuditTrail: integrity.Clean,
			Delayed: []catalog.DelayedEffect{
				{Business: &metrics.BusinessDelta{Churn: 3}},
				{Delay: 1, Political: &metrics.PoliticalDelta{PoliticalCapital: -5}, Risk: &risk.Delta{VendorRisk: 10}},
			},
		},
	}}

	s1, report, err := e.AdvanceTurn(ctx, s, d, "cut")
	require.NoError(t, err)
	assert.Equal(t, 80.0, s1.Business.BoardConfidence)
	assert.Equal(t, 30.0, s1.Political.TeamMorale)
	require.Len(t, report.Scheduled, 3)
	// delay 1 materializes on arrival at turn 2
	require.Len(t, report.Materialized, 2)
	assert.Equal(t, 45.0, s1.Political.PoliticalCapital)
	assert.Equal(t, 15.0, s1.Risk.VendorRisk)
	assert.Equal(t, 5.0, s1.Business.Churn)

	s2, report, err := e.AdvanceTurn(ctx, s1, quiet(2), "carry_on")
	require.NoError(t, err)
	require.Len(t, report.Materialized, 1)
	assert.Equal(t, 3, report.Materialized[0].TriggerTurn)
	assert.Equal(t, 8.0, s2.Business.Churn)
}

func TestNewRejectsBadTuning(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DefaultDelay = 0
	_, err := New(cfg)
	assert.True(t, errors.Is(err, simerr.ErrConfigurationError))

	cfg = DefaultConfig()
	cfg.Risk.Rules[0].When = "risk.Detection >"
	_, err = New(cfg)
	assert.True(t, errors.Is(err, simerr.ErrConfigurationError))
}

func TestDriftOnlyOnPlayableTurns(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	s, err := e.NewGame(3)
	require.NoError(t, err)

	for turn := 1; turn <= 3; turn++ {
		s, _, err = e.AdvanceTurn(ctx, s, quiet(turn), "carry_on")
		require.NoError(t, err)
	}
	require.True(t, s.Ended())
	assert.InDelta(t, 12.0, s.Risk.DataExposure, 1e-9)
	assert.InDelta(t, 12.0, s.Risk.AccessControl, 1e-9)
	assert.InDelta(t, 39.0, e.TotalExposure(s), 1e-9)
}

func leakEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Incidents = []IncidentRule{{
		ID:       "leak",
		Title:    "Customer data on a paste site",
		When:     "risk.DataExposure > 40.0 && turn > 2",
		Risk:     risk.Delta{Detection: 5},
		Business: metrics.BusinessDelta{BoardConfidence: -15},
	}}
	e, err := New(cfg)
	require.NoError(t, err)
	return e
}

func TestIncidentBreaksOutOnce(t *testing.T) {
	e := leakEngine(t)
	ctx := context.Background()
	s, err := e.NewGame(8)
	require.NoError(t, err)

	s, report, err := e.AdvanceTurn(ctx, s, buryDecision(1), "bury")
	require.NoError(t, err)
	assert.Empty(t, report.Incidents, "turn 2 is too early")

	s, report, err = e.AdvanceTurn(ctx, s, quiet(2), "carry_on")
	require.NoError(t, err)
	require.Len(t, report.Incidents, 1)
	assert.Equal(t, Incident{ID: "leak", Turn: 3, Title: "Customer data on a paste site"}, report.Incidents[0])
	assert.Equal(t, 55.0, s.Business.BoardConfidence)
	assert.InDelta(t, 10.0, s.Risk.Detection, 1e-9)
	assert.Equal(t, report.Incidents, s.Incidents)

	s, report, err = e.AdvanceTurn(ctx, s, quiet(3), "carry_on")
	require.NoError(t, err)
	assert.Empty(t, report.Incidents)
	assert.Equal(t, 55.0, s.Business.BoardConfidence)
	require.NoError(t, s.Validate(e.Config().Bounds))

	v := e.View(s, nil)
	assert.Equal(t, s.Incidents, v.Incidents)
}

func TestIncidentsDoNotFireAfterTheFinalTurn(t *testing.T) {
	e := leakEngine(t)
	ctx := context.Background()
	s, err := e.NewGame(2)
	require.NoError(t, err)

	s, _, err = e.AdvanceTurn(ctx, s, buryDecision(1), "bury")
	require.NoError(t, err)
	s, report, err := e.AdvanceTurn(ctx, s, quiet(2), "carry_on")
	require.NoError(t, err)
	require.True(t, s.Ended())
	assert.Empty(t, report.Incidents)
	assert.Empty(t, s.Incidents)
}

func TestValidateRejectsForgedIncidents(t *testing.T) {
	e := leakEngine(t)
	s, err := e.NewGame(8)
	require.NoError(t, err)

	s.Incidents = []Incident{{ID: "leak", Turn: 1}}
	assert.Error(t, s.Validate(e.Config().Bounds))

	s.Incidents = nil
	s, _, err = e.AdvanceTurn(context.Background(), s, quiet(1), "carry_on")
	require.NoError(t, err)
	s.Incidents = []Incident{{ID: "leak", Turn: 2}, {ID: "leak", Turn: 2}}
	assert.Error(t, s.Validate(e.Config().Bounds))
}

func TestNewRejectsBadIncidents(t *testing.T) {
	for name, rules := range map[string][]IncidentRule{
		"syntax":      {{ID: "a", When: "turn >"}},
		"not boolean": {{ID: "a", When: "turn + 1"}},
		"duplicate":   {{ID: "a", When: "turn > 1"}, {ID: "a", When: "turn > 2"}},
		"missing id":  {{When: "turn > 1"}},
		"huge delta":  {{ID: "a", When: "turn > 1", Risk: risk.Delta{DataExposure: 500}}},
	} {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Incidents = rules
			_, err := New(cfg)
			assert.True(t, errors.Is(err, simerr.ErrConfigurationError))
		})
	}
}
