package ending

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	r, err := NewResolver(DefaultThresholds())
	require.NoError(t, err)

	tests := []struct {
		name string
		in   Inputs
		want Ending
	}{
		{"criminal beats everything", Inputs{Score: 10, Exposure: 0, BuriedIncidents: 3}, Ending{CriminalInvestigation, 5.0}},
		{"criminal needs two buried", Inputs{Score: 10, Exposure: 0, BuriedIncidents: 1}, Ending{PostBreachCleanup, 3.2}},
		{"criminal at exactly two buried", Inputs{Score: 29, BuriedIncidents: 2}, Ending{CriminalInvestigation, 5.0}},
		{"score 30 is not criminal", Inputs{Score: 30, BuriedIncidents: 4}, Ending{PostBreachCleanup, 3.2}},
		{"golden", Inputs{Score: 90, Exposure: 100}, Ending{GoldenCISO, 1.0}},
		{"golden needs low exposure", Inputs{Score: 90, Exposure: 150}, Ending{LawsuitSurvivor, 1.8}},
		{"score 85 is not golden", Inputs{Score: 85, Exposure: 10}, Ending{LawsuitSurvivor, 1.8}},
		{"survivor lower edge", Inputs{Score: 50, Exposure: 300}, Ending{LawsuitSurvivor, 1.8}},
		{"cleanup", Inputs{Score: 49, Exposure: 300}, Ending{PostBreachCleanup, 3.2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Resolve(tt.in))
		})
	}
}

func TestResolveIsDeterministic(t *testing.T) {
	r, err := NewResolver(DefaultThresholds())
	require.NoError(t, err)
	in := Inputs{Score: 70, Exposure: 220, BuriedIncidents: 1}
	assert.Equal(t, r.Resolve(in), r.Resolve(in))
}

func TestFine(t *testing.T) {
	assert.InDelta(t, 3.6, Ending{Kind: LawsuitSurvivor, PenaltyMultiplier: 1.8}.Fine(2.0), 1e-9)
}

func TestHeadline(t *testing.T) {
	for _, k := range []Kind{CriminalInvestigation, GoldenCISO, LawsuitSurvivor, PostBreachCleanup} {
		assert.NotEqual(t, string(k), Ending{Kind: k}.Headline())
	}
}

func TestThresholdsValidate(t *testing.T) {
	th := DefaultThresholds()
	th.SurvivorScoreAtLeast = 90
	_, err := NewResolver(th)
	assert.Error(t, err)

	th = DefaultThresholds()
	th.CleanupMultiplier = 0
	assert.Error(t, th.Validate())
}
