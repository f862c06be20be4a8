// Package ending decides how a run ends.
package ending

import (
	"fmt"
	"math"
)

// Kind names an ending.
type Kind string

const (
	CriminalInvestigation Kind = "CRIMINAL_INVESTIGATION"
	GoldenCISO            Kind = "GOLDEN_CISO"
	LawsuitSurvivor       Kind = "LAWSUIT_SURVIVOR"
	PostBreachCleanup     Kind = "POST_BREACH_CLEANUP"
)

// Ending is the resolved outcome with its penalty multiplier.
type Ending struct {
	Kind              Kind    `json:"kind"`
	PenaltyMultiplier float64 `json:"penalty_multiplier"`
}

// Fine scales a base settlement by the penalty multiplier.
func (e Ending) Fine(base float64) float64 {
	return base * e.PenaltyMultiplier
}

// Headline is the one-line summary shown at the end of a run.
func (e Ending) Headline() string {
	switch e.Kind {
	case CriminalInvestigation:
		return "Regulators refer the cover-up to prosecutors."
	case GoldenCISO:
		return "The board renews your contract and the industry takes notes."
	case LawsuitSurvivor:
		return "The breach lawsuits settle. You keep your job, barely."
	case PostBreachCleanup:
		return "You are remembered as the CISO on watch when it all fell apart."
	}
	return string(e.Kind)
}

// Inputs are the end-of-game facts the resolver looks at.
type Inputs struct {
	Score           uint8
	Exposure        float64
	BuriedIncidents int
}

// Thresholds configure the resolver.
type Thresholds struct {
	CriminalScoreBelow      uint8   `json:"criminal_score_below" yaml:"criminal_score_below"`
	CriminalBuriedIncidents int     `json:"criminal_buried_incidents" yaml:"criminal_buried_incidents"`
	GoldenScoreAbove        uint8   `json:"golden_score_above" yaml:"golden_score_above"`
	GoldenExposureBelow     float64 `json:"golden_exposure_below" yaml:"golden_exposure_below"`
	SurvivorScoreAtLeast    uint8   `json:"survivor_score_at_least" yaml:"survivor_score_at_least"`

	CriminalMultiplier float64 `json:"criminal_multiplier" yaml:"criminal_multiplier"`
	GoldenMultiplier   float64 `json:"golden_multiplier" yaml:"golden_multiplier"`
	SurvivorMultiplier float64 `json:"survivor_multiplier" yaml:"survivor_multiplier"`
	CleanupMultiplier  float64 `json:"cleanup_multiplier" yaml:"cleanup_multiplier"`
}

// DefaultThresholds are the shipped ending rules.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CriminalScoreBelow:      30,
		CriminalBuriedIncidents: 2,
		GoldenScoreAbove:        85,
		GoldenExposureBelow:     150,
		SurvivorScoreAtLeast:    50,
		CriminalMultiplier:      5.0,
		GoldenMultiplier:        1.0,
		SurvivorMultiplier:      1.8,
		CleanupMultiplier:       3.2,
	}
}

// Validate rejects overlapping bands and non-positive multipliers.
func (t Thresholds) Validate() error {
	if t.SurvivorScoreAtLeast > t.GoldenScoreAbove || t.GoldenScoreAbove > 100 {
		return fmt.Errorf("ending thresholds must satisfy survivor_score_at_least <= golden_score_above <= 100")
	}
	if t.CriminalBuriedIncidents < 1 {
		return fmt.Errorf("criminal_buried_incidents must be at least 1")
	}
	for name, m := range map[string]float64{
		"criminal": t.CriminalMultiplier, "golden": t.GoldenMultiplier,
		"survivor": t.SurvivorMultiplier, "cleanup": t.CleanupMultiplier,
	} {
		if !(m > 0) || math.IsInf(m, 0) {
			return fmt.Errorf("%s multiplier must be positive", name)
		}
	}
	return nil
}

// Resolver maps end-of-game inputs to an Ending.
type Resolver struct {
	t Thresholds
}

// NewResolver validates the thresholds.
func NewResolver(t Thresholds) (*Resolver, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &Resolver{t: t}, nil
}

// Resolve checks the criminal condition first, then the score bands. A high score with
// high exposure falls through to LawsuitSurvivor.
func (r *Resolver) Resolve(in Inputs) Ending {
	t := r.t
	switch {
	case in.Score < t.CriminalScoreBelow && in.BuriedIncidents >= t.CriminalBuriedIncidents:
		return Ending{Kind: CriminalInvestigation, PenaltyMultiplier: t.CriminalMultiplier}
	case in.Score > t.GoldenScoreAbove && in.Exposure < t.GoldenExposureBelow:
		return Ending{Kind: GoldenCISO, PenaltyMultiplier: t.GoldenMultiplier}
	case in.Score >= t.SurvivorScoreAtLeast:
		return Ending{Kind: LawsuitSurvivor, PenaltyMultiplier: t.SurvivorMultiplier}
	default:
		return Ending{Kind: PostBreachCleanup, PenaltyMultiplier: t.CleanupMultiplier}
	}
}
