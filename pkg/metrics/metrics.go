// Package metrics holds the business and political gauges a CISO is judged on.
package metrics

import (
	"fmt"
	"math"
)

// BusinessState tracks company health.
type BusinessState struct {
	// ARR is annual recurring revenue in millions.
	ARR             float64 `json:"arr" yaml:"arr"`
	BoardConfidence float64 `json:"board_confidence" yaml:"board_confidence"`
	// Velocity is engineering throughput as a percentage of baseline.
	Velocity float64 `json:"velocity" yaml:"velocity"`
	// Churn is the annual customer churn percentage.
	Churn float64 `json:"churn" yaml:"churn"`
}

// BusinessDelta is a signed change to a BusinessState.
type BusinessDelta = BusinessState

// PoliticalState tracks standing inside and outside the company.
type PoliticalState struct {
	PoliticalCapital    float64 `json:"political_capital" yaml:"political_capital"`
	TeamMorale          float64 `json:"team_morale" yaml:"team_morale"`
	IndustryStanding    float64 `json:"industry_standing" yaml:"industry_standing"`
	VendorRelationships float64 `json:"vendor_relationships" yaml:"vendor_relationships"`
}

// PoliticalDelta is a signed change to a PoliticalState.
type PoliticalDelta = PoliticalState

// Range is an inclusive bound.
type Range struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

func (r Range) clamp(x float64) float64 {
	if math.IsNaN(x) {
		return r.Min
	}
	return min(max(x, r.Min), r.Max)
}

func (r Range) contains(x float64) bool {
	return x >= r.Min && x <= r.Max
}

// Bounds holds the range of every gauge.
type Bounds struct {
	ARR                 Range `json:"arr" yaml:"arr"`
	BoardConfidence     Range `json:"board_confidence" yaml:"board_confidence"`
	Velocity            Range `json:"velocity" yaml:"velocity"`
	Churn               Range `json:"churn" yaml:"churn"`
	PoliticalCapital    Range `json:"political_capital" yaml:"political_capital"`
	TeamMorale          Range `json:"team_morale" yaml:"team_morale"`
	IndustryStanding    Range `json:"industry_standing" yaml:"industry_standing"`
	VendorRelationships Range `json:"vendor_relationships" yaml:"vendor_relationships"`
}

// DefaultBounds are the shipped ranges.
func DefaultBounds() Bounds {
	pct := Range{Min: 0, Max: 100}
	return Bounds{
		ARR:                 Range{Min: 0, Max: 1000},
		BoardConfidence:     pct,
		Velocity:            Range{Min: 0, Max: 200},
		Churn:               pct,
		PoliticalCapital:    pct,
		TeamMorale:          pct,
		IndustryStanding:    pct,
		VendorRelationships: pct,
	}
}

// Validate rejects empty or inverted ranges.
func (b Bounds) Validate() error {
	for name, r := range b.ranges() {
		if math.IsNaN(r.Min) || math.IsNaN(r.Max) || r.Min > r.Max {
			return fmt.Errorf("bound %s is inverted: [%v, %v]", name, r.Min, r.Max)
		}
	}
	return nil
}

func (b Bounds) ranges() map[string]Range {
	return map[string]Range{
		"arr": b.ARR, "board_confidence": b.BoardConfidence, "velocity": b.Velocity, "churn": b.Churn,
		"political_capital": b.PoliticalCapital, "team_morale": b.TeamMorale,
		"industry_standing": b.IndustryStanding, "vendor_relationships": b.VendorRelationships,
	}
}

// InitialBusiness is the company the player inherits.
func InitialBusiness() BusinessState {
	return BusinessState{ARR: 12.0, BoardConfidence: 70, Velocity: 100, Churn: 5}
}

// InitialPolitical is the player's standing on day one.
func InitialPolitical() PoliticalState {
	return PoliticalState{PoliticalCapital: 50, TeamMorale: 50, IndustryStanding: 60, VendorRelationships: 40}
}

// Apply adds d to s and clamps every field to b.
func (s BusinessState) Apply(d BusinessDelta, b Bounds) BusinessState {
	return BusinessState{
		ARR:             b.ARR.clamp(s.ARR + d.ARR),
		BoardConfidence: b.BoardConfidence.clamp(s.BoardConfidence + d.BoardConfidence),
		Velocity:        b.Velocity.clamp(s.Velocity + d.Velocity),
		Churn:           b.Churn.clamp(s.Churn + d.Churn),
	}
}

// Within reports whether every field lies inside b.
func (s BusinessState) Within(b Bounds) bool {
	return b.ARR.contains(s.ARR) && b.BoardConfidence.contains(s.BoardConfidence) &&
		b.Velocity.contains(s.Velocity) && b.Churn.contains(s.Churn)
}

// IsZero reports whether the delta changes nothing.
func (s BusinessState) IsZero() bool {
	return s == BusinessState{}
}

// Apply adds d to s and clamps every field to b.
func (s PoliticalState) Apply(d PoliticalDelta, b Bounds) PoliticalState {
	return PoliticalState{
		PoliticalCapital:    b.PoliticalCapital.clamp(s.PoliticalCapital + d.PoliticalCapital),
		TeamMorale:          b.TeamMorale.clamp(s.TeamMorale + d.TeamMorale),
		IndustryStanding:    b.IndustryStanding.clamp(s.IndustryStanding + d.IndustryStanding),
		VendorRelationships: b.VendorRelationships.clamp(s.VendorRelationships + d.VendorRelationships),
	}
}

// Within reports whether every field lies inside b.
func (s PoliticalState) Within(b Bounds) bool {
	return b.PoliticalCapital.contains(s.PoliticalCapital) && b.TeamMorale.contains(s.TeamMorale) &&
		b.IndustryStanding.contains(s.IndustryStanding) && b.VendorRelationships.contains(s.VendorRelationships)
}

// IsZero reports whether the delta changes nothing.
func (s PoliticalState) IsZero() bool {
	return s == PoliticalState{}
}
