package integrity

import (
	"fmt"
	"math"
	"sort"
)

// AuditTrailQuality grades the paper trail an auditor would find.
type AuditTrailQuality string

const (
	Clean   AuditTrailQuality = "CLEAN"
	Flagged AuditTrailQuality = "FLAGGED"
	Toxic   AuditTrailQuality = "TOXIC"
)

// MaxScore is the score of an empty ledger.
const MaxScore = 100

// Weights are the per-kind penalties and audit thresholds.
type Weights struct {
	Lie               float64 `json:"lie" yaml:"lie"`
	BuriedIncident    float64 `json:"buried_incident" yaml:"buried_incident"`
	BuriedEscalation  float64 `json:"buried_escalation" yaml:"buried_escalation"`
	DelayedEscalation float64 `json:"delayed_escalation" yaml:"delayed_escalation"`
	Consistent        float64 `json:"consistent" yaml:"consistent"`

	// Clean requires a score above FlaggedAtOrBelow and no buried incidents.
	FlaggedAtOrBelow uint8 `json:"flagged_at_or_below" yaml:"flagged_at_or_below"`
	// Toxic is reached below ToxicBelow or at ToxicBuriedIncidents buried incidents.
	ToxicBelow           uint8 `json:"toxic_below" yaml:"toxic_below"`
	ToxicBuriedIncidents int   `json:"toxic_buried_incidents" yaml:"toxic_buried_incidents"`
}

// DefaultWeights penalize lies and buried incidents more than escalation delays.
func DefaultWeights() Weights {
	return Weights{
		Lie:                  15,
		BuriedIncident:       20,
		BuriedEscalation:     10,
		DelayedEscalation:    8,
		Consistent:           0,
		FlaggedAtOrBelow:     85,
		ToxicBelow:           50,
		ToxicBuriedIncidents: 2,
	}
}

// Validate rejects negative penalties and inverted thresholds.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"lie": w.Lie, "buried_incident": w.BuriedIncident, "buried_escalation": w.BuriedEscalation,
		"delayed_escalation": w.DelayedEscalation, "consistent": w.Consistent,
	} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("integrity weight %s must be a finite non-negative number", name)
		}
	}
	if w.FlaggedAtOrBelow > MaxScore || w.ToxicBelow > w.FlaggedAtOrBelow {
		return fmt.Errorf("audit thresholds must satisfy toxic_below <= flagged_at_or_below <= 100")
	}
	if w.ToxicBuriedIncidents < 1 {
		return fmt.Errorf("toxic_buried_incidents must be at least 1")
	}
	return nil
}

func (w Weights) base(k Kind) float64 {
	switch k {
	case Lie:
		return w.Lie
	case BuriedIncident:
		return w.BuriedIncident
	case DelayedEscalation:
		return w.DelayedEscalation
	case Consistent:
		return w.Consistent
	}
	return 0
}

// Penalty returns the total deduction for the ledger. The n-th buried incident costs
// BuriedEscalation*(n-1) on top of its base penalty; that surcharge depends only on the
// count, and the terms are summed in sorted order, so the result does not depend on the
// order in which events were recorded.
func (l *Ledger) Penalty(w Weights) float64 {
	terms := make([]float64, 0, len(l.events)+1)
	buried := 0
	for _, e := range l.events {
		terms = append(terms, w.base(e.Kind)*e.Magnitude)
		if e.Kind == BuriedIncident {
			buried++
		}
	}
	if buried > 1 {
		terms = append(terms, w.BuriedEscalation*float64(buried*(buried-1)/2))
	}
	sort.Float64s(terms)
	var total float64
	for _, t := range terms {
		total += t
	}
	return total
}

// Score is 100 minus the penalty, rounded and clamped to [0,100].
func (l *Ledger) Score(w Weights) uint8 {
	s := math.Round(MaxScore - l.Penalty(w))
	return uint8(min(max(s, 0), MaxScore))
}

// AuditQuality grades the ledger from its score and buried incident count.
func (l *Ledger) AuditQuality(w Weights) AuditTrailQuality {
	score := l.Score(w)
	buried := l.BuriedIncidents()
	switch {
	case score < w.ToxicBelow || buried >= w.ToxicBuriedIncidents:
		return Toxic
	case score <= w.FlaggedAtOrBelow || buried >= 1:
		return Flagged
	default:
		return Clean
	}
}
