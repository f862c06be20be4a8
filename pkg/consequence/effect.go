package consequence

import (
	"fmt"

	"github.com/Guivernoir/CISO-sim/pkg/integrity"
	"github.com/Guivernoir/CISO-sim/pkg/metrics"
	"github.com/Guivernoir/CISO-sim/pkg/risk"
)

// EffectKind tags the payload of an Effect.
type EffectKind string

const (
	EffectRisk      EffectKind = "RISK"
	EffectBusiness  EffectKind = "BUSINESS"
	EffectPolitical EffectKind = "POLITICAL"
	EffectIntegrity EffectKind = "INTEGRITY"
)

// IntegrityEffect is an integrity event waiting to be recorded.
type IntegrityEffect struct {
	Kind        integrity.Kind `json:"kind" yaml:"kind"`
	Magnitude   float64        `json:"magnitude" yaml:"magnitude"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
}

// Effect carries exactly one payload, selected by Kind.
type Effect struct {
	Kind      EffectKind              `json:"kind"`
	Risk      *risk.Delta             `json:"risk,omitempty"`
	Business  *metrics.BusinessDelta  `json:"business,omitempty"`
	Political *metrics.PoliticalDelta `json:"political,omitempty"`
	Integrity *IntegrityEffect        `json:"integrity,omitempty"`
}

// RiskEffect wraps a risk delta.
func RiskEffect(d risk.Delta) Effect {
	return Effect{Kind: EffectRisk, Risk: &d}
}

// BusinessEffect wraps a business delta.
func BusinessEffect(d metrics.BusinessDelta) Effect {
	return Effect{Kind: EffectBusiness, Business: &d}
}

// PoliticalEffect wraps a political delta.
func PoliticalEffect(d metrics.PoliticalDelta) Effect {
	return Effect{Kind: EffectPolitical, Political: &d}
}

// IntegrityEventEffect wraps a pending integrity event.
func IntegrityEventEffect(e IntegrityEffect) Effect {
	return Effect{Kind: EffectIntegrity, Integrity: &e}
}

// Validate checks that exactly the payload named by Kind is present.
func (e Effect) Validate() error {
	set := 0
	for _, present := range []bool{e.Risk != nil, e.Business != nil, e.Political != nil, e.Integrity != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("effect must carry exactly one payload, has %d", set)
	}
	var ok bool
	switch e.Kind {
	case EffectRisk:
		ok = e.Risk != nil
	case EffectBusiness:
		ok = e.Business != nil
	case EffectPolitical:
		ok = e.Political != nil
	case EffectIntegrity:
		ok = e.Integrity != nil
		if ok {
			if _, err := integrity.ParseKind(string(e.Integrity.Kind)); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unknown effect kind %q", e.Kind)
	}
	if !ok {
		return fmt.Errorf("effect kind %s does not match its payload", e.Kind)
	}
	return nil
}

// clone deep-copies the payload pointer.
func (e Effect) clone() Effect {
	switch {
	case e.Risk != nil:
		d := *e.Risk
		e.Risk = &d
	case e.Business != nil:
		d := *e.Business
		e.Business = &d
	case e.Political != nil:
		d := *e.Political
		e.Political = &d
	case e.Integrity != nil:
		d := *e.Integrity
		e.Integrity = &d
	}
	return e
}
