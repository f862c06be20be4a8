// Package catalog holds the authored decisions the player faces, one per turn.
package catalog

import (
	"context"
	"fmt"
	"sort"

	"github.com/Guivernoir/CISO-sim/pkg/consequence"
	"github.com/Guivernoir/CISO-sim/pkg/integrity"
	"github.com/Guivernoir/CISO-sim/pkg/metrics"
	"github.com/Guivernoir/CISO-sim/pkg/risk"
	"github.com/Guivernoir/CISO-sim/pkg/simerr"
)

// Category groups decisions by the kind of call being made.
type Category string

const (
	StrategicDirection  Category = "STRATEGIC_DIRECTION"
	IncidentResponse    Category = "INCIDENT_RESPONSE"
	BudgetAllocation    Category = "BUDGET_ALLOCATION"
	ComplianceApproach  Category = "COMPLIANCE_APPROACH"
	TeamManagement      Category = "TEAM_MANAGEMENT"
	VendorSelection     Category = "VENDOR_SELECTION"
	RiskAcceptance      Category = "RISK_ACCEPTANCE"
	PoliticalNavigation Category = "POLITICAL_NAVIGATION"
)

// RiskIndicator is the coarse hint shown before a choice is made.
type RiskIndicator string

const (
	RiskReduces     RiskIndicator = "REDUCES"
	RiskNeutral     RiskIndicator = "NEUTRAL"
	RiskIncreases   RiskIndicator = "INCREASES"
	RiskSignificant RiskIndicator = "SIGNIFICANT"
)

// ImpactPreview is what the player sees of a choice. It is advisory only.
type ImpactPreview struct {
	EstimatedARRChange float64       `json:"estimated_arr_change" yaml:"estimated_arr_change"`
	BudgetCost         float64       `json:"budget_cost" yaml:"budget_cost"`
	TimelineWeeks      int           `json:"timeline_weeks,omitempty" yaml:"timeline_weeks,omitempty"`
	PoliticalNote      string        `json:"political_note,omitempty" yaml:"political_note,omitempty"`
	RiskIndicator      RiskIndicator `json:"risk_indicator" yaml:"risk_indicator"`
	TeamImpact         string        `json:"team_impact,omitempty" yaml:"team_impact,omitempty"`
}

// DelayedEffect materializes Delay turns after the choice is made. A zero Delay uses
// the engine default. Each non-nil payload becomes its own pending consequence.
type DelayedEffect struct {
	Delay       int                          `json:"delay,omitempty" yaml:"delay,omitempty"`
	Description string                       `json:"description,omitempty" yaml:"description,omitempty"`
	Risk        *risk.Delta                  `json:"risk,omitempty" yaml:"risk,omitempty"`
	Business    *metrics.BusinessDelta       `json:"business,omitempty" yaml:"business,omitempty"`
	Political   *metrics.PoliticalDelta      `json:"political,omitempty" yaml:"political,omitempty"`
	Integrity   *consequence.IntegrityEffect `json:"integrity,omitempty" yaml:"integrity,omitempty"`
}

// Effects splits d into single-payload effects in a fixed order.
func (d DelayedEffect) Effects() []consequence.Effect {
	var out []consequence.Effect
	if d.Risk != nil {
		out = append(out, consequence.RiskEffect(*d.Risk))
	}
	if d.Business != nil {
		out = append(out, consequence.BusinessEffect(*d.Business))
	}
	if d.Political != nil {
		out = append(out, consequence.PoliticalEffect(*d.Political))
	}
	if d.Integrity != nil {
		out = append(out, consequence.IntegrityEventEffect(*d.Integrity))
	}
	return out
}

// Impact is the full effect of a choice.
type Impact struct {
	Risk       risk.Delta                    `json:"risk" yaml:"risk"`
	Business   metrics.BusinessDelta         `json:"business" yaml:"business"`
	Political  metrics.PoliticalDelta        `json:"political" yaml:"political"`
	AuditTrail integrity.AuditTrailQuality   `json:"audit_trail" yaml:"audit_trail"`
	Integrity  []consequence.IntegrityEffect `json:"integrity,omitempty" yaml:"integrity,omitempty"`
	Delayed    []DelayedEffect               `json:"delayed,omitempty" yaml:"delayed,omitempty"`
}

// Choice is one option of a Decision.
type Choice struct {
	ID          string        `json:"id" yaml:"id"`
	Label       string        `json:"label" yaml:"label"`
	Description string        `json:"description" yaml:"description"`
	Preview     ImpactPreview `json:"preview" yaml:"preview"`
	Impact      Impact        `json:"impact" yaml:"impact"`
}

// Decision is the call the player must make on a given turn.
type Decision struct {
	ID            string   `json:"id" yaml:"id"`
	Turn          int      `json:"turn" yaml:"turn"`
	Title         string   `json:"title" yaml:"title"`
	Context       string   `json:"context" yaml:"context"`
	Category      Category `json:"category" yaml:"category"`
	BoardPressure bool     `json:"board_pressure,omitempty" yaml:"board_pressure,omitempty"`
	TimeSensitive bool     `json:"time_sensitive,omitempty" yaml:"time_sensitive,omitempty"`
	Choices       []Choice `json:"choices" yaml:"choices"`
}

// Choice returns the option with the given id.
func (d Decision) Choice(id string) (Choice, bool) {
	for _, c := range d.Choices {
		if c.ID == id {
			return c, true
		}
	}
	return Choice{}, false
}

// Validate checks the structural rules every decision must satisfy.
func (d Decision) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("decision on turn %d has no id", d.Turn)
	}
	if d.Turn < 1 {
		return fmt.Errorf("decision %s: turn %d must be positive", d.ID, d.Turn)
	}
	if len(d.Choices) == 0 {
		return fmt.Errorf("decision %s: no choices", d.ID)
	}
	seen := make(map[string]bool, len(d.Choices))
	for _, c := range d.Choices {
		if c.ID == "" || seen[c.ID] {
			return fmt.Errorf("decision %s: choice id %q is empty or duplicated", d.ID, c.ID)
		}
		seen[c.ID] = true
		if err := c.Impact.validate(); err != nil {
			return fmt.Errorf("decision %s, choice %s: %w", d.ID, c.ID, err)
		}
	}
	return nil
}

func (im Impact) validate() error {
	switch im.AuditTrail {
	case integrity.Clean, integrity.Flagged, integrity.Toxic, "":
	default:
		return fmt.Errorf("unknown audit trail %q", im.AuditTrail)
	}
	for _, e := range im.Integrity {
		if err := consequence.IntegrityEventEffect(e).Validate(); err != nil {
			return err
		}
	}
	for i, d := range im.Delayed {
		if d.Delay < 0 {
			return fmt.Errorf("delayed effect %d: negative delay", i)
		}
		effects := d.Effects()
		if len(effects) == 0 {
			return fmt.Errorf("delayed effect %d: no payload", i)
		}
		for _, e := range effects {
			if err := e.Validate(); err != nil {
				return fmt.Errorf("delayed effect %d: %w", i, err)
			}
		}
	}
	return nil
}

// Catalog is an immutable set of decisions keyed by turn.
type Catalog struct {
	version string
	byTurn  map[int]Decision
	turns   []int
}

// New builds a catalog. Turns must be unique and contiguous from 1, and decision ids unique.
func New(version string, decisions ...Decision) (*Catalog, error) {
	c := &Catalog{version: version, byTurn: make(map[int]Decision, len(decisions))}
	ids := make(map[string]bool, len(decisions))
	for _, d := range decisions {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.byTurn[d.Turn]; dup {
			return nil, fmt.Errorf("turn %d has more than one decision", d.Turn)
		}
		if ids[d.ID] {
			return nil, fmt.Errorf("decision id %s is duplicated", d.ID)
		}
		ids[d.ID] = true
		c.byTurn[d.Turn] = d
		c.turns = append(c.turns, d.Turn)
	}
	if len(c.turns) == 0 {
		return nil, fmt.Errorf("catalog is empty")
	}
	sort.Ints(c.turns)
	for i, turn := range c.turns {
		if turn != i+1 {
			return nil, fmt.Errorf("turn %d has no decision", i+1)
		}
	}
	return c, nil
}

// Version is the catalog content version.
func (c *Catalog) Version() string {
	return c.version
}

// FinalTurn is the last turn with a decision.
func (c *Catalog) FinalTurn() int {
	return c.turns[len(c.turns)-1]
}

// ForTurn returns the decision for turn, or a configuration error if there is none.
func (c *Catalog) ForTurn(ctx context.Context, turn int) (Decision, error) {
	d, ok := c.byTurn[turn]
	if !ok {
		return Decision{}, simerr.Wrap(ctx, simerr.ConfigurationError, "catalog.for_turn", fmt.Errorf("no decision for turn %d", turn))
	}
	return d, nil
}

// Decisions returns every decision in turn order.
func (c *Catalog) Decisions() []Decision {
	out := make([]Decision, 0, len(c.turns))
	for _, t := range c.turns {
		out = append(out, c.byTurn[t])
	}
	return out
}
