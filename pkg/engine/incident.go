package engine

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/Guivernoir/CISO-sim/pkg/metrics"
	"github.com/Guivernoir/CISO-sim/pkg/risk"
)

// IncidentRule declares a security incident that breaks out the first time its
// condition holds at the start of a turn. When is a CEL boolean expression over the
// map variable risk and the int variable turn, for example
// `risk.DataExposure > 60.0 && turn > 5`.
type IncidentRule struct {
	ID        string                 `json:"id" yaml:"id"`
	Title     string                 `json:"title" yaml:"title"`
	When      string                 `json:"when" yaml:"when"`
	Risk      risk.Delta             `json:"risk" yaml:"risk"`
	Business  metrics.BusinessDelta  `json:"business" yaml:"business"`
	Political metrics.PoliticalDelta `json:"political" yaml:"political"`
}

// Incident is an incident that broke out.
type Incident struct {
	ID    string `json:"id"`
	Turn  int    `json:"turn"`
	Title string `json:"title"`
}

// DefaultIncidents are the incidents waiting in the inherited environment.
func DefaultIncidents() []IncidentRule {
	return []IncidentRule{
		{
			ID:        "s3_breach",
			Title:     "S3 bucket with customer PII found publicly accessible",
			When:      "risk.DataExposure > 60.0 && turn > 5",
			Risk:      risk.Delta{Detection: 5},
			Business:  metrics.BusinessDelta{ARR: -2, BoardConfidence: -15, Churn: 3},
			Political: metrics.PoliticalDelta{IndustryStanding: -10},
		},
		{
			ID:        "credential_stuffing",
			Title:     "Admin accounts compromised by credential stuffing",
			When:      "risk.AccessControl > 50.0 && turn > 6",
			Risk:      risk.Delta{DataExposure: 10},
			Business:  metrics.BusinessDelta{BoardConfidence: -10},
			Political: metrics.PoliticalDelta{TeamMorale: -10},
		},
		{
			ID:        "vendor_breach",
			Title:     "SSO provider discloses a breach",
			When:      "risk.VendorRisk > 40.0 && turn > 7",
			Risk:      risk.Delta{AccessControl: 5},
			Business:  metrics.BusinessDelta{BoardConfidence: -5},
			Political: metrics.PoliticalDelta{VendorRelationships: -15},
		},
	}
}

type incidentRule struct {
	IncidentRule
	prg cel.Program
}

func compileIncidents(rules []IncidentRule) ([]incidentRule, error) {
	env, err := cel.NewEnv(
		cel.Variable("risk", cel.MapType(cel.StringType, cel.DoubleType)),
		cel.Variable("turn", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	out := make([]incidentRule, 0, len(rules))
	seen := make(map[string]bool, len(rules))
	for _, rc := range rules {
		if rc.ID == "" || seen[rc.ID] {
			return nil, fmt.Errorf("incident id %q is empty or duplicated", rc.ID)
		}
		seen[rc.ID] = true
		if !rc.Risk.InRange(-risk.MaxDelta, risk.MaxDelta) {
			return nil, fmt.Errorf("incident %s: risk delta out of range", rc.ID)
		}

		ast, issues := env.Compile(rc.When)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("incident %s: compile: %w", rc.ID, issues.Err())
		}
		if !ast.OutputType().IsExactType(cel.BoolType) {
			return nil, fmt.Errorf("incident %s: expression must be boolean, got %v", rc.ID, ast.OutputType())
		}
		prg, err := env.Program(ast, cel.CostLimit(1000))
		if err != nil {
			return nil, fmt.Errorf("incident %s: program: %w", rc.ID, err)
		}
		r := incidentRule{IncidentRule: rc, prg: prg}
		if _, err := r.holds(risk.Vector{}, 1); err != nil {
			return nil, fmt.Errorf("incident %s: dry run: %w", rc.ID, err)
		}
		out = append(out, r)
	}
	return out, nil
}

func (r incidentRule) holds(v risk.Vector, turn int) (bool, error) {
	out, _, err := r.prg.Eval(map[string]any{"risk": v.Map(), "turn": int64(turn)})
	if err != nil {
		return false, err
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("non-boolean result %v", out.Value())
	}
	return b, nil
}

// breakOut fires every incident whose condition holds for s and has not fired
// before, in configured order. Each rule sees the state left by the ones before it.
func (e *Engine) breakOut(ctx context.Context, s *State) []Incident {
	var fired []Incident
	for _, r := range e.incidents {
		if s.hasIncident(r.ID) {
			continue
		}
		ok, err := r.holds(s.Risk, s.Turn)
		if err != nil {
			e.logger.WarnContext(ctx, "incident rule skipped", "incident", r.ID, "error", err)
			continue
		}
		if !ok {
			continue
		}
		s.Risk = e.risk.Apply(s.Risk, r.Risk)
		s.Business = s.Business.Apply(r.Business, e.cfg.Bounds)
		s.Political = s.Political.Apply(r.Political, e.cfg.Bounds)
		inc := Incident{ID: r.ID, Turn: s.Turn, Title: r.Title}
		s.Incidents = append(s.Incidents, inc)
		fired = append(fired, inc)
	}
	return fired
}
