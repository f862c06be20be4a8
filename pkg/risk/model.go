package risk

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/cel-go/cel"
)

// AllCategories may be used as a rule target to amplify every category.
const AllCategories = "*"

// RuleConfig declares one amplification rule. When is a CEL boolean expression over
// the map variable risk, for example `risk.AccessControl >= 60.0`.
type RuleConfig struct {
	Name     string   `json:"name" yaml:"name"`
	Priority int      `json:"priority" yaml:"priority"`
	When     string   `json:"when" yaml:"when"`
	Targets  []string `json:"targets" yaml:"targets"`
	Factor   float64  `json:"factor" yaml:"factor"`
}

// Config parameterizes a Model.
type Config struct {
	Initial           Vector       `json:"initial" yaml:"initial"`
	Weights           Vector       `json:"weights" yaml:"weights"`
	CriticalThreshold float64      `json:"critical_threshold" yaml:"critical_threshold"`
	Rules             []RuleConfig `json:"rules" yaml:"rules"`
	// Drift is the change the environment undergoes by itself every turn: permissions
	// sprawl and configurations rot unless someone pays for upkeep.
	Drift Delta `json:"drift" yaml:"drift"`
}

// DefaultConfig is the shipped tuning: an inherited environment worth 35 exposure points
// and three cascading rules.
func DefaultConfig() Config {
	return Config{
		Initial: Vector{
			DataExposure:  10,
			AccessControl: 10,
			Detection:     5,
			VendorRisk:    5,
			InsiderThreat: 5,
		},
		Weights:           Vector{DataExposure: 1, AccessControl: 1, Detection: 1, VendorRisk: 1, InsiderThreat: 1},
		CriticalThreshold: 80,
		Rules: []RuleConfig{
			{Name: "weak-detection", Priority: 10, When: "risk.Detection >= 60.0", Targets: []string{AllCategories}, Factor: 1.5},
			{Name: "broken-access-control", Priority: 20, When: "risk.AccessControl >= 60.0", Targets: []string{string(DataExposure)}, Factor: 1.2},
			{Name: "vendor-sprawl", Priority: 30, When: "risk.VendorRisk >= 50.0", Targets: []string{string(AccessControl)}, Factor: 1.15},
		},
		Drift: Delta{DataExposure: 1, AccessControl: 1},
	}
}

type rule struct {
	name    string
	prg     cel.Program
	targets []Category
	factor  float64
}

// Model applies deltas to risk vectors. It is immutable after construction and safe
// for concurrent use.
type Model struct {
	initial  Vector
	weights  Vector
	critical float64
	drift    Delta
	rules    []rule
	logger   *slog.Logger
}

// ModelOption configures a Model.
type ModelOption func(*Model)

// WithLogger overrides the logger rule evaluation failures are reported to.
func WithLogger(l *slog.Logger) ModelOption {
	return func(m *Model) { m.logger = l }
}

// NewModel compiles the configured rules. Any rule that does not compile to a boolean,
// names an unknown category, or fails a dry run is rejected.
func NewModel(cfg Config, opts ...ModelOption) (*Model, error) {
	if !cfg.Weights.InRange(0, 1) {
		return nil, fmt.Errorf("risk weights must lie in [0,1]")
	}
	if !cfg.Initial.InRange(MinMagnitude, MaxMagnitude) {
		return nil, fmt.Errorf("initial risk vector out of range")
	}
	if cfg.CriticalThreshold < MinMagnitude || cfg.CriticalThreshold > MaxMagnitude {
		return nil, fmt.Errorf("critical threshold %v out of range", cfg.CriticalThreshold)
	}
	if !cfg.Drift.InRange(-MaxDelta, MaxDelta) {
		return nil, fmt.Errorf("drift out of range")
	}

	env, err := cel.NewEnv(
		cel.Variable("risk", cel.MapType(cel.StringType, cel.DoubleType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ordered := make([]RuleConfig, len(cfg.Rules))
	copy(ordered, cfg.Rules)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority < ordered[j].Priority })

	m := &Model{
		initial:  cfg.Initial,
		weights:  cfg.Weights,
		critical: cfg.CriticalThreshold,
		drift:    cfg.Drift,
		logger:   slog.Default().With("component", "risk"),
	}
	for _, opt := range opts {
		opt(m)
	}
	seen := make(map[string]bool, len(ordered))
	for _, rc := range ordered {
		if rc.Name == "" || seen[rc.Name] {
			return nil, fmt.Errorf("rule name %q is empty or duplicated", rc.Name)
		}
		seen[rc.Name] = true
		if rc.Factor < 1 {
			return nil, fmt.Errorf("rule %s: factor %v must be >= 1", rc.Name, rc.Factor)
		}
		targets, err := resolveTargets(rc.Targets)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", rc.Name, err)
		}

		ast, issues := env.Compile(rc.When)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("rule %s: compile: %w", rc.Name, issues.Err())
		}
		if !ast.OutputType().IsExactType(cel.BoolType) {
			return nil, fmt.Errorf("rule %s: expression must be boolean, got %v", rc.Name, ast.OutputType())
		}
		prg, err := env.Program(ast, cel.CostLimit(1000))
		if err != nil {
			return nil, fmt.Errorf("rule %s: program: %w", rc.Name, err)
		}
		r := rule{name: rc.Name, prg: prg, targets: targets, factor: rc.Factor}
		if _, err := r.fires(Vector{}); err != nil {
			return nil, fmt.Errorf("rule %s: dry run: %w", rc.Name, err)
		}
		m.rules = append(m.rules, r)
	}
	return m, nil
}

func resolveTargets(names []string) ([]Category, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("no targets")
	}
	var out []Category
	for _, n := range names {
		if n == AllCategories {
			return Categories, nil
		}
		c, err := ParseCategory(n)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (r rule) fires(v Vector) (bool, error) {
	out, _, err := r.prg.Eval(map[string]any{"risk": v.Map()})
	if err != nil {
		return false, err
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("non-boolean result %v", out.Value())
	}
	return b, nil
}

// Initial returns the starting vector.
func (m *Model) Initial() Vector {
	return m.initial
}

// Apply returns current changed by delta. Delta components are bounded to
// [-MaxDelta, MaxDelta]; every rule whose condition holds for current multiplies the
// positive components of its targets; the result is clamped to [0,100].
func (m *Model) Apply(current, delta Delta) Vector {
	d := delta.Clamp(-MaxDelta, MaxDelta)
	for _, r := range m.rules {
		ok, err := r.fires(current)
		if err != nil {
			m.logger.Warn("amplification rule skipped", "rule", r.name, "error", err)
			continue
		}
		if !ok {
			continue
		}
		for _, c := range r.targets {
			if x := d.Get(c); x > 0 {
				d = d.With(c, x*r.factor)
			}
		}
	}
	next := current
	for _, c := range Categories {
		next = next.With(c, current.Get(c)+d.Get(c))
	}
	return next.Clamp(MinMagnitude, MaxMagnitude)
}

// Drift applies one turn of environmental drift to v. It goes through Apply, so
// cascading rules amplify it like any other increase.
func (m *Model) Drift(v Vector) Vector {
	if m.drift.IsZero() {
		return v
	}
	return m.Apply(v, m.drift)
}

// Fired lists the names of the rules whose condition holds for v, in evaluation order.
func (m *Model) Fired(v Vector) []string {
	var names []string
	for _, r := range m.rules {
		if ok, err := r.fires(v); err == nil && ok {
			names = append(names, r.name)
		}
	}
	return names
}

// TotalExposure is the weighted sum of v. With weights in [0,1] it lies in [0,500].
func (m *Model) TotalExposure(v Vector) float64 {
	var total float64
	for _, c := range Categories {
		total += m.weights.Get(c) * clamp(v.Get(c), MinMagnitude, MaxMagnitude)
	}
	return total
}

// Critical returns the categories at or above the critical threshold.
func (m *Model) Critical(v Vector) []Category {
	var out []Category
	for _, c := range Categories {
		if v.Get(c) >= m.critical {
			out = append(out, c)
		}
	}
	return out
}
