// Package engine advances the game one decision at a time.
//
// AdvanceTurn is a pure transform: it reads a State and returns a new one, or returns
// an error and leaves nothing changed.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Guivernoir/CISO-sim/pkg/catalog"
	"github.com/Guivernoir/CISO-sim/pkg/consequence"
	"github.com/Guivernoir/CISO-sim/pkg/ending"
	"github.com/Guivernoir/CISO-sim/pkg/integrity"
	"github.com/Guivernoir/CISO-sim/pkg/metrics"
	"github.com/Guivernoir/CISO-sim/pkg/observability"
	"github.com/Guivernoir/CISO-sim/pkg/risk"
	"github.com/Guivernoir/CISO-sim/pkg/simerr"
)

// Config is the engine tuning.
type Config struct {
	Risk      risk.Config       `json:"risk" yaml:"risk"`
	Integrity integrity.Weights `json:"integrity" yaml:"integrity"`
	Endings   ending.Thresholds `json:"endings" yaml:"endings"`
	Bounds    metrics.Bounds    `json:"bounds" yaml:"bounds"`

	// DefaultDelay applies to delayed effects that do not name a delay.
	DefaultDelay int `json:"default_delay" yaml:"default_delay"`
	// FlaggedMagnitude and ToxicMagnitude size the integrity event implied by a
	// choice's audit trail.
	FlaggedMagnitude float64 `json:"flagged_magnitude" yaml:"flagged_magnitude"`
	ToxicMagnitude   float64 `json:"toxic_magnitude" yaml:"toxic_magnitude"`

	// Incidents are checked in order at the start of every playable turn, after drift
	// and due consequences.
	Incidents []IncidentRule `json:"incidents" yaml:"incidents"`
}

// DefaultConfig is the shipped tuning.
func DefaultConfig() Config {
	return Config{
		Risk:             risk.DefaultConfig(),
		Integrity:        integrity.DefaultWeights(),
		Endings:          ending.DefaultThresholds(),
		Bounds:           metrics.DefaultBounds(),
		DefaultDelay:     2,
		FlaggedMagnitude: 0.5,
		ToxicMagnitude:   1,
		Incidents:        DefaultIncidents(),
	}
}

// Engine applies decisions to states. It holds only immutable tuning and is safe for
// concurrent use.
type Engine struct {
	cfg       Config
	risk      *risk.Model
	incidents []incidentRule
	endings   *ending.Resolver
	logger    *slog.Logger
	telemetry *observability.Provider
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithTelemetry attaches a telemetry provider.
func WithTelemetry(p *observability.Provider) Option {
	return func(e *Engine) { e.telemetry = p }
}

// New validates cfg and builds an engine. Invalid tuning is a configuration error.
func New(cfg Config, opts ...Option) (*Engine, error) {
	ctx := context.Background()
	if err := cfg.Integrity.Validate(); err != nil {
		return nil, simerr.Wrap(ctx, simerr.ConfigurationError, "engine.integrity", err)
	}
	if err := cfg.Bounds.Validate(); err != nil {
		return nil, simerr.Wrap(ctx, simerr.ConfigurationError, "engine.bounds", err)
	}
	if cfg.DefaultDelay < 1 {
		return nil, simerr.Wrap(ctx, simerr.ConfigurationError, "engine.delay", fmt.Errorf("default delay %d must be at least 1", cfg.DefaultDelay))
	}
	if cfg.FlaggedMagnitude < 0 || cfg.ToxicMagnitude < 0 {
		return nil, simerr.Wrap(ctx, simerr.ConfigurationError, "engine.audit", fmt.Errorf("audit magnitudes must not be negative"))
	}
	resolver, err := ending.NewResolver(cfg.Endings)
	if err != nil {
		return nil, simerr.Wrap(ctx, simerr.ConfigurationError, "engine.endings", err)
	}
	incidents, err := compileIncidents(cfg.Incidents)
	if err != nil {
		return nil, simerr.Wrap(ctx, simerr.ConfigurationError, "engine.incidents", err)
	}

	e := &Engine{
		cfg:       cfg,
		incidents: incidents,
		endings:   resolver,
		logger:    slog.Default().With("component", "engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.risk, err = risk.NewModel(cfg.Risk, risk.WithLogger(e.logger)); err != nil {
		return nil, simerr.Wrap(ctx, simerr.ConfigurationError, "engine.risk", err)
	}
	if e.telemetry == nil {
		if e.telemetry, err = observability.New(ctx, nil); err != nil {
			return nil, simerr.Wrap(ctx, simerr.SystemFailure, "engine.telemetry", err)
		}
	}
	return e, nil
}

// Config returns the tuning the engine was built with.
func (e *Engine) Config() Config {
	return e.cfg
}

// RiskModel exposes the compiled risk model.
func (e *Engine) RiskModel() *risk.Model {
	return e.risk
}

// NewGame returns the opening state of a game lasting finalTurn turns.
func (e *Engine) NewGame(finalTurn int) (State, error) {
	if finalTurn < 1 {
		return State{}, simerr.Wrap(context.Background(), simerr.ConfigurationError, "engine.new_game", fmt.Errorf("final turn %d", finalTurn))
	}
	return State{
		SessionID: uuid.NewString(),
		Turn:      1,
		FinalTurn: finalTurn,
		Risk:      e.risk.Initial(),
		Business:  metrics.InitialBusiness().Apply(metrics.BusinessDelta{}, e.cfg.Bounds),
		Political: metrics.InitialPolitical().Apply(metrics.PoliticalDelta{}, e.cfg.Bounds),
	}, nil
}

// TurnReport describes what happened during one AdvanceTurn.
type TurnReport struct {
	FromTurn     int                   `json:"from_turn"`
	ToTurn       int                   `json:"to_turn"`
	DecisionID   string                `json:"decision_id"`
	ChoiceID     string                `json:"choice_id"`
	Scheduled    []consequence.Pending `json:"scheduled,omitempty"`
	Materialized []consequence.Pending `json:"materialized,omitempty"`
	Recorded     []integrity.Event     `json:"recorded,omitempty"`
	Incidents    []Incident            `json:"incidents,omitempty"`
	Ending       *ending.Ending        `json:"ending,omitempty"`
}

// AdvanceTurn applies choiceID of decision d to s and moves to the next turn.
//
// A finished game, a decision for another turn, or a choice outside d is an
// InvalidAction; a malformed decision is a ConfigurationError. On error s is unchanged
// and the returned State is the zero value.
func (e *Engine) AdvanceTurn(ctx context.Context, s State, d catalog.Decision, choiceID string) (State, TurnReport, error) {
	ctx, span := e.telemetry.StartSpan(ctx, "engine.advance_turn",
		attribute.Int("cisosim.turn", s.Turn),
		attribute.String("cisosim.decision", d.ID),
		attribute.String("cisosim.choice", choiceID),
	)
	defer span.End()

	next, report, err := e.advance(ctx, s, d, choiceID)
	if err != nil {
		span.SetStatus(codes.Error, string(simerr.KindOf(err)))
		if simerr.KindOf(err) == simerr.InvalidAction {
			e.telemetry.InvalidAction(ctx)
		}
		return State{}, TurnReport{}, err
	}

	e.telemetry.TurnAdvanced(ctx, report.FromTurn, choiceID)
	e.logger.DebugContext(ctx, "turn advanced",
		"session", s.SessionID,
		"from", report.FromTurn,
		"to", report.ToTurn,
		"decision", d.ID,
		"choice", choiceID,
		"materialized", len(report.Materialized),
		"incidents", len(report.Incidents),
	)
	for _, inc := range report.Incidents {
		e.logger.InfoContext(ctx, "incident broke out", "session", s.SessionID, "incident", inc.ID, "turn", inc.Turn)
	}
	if report.Ending != nil {
		e.logger.InfoContext(ctx, "game ended", "session", s.SessionID, "ending", report.Ending.Kind)
	}
	return next, report, nil
}

func (e *Engine) advance(ctx context.Context, s State, d catalog.Decision, choiceID string) (State, TurnReport, error) {
	if s.Ended() {
		return State{}, TurnReport{}, simerr.Wrap(ctx, simerr.InvalidAction, "engine.advance", fmt.Errorf("game already ended"))
	}
	if d.Turn != s.Turn {
		return State{}, TurnReport{}, simerr.Wrap(ctx, simerr.InvalidAction, "engine.advance", fmt.Errorf("decision %s is for turn %d, state is at turn %d", d.ID, d.Turn, s.Turn))
	}
	if err := d.Validate(); err != nil {
		return State{}, TurnReport{}, simerr.Wrap(ctx, simerr.ConfigurationError, "engine.advance", err)
	}
	choice, ok := d.Choice(choiceID)
	if !ok {
		return State{}, TurnReport{}, simerr.Wrap(ctx, simerr.InvalidAction, "engine.advance", fmt.Errorf("choice %q is not an option of %s", choiceID, d.ID))
	}

	next := s.Clone()
	report := TurnReport{FromTurn: s.Turn, DecisionID: d.ID, ChoiceID: choiceID}
	im := choice.Impact

	next.Business = next.Business.Apply(im.Business, e.cfg.Bounds)
	next.Political = next.Political.Apply(im.Political, e.cfg.Bounds)
	next.Risk = e.risk.Apply(next.Risk, im.Risk)

	if ev, ok := e.auditEvent(im.AuditTrail); ok {
		ev.Turn, ev.DecisionID = s.Turn, d.ID
		report.Recorded = append(report.Recorded, next.Ledger.Record(ev))
	}
	for _, ie := range im.Integrity {
		report.Recorded = append(report.Recorded, next.Ledger.Record(integrity.Event{
			Turn:        s.Turn,
			Kind:        ie.Kind,
			Magnitude:   ie.Magnitude,
			DecisionID:  d.ID,
			Description: ie.Description,
		}))
	}

	for _, de := range im.Delayed {
		delay := de.Delay
		if delay == 0 {
			delay = e.cfg.DefaultDelay
		}
		for _, eff := range de.Effects() {
			p, err := next.Consequences.Schedule(s.Turn, consequence.Pending{
				TriggerTurn:      s.Turn + delay,
				OriginDecisionID: d.ID,
				Description:      de.Description,
				Effect:           eff,
			})
			if err != nil {
				return State{}, TurnReport{}, simerr.Wrap(ctx, simerr.ConfigurationError, "engine.schedule", err)
			}
			report.Scheduled = append(report.Scheduled, p)
		}
	}

	next.Turn++
	playable := next.Turn <= next.FinalTurn
	if playable {
		next.Risk = e.risk.Drift(next.Risk)
	}
	for _, p := range next.Consequences.DrainDue(next.Turn) {
		if ev, ok := e.materialize(&next, p); ok {
			report.Recorded = append(report.Recorded, ev)
		}
		report.Materialized = append(report.Materialized, p)
	}
	if playable {
		report.Incidents = e.breakOut(ctx, &next)
	}

	next.Trail = append(next.Trail, TrailEntry{Turn: s.Turn, DecisionID: d.ID, ChoiceID: choiceID})

	if next.Turn > next.FinalTurn {
		end := e.ResolveEnding(next)
		next.Ending = &end
		report.Ending = &end
	}
	report.ToTurn = next.Turn
	return next, report, nil
}

// auditEvent maps a choice's audit trail tag to the event it implies.
func (e *Engine) auditEvent(q integrity.AuditTrailQuality) (integrity.Event, bool) {
	switch q {
	case integrity.Clean:
		return integrity.Event{Kind: integrity.Consistent, Magnitude: 1, Description: "clean audit trail"}, true
	case integrity.Flagged:
		return integrity.Event{Kind: integrity.DelayedEscalation, Magnitude: e.cfg.FlaggedMagnitude, Description: "flagged audit trail"}, true
	case integrity.Toxic:
		return integrity.Event{Kind: integrity.Lie, Magnitude: e.cfg.ToxicMagnitude, Description: "toxic audit trail"}, true
	}
	return integrity.Event{}, false
}

// materialize applies a due consequence to s.
func (e *Engine) materialize(s *State, p consequence.Pending) (integrity.Event, bool) {
	eff := p.Effect
	switch {
	case eff.Risk != nil:
		s.Risk = e.risk.Apply(s.Risk, *eff.Risk)
	case eff.Business != nil:
		s.Business = s.Business.Apply(*eff.Business, e.cfg.Bounds)
	case eff.Political != nil:
		s.Political = s.Political.Apply(*eff.Political, e.cfg.Bounds)
	case eff.Integrity != nil:
		desc := eff.Integrity.Description
		if desc == "" {
			desc = p.Description
		}
		return s.Ledger.Record(integrity.Event{
			Turn:        s.Turn,
			Kind:        eff.Integrity.Kind,
			Magnitude:   eff.Integrity.Magnitude,
			DecisionID:  p.OriginDecisionID,
			Description: desc,
		}), true
	}
	return integrity.Event{}, false
}

// ResolveEnding evaluates the ending for s regardless of whether the game is over.
func (e *Engine) ResolveEnding(s State) ending.Ending {
	return e.endings.Resolve(ending.Inputs{
		Score:           s.Ledger.Score(e.cfg.Integrity),
		Exposure:        e.risk.TotalExposure(s.Risk),
		BuriedIncidents: s.Ledger.BuriedIncidents(),
	})
}

// Score is the integrity score of s.
func (e *Engine) Score(s State) uint8 {
	return s.Ledger.Score(e.cfg.Integrity)
}

// AuditQuality is the audit trail quality of s.
func (e *Engine) AuditQuality(s State) integrity.AuditTrailQuality {
	return s.Ledger.AuditQuality(e.cfg.Integrity)
}

// TotalExposure is the weighted risk exposure of s.
func (e *Engine) TotalExposure(s State) float64 {
	return e.risk.TotalExposure(s.Risk)
}
