package engine

import (
	"fmt"
	"slices"

	"github.com/Guivernoir/CISO-sim/pkg/consequence"
	"github.com/Guivernoir/CISO-sim/pkg/ending"
	"github.com/Guivernoir/CISO-sim/pkg/integrity"
	"github.com/Guivernoir/CISO-sim/pkg/metrics"
	"github.com/Guivernoir/CISO-sim/pkg/risk"
)

// TrailEntry records one decision the player made.
type TrailEntry struct {
	Turn       int    `json:"turn"`
	DecisionID string `json:"decision_id"`
	ChoiceID   string `json:"choice_id"`
}

// State is the complete game state and the unit of persistence. Values returned by
// the engine are never modified by it again.
type State struct {
	SessionID    string                 `json:"session_id"`
	Turn         int                    `json:"turn"`
	FinalTurn    int                    `json:"final_turn"`
	Risk         risk.Vector            `json:"risk"`
	Business     metrics.BusinessState  `json:"business"`
	Political    metrics.PoliticalState `json:"political"`
	Ledger       integrity.Ledger       `json:"ledger"`
	Consequences consequence.Scheduler  `json:"consequences"`
	Trail        []TrailEntry           `json:"trail"`
	Incidents    []Incident             `json:"incidents,omitempty"`
	Ending       *ending.Ending         `json:"ending,omitempty"`
}

// Ended reports whether the game is over.
func (s State) Ended() bool {
	return s.Ending != nil
}

// Clone returns a deep copy.
func (s State) Clone() State {
	c := s
	c.Ledger = s.Ledger.Clone()
	c.Consequences = s.Consequences.Clone()
	c.Trail = slices.Clone(s.Trail)
	c.Incidents = slices.Clone(s.Incidents)
	if s.Ending != nil {
		e := *s.Ending
		c.Ending = &e
	}
	return c
}

// Validate checks every structural invariant of a state. It is run on every loaded save.
func (s State) Validate(b metrics.Bounds) error {
	if s.SessionID == "" {
		return fmt.Errorf("missing session id")
	}
	if s.FinalTurn < 1 || s.Turn < 1 || s.Turn > s.FinalTurn+1 {
		return fmt.Errorf("turn %d outside 1..%d", s.Turn, s.FinalTurn+1)
	}
	if s.Ended() != (s.Turn > s.FinalTurn) {
		return fmt.Errorf("ending present=%v at turn %d of %d", s.Ended(), s.Turn, s.FinalTurn)
	}
	if !s.Risk.InRange(risk.MinMagnitude, risk.MaxMagnitude) {
		return fmt.Errorf("risk vector out of range")
	}
	if !s.Business.Within(b) || !s.Political.Within(b) {
		return fmt.Errorf("metrics out of bounds")
	}
	if err := s.Ledger.Verify(); err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	if err := s.Consequences.Validate(); err != nil {
		return fmt.Errorf("consequences: %w", err)
	}
	for _, p := range s.Consequences.Pending() {
		if p.TriggerTurn <= s.Turn || p.ScheduledTurn >= s.Turn {
			return fmt.Errorf("consequence %s should already have materialized", p.ID)
		}
	}
	if len(s.Trail) != s.Turn-1 {
		return fmt.Errorf("trail has %d entries at turn %d", len(s.Trail), s.Turn)
	}
	for i, e := range s.Trail {
		if e.Turn != i+1 || e.DecisionID == "" || e.ChoiceID == "" {
			return fmt.Errorf("trail entry %d is malformed", i)
		}
	}
	seen := make(map[string]bool, len(s.Incidents))
	lastTurn := 0
	for _, inc := range s.Incidents {
		if inc.ID == "" || seen[inc.ID] {
			return fmt.Errorf("incident %q is empty or repeated", inc.ID)
		}
		if inc.Turn < max(2, lastTurn) || inc.Turn > min(s.Turn, s.FinalTurn) {
			return fmt.Errorf("incident %s at turn %d is out of order", inc.ID, inc.Turn)
		}
		seen[inc.ID] = true
		lastTurn = inc.Turn
	}
	return nil
}

func (s State) hasIncident(id string) bool {
	return slices.ContainsFunc(s.Incidents, func(inc Incident) bool { return inc.ID == id })
}

// Phase is the act of the story the game is in.
type Phase string

const (
	InheritanceDisaster Phase = "INHERITANCE_DISASTER"
	OperationalTempo    Phase = "OPERATIONAL_TEMPO"
	Discovery           Phase = "DISCOVERY"
	Ended               Phase = "ENDED"
)

const (
	openingTurns   = 3
	discoveryTurns = 4
)

// PhaseOf places turn within a game of finalTurn turns. The first three turns are the
// inheritance and the last four are discovery; in a short game the opening wins.
func PhaseOf(turn, finalTurn int) Phase {
	switch {
	case turn > finalTurn:
		return Ended
	case turn <= openingTurns:
		return InheritanceDisaster
	case turn > finalTurn-discoveryTurns:
		return Discovery
	default:
		return OperationalTempo
	}
}

// QuarterOf maps a turn to its fiscal quarter; four turns make a quarter.
func QuarterOf(turn int) int {
	return (turn-1)/4 + 1
}
