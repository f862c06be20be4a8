package engine

import (
	"slices"

	"github.com/Guivernoir/CISO-sim/pkg/catalog"
	"github.com/Guivernoir/CISO-sim/pkg/ending"
	"github.com/Guivernoir/CISO-sim/pkg/integrity"
	"github.com/Guivernoir/CISO-sim/pkg/metrics"
	"github.com/Guivernoir/CISO-sim/pkg/risk"
)

// ChoiceView is what the player can see of a choice before making it.
type ChoiceView struct {
	ID          string                `json:"id"`
	Label       string                `json:"label"`
	Description string                `json:"description"`
	Preview     catalog.ImpactPreview `json:"preview"`
}

// DecisionView is the current decision with its impacts hidden.
type DecisionView struct {
	ID            string           `json:"id"`
	Title         string           `json:"title"`
	Context       string           `json:"context"`
	Category      catalog.Category `json:"category"`
	BoardPressure bool             `json:"board_pressure"`
	TimeSensitive bool             `json:"time_sensitive"`
	Choices       []ChoiceView     `json:"choices"`
}

// ViewState is a read-only projection of a State for presentation.
type ViewState struct {
	SessionID string `json:"session_id"`
	Turn      int    `json:"turn"`
	FinalTurn int    `json:"final_turn"`
	Phase     Phase  `json:"phase"`
	Quarter   int    `json:"quarter"`

	Risk          risk.Vector     `json:"risk"`
	TotalExposure float64         `json:"total_exposure"`
	CriticalRisks []risk.Category `json:"critical_risks,omitempty"`
	ActiveRules   []string        `json:"active_rules,omitempty"`

	Business  metrics.BusinessState  `json:"business"`
	Political metrics.PoliticalState `json:"political"`

	IntegrityScore      uint8                       `json:"integrity_score"`
	AuditQuality        integrity.AuditTrailQuality `json:"audit_quality"`
	PendingConsequences int                         `json:"pending_consequences"`
	Incidents           []Incident                  `json:"incidents,omitempty"`

	Decision *DecisionView  `json:"decision,omitempty"`
	Ending   *ending.Ending `json:"ending,omitempty"`
}

// View projects s for presentation. next is the decision for s.Turn, or nil when the
// game is over or no decision applies.
func (e *Engine) View(s State, next *catalog.Decision) ViewState {
	v := ViewState{
		SessionID:           s.SessionID,
		Turn:                s.Turn,
		FinalTurn:           s.FinalTurn,
		Phase:               PhaseOf(s.Turn, s.FinalTurn),
		Quarter:             QuarterOf(min(s.Turn, s.FinalTurn)),
		Risk:                s.Risk,
		TotalExposure:       e.risk.TotalExposure(s.Risk),
		CriticalRisks:       e.risk.Critical(s.Risk),
		ActiveRules:         e.risk.Fired(s.Risk),
		Business:            s.Business,
		Political:           s.Political,
		IntegrityScore:      s.Ledger.Score(e.cfg.Integrity),
		AuditQuality:        s.Ledger.AuditQuality(e.cfg.Integrity),
		PendingConsequences: s.Consequences.Len(),
		Incidents:           slices.Clone(s.Incidents),
	}
	if s.Ending != nil {
		end := *s.Ending
		v.Ending = &end
	}
	if next != nil && !s.Ended() {
		v.Decision = viewDecision(*next)
	}
	return v
}

func viewDecision(d catalog.Decision) *DecisionView {
	dv := &DecisionView{
		ID:            d.ID,
		Title:         d.Title,
		Context:       d.Context,
		Category:      d.Category,
		BoardPressure: d.BoardPressure,
		TimeSensitive: d.TimeSensitive,
		Choices:       make([]ChoiceView, 0, len(d.Choices)),
	}
	for _, c := range d.Choices {
		dv.Choices = append(dv.Choices, ChoiceView{
			ID:          c.ID,
			Label:       c.Label,
			Description: c.Description,
			Preview:     c.Preview,
		})
	}
	return dv
}
