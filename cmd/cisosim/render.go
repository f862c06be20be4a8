package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/Guivernoir/CISO-sim/pkg/engine"
	"github.com/Guivernoir/CISO-sim/pkg/integrity"
	"github.com/Guivernoir/CISO-sim/pkg/risk"
)

func renderView(w io.Writer, v engine.ViewState) {
	_, _ = fmt.Fprintln(w)
	if v.Ending != nil {
		_, _ = fmt.Fprintf(w, "=== %s ===\n", v.Ending.Kind)
		_, _ = fmt.Fprintln(w, v.Ending.Headline())
		_, _ = fmt.Fprintf(w, "Integrity %d (%s), exposure %.1f, penalty multiplier x%.1f\n",
			v.IntegrityScore, v.AuditQuality, v.TotalExposure, v.Ending.PenaltyMultiplier)
		return
	}

	_, _ = fmt.Fprintf(w, "Turn %d/%d  Q%d  %s\n", v.Turn, v.FinalTurn, v.Quarter, v.Phase)
	_, _ = fmt.Fprintf(w, "ARR $%.1fM  board %.0f  velocity %.0f  churn %.1f%%\n",
		v.Business.ARR, v.Business.BoardConfidence, v.Business.Velocity, v.Business.Churn)
	_, _ = fmt.Fprintf(w, "capital %.0f  morale %.0f  standing %.0f  vendors %.0f\n",
		v.Political.PoliticalCapital, v.Political.TeamMorale, v.Political.IndustryStanding, v.Political.VendorRelationships)
	_, _ = fmt.Fprintf(w, "Risk %.1f/500", v.TotalExposure)
	for _, c := range risk.Categories {
		_, _ = fmt.Fprintf(w, "  %s %.0f", c, v.Risk.Get(c))
	}
	_, _ = fmt.Fprintln(w)
	if len(v.CriticalRisks) > 0 || len(v.ActiveRules) > 0 {
		crit := make([]string, 0, len(v.CriticalRisks))
		for _, c := range v.CriticalRisks {
			crit = append(crit, string(c))
		}
		_, _ = fmt.Fprintf(w, "Critical: %s  Cascades: %s\n", strings.Join(crit, ", "), strings.Join(v.ActiveRules, ", "))
	}
	_, _ = fmt.Fprintf(w, "Audit trail %s  integrity %d  pending consequences %d\n",
		v.AuditQuality, v.IntegrityScore, v.PendingConsequences)
	if len(v.Incidents) > 0 {
		ids := make([]string, 0, len(v.Incidents))
		for _, inc := range v.Incidents {
			ids = append(ids, inc.ID)
		}
		_, _ = fmt.Fprintf(w, "Open incidents: %s\n", strings.Join(ids, ", "))
	}

	d := v.Decision
	if d == nil {
		return
	}
	_, _ = fmt.Fprintf(w, "\n[%s] %s\n", d.Category, d.Title)
	if d.Context != "" {
		_, _ = fmt.Fprintln(w, strings.TrimSpace(d.Context))
	}
	if d.BoardPressure {
		_, _ = fmt.Fprintln(w, "The board is watching this one.")
	}
	for i, c := range d.Choices {
		_, _ = fmt.Fprintf(w, "  %d) %s [%s]\n", i+1, c.Label, c.Preview.RiskIndicator)
		if c.Description != "" {
			_, _ = fmt.Fprintf(w, "     %s\n", c.Description)
		}
	}
}

func renderReport(w io.Writer, r engine.TurnReport) {
	for _, p := range r.Materialized {
		desc := p.Description
		if desc == "" {
			desc = "an earlier decision catches up with you"
		}
		_, _ = fmt.Fprintf(w, "! Turn %d: %s (%s)\n", r.ToTurn, desc, p.OriginDecisionID)
	}
	for _, inc := range r.Incidents {
		_, _ = fmt.Fprintf(w, "!! Incident: %s\n", inc.Title)
	}
	for _, e := range r.Recorded {
		if e.Kind == integrity.BuriedIncident {
			_, _ = fmt.Fprintln(w, "! Something you buried has been found.")
		}
	}
}
