// Package replay rebuilds a game from its decision trail and checks that a saved state
// is explained by it.
//
// The engine is deterministic apart from the session id, so replaying the same trail
// must reproduce the same ledger, scheduler and metrics. Divergence is reported at the
// first turn whose ledger head differs.
package replay

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Guivernoir/CISO-sim/pkg/canonicalize"
	"github.com/Guivernoir/CISO-sim/pkg/catalog"
	"github.com/Guivernoir/CISO-sim/pkg/engine"
	"github.com/Guivernoir/CISO-sim/pkg/simerr"
)

// Status is the outcome of a verification.
type Status string

const (
	StatusMatch    Status = "MATCH"
	StatusDiverged Status = "DIVERGED"
)

// Result describes a verification run.
type Result struct {
	Status         Status `json:"status"`
	Steps          int    `json:"steps"`
	DivergenceTurn int    `json:"divergence_turn,omitempty"`
	DivergenceInfo string `json:"divergence_info,omitempty"`
	OriginalHash   string `json:"original_hash"`
	ReplayHash     string `json:"replay_hash"`
}

// Replay plays trail from a new game of finalTurn turns. A trail entry that does not
// match the catalog is an InvalidAction.
func Replay(ctx context.Context, e *engine.Engine, cat *catalog.Catalog, trail []engine.TrailEntry, finalTurn int) (engine.State, error) {
	s, err := e.NewGame(finalTurn)
	if err != nil {
		return engine.State{}, err
	}
	for _, step := range trail {
		if s, err = replayStep(ctx, e, cat, s, step); err != nil {
			return engine.State{}, err
		}
	}
	return s, nil
}

func replayStep(ctx context.Context, e *engine.Engine, cat *catalog.Catalog, s engine.State, step engine.TrailEntry) (engine.State, error) {
	d, err := cat.ForTurn(ctx, step.Turn)
	if err != nil {
		return engine.State{}, err
	}
	if d.ID != step.DecisionID {
		return engine.State{}, simerr.Wrap(ctx, simerr.InvalidAction, "replay.step",
			fmt.Errorf("turn %d: trail names decision %s, catalog has %s", step.Turn, step.DecisionID, d.ID))
	}
	next, _, err := e.AdvanceTurn(ctx, s, d, step.ChoiceID)
	return next, err
}

// Digest hashes everything in s that replay must reproduce.
func Digest(s engine.State) (string, error) {
	c := s.Clone()
	c.SessionID = ""
	return canonicalize.CanonicalHash(c)
}

// Verify replays saved.Trail and compares the result with saved. A mismatch is
// reported in the Result, not as an error; errors mean the trail could not be played.
func Verify(ctx context.Context, e *engine.Engine, cat *catalog.Catalog, saved engine.State) (Result, error) {
	logger := slog.Default().With("component", "replay")
	want, err := Digest(saved)
	if err != nil {
		return Result{}, simerr.Wrap(ctx, simerr.SystemFailure, "replay.digest", err)
	}
	res := Result{Status: StatusMatch, OriginalHash: want}
	events := saved.Ledger.Events()

	s, err := e.NewGame(saved.FinalTurn)
	if err != nil {
		return Result{}, err
	}
	for _, step := range saved.Trail {
		if s, err = replayStep(ctx, e, cat, s, step); err != nil {
			return Result{}, err
		}
		res.Steps++
		if res.DivergenceTurn == 0 {
			n := s.Ledger.Len()
			if n > len(events) || (n > 0 && events[n-1].Hash != s.Ledger.Head()) {
				res.DivergenceTurn = step.Turn
				res.DivergenceInfo = fmt.Sprintf("integrity ledger differs after turn %d", step.Turn)
			}
		}
	}

	if res.ReplayHash, err = Digest(s); err != nil {
		return Result{}, simerr.Wrap(ctx, simerr.SystemFailure, "replay.digest", err)
	}
	if res.ReplayHash != res.OriginalHash {
		res.Status = StatusDiverged
		if res.DivergenceTurn == 0 {
			res.DivergenceTurn = s.Turn
			res.DivergenceInfo = "final state differs from replay"
		}
	} else {
		res.DivergenceTurn, res.DivergenceInfo = 0, ""
	}
	logger.InfoContext(ctx, "replay verified",
		"session", saved.SessionID,
		"status", res.Status,
		"steps", res.Steps,
		"divergence_turn", res.DivergenceTurn,
	)
	return res, nil
}
