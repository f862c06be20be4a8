package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/Guivernoir/CISO-sim/pkg/ending"
	"github.com/Guivernoir/CISO-sim/pkg/integrity"
	"github.com/Guivernoir/CISO-sim/pkg/replay"
	"github.com/Guivernoir/CISO-sim/pkg/simerr"
)

type verifyReport struct {
	Verified       bool                        `json:"verified"`
	Reason         string                      `json:"reason,omitempty"`
	SessionID      string                      `json:"session_id,omitempty"`
	Turn           int                         `json:"turn,omitempty"`
	FinalTurn      int                         `json:"final_turn,omitempty"`
	IntegrityScore uint8                       `json:"integrity_score,omitempty"`
	AuditQuality   integrity.AuditTrailQuality `json:"audit_quality,omitempty"`
	LedgerEvents   int                         `json:"ledger_events,omitempty"`
	LedgerHead     string                      `json:"ledger_head,omitempty"`
	Ending         *ending.Ending              `json:"ending,omitempty"`
	Replay         *replay.Result              `json:"replay,omitempty"`
}

// runVerifyCmd implements `cisosim verify`.
//
// Exit codes:
//
//	0 = save opened and its decision trail reproduces it
//	1 = save is corrupt or diverges from its trail
//	2 = runtime error
func runVerifyCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("verify", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		slot       string
		file       string
		jsonOutput bool
	)
	cmd.StringVar(&slot, "slot", "", "Save slot in the configured store")
	cmd.StringVar(&file, "file", "", "Path to a save blob")
	cmd.BoolVar(&jsonOutput, "json", false, "Output results as JSON to stdout")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if (slot == "") == (file == "") {
		_, _ = fmt.Fprintln(stderr, "Error: exactly one of --slot or --file is required")
		return 2
	}
	secret := []byte(os.Getenv("CISOSIM_SECRET"))
	if len(secret) == 0 {
		_, _ = fmt.Fprintln(stderr, "Error: CISOSIM_SECRET must be set")
		return 2
	}
	defer clear(secret)

	ctx := context.Background()
	a, err := bootstrap(ctx, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer a.close(ctx)

	var blob []byte
	if file != "" {
		blob, err = os.ReadFile(file)
	} else {
		blob, err = a.store.Get(ctx, slot)
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: read save: %v\n", err)
		return 2
	}

	report := verifyReport{}
	st, err := a.saves.Load(ctx, blob, secret)
	if errors.Is(err, simerr.ErrStateCorruption) {
		report.Reason = err.Error()
		return emitVerify(stdout, report, jsonOutput)
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	report.SessionID = st.SessionID
	report.Turn = st.Turn
	report.FinalTurn = st.FinalTurn
	report.IntegrityScore = a.engine.Score(st)
	report.AuditQuality = a.engine.AuditQuality(st)
	report.LedgerEvents = st.Ledger.Len()
	report.LedgerHead = st.Ledger.Head()
	report.Ending = st.Ending

	res, err := replay.Verify(ctx, a.engine, a.catalog, st)
	if err != nil {
		report.Reason = fmt.Sprintf("decision trail cannot be replayed against catalog %s (%s)", a.catalog.Version(), simerr.KindOf(err).Code())
		return emitVerify(stdout, report, jsonOutput)
	}
	report.Replay = &res
	report.Verified = res.Status == replay.StatusMatch
	if !report.Verified {
		report.Reason = res.DivergenceInfo
	}
	return emitVerify(stdout, report, jsonOutput)
}

func emitVerify(w io.Writer, r verifyReport, asJSON bool) int {
	code := 0
	if !r.Verified {
		code = 1
	}
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r); err != nil {
			return 2
		}
		return code
	}
	if !r.Verified {
		_, _ = fmt.Fprintf(w, "FAIL: %s\n", r.Reason)
		return code
	}
	_, _ = fmt.Fprintf(w, "OK: session %s, turn %d/%d, integrity %d (%s), %d ledger events, head %s\n",
		r.SessionID, r.Turn, r.FinalTurn, r.IntegrityScore, r.AuditQuality, r.LedgerEvents, r.LedgerHead)
	if r.Ending != nil {
		_, _ = fmt.Fprintf(w, "Ending: %s (x%.1f)\n", r.Ending.Kind, r.Ending.PenaltyMultiplier)
	}
	return code
}
