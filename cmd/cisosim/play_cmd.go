package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/Guivernoir/CISO-sim/pkg/engine"
	"github.com/Guivernoir/CISO-sim/pkg/session"
	"github.com/Guivernoir/CISO-sim/pkg/simerr"
)

// runPlayCmd implements `cisosim play`: a line-oriented game loop that saves after
// every turn.
func runPlayCmd(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("play", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		slot     string
		fresh    bool
		autosave bool
	)
	cmd.StringVar(&slot, "slot", "autosave", "Save slot to resume from and write to")
	cmd.BoolVar(&fresh, "new", false, "Ignore any existing save in the slot")
	cmd.BoolVar(&autosave, "autosave", true, "Save after every turn")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	ctx := context.Background()
	a, err := bootstrap(ctx, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer a.close(ctx)

	in := bufio.NewScanner(stdin)
	secret, err := readSecret(in, stdout)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer clear(secret)

	sess, err := session.New(a.engine, a.catalog, a.saves, a.store,
		session.WithBackendName(string(a.cfg.Storage.Backend)),
		session.WithLogger(a.logger.With("component", "session")),
		session.WithTelemetry(a.telemetry),
	)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if !fresh {
		outcome, err := sess.Resume(ctx, slot, secret)
		switch {
		case outcome == session.Discarded:
			_, _ = fmt.Fprintf(stdout, "The save in %q could not be opened (%s). Starting a new game.\n", slot, simerr.KindOf(err).Code())
		case err != nil:
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		case outcome == session.Resumed:
			_, _ = fmt.Fprintf(stdout, "Resumed %q at turn %d.\n", slot, sess.State().Turn)
		}
	}

	save := func() bool {
		if err := sess.Save(ctx, slot, secret); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: save failed: %v\n", err)
			return false
		}
		return true
	}

	for {
		v := sess.View(ctx)
		renderView(stdout, v)
		if v.Ending != nil {
			if autosave && !save() {
				return 2
			}
			return 0
		}

		_, _ = fmt.Fprint(stdout, "> ")
		if !in.Scan() {
			_, _ = fmt.Fprintln(stdout)
			return 0
		}
		line := strings.TrimSpace(in.Text())
		switch line {
		case "":
			continue
		case "q", "quit":
			if !save() {
				return 2
			}
			_, _ = fmt.Fprintf(stdout, "Saved to %q.\n", slot)
			return 0
		case "save":
			if save() {
				_, _ = fmt.Fprintf(stdout, "Saved to %q.\n", slot)
			}
			continue
		}

		report, err := sess.Choose(ctx, resolveChoice(line, v.Decision))
		if errors.Is(err, simerr.ErrInvalidAction) {
			_, _ = fmt.Fprintln(stdout, "That is not one of the options.")
			continue
		}
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		renderReport(stdout, report)
		if autosave && !save() {
			return 2
		}
	}
}

// resolveChoice accepts a 1-based option number or a choice id.
func resolveChoice(input string, d *engine.DecisionView) string {
	if d == nil {
		return input
	}
	if n, err := strconv.Atoi(input); err == nil && n >= 1 && n <= len(d.Choices) {
		return d.Choices[n-1].ID
	}
	return input
}

func readSecret(in *bufio.Scanner, prompt io.Writer) ([]byte, error) {
	if s := os.Getenv("CISOSIM_SECRET"); s != "" {
		return []byte(s), nil
	}
	_, _ = fmt.Fprint(prompt, "Save passphrase: ")
	if !in.Scan() {
		return nil, fmt.Errorf("no passphrase given")
	}
	s := strings.TrimSpace(in.Text())
	if s == "" {
		return nil, fmt.Errorf("empty passphrase")
	}
	return []byte(s), nil
}
