package main

import (
	"fmt"
	"io"
	"os"

	"github.com/Guivernoir/CISO-sim/pkg/version"
)

func main() {
	os.Exit(Run(os.Args, os.Stdin, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing.
//
// Exit codes: 0 success, 1 check failed, 2 usage or runtime error.
func Run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		return runPlayCmd(nil, stdin, stdout, stderr)
	}

	switch args[1] {
	case "play":
		return runPlayCmd(args[2:], stdin, stdout, stderr)
	case "verify":
		return runVerifyCmd(args[2:], stdout, stderr)
	case "catalog":
		return runCatalogCmd(args[2:], stdout, stderr)
	case "version", "--version":
		_, _ = fmt.Fprintf(stdout, "cisosim %s (save schema %s)\n", version.Engine, version.SaveSchema)
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "USAGE:")
	_, _ = fmt.Fprintln(w, "  cisosim <command> [flags]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "COMMANDS:")
	_, _ = fmt.Fprintln(w, "  play      Play a game, resuming --slot if it exists (default)")
	_, _ = fmt.Fprintln(w, "  verify    Decrypt a save and check its ledger and decision trail (--slot|--file, --json)")
	_, _ = fmt.Fprintln(w, "  catalog   Validate a decision catalog directory (--dir)")
	_, _ = fmt.Fprintln(w, "  version   Print engine and save format versions")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "The save passphrase is read from $CISOSIM_SECRET, or prompted for on stdin.")
}
