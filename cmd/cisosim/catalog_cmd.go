package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/Guivernoir/CISO-sim/pkg/catalog"
)

// runCatalogCmd implements `cisosim catalog`: it validates a catalog directory, or
// the embedded scenario when --dir is omitted, and prints a summary.
func runCatalogCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("catalog", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var dir string
	cmd.StringVar(&dir, "dir", "", "Catalog directory of *.yaml files (default: embedded scenario)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	ctx := context.Background()
	var (
		cat *catalog.Catalog
		err error
	)
	if dir == "" {
		cat, err = catalog.Default(ctx)
	} else {
		var loader *catalog.Loader
		if loader, err = catalog.NewLoader(); err == nil {
			cat, err = loader.LoadDir(ctx, dir)
		}
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "FAIL: %v\n", err)
		return 1
	}

	_, _ = fmt.Fprintf(stdout, "Catalog %s: %d turns\n", cat.Version(), cat.FinalTurn())
	for _, d := range cat.Decisions() {
		_, _ = fmt.Fprintf(stdout, "  %2d  %-22s %-20s %d choices\n", d.Turn, d.ID, d.Category, len(d.Choices))
	}
	return 0
}
