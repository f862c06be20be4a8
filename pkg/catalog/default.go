package catalog

import (
	"context"
	"embed"
)

//go:embed scenario/*.yaml
var scenarioFS embed.FS

// Default loads the built-in eight-turn scenario.
func Default(ctx context.Context) (*Catalog, error) {
	l, err := NewLoader()
	if err != nil {
		return nil, err
	}
	return l.LoadFS(ctx, scenarioFS, "scenario")
}
