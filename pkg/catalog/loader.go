package catalog

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/Guivernoir/CISO-sim/pkg/consequence"
	"github.com/Guivernoir/CISO-sim/pkg/simerr"
	"github.com/Guivernoir/CISO-sim/pkg/version"
)

//go:embed schema/catalog.schema.json
var catalogSchema string

const catalogSchemaURL = "https://cisosim.schemas.local/catalog/catalog.schema.json"

// File is the on-disk shape of a catalog file. A catalog may be split across files.
type File struct {
	CatalogVersion string     `yaml:"catalog_version"`
	Engine         string     `yaml:"engine,omitempty"`
	Decisions      []Decision `yaml:"decisions"`
}

// Loader reads YAML catalog files and validates them against the catalog schema.
type Loader struct {
	schema *jsonschema.Schema
}

// NewLoader compiles the embedded catalog schema.
func NewLoader() (*Loader, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(catalogSchemaURL, strings.NewReader(catalogSchema)); err != nil {
		return nil, fmt.Errorf("catalog schema load failed: %w", err)
	}
	schema, err := c.Compile(catalogSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("catalog schema compile failed: %w", err)
	}
	return &Loader{schema: schema}, nil
}

// Parse decodes and validates one catalog file.
func (l *Loader) Parse(data []byte) (*File, error) {
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("catalog yaml: %w", err)
	}
	// Round-trip through JSON so the validator sees JSON types.
	raw, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("catalog yaml is not representable as JSON: %w", err)
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("catalog json: %w", err)
	}
	if err := l.schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("catalog schema validation failed: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("catalog decode: %w", err)
	}
	if err := version.SupportsEngine(f.Engine); err != nil {
		return nil, fmt.Errorf("catalog %s: %w", f.CatalogVersion, err)
	}
	for i := range f.Decisions {
		normalize(&f.Decisions[i])
	}
	return &f, nil
}

// LoadFS reads every *.yaml file under dir in fsys, in name order, and builds a catalog.
// Every failure is reported as a configuration error; the detail goes to the log.
func (l *Loader) LoadFS(ctx context.Context, fsys fs.FS, dir string) (*Catalog, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, simerr.Wrap(ctx, simerr.ConfigurationError, "catalog.read_dir", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && (strings.HasSuffix(e.Name(), ".yaml") || strings.HasSuffix(e.Name(), ".yml")) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var (
		decisions []Decision
		versions  []string
	)
	for _, name := range names {
		data, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return nil, simerr.Wrap(ctx, simerr.ConfigurationError, "catalog.read_file", err)
		}
		f, err := l.Parse(data)
		if err != nil {
			return nil, simerr.Wrap(ctx, simerr.ConfigurationError, "catalog.parse", fmt.Errorf("%s: %w", name, err))
		}
		decisions = append(decisions, f.Decisions...)
		versions = append(versions, f.CatalogVersion)
	}

	c, err := New(strings.Join(versions, "+"), decisions...)
	if err != nil {
		return nil, simerr.Wrap(ctx, simerr.ConfigurationError, "catalog.build", err)
	}
	return c, nil
}

// LoadDir loads a catalog from a directory on disk.
func (l *Loader) LoadDir(ctx context.Context, dir string) (*Catalog, error) {
	return l.LoadFS(ctx, os.DirFS(dir), ".")
}

// normalize rewrites player-visible text to NFC so identical strings hash identically.
func normalize(d *Decision) {
	d.Title = norm.NFC.String(d.Title)
	d.Context = norm.NFC.String(d.Context)
	choices := make([]Choice, len(d.Choices))
	for i, c := range d.Choices {
		c.Label = norm.NFC.String(c.Label)
		c.Description = norm.NFC.String(c.Description)
		c.Preview.PoliticalNote = norm.NFC.String(c.Preview.PoliticalNote)
		c.Preview.TeamImpact = norm.NFC.String(c.Preview.TeamImpact)
		c.Impact.Integrity = withDefaultMagnitude(c.Impact.Integrity)
		delayed := make([]DelayedEffect, len(c.Impact.Delayed))
		for j, de := range c.Impact.Delayed {
			if de.Integrity != nil && de.Integrity.Magnitude == 0 {
				ie := *de.Integrity
				ie.Magnitude = 1
				de.Integrity = &ie
			}
			delayed[j] = de
		}
		if c.Impact.Delayed != nil {
			c.Impact.Delayed = delayed
		}
		choices[i] = c
	}
	d.Choices = choices
}

// An omitted magnitude means the event counts once.
func withDefaultMagnitude(in []consequence.IntegrityEffect) []consequence.IntegrityEffect {
	if in == nil {
		return nil
	}
	out := make([]consequence.IntegrityEffect, len(in))
	for i, e := range in {
		if e.Magnitude == 0 {
			e.Magnitude = 1
		}
		out[i] = e
	}
	return out
}
