package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Guivernoir/CISO-sim/pkg/engine"
	"github.com/Guivernoir/CISO-sim/pkg/persistence"
)

// Tuning is everything a profile can change about play and saving.
type Tuning struct {
	Name   string                `yaml:"name,omitempty"`
	Engine engine.Config         `yaml:"engine"`
	KDF    persistence.KDFParams `yaml:"kdf"`
}

// DefaultTuning is the shipped balance.
func DefaultTuning() Tuning {
	return Tuning{
		Name:   "default",
		Engine: engine.DefaultConfig(),
		KDF:    persistence.DefaultKDFParams(),
	}
}

// LoadTuning overlays the profile at path on DefaultTuning. Keys a profile does not
// mention keep their default; a list such as the risk rules is replaced as a whole.
// Unknown keys are rejected.
func LoadTuning(path string) (Tuning, error) {
	t := DefaultTuning()
	if path == "" {
		return t, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Tuning{}, fmt.Errorf("load tuning %q: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil && !errors.Is(err, io.EOF) {
		return Tuning{}, fmt.Errorf("parse tuning %q: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return Tuning{}, fmt.Errorf("tuning %q: %w", path, err)
	}
	return t, nil
}

// Validate compiles the engine tuning and checks the KDF work factor.
func (t Tuning) Validate() error {
	if _, err := engine.New(t.Engine); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if err := t.KDF.Validate(); err != nil {
		return fmt.Errorf("kdf: %w", err)
	}
	return nil
}
