// Package version carries the engine and save-format versions and their compatibility rules.
package version

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

const (
	// Engine is the rules-engine version catalogs declare compatibility with.
	Engine = "1.2.0"
	// SaveSchema is the version of the plaintext save envelope.
	SaveSchema = "1.0.0"
	// SaveSchemaConstraint lists the envelope versions this build can read.
	SaveSchemaConstraint = "~1"
)

// Satisfies reports an error unless ver satisfies constraint.
func Satisfies(ver, constraint string) error {
	v, err := semver.NewVersion(ver)
	if err != nil {
		return fmt.Errorf("invalid version %q: %w", ver, err)
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return fmt.Errorf("invalid constraint %q: %w", constraint, err)
	}
	if !c.Check(v) {
		return fmt.Errorf("version %s does not satisfy %s", v, constraint)
	}
	return nil
}

// SupportsEngine checks a catalog's engine constraint against this build.
func SupportsEngine(constraint string) error {
	if constraint == "" {
		return nil
	}
	return Satisfies(Engine, constraint)
}

// ReadableSave checks whether a save envelope version can be decoded by this build.
func ReadableSave(ver string) error {
	return Satisfies(ver, SaveSchemaConstraint)
}
