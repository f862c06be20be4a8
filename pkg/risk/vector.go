// Package risk models the five-category security risk vector and its cascading amplification.
package risk

import "fmt"

// Category is one dimension of the risk vector.
type Category string

const (
	DataExposure  Category = "DataExposure"
	AccessControl Category = "AccessControl"
	Detection     Category = "Detection"
	VendorRisk    Category = "VendorRisk"
	InsiderThreat Category = "InsiderThreat"
)

// Categories lists every category in canonical order.
var Categories = []Category{DataExposure, AccessControl, Detection, VendorRisk, InsiderThreat}

const (
	// MinMagnitude and MaxMagnitude bound every category of a Vector.
	MinMagnitude = 0.0
	MaxMagnitude = 100.0
	// MaxDelta bounds the absolute size of a single delta component.
	MaxDelta = 100.0
)

// ParseCategory validates a category name.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown risk category %q", s)
}

// Vector holds one magnitude per category. For Detection a higher magnitude means
// weaker detection. It is a value type; copies are independent.
type Vector struct {
	DataExposure  float64 `json:"data_exposure" yaml:"data_exposure"`
	AccessControl float64 `json:"access_control" yaml:"access_control"`
	Detection     float64 `json:"detection" yaml:"detection"`
	VendorRisk    float64 `json:"vendor_risk" yaml:"vendor_risk"`
	InsiderThreat float64 `json:"insider_threat" yaml:"insider_threat"`
}

// Delta is a signed change to a Vector. Positive components increase risk.
type Delta = Vector

// Get returns the magnitude of c.
func (v Vector) Get(c Category) float64 {
	switch c {
	case DataExposure:
		return v.DataExposure
	case AccessControl:
		return v.AccessControl
	case Detection:
		return v.Detection
	case VendorRisk:
		return v.VendorRisk
	case InsiderThreat:
		return v.InsiderThreat
	}
	return 0
}

// With returns a copy of v with c set to x.
func (v Vector) With(c Category, x float64) Vector {
	switch c {
	case DataExposure:
		v.DataExposure = x
	case AccessControl:
		v.AccessControl = x
	case Detection:
		v.Detection = x
	case VendorRisk:
		v.VendorRisk = x
	case InsiderThreat:
		v.InsiderThreat = x
	}
	return v
}

// IsZero reports whether every component is zero.
func (v Vector) IsZero() bool {
	return v == Vector{}
}

// Clamp bounds every component to [lo, hi].
func (v Vector) Clamp(lo, hi float64) Vector {
	for _, c := range Categories {
		v = v.With(c, clamp(v.Get(c), lo, hi))
	}
	return v
}

// InRange reports whether every component lies in [lo, hi].
func (v Vector) InRange(lo, hi float64) bool {
	for _, c := range Categories {
		x := v.Get(c)
		if x < lo || x > hi || x != x {
			return false
		}
	}
	return true
}

// Map exposes v keyed by category name, as seen by rule expressions.
func (v Vector) Map() map[string]any {
	m := make(map[string]any, len(Categories))
	for _, c := range Categories {
		m[string(c)] = v.Get(c)
	}
	return m
}

// clamp maps NaN to zero before bounding, so a malformed delta changes nothing.
func clamp(x, lo, hi float64) float64 {
	if x != x {
		x = 0
	}
	return min(max(x, lo), hi)
}
