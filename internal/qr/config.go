// Package qr finds the SAT verification QR code inside a PDF by rendering
// its first and last pages and decoding the images.
package qr

import "fmt"

// Attempt is one rasterize-and-decode configuration.
type Attempt struct {
	Scale  float64 `yaml:"scale" mapstructure:"scale"`
	Invert bool    `yaml:"invert" mapstructure:"invert"`
}

func (a Attempt) String() string {
	return fmt.Sprintf("scale=%.1f invert=%t", a.Scale, a.Invert)
}

// DefaultAttempts is the search order. Scales near 2x decode most SAT
// documents, so they go first; inversion is tried only after the plain
// renders.
func DefaultAttempts() []Attempt {
	return []Attempt{
		{Scale: 2.0},
		{Scale: 2.5},
		{Scale: 3.0},
		{Scale: 1.5},
		{Scale: 2.0, Invert: true},
		{Scale: 2.5, Invert: true},
		{Scale: 4.0},
		{Scale: 1.0},
	}
}
