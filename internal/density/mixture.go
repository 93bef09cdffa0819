// Package density describes predictive densities in the wire format
// accepted by the game's scoring service, and evaluates them.
//
// Only the "mixture of builtin norm" shape is produced by the trackers:
//
//	{ "type": "mixture",
//	  "components": [
//	    { "density": { "type": "builtin", "name": "norm",
//	                   "params": { "loc": 0.1, "scale": 0.02 } },
//	      "weight": 0.95 }, ... ] }
package density

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	TypeMixture = "mixture"
	TypeBuiltin = "builtin"
	NameNorm    = "norm"

	// WeightTolerance bounds how far the component weights may sum from 1.
	WeightTolerance = 1e-9
)

// ErrInvalidSpec is wrapped by every validation failure. It indicates a
// malformed density was constructed and must not be retried.
var ErrInvalidSpec = errors.New("invalid density specification")

// NormParams are the parameters of a builtin normal density.
type NormParams struct {
	Loc   float64 `json:"loc"`
	Scale float64 `json:"scale"`
}

// Builtin names a density from the scoring service's builtin family.
type Builtin struct {
	Type   string     `json:"type"`
	Name   string     `json:"name"`
	Params NormParams `json:"params"`
}

// Component is one weighted member of a mixture.
type Component struct {
	Density Builtin `json:"density"`
	Weight  float64 `json:"weight"`
}

// Mixture is a weighted combination of component densities.
type Mixture struct {
	Type       string      `json:"type"`
	Components []Component `json:"components"`
}

// NewNormalMixture builds a mixture of normal components. All three slices
// must have the same non-zero length.
func NewNormalMixture(locs, scales, weights []float64) (Mixture, error) {
	if len(locs) == 0 || len(locs) != len(scales) || len(locs) != len(weights) {
		return Mixture{}, fmt.Errorf("%w: mismatched component counts (locs=%d scales=%d weights=%d)",
			ErrInvalidSpec, len(locs), len(scales), len(weights))
	}
	m := Mixture{Type: TypeMixture, Components: make([]Component, len(locs))}
	for i := range locs {
		m.Components[i] = Component{
			Density: Builtin{
				Type:   TypeBuiltin,
				Name:   NameNorm,
				Params: NormParams{Loc: locs[i], Scale: scales[i]},
			},
			Weight: weights[i],
		}
	}
	return m, nil
}

// Validate checks the specification shape and that the density can be
// evaluated at a representative point.
func (m Mixture) Validate() error {
	if m.Type != TypeMixture {
		return fmt.Errorf("%w: type %q, want %q", ErrInvalidSpec, m.Type, TypeMixture)
	}
	if len(m.Components) == 0 {
		return fmt.Errorf("%w: mixture has no components", ErrInvalidSpec)
	}

	var total float64
	for i, c := range m.Components {
		d := c.Density
		if d.Type != TypeBuiltin || d.Name != NameNorm {
			return fmt.Errorf("%w: component %d is %s/%s, want %s/%s",
				ErrInvalidSpec, i, d.Type, d.Name, TypeBuiltin, NameNorm)
		}
		if math.IsNaN(d.Params.Loc) || math.IsInf(d.Params.Loc, 0) {
			return fmt.Errorf("%w: component %d loc %v is not finite", ErrInvalidSpec, i, d.Params.Loc)
		}
		if !(d.Params.Scale > 0) || math.IsInf(d.Params.Scale, 0) {
			return fmt.Errorf("%w: component %d scale %v must be positive and finite", ErrInvalidSpec, i, d.Params.Scale)
		}
		if !(c.Weight >= 0) {
			return fmt.Errorf("%w: component %d weight %v is negative", ErrInvalidSpec, i, c.Weight)
		}
		total += c.Weight
	}
	if math.Abs(total-1) > WeightTolerance {
		return fmt.Errorf("%w: weights sum to %v", ErrInvalidSpec, total)
	}

	if p := m.PDF(0); math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
		return fmt.Errorf("%w: density at 0 evaluates to %v", ErrInvalidSpec, p)
	}
	return nil
}

// PDF evaluates the mixture density at x.
func (m Mixture) PDF(x float64) float64 {
	var p float64
	for _, c := range m.Components {
		p += c.Weight * c.normal().Prob(x)
	}
	return p
}

// LogPDF evaluates the log density at x without underflowing when x sits
// far out in the tails of every component.
func (m Mixture) LogPDF(x float64) float64 {
	terms := make([]float64, 0, len(m.Components))
	for _, c := range m.Components {
		if c.Weight <= 0 {
			continue
		}
		terms = append(terms, math.Log(c.Weight)+c.normal().LogProb(x))
	}
	if len(terms) == 0 {
		return math.Inf(-1)
	}
	return floats.LogSumExp(terms)
}

// Mean returns the weighted mean of the component locations.
func (m Mixture) Mean() float64 {
	var mu float64
	for _, c := range m.Components {
		mu += c.Weight * c.Density.Params.Loc
	}
	return mu
}

// Quantile returns the value below which a fraction q of the mass of the
// named component lies. It is used to draw predictive bands.
func (m Mixture) Quantile(component int, q float64) float64 {
	return m.Components[component].normal().Quantile(q)
}

// Weights returns the component weights in order.
func (m Mixture) Weights() []float64 {
	w := make([]float64, len(m.Components))
	for i, c := range m.Components {
		w[i] = c.Weight
	}
	return w
}

// MarshalIndent renders the mixture in the wire format.
func (m Mixture) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// Parse decodes and validates a mixture from its wire format.
func Parse(data []byte) (Mixture, error) {
	var m Mixture
	if err := json.Unmarshal(data, &m); err != nil {
		return Mixture{}, fmt.Errorf("failed to parse density JSON: %w", err)
	}
	if err := m.Validate(); err != nil {
		return Mixture{}, err
	}
	return m, nil
}

func (c Component) normal() distuv.Normal {
	return distuv.Normal{Mu: c.Density.Params.Loc, Sigma: c.Density.Params.Scale}
}
