package lstm

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Params is the fitted min-max pair of one training run.
type Params struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Fit computes min and max over the whole series.
func Fit(series []float64) (Params, error) {
	if len(series) == 0 {
		return Params{}, ErrNoData
	}
	p := Params{Min: floats.Min(series), Max: floats.Max(series)}
	if p.Min == p.Max {
		return Params{}, fmt.Errorf("%w: every value is %g", ErrDegenerateSeries, p.Min)
	}
	return p, nil
}

// Normalize maps v into [0,1] when v lies inside the fitted range.
func (p Params) Normalize(v float64) float64 {
	return (v - p.Min) / (p.Max - p.Min)
}

// Denormalize is the inverse of Normalize. It does not clamp.
func (p Params) Denormalize(v float64) float64 {
	return v*(p.Max-p.Min) + p.Min
}

// NormalizeSeries returns a new slice with every value normalized.
func (p Params) NormalizeSeries(series []float64) []float64 {
	out := make([]float64, len(series))
	for i, v := range series {
		out[i] = p.Normalize(v)
	}
	return out
}
