package model

import "math"

// Opt returns a pointer to v, or nil when v is NaN or infinite.
func Opt(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// OptSlice converts every element with Opt.
func OptSlice(vs []float64) []*float64 {
	out := make([]*float64, len(vs))
	for i, v := range vs {
		out[i] = Opt(v)
	}
	return out
}

// Value dereferences p, returning NaN for nil.
func Value(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

// Float returns a pointer to v without any conversion.
func Float(v float64) *float64 {
	return &v
}
