// Package fit estimates model parameters from observed data by weighted
// nonlinear least squares over one or more independently dosed groups.
package fit

import (
	"context"
	"fmt"
	"math"

	"github.com/rcliao/pksim/internal/model"
)

// AutoBounds returns the default search interval [x0/10, 10*x0] for a
// starting value. ok is false for x0 == 0, which has no natural scale.
func AutoBounds(x0 float64) (lo, hi float64, ok bool) {
	if x0 == 0 || math.IsNaN(x0) || math.IsInf(x0, 0) {
		return 0, 0, false
	}
	lo, hi = x0/10, x0*10
	if lo > hi {
		lo, hi = hi, lo
	}
	return lo, hi, true
}

// Bounds builds the lower and upper vectors for the named parameters.
// Missing bounds are unbounded, or filled by AutoBounds when auto is set.
func Bounds(names []string, x0 []float64, given map[string][2]*float64, auto bool) (lower, upper []float64, err error) {
	lower = make([]float64, len(names))
	upper = make([]float64, len(names))
	for i, name := range names {
		lower[i], upper[i] = math.Inf(-1), math.Inf(1)
		b := given[name]
		if auto {
			if lo, hi, ok := AutoBounds(x0[i]); ok {
				if b[0] == nil {
					lower[i] = lo
				}
				if b[1] == nil {
					upper[i] = hi
				}
			}
		}
		if b[0] != nil {
			lower[i] = *b[0]
		}
		if b[1] != nil {
			upper[i] = *b[1]
		}
		if math.IsNaN(lower[i]) || math.IsNaN(upper[i]) {
			return nil, nil, fmt.Errorf("%w: bounds of %q are not numbers", model.ErrInvalidInput, name)
		}
		if lower[i] > upper[i] {
			return nil, nil, fmt.Errorf("%w: lower bound %g of %q exceeds upper bound %g",
				model.ErrInvalidInput, lower[i], name, upper[i])
		}
	}
	return lower, upper, nil
}

// Outcome is a finished fit: the optimizer result plus uncertainty computed
// from unweighted residuals.
type Outcome struct {
	*Result
	Weighting  string
	Confidence float64
	Stats      Uncertainty
}

// Solve runs the optimizer on p from x0 within [lower, upper]. The problem
// is initialized here. A context deadline stops the iteration with a
// non-converged outcome; the post-fit statistics are still computed.
func (p *Problem) Solve(ctx context.Context, x0, lower, upper []float64, mode string, level float64, s Settings) (*Outcome, error) {
	p.Init()
	m := p.Len()
	f := func(ctx context.Context, theta, dst []float64) error {
		return p.Residuals(ctx, theta, mode, dst)
	}
	res, err := Minimize(ctx, f, m, x0, lower, upper, s)
	if err != nil {
		return nil, err
	}

	out := &Outcome{Result: res, Weighting: mode, Confidence: level}
	if p.slots == 0 {
		out.Stats = Estimate(res.X, res.Residuals, nil, level)
		out.Stats.SSR, out.Stats.DOF = 0, -len(res.X)
		return out, nil
	}
	unweighted := res.Residuals
	if mode != model.WeightNone {
		unweighted = make([]float64, m)
		if err := p.Residuals(context.WithoutCancel(ctx), res.X, model.WeightNone, unweighted); err != nil {
			return nil, &OptimizationError{Op: "post-fit residual", Err: err}
		}
	}
	out.Stats = Estimate(res.X, unweighted, res.Jacobian, level)
	return out, nil
}

// Report converts the outcome into the response type for the named
// parameters.
func (o *Outcome) Report(runID string, names []string) *model.FitResult {
	r := &model.FitResult{
		RunID:      runID,
		Status:     "ok",
		Cost:       model.Opt(o.Cost),
		SSRTotal:   model.Opt(o.Stats.SSR),
		Residuals:  len(o.Residuals),
		DOF:        o.Stats.DOF,
		Confidence: o.Confidence,
		Weighting:  o.Weighting,
		NFev:       o.NFev,
		Iterations: o.Iterations,
		Message:    o.Message,
		StatusCode: o.Status,
		Converged:  o.Converged(),
	}
	for i, name := range names {
		r.Params = append(r.Params, model.FitParam{
			Name:    name,
			Value:   model.Opt(o.X[i]),
			StdErr:  model.Opt(o.Stats.StdErr[i]),
			CILower: model.Opt(o.Stats.Lower[i]),
			CIUpper: model.Opt(o.Stats.Upper[i]),
		})
	}
	return r
}
