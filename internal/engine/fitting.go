package engine

import (
	"context"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/rcliao/pksim/internal/fit"
	"github.com/rcliao/pksim/internal/model"
)

// Fit estimates req.FitParams from the observed data of every fitting
// group. Running out of evaluations or hitting the context deadline returns
// a result with Converged false, not an error.
func (e *Engine) Fit(ctx context.Context, req model.FitRequest) (*model.FitResult, error) {
	if strings.TrimSpace(req.Equations) == "" {
		return nil, invalid("equations", "model text is empty")
	}
	m, err := e.model(req.Equations)
	if err != nil {
		return nil, err
	}
	sys, prog := m.System, m.Program
	if len(sys.Compartments) == 0 {
		return nil, invalid("equations", "no compartments defined; expected lines like dAdt = ...")
	}
	if len(req.FitParams) == 0 {
		return nil, invalid("fit_params", "no parameters to fit")
	}
	if len(req.FittingGroups) == 0 {
		return nil, invalid("fitting_groups", "at least one fitting group is required")
	}

	mode, err := fit.ParseWeighting(req.Weighting)
	if err != nil {
		return nil, &ValidationError{Field: "weighting", Err: err}
	}
	level := req.Confidence
	if level == 0 {
		level = e.opts.Confidence
	}
	if !(level > 0 && level < 1) {
		return nil, invalid("confidence", "level %g outside (0, 1)", level)
	}

	params, err := prog.ParamVector(req.Parameters)
	if err != nil {
		return nil, &ValidationError{Field: "parameters", Err: err}
	}
	y0, err := prog.StateVector(req.Initials)
	if err != nil {
		return nil, &ValidationError{Field: "initials", Err: err}
	}

	free := make([]int, len(req.FitParams))
	x0 := make([]float64, len(req.FitParams))
	seen := make(map[string]bool, len(req.FitParams))
	for k, name := range req.FitParams {
		i, ok := prog.ParamIndex(name)
		if !ok {
			return nil, invalid("fit_params", "%q is not a parameter of the model", name)
		}
		if seen[name] {
			return nil, invalid("fit_params", "%q is listed twice", name)
		}
		seen[name] = true
		free[k], x0[k] = i, params[i]
	}
	for name := range req.Bounds {
		if !seen[name] {
			return nil, invalid("bounds", "%q is not a fitted parameter", name)
		}
	}
	lower, upper, err := fit.Bounds(req.FitParams, x0, req.Bounds, req.AutoBounds)
	if err != nil {
		return nil, &ValidationError{Field: "bounds", Err: err}
	}

	p := &fit.Problem{
		Program:  prog,
		Y0:       y0,
		Params:   params,
		Free:     free,
		Solver:   e.opts.Solver,
		Parallel: e.opts.Parallel,
		Workers:  e.opts.Workers,
	}
	for gi, fg := range req.FittingGroups {
		if fg.Name == "" {
			fg.Name = "group " + humanize.Ordinal(gi+1)
		}
		g, skipped, err := fit.NewGroup(prog, fg)
		if err != nil {
			return nil, &ValidationError{Field: "fitting_groups", Err: err}
		}
		for _, s := range skipped {
			e.log.Warn("mapping skipped", "group", s.Group, "column", s.Column, "target", s.Target, "reason", s.Reason)
		}
		p.Groups = append(p.Groups, g)
	}

	runID := e.newID()
	started := time.Now()
	e.log.Info("fit started", "run", runID, "params", strings.Join(req.FitParams, ","),
		"groups", len(p.Groups), "weighting", mode)

	out, err := p.Solve(ctx, x0, lower, upper, mode, level, e.opts.Fit)
	if err != nil {
		e.log.Error("fit failed", "run", runID, "err", err)
		return nil, err
	}
	if p.Observations() == 0 {
		e.log.Warn("no observations mapped to the model", "run", runID)
	}
	if n := p.Failures(); n > 0 {
		e.log.Warn("group simulations failed during fit", "run", runID, "count", n)
	}
	res := out.Report(runID, req.FitParams)
	e.log.Info("fit finished", "run", runID, "status", out.Status, "converged", out.Converged(),
		"nfev", out.NFev, "cost", model.Value(res.Cost), "elapsed", time.Since(started))
	return res, nil
}
