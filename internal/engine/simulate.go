package engine

import (
	"context"
	"errors"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/rcliao/pksim/internal/dosing"
	"github.com/rcliao/pksim/internal/model"
	"github.com/rcliao/pksim/internal/pk"
	"github.com/rcliao/pksim/internal/solver"
)

// Simulate integrates the model under the requested doses and reports the
// selected compartments and derived quantities on an evenly spaced grid,
// with PK metrics per reported compartment. An integration failure is not
// an error: the response carries the computed prefix and a Failure.
func (e *Engine) Simulate(ctx context.Context, req model.SimulateRequest) (*model.SimulateResponse, error) {
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

	start, end, steps := e.opts.TStart, e.opts.TEnd, e.opts.Steps
	if req.TStart != nil {
		start = *req.TStart
	}
	if req.TEnd != nil {
		end = *req.TEnd
	}
	if req.TSteps > 0 {
		steps = req.TSteps
	}
	if math.IsNaN(start) || math.IsInf(start, 0) || math.IsNaN(end) || math.IsInf(end, 0) {
		return nil, invalid("t_end", "time span must be finite")
	}
	if end < start {
		return nil, invalid("t_end", "end time %g before start time %g", end, start)
	}

	params, err := prog.ParamVector(req.Parameters)
	if err != nil {
		return nil, &ValidationError{Field: "parameters", Err: err}
	}
	y0, err := prog.StateVector(req.Initials)
	if err != nil {
		return nil, &ValidationError{Field: "initials", Err: err}
	}
	events, err := dosing.Expand(req.Doses, sys.Compartments, start, end)
	if err != nil {
		return nil, &ValidationError{Field: "doses", Err: err}
	}

	times := linspace(start, end, steps)
	tr, runErr := solver.Run(ctx, solver.Problem{
		RHS:    func(t float64, y, dy []float64) { prog.Derivatives(t, y, params, dy) },
		Y0:     y0,
		Events: events,
		Start:  start,
		End:    end,
	}, times, e.opts.Solver)

	var failure *model.Failure
	if runErr != nil {
		var ie *solver.IntegrationError
		if !errors.As(runErr, &ie) {
			return nil, runErr
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		e.log.Warn("integration failed", "segment", ie.Segment, "time", ie.Time, "err", ie.Err)
		failure = &model.Failure{Message: ie.Error(), Time: model.Opt(ie.Time)}
	}

	comps, derived := e.selection(m, req.Compartments)
	resp := &model.SimulateResponse{
		Time:    tr.Times,
		Series:  make(map[string][]*float64, len(comps)),
		PK:      make(map[string]model.PKSummary, len(comps)),
		Failure: failure,
	}
	for _, name := range comps {
		i, _ := prog.StateIndex(name)
		series := tr.Series(i)
		resp.Series[name] = model.OptSlice(series)
		metrics := pk.Analyze(tr.Times, series, dosing.Administered(events, i, start, end))
		resp.PK[name] = metrics.Summary()
	}

	for _, name := range derived {
		f, _ := prog.Derived(name)
		values := make([]float64, len(tr.Times))
		ok := true
		for k, at := range tr.Times {
			values[k] = f(at, tr.States[k], params)
			if math.IsNaN(values[k]) || math.IsInf(values[k], 0) {
				e.log.Warn("derived quantity omitted", "name", name, "time", at, "value", values[k])
				ok = false
				break
			}
		}
		if !ok {
			resp.Omitted = append(resp.Omitted, name)
			continue
		}
		if resp.Derived == nil {
			resp.Derived = make(map[string][]*float64, len(derived))
		}
		resp.Derived[name] = model.OptSlice(values)
	}
	return resp, nil
}

// selection splits the requested names into compartments and derived
// quantities. Unknown names are ignored. With no compartment selected every
// compartment is reported; with nothing selected every derived quantity is
// reported as well.
func (e *Engine) selection(m *Compiled, names []string) (comps, derived []string) {
	sys := m.System
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		if sys.HasCompartment(name) {
			comps = append(comps, name)
		} else if _, ok := sys.DerivedExpr(name); ok {
			derived = append(derived, name)
		}
	}
	if len(comps) == 0 {
		comps = sys.Compartments
	}
	if len(names) == 0 {
		derived = sys.DerivedNames()
	}
	return comps, derived
}

// linspace returns n evenly spaced points from start to end inclusive.
func linspace(start, end float64, n int) []float64 {
	if n <= 1 {
		return []float64{start}
	}
	return floats.Span(make([]float64, n), start, end)
}
