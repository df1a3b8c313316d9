package fit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/rcliao/pksim/internal/dosing"
	"github.com/rcliao/pksim/internal/eval"
	"github.com/rcliao/pksim/internal/model"
	"github.com/rcliao/pksim/internal/solver"
)

// Penalty fills residual slots that could not be computed.
const Penalty = 1e6

// Target is the model variable an observed column is compared with: a
// compartment (State >= 0) or a derived quantity.
type Target struct {
	Name    string
	State   int
	Derived eval.Func
}

// Column is one mapped observed column. Observed is aligned with the group
// times; NaN marks a missing observation.
type Column struct {
	Name     string
	Target   Target
	Observed []float64
}

// Group is one independently dosed experiment ready for simulation.
type Group struct {
	Name    string
	Events  []dosing.Event
	Start   float64
	End     float64
	Times   []float64
	Columns []Column

	slots  []slot
	offset int
}

type slot struct {
	col, row int
	obs      float64
}

// Skipped describes a mapping that was left out of the residual.
type Skipped struct {
	Group  string
	Column string
	Target string
	Reason string
}

// NewGroup prepares a fitting group for prog. Rows without a time are
// dropped. Mappings to unknown columns or model variables are returned as
// skipped rather than failing the fit. The simulation starts at fg.TStart
// when set, otherwise at the earlier of zero and the first observation.
func NewGroup(prog *eval.Program, fg model.FittingGroup) (*Group, []Skipped, error) {
	name := fg.Name
	timeCol, ok := fg.Observed[model.ObservedTimeColumn]
	if !ok {
		return nil, nil, fmt.Errorf("%w: group %q has no %s column", model.ErrInvalidInput, name, model.ObservedTimeColumn)
	}
	for col, vals := range fg.Observed {
		if len(vals) != len(timeCol) {
			return nil, nil, fmt.Errorf("%w: group %q column %q has %d rows, want %d",
				model.ErrInvalidInput, name, col, len(vals), len(timeCol))
		}
	}

	var rows []int
	g := &Group{Name: name}
	for i, tp := range timeCol {
		if tp == nil || math.IsNaN(*tp) || math.IsInf(*tp, 0) {
			continue
		}
		rows = append(rows, i)
		g.Times = append(g.Times, *tp)
	}
	if len(g.Times) == 0 {
		return nil, nil, fmt.Errorf("%w: group %q has no observation times", model.ErrInvalidInput, name)
	}

	minT, maxT := g.Times[0], g.Times[0]
	for _, at := range g.Times {
		minT, maxT = math.Min(minT, at), math.Max(maxT, at)
	}
	g.Start = math.Min(0, minT)
	if fg.TStart != nil {
		g.Start = *fg.TStart
	}
	g.End = math.Max(maxT, g.Start)

	sys := prog.System()
	events, err := dosing.Expand(fg.Doses, sys.Compartments, g.Start, g.End)
	if err != nil {
		return nil, nil, fmt.Errorf("group %q: %w", name, err)
	}
	g.Events = events

	var skipped []Skipped
	cols := make([]string, 0, len(fg.Mappings))
	for col := range fg.Mappings {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	for _, col := range cols {
		target := fg.Mappings[col]
		vals, ok := fg.Observed[col]
		if !ok || col == model.ObservedTimeColumn {
			skipped = append(skipped, Skipped{Group: name, Column: col, Target: target, Reason: "no such observed column"})
			continue
		}
		tg, ok := resolveTarget(prog, target)
		if !ok {
			skipped = append(skipped, Skipped{Group: name, Column: col, Target: target, Reason: "no such model variable"})
			continue
		}
		c := Column{Name: col, Target: tg, Observed: make([]float64, len(rows))}
		for k, row := range rows {
			c.Observed[k] = model.Value(vals[row])
		}
		g.Columns = append(g.Columns, c)
	}

	for ci, c := range g.Columns {
		for k, obs := range c.Observed {
			if !math.IsNaN(obs) && !math.IsInf(obs, 0) {
				g.slots = append(g.slots, slot{col: ci, row: k, obs: obs})
			}
		}
	}
	return g, skipped, nil
}

func resolveTarget(prog *eval.Program, name string) (Target, bool) {
	if i, ok := prog.StateIndex(name); ok {
		return Target{Name: name, State: i}, true
	}
	if f, ok := prog.Derived(name); ok {
		return Target{Name: name, State: -1, Derived: f}, true
	}
	return Target{}, false
}

// Observations returns the number of residual slots of the group.
func (g *Group) Observations() int { return len(g.slots) }

// Problem is a multi-group least-squares problem over a subset of the model
// parameters.
type Problem struct {
	Program *eval.Program
	Y0      []float64
	Params  []float64 // full parameter vector; Free entries are overwritten
	Free    []int     // indices into Params of the fitted parameters
	Groups  []*Group
	Solver  solver.Options

	// Parallel evaluates groups concurrently with at most Workers goroutines
	// (0 means one per group).
	Parallel bool
	Workers  int

	slots    int
	failures atomic.Int64
}

// Init lays out the residual vector. It must be called before Residuals.
func (p *Problem) Init() {
	p.slots = 0
	for _, g := range p.Groups {
		g.offset = p.slots
		p.slots += len(g.slots)
	}
}

// Len is the length of the residual vector.
func (p *Problem) Len() int {
	if p.slots == 0 {
		return len(p.Free)
	}
	return p.slots
}

// Observations is the number of present, mapped observations.
func (p *Problem) Observations() int { return p.slots }

// Failures is the number of group simulations that failed so far.
func (p *Problem) Failures() int64 { return p.failures.Load() }

// paramsFor overlays theta onto the fixed parameters.
func (p *Problem) paramsFor(theta []float64) []float64 {
	params := make([]float64, len(p.Params))
	copy(params, p.Params)
	for k, i := range p.Free {
		params[i] = theta[k]
	}
	return params
}

// Residuals writes the weighted residuals at theta into dst, which must have
// length Len. Only context errors are returned; failed simulations fill
// their slots with Penalty.
func (p *Problem) Residuals(ctx context.Context, theta []float64, mode string, dst []float64) error {
	if p.slots == 0 {
		for i := range dst {
			dst[i] = Penalty
		}
		return nil
	}
	params := p.paramsFor(theta)

	if !p.Parallel || len(p.Groups) < 2 {
		for _, g := range p.Groups {
			if err := p.evalGroup(ctx, g, params, mode, dst[g.offset:g.offset+len(g.slots)]); err != nil {
				return err
			}
		}
		return nil
	}

	eg, ctx := errgroup.WithContext(ctx)
	if p.Workers > 0 {
		eg.SetLimit(p.Workers)
	}
	for _, g := range p.Groups {
		eg.Go(func() error {
			return p.evalGroup(ctx, g, params, mode, dst[g.offset:g.offset+len(g.slots)])
		})
	}
	return eg.Wait()
}

func (p *Problem) evalGroup(ctx context.Context, g *Group, params []float64, mode string, dst []float64) error {
	if len(g.slots) == 0 {
		return nil
	}
	prob := solver.Problem{
		RHS: func(t float64, y, dy []float64) {
			p.Program.Derivatives(t, y, params, dy)
		},
		Y0:     p.Y0,
		Events: g.Events,
		Start:  g.Start,
		End:    g.End,
	}
	tr, err := solver.Run(ctx, prob, g.Times, p.Solver)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		var ie *solver.IntegrationError
		if !errors.As(err, &ie) {
			return err
		}
		p.failures.Add(1)
		for i := range dst {
			dst[i] = Penalty
		}
		return nil
	}

	for k, s := range g.slots {
		c := &g.Columns[s.col]
		y := tr.States[s.row]
		var sim float64
		if c.Target.State >= 0 {
			sim = y[c.Target.State]
		} else {
			sim = c.Target.Derived(g.Times[s.row], y, params)
		}
		if math.IsNaN(sim) || math.IsInf(sim, 0) {
			dst[k] = Penalty
			continue
		}
		dst[k] = (sim - s.obs) * Weight(mode, s.obs)
	}
	return nil
}
