package fit

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/pksim/internal/dsl"
	"github.com/rcliao/pksim/internal/eval"
	"github.com/rcliao/pksim/internal/model"
	"github.com/rcliao/pksim/internal/solver"
)

const oneCompartment = `
V = 10
C = A / V
dAdt = -k * A
`

const trueK = 0.3

var obsTimes = []float64{0.5, 1, 2, 3, 4, 6, 8}

func newProgram(t *testing.T, text string) *eval.Program {
	t.Helper()
	sys, err := dsl.Parse(text)
	require.NoError(t, err)
	prog, err := eval.Compile(sys)
	require.NoError(t, err)
	return prog
}

func testSolverOptions() solver.Options {
	opts := solver.DefaultOptions()
	opts.Method = solver.MethodDopri5
	opts.RelTol = 1e-10
	opts.AbsTol = 1e-12
	return opts
}

func bolusGroup(name string, amount float64, conc []*float64) model.FittingGroup {
	times := make([]*float64, len(obsTimes))
	for i, at := range obsTimes {
		times[i] = model.Float(at)
	}
	return model.FittingGroup{
		Name:     name,
		Doses:    []model.Dose{{Compartment: "A", Type: model.DoseBolus, Amount: amount}},
		Observed: model.Observed{model.ObservedTimeColumn: times, "conc": conc},
		Mappings: map[string]string{"conc": "C"},
	}
}

// synthesize simulates the group at k and returns noise-free concentrations
// on the group's own time grid.
func synthesize(t *testing.T, prog *eval.Program, fg model.FittingGroup, k float64) []*float64 {
	t.Helper()
	g, _, err := NewGroup(prog, fg)
	require.NoError(t, err)
	params, err := prog.ParamVector(map[string]float64{"k": k})
	require.NoError(t, err)
	y0, err := prog.StateVector(map[string]float64{"A": 0})
	require.NoError(t, err)

	tr, err := solver.Run(context.Background(), solver.Problem{
		RHS:    func(at float64, y, dy []float64) { prog.Derivatives(at, y, params, dy) },
		Y0:     y0,
		Events: g.Events,
		Start:  g.Start,
		End:    g.End,
	}, g.Times, testSolverOptions())
	require.NoError(t, err)

	conc, ok := prog.Derived("C")
	require.True(t, ok)
	out := make([]*float64, len(g.Times))
	for i, at := range g.Times {
		out[i] = model.Float(conc(at, tr.States[i], params))
	}
	return out
}

func newProblem(t *testing.T, prog *eval.Program, groups ...model.FittingGroup) *Problem {
	t.Helper()
	params, err := prog.ParamVector(map[string]float64{"k": 1})
	require.NoError(t, err)
	y0, err := prog.StateVector(map[string]float64{"A": 0})
	require.NoError(t, err)
	k, ok := prog.ParamIndex("k")
	require.True(t, ok)

	p := &Problem{Program: prog, Y0: y0, Params: params, Free: []int{k}, Solver: testSolverOptions()}
	for _, fg := range groups {
		g, skipped, err := NewGroup(prog, fg)
		require.NoError(t, err)
		require.Empty(t, skipped)
		p.Groups = append(p.Groups, g)
	}
	return p
}

func TestSolve_NoiseFreeRecovery(t *testing.T) {
	prog := newProgram(t, oneCompartment)
	fg := bolusGroup("single", 100, make([]*float64, len(obsTimes)))
	fg.Observed["conc"] = synthesize(t, prog, fg, trueK)

	p := newProblem(t, prog, fg)
	out, err := p.Solve(context.Background(), []float64{0.1}, []float64{0.001}, []float64{5},
		model.WeightNone, model.DefaultConfidence, DefaultSettings())
	require.NoError(t, err)

	assert.True(t, out.Converged(), out.Message)
	assert.InDelta(t, trueK, out.X[0], 1e-5)
	assert.Less(t, out.Stats.SSR, 1e-10)
	assert.Equal(t, len(obsTimes)-1, out.Stats.DOF)
	assert.Zero(t, p.Failures())
}

func TestSolve_WeightingInvariance(t *testing.T) {
	prog := newProgram(t, oneCompartment)
	fg := bolusGroup("single", 100, make([]*float64, len(obsTimes)))
	fg.Observed["conc"] = synthesize(t, prog, fg, trueK)

	for _, mode := range []string{model.WeightNone, model.WeightInverse, model.WeightInverseSquared} {
		t.Run(mode, func(t *testing.T) {
			p := newProblem(t, prog, fg)
			out, err := p.Solve(context.Background(), []float64{0.5}, []float64{0.001}, []float64{5},
				mode, model.DefaultConfidence, DefaultSettings())
			require.NoError(t, err)
			assert.InDelta(t, trueK, out.X[0], 1e-5)
			assert.Equal(t, mode, out.Weighting)
		})
	}
}

func TestSolve_MultiGroupParallel(t *testing.T) {
	prog := newProgram(t, oneCompartment)
	low := bolusGroup("low", 50, make([]*float64, len(obsTimes)))
	low.Observed["conc"] = synthesize(t, prog, low, trueK)
	high := bolusGroup("high", 200, make([]*float64, len(obsTimes)))
	high.Observed["conc"] = synthesize(t, prog, high, trueK)

	p := newProblem(t, prog, low, high)
	p.Parallel = true
	p.Workers = 2
	out, err := p.Solve(context.Background(), []float64{0.1}, []float64{0.001}, []float64{5},
		model.WeightInverse, model.DefaultConfidence, DefaultSettings())
	require.NoError(t, err)

	assert.Equal(t, 2*len(obsTimes), p.Observations())
	assert.Len(t, out.Residuals, 2*len(obsTimes))
	assert.InDelta(t, trueK, out.X[0], 1e-5)
}

func TestSolve_ConfidenceIntervals(t *testing.T) {
	prog := newProgram(t, oneCompartment)
	fg := bolusGroup("noisy", 100, make([]*float64, len(obsTimes)))
	conc := synthesize(t, prog, fg, trueK)
	for i, c := range conc {
		// deterministic +-2% perturbation
		conc[i] = model.Float(*c * (1 + 0.02*math.Pow(-1, float64(i))))
	}
	fg.Observed["conc"] = conc

	p := newProblem(t, prog, fg)
	out, err := p.Solve(context.Background(), []float64{0.2}, []float64{0.001}, []float64{5},
		model.WeightNone, model.DefaultConfidence, DefaultSettings())
	require.NoError(t, err)

	se := out.Stats.StdErr[0]
	require.False(t, math.IsNaN(se))
	assert.Greater(t, se, 0.0)
	assert.Less(t, out.Stats.Lower[0], out.X[0])
	assert.Greater(t, out.Stats.Upper[0], out.X[0])
	assert.InDelta(t, out.X[0]-out.Stats.Lower[0], out.Stats.Upper[0]-out.X[0], 1e-12)
	assert.InDelta(t, trueK, out.X[0], 0.02)

	r := out.Report("run", []string{"k"})
	require.Len(t, r.Params, 1)
	assert.NotNil(t, r.Params[0].StdErr)
	assert.NotNil(t, r.Params[0].CILower)
	assert.Equal(t, "ok", r.Status)
}

func TestSolve_NoDegreesOfFreedom(t *testing.T) {
	prog := newProgram(t, oneCompartment)
	fg := model.FittingGroup{
		Doses: []model.Dose{{Compartment: "A", Type: model.DoseBolus, Amount: 100}},
		Observed: model.Observed{
			model.ObservedTimeColumn: {model.Float(2)},
			"conc":                   {model.Float(5)},
		},
		Mappings: map[string]string{"conc": "C"},
	}
	p := newProblem(t, prog, fg)
	out, err := p.Solve(context.Background(), []float64{0.2}, []float64{0.001}, []float64{5},
		model.WeightNone, model.DefaultConfidence, DefaultSettings())
	require.NoError(t, err)

	assert.Equal(t, 0, out.Stats.DOF)
	assert.True(t, math.IsNaN(out.Stats.StdErr[0]))
	r := out.Report("run", []string{"k"})
	assert.Nil(t, r.Params[0].StdErr)
	assert.Nil(t, r.Params[0].CILower)
	assert.Nil(t, r.Params[0].CIUpper)
	assert.NotNil(t, r.Params[0].Value)
}

func TestResiduals_NoObservationsPenalty(t *testing.T) {
	prog := newProgram(t, oneCompartment)
	fg := bolusGroup("unmapped", 100, []*float64{nil, nil, nil, nil, nil, nil, nil})
	fg.Mappings = map[string]string{"conc": "C", "missing": "C", "other": "nope"}

	g, skipped, err := NewGroup(prog, fg)
	require.NoError(t, err)
	assert.Len(t, skipped, 2)
	assert.Equal(t, 0, g.Observations())

	p := newProblem(t, prog)
	p.Groups = []*Group{g}
	p.Init()
	require.Equal(t, 1, p.Len())

	dst := make([]float64, p.Len())
	require.NoError(t, p.Residuals(context.Background(), []float64{0.3}, model.WeightNone, dst))
	assert.Equal(t, []float64{Penalty}, dst)
}

func TestResiduals_FailedGroupIsPenalized(t *testing.T) {
	prog := newProgram(t, oneCompartment)
	fg := bolusGroup("single", 100, make([]*float64, len(obsTimes)))
	fg.Observed["conc"] = synthesize(t, prog, fg, trueK)

	p := newProblem(t, prog, fg)
	p.Solver.MaxSteps = 1
	p.Init()
	dst := make([]float64, p.Len())
	require.NoError(t, p.Residuals(context.Background(), []float64{trueK}, model.WeightNone, dst))
	for _, r := range dst {
		assert.Equal(t, Penalty, r)
	}
	assert.Equal(t, int64(1), p.Failures())
}

func TestResiduals_CanceledContext(t *testing.T) {
	prog := newProgram(t, oneCompartment)
	fg := bolusGroup("single", 100, make([]*float64, len(obsTimes)))
	fg.Observed["conc"] = synthesize(t, prog, fg, trueK)

	p := newProblem(t, prog, fg)
	p.Init()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Residuals(ctx, []float64{trueK}, model.WeightNone, make([]float64, p.Len()))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewGroup_StartAndMissingRows(t *testing.T) {
	prog := newProgram(t, oneCompartment)
	fg := model.FittingGroup{
		Name:  "g",
		Doses: []model.Dose{{Compartment: "A", Type: model.DoseBolus, Amount: 100, StartTime: -1}},
		Observed: model.Observed{
			model.ObservedTimeColumn: {model.Float(-0.5), nil, model.Float(3)},
			"conc":                   {model.Float(1), model.Float(2), nil},
		},
		Mappings: map[string]string{"conc": "C"},
	}
	g, _, err := NewGroup(prog, fg)
	require.NoError(t, err)
	assert.Equal(t, -0.5, g.Start)
	assert.Equal(t, 3.0, g.End)
	assert.Equal(t, []float64{-0.5, 3}, g.Times)
	assert.Equal(t, 1, g.Observations(), "the row without a time and the missing cell are not residuals")

	fg.TStart = model.Float(-2)
	g, _, err = NewGroup(prog, fg)
	require.NoError(t, err)
	assert.Equal(t, -2.0, g.Start)
	require.Len(t, g.Events, 1)
	assert.Equal(t, -1.0, g.Events[0].Time)
}

func TestNewGroup_Errors(t *testing.T) {
	prog := newProgram(t, oneCompartment)
	_, _, err := NewGroup(prog, model.FittingGroup{Observed: model.Observed{"conc": {model.Float(1)}}})
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	_, _, err = NewGroup(prog, model.FittingGroup{Observed: model.Observed{
		model.ObservedTimeColumn: {model.Float(1), model.Float(2)},
		"conc":                   {model.Float(1)},
	}})
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestBounds(t *testing.T) {
	names := []string{"a", "b", "c", "d"}
	x0 := []float64{2, -3, 0, 1}
	given := map[string][2]*float64{"d": {model.Float(0.5), nil}}

	lower, upper, err := Bounds(names, x0, given, true)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.2, -30, math.Inf(-1), 0.5}, lower)
	assert.Equal(t, []float64{20, -0.3, math.Inf(1), 10}, upper)

	lower, upper, err = Bounds(names, x0, given, false)
	require.NoError(t, err)
	assert.Equal(t, math.Inf(-1), lower[0])
	assert.Equal(t, 0.5, lower[3])
	assert.Equal(t, math.Inf(1), upper[3])

	_, _, err = Bounds([]string{"a"}, []float64{1}, map[string][2]*float64{"a": {model.Float(2), model.Float(1)}}, false)
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestWeight(t *testing.T) {
	assert.Equal(t, 1.0, Weight(model.WeightNone, 4))
	assert.Equal(t, 0.25, Weight(model.WeightInverse, -4))
	assert.Equal(t, 1.0/16, Weight(model.WeightInverseSquared, 4))
	assert.InEpsilon(t, 1/WeightFloor, Weight(model.WeightInverseSquared, 0), 1e-12)

	mode, err := ParseWeighting("1/Y2")
	require.NoError(t, err)
	assert.Equal(t, model.WeightInverseSquared, mode)
	_, err = ParseWeighting("sqrt")
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}
