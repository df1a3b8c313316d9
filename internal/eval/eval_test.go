package eval

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/pksim/internal/dsl"
	"github.com/rcliao/pksim/internal/model"
)

func compile(t *testing.T, text string) *Program {
	t.Helper()
	sys, err := dsl.Parse(text)
	require.NoError(t, err)
	prog, err := Compile(sys)
	require.NoError(t, err)
	return prog
}

func TestDerivatives(t *testing.T) {
	prog := compile(t, `
dAdt = -ka * A
dCdt = ka * A / V - k * C + sin(t) ^ 2
k = CL / V
`)
	p, err := prog.ParamVector(map[string]float64{"CL": 2, "V": 4, "ka": 1.5})
	require.NoError(t, err)
	y, err := prog.StateVector(map[string]float64{"A": 10, "C": 3})
	require.NoError(t, err)

	dy := make([]float64, prog.NumStates())
	prog.Derivatives(0.7, y, p, dy)

	assert.InDelta(t, -15, dy[0], 1e-12)
	want := 1.5*10/4 - 0.5*3 + math.Pow(math.Sin(0.7), 2)
	assert.InDelta(t, want, dy[1], 1e-12)
}

func TestDerivatives_NoAllocation(t *testing.T) {
	prog := compile(t, "dCdt = -k * C * exp(-t / tau)\n")
	p := []float64{0.3, 2}
	y := []float64{5}
	dy := make([]float64, 1)
	allocs := testing.AllocsPerRun(100, func() {
		prog.Derivatives(1, y, p, dy)
	})
	assert.Zero(t, allocs)
}

func TestEvalDerived(t *testing.T) {
	prog := compile(t, "dCdt = -k * C\nk = CL / V\nConc = C / V\n")
	p, err := prog.ParamVector(map[string]float64{"CL": 1, "V": 2})
	require.NoError(t, err)

	v, err := prog.EvalDerived("Conc", 0, []float64{8}, p)
	require.NoError(t, err)
	assert.Equal(t, 4.0, v)

	_, err = prog.EvalDerived("nope", 0, []float64{8}, p)
	assert.True(t, errors.Is(err, model.ErrInvalidInput))
}

func TestParamVector_Defaults(t *testing.T) {
	prog := compile(t, "dCdt = -CL / V * C\nV = 10\n")

	p, err := prog.ParamVector(map[string]float64{"CL": 2})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 10}, p)

	p, err = prog.ParamVector(map[string]float64{"CL": 2, "V": 5})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 5}, p)
}

func TestParamVector_Missing(t *testing.T) {
	prog := compile(t, "dCdt = -CL / V * C\n")
	_, err := prog.ParamVector(map[string]float64{"CL": 2})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrInvalidInput))
	assert.Contains(t, err.Error(), "V")

	_, err = prog.StateVector(map[string]float64{})
	assert.True(t, errors.Is(err, model.ErrInvalidInput))
}

func TestConstantFolding(t *testing.T) {
	prog := compile(t, "dCdt = 2 ^ 3 * C\n")
	dy := make([]float64, 1)
	prog.Derivatives(0, []float64{1}, nil, dy)
	assert.Equal(t, 8.0, dy[0])
}
