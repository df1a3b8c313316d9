package dsl

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/pksim/internal/expr"
	"github.com/rcliao/pksim/internal/model"
)

const twoCompartment = `
dAdt = -ka * A
dCdt = ka * A / V - k * C
k = CL / V
Conc = C * scale
scale = 1000
V = 10
`

func TestSplit_Preprocess(t *testing.T) {
	stmts := Split("dCdt = -k*C\n\n   k = 2**3  \nµ x = 1\n")
	if len(stmts) != 3 {
		t.Fatalf("expected 3 statements, got %d", len(stmts))
	}
	if stmts[1].Text != "k = 2^3" || stmts[1].Line != 3 {
		t.Errorf("unexpected statement %+v", stmts[1])
	}
	if stmts[2].Text != "x = 1" {
		t.Errorf("expected non-ASCII stripped, got %q", stmts[2].Text)
	}
}

func TestParse_Classification(t *testing.T) {
	sys, err := Parse(twoCompartment)
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "C"}, sys.Compartments)
	assert.Equal(t, []string{"CL", "V", "ka", "scale"}, sys.Parameters)
	assert.Equal(t, map[string]float64{"V": 10, "scale": 1000}, sys.Defaults)
	assert.Equal(t, []string{"Conc", "k"}, sys.DerivedNames())

	assert.Equal(t, "ka * A / V - CL / V * C", expr.String(sys.Equations["C"]))
	assert.Equal(t, "dAdt = -ka * A\ndCdt = ka * A / V - CL / V * C", sys.ProcessedODE())
}

func TestParse_NestedDerivedOrder(t *testing.T) {
	sys, err := Parse("dCdt = -k * C\nk = ke * f\nke = CL / V\nf = 1 + t / tau\n")
	require.NoError(t, err)

	names := sys.DerivedNames()
	pos := map[string]int{}
	for i, n := range names {
		pos[n] = i
	}
	assert.Less(t, pos["ke"], pos["k"])
	assert.Less(t, pos["f"], pos["k"])
	assert.Equal(t, []string{"CL", "V", "tau"}, sys.Parameters)

	for _, e := range sys.Equations {
		syms := expr.FreeSymbols(e)
		for _, d := range names {
			assert.NotContains(t, syms, d)
		}
	}
}

func TestParse_PermissiveClassification(t *testing.T) {
	sys, err := Parse("dCdt = -mystery * C\n3x = 4\nnot an equation\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"mystery"}, sys.Parameters)
	assert.Empty(t, sys.Derived)
}

func TestParse_LaterDefinitionWins(t *testing.T) {
	sys, err := Parse("dCdt = -k * C\nk = a\nk = b\n")
	require.NoError(t, err)
	e, ok := sys.DerivedExpr("k")
	require.True(t, ok)
	assert.Equal(t, "b", expr.String(e))
	assert.Equal(t, []string{"b"}, sys.Parameters)
}

func TestParse_CycleRejected(t *testing.T) {
	tests := []string{
		"dCdt = -a * C\na = b + 1\nb = a * 2\n",
		"dCdt = -a * C\na = a + 1\n",
		"dCdt = -a * C\na = b\nb = c\nc = a\n",
	}
	for _, text := range tests {
		_, err := Parse(text)
		require.Error(t, err, text)
		assert.True(t, errors.Is(err, ErrCycle), text)
		assert.True(t, errors.Is(err, model.ErrModelParse), text)

		var pe *ParseError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, 2, pe.Line, text)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		text string
		line int
	}{
		{"syntax", "dCdt = -k *\n", 1},
		{"unknown function", "dCdt = foo(C)\n", 1},
		{"time defined", "dCdt = -C\nt = 4\n", 2},
		{"builtin defined", "dCdt = -C\nexp = 4\n", 2},
		{"compartment redefined", "dCdt = -C\nC = 4\n", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.text)
			require.Error(t, err)
			assert.True(t, errors.Is(err, model.ErrModelParse))
			var pe *ParseError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.line, pe.Line)
		})
	}
}

func TestParse_TimeIsNotAParameter(t *testing.T) {
	sys, err := Parse("dCdt = -k * C * exp(-t)\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"k"}, sys.Parameters)
}

func TestParse_LnAlias(t *testing.T) {
	sys, err := Parse("dCdt = ln(k) * C\n")
	require.NoError(t, err)
	assert.Equal(t, "log(k) * C", expr.String(sys.Equations["C"]))
}

func TestResubstitute_Idempotent(t *testing.T) {
	sys, err := Parse(twoCompartment)
	require.NoError(t, err)

	again, err := sys.Resubstitute()
	require.NoError(t, err)
	for name, e := range sys.Equations {
		assert.True(t, expr.Equal(e, again.Equations[name]), name)
		assert.Same(t, e, again.Equations[name], name)
	}
	assert.Equal(t, sys.ProcessedODE(), again.ProcessedODE())
}

func TestParse_NoCompartments(t *testing.T) {
	sys, err := Parse("k = 2\n")
	require.NoError(t, err)
	assert.Empty(t, sys.Compartments)
	assert.Equal(t, []string{"k"}, sys.Parameters)
}
