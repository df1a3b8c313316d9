package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Precedence(t *testing.T) {
	cases := []struct {
		src  string
		want string
	}{
		{"a + b * c", "a + b * c"},
		{"(a + b) * c", "(a + b) * c"},
		{"a - (b - c)", "a - (b - c)"},
		{"a - b - c", "a - b - c"},
		{"-x^2", "-x^2"},
		{"(-x)^2", "(-x)^2"},
		{"a^b^c", "a^b^c"},
		{"(a^b)^c", "(a^b)^c"},
		{"x**2", "x^2"},
		{"x^-2", "x^-2"},
		{"a / (b * c)", "a / (b * c)"},
		{"-a * b", "-a * b"},
		{"ln(x)", "log(x)"},
		{"0.5*(L - R + sqrt((L - R)^2 + 4*K))", "0.5 * (L - R + sqrt((L - R)^2 + 4 * K))"},
		{"1e-3 * k", "0.001 * k"},
		{".5", "0.5"},
	}
	for _, c := range cases {
		t.Run(c.src, func(t *testing.T) {
			e, err := Parse(c.src)
			require.NoError(t, err)
			assert.Equal(t, c.want, String(e))
		})
	}
}

func TestParse_PowerBindsTighterThanUnaryMinus(t *testing.T) {
	e := MustParse("-x^2")
	u, ok := e.(*Unary)
	require.True(t, ok, "want unary at root, got %T", e)
	_, ok = u.X.(*Binary)
	assert.True(t, ok)
}

func TestParse_RoundTrip(t *testing.T) {
	srcs := []string{
		"-(kel + kpt) * Lc - Rtot * kep * Lc / (Kd + Lc) + ktp * Lt",
		"kin - kout * Rtot - (kep - kout) * (Rtot * Lc) / (Kd + Lc)",
		"a - -b",
		"exp(-k * t) * D / V",
		"x^(1 / 3)",
		"--a",
	}
	for _, src := range srcs {
		e := MustParse(src)
		again, err := Parse(String(e))
		require.NoError(t, err, src)
		assert.True(t, Equal(e, again), "%s -> %s", src, String(e))
	}
}

func TestString_NegativeLiteral(t *testing.T) {
	e := &Binary{Op: '^', Left: NewNum(-2), Right: NewNum(2)}
	assert.Equal(t, "(-2)^2", String(e))

	again, err := Parse(String(e))
	require.NoError(t, err)
	assert.False(t, Equal(e, again), "the literal comes back as a unary minus")
	v, ok := Constant(again)
	require.True(t, ok)
	assert.Equal(t, 4.0, v)
}

func TestParse_Errors(t *testing.T) {
	cases := []string{
		"",
		"a +",
		"(a + b",
		"foo(x)",
		"exp",
		"exp(a, b)",
		"2x",
		"a $ b",
		"sqrt()",
	}
	for _, src := range cases {
		t.Run(src, func(t *testing.T) {
			_, err := Parse(src)
			require.Error(t, err)
			var se *SyntaxError
			assert.ErrorAs(t, err, &se)
		})
	}
}

func TestParse_ErrorPosition(t *testing.T) {
	_, err := Parse("a + foo(b)")
	var se *SyntaxError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 5, se.Pos)
}

func TestBuiltin(t *testing.T) {
	f, ok := Builtin("ln")
	require.True(t, ok)
	assert.InDelta(t, 1.0, f(2.718281828459045), 1e-12)

	_, ok = Builtin("gamma")
	assert.False(t, ok)
	assert.Len(t, Builtins(), 13)
}
