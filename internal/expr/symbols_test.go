package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFreeSymbols_SkipsFunctions(t *testing.T) {
	e := MustParse("sqrt(a * b) + exp(-k * t) - 2")
	assert.Equal(t, []string{"a", "b", "k", "t"}, SymbolNames(e))
}

func TestSubstitute_Simultaneous(t *testing.T) {
	e := MustParse("a + b")
	out := Substitute(e, map[string]Expr{
		"a": MustParse("b"),
		"b": MustParse("c"),
	})
	assert.Equal(t, "b + c", String(out))
}

func TestSubstitute_SharesUnchangedSubtrees(t *testing.T) {
	e := MustParse("(x + y) * z").(*Binary)
	out := Substitute(e, map[string]Expr{"z": NewNum(2)}).(*Binary)
	assert.Same(t, e.Left, out.Left)
	assert.Equal(t, "(x + y) * 2", String(out))

	same := Substitute(e, map[string]Expr{"q": NewNum(1)})
	assert.Same(t, Expr(e), same)
}

func TestSubstitute_KeepsPrecedence(t *testing.T) {
	e := MustParse("k * C")
	out := Substitute(e, map[string]Expr{"k": MustParse("CL / V")})
	assert.Equal(t, "CL / V * C", String(out))

	out = Substitute(MustParse("C / k"), map[string]Expr{"k": MustParse("CL / V")})
	assert.Equal(t, "C / (CL / V)", String(out))
}

func TestReferences(t *testing.T) {
	e := MustParse("log(a) + b")
	assert.True(t, References(e, map[string]struct{}{"a": {}}))
	assert.False(t, References(e, map[string]struct{}{"log": {}}))
}
