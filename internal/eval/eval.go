// Package eval compiles an equation system into closures that evaluate the
// right-hand side without walking the expression tree.
package eval

import (
	"fmt"
	"math"
	"strings"

	"github.com/rcliao/pksim/internal/dsl"
	"github.com/rcliao/pksim/internal/expr"
	"github.com/rcliao/pksim/internal/model"
)

// Func evaluates a compiled expression at time t for state y and parameter
// vector p.
type Func func(t float64, y, p []float64) float64

// Program is a compiled System. It holds no mutable state and may be used
// from several goroutines at once.
type Program struct {
	sys     *dsl.System
	states  map[string]int
	params  map[string]int
	rhs     []Func
	derived map[string]Func
}

// Compile builds a Program for sys. States follow sys.Compartments and
// parameters follow sys.Parameters.
func Compile(sys *dsl.System) (*Program, error) {
	prog := &Program{
		sys:     sys,
		states:  indexOf(sys.Compartments),
		params:  indexOf(sys.Parameters),
		rhs:     make([]Func, len(sys.Compartments)),
		derived: make(map[string]Func, len(sys.Derived)),
	}
	for i, name := range sys.Compartments {
		f, err := prog.compile(sys.Equations[name])
		if err != nil {
			return nil, fmt.Errorf("compile d%sdt: %w", name, err)
		}
		prog.rhs[i] = f
	}
	for _, d := range sys.Derived {
		f, err := prog.compile(d.Expr)
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", d.Name, err)
		}
		prog.derived[d.Name] = f
	}
	return prog, nil
}

func indexOf(names []string) map[string]int {
	m := make(map[string]int, len(names))
	for i, n := range names {
		m[n] = i
	}
	return m
}

func (prog *Program) compile(e expr.Expr) (Func, error) {
	if len(expr.FreeSymbols(e)) == 0 {
		if v, ok := expr.Constant(e); ok {
			return func(float64, []float64, []float64) float64 { return v }, nil
		}
	}
	switch n := e.(type) {
	case *expr.Num:
		v := n.Value
		return func(float64, []float64, []float64) float64 { return v }, nil
	case *expr.Sym:
		if n.Name == dsl.TimeSymbol {
			return func(t float64, _, _ []float64) float64 { return t }, nil
		}
		if i, ok := prog.states[n.Name]; ok {
			return func(_ float64, y, _ []float64) float64 { return y[i] }, nil
		}
		if i, ok := prog.params[n.Name]; ok {
			return func(_ float64, _, p []float64) float64 { return p[i] }, nil
		}
		return nil, fmt.Errorf("unresolved symbol %q", n.Name)
	case *expr.Call:
		fn, ok := expr.Builtin(n.Func)
		if !ok || len(n.Args) != 1 {
			return nil, fmt.Errorf("unknown function %s/%d", n.Func, len(n.Args))
		}
		arg, err := prog.compile(n.Args[0])
		if err != nil {
			return nil, err
		}
		return func(t float64, y, p []float64) float64 { return fn(arg(t, y, p)) }, nil
	case *expr.Unary:
		x, err := prog.compile(n.X)
		if err != nil {
			return nil, err
		}
		if n.Op == '-' {
			return func(t float64, y, p []float64) float64 { return -x(t, y, p) }, nil
		}
		return x, nil
	case *expr.Binary:
		l, err := prog.compile(n.Left)
		if err != nil {
			return nil, err
		}
		r, err := prog.compile(n.Right)
		if err != nil {
			return nil, err
		}
		return binary(n.Op, l, r)
	}
	return nil, fmt.Errorf("unsupported node %T", e)
}

func binary(op byte, l, r Func) (Func, error) {
	switch op {
	case '+':
		return func(t float64, y, p []float64) float64 { return l(t, y, p) + r(t, y, p) }, nil
	case '-':
		return func(t float64, y, p []float64) float64 { return l(t, y, p) - r(t, y, p) }, nil
	case '*':
		return func(t float64, y, p []float64) float64 { return l(t, y, p) * r(t, y, p) }, nil
	case '/':
		return func(t float64, y, p []float64) float64 { return l(t, y, p) / r(t, y, p) }, nil
	case '^':
		return func(t float64, y, p []float64) float64 { return math.Pow(l(t, y, p), r(t, y, p)) }, nil
	}
	return nil, fmt.Errorf("unknown operator %q", op)
}

// System returns the source system.
func (prog *Program) System() *dsl.System { return prog.sys }

// NumStates returns the number of compartments.
func (prog *Program) NumStates() int { return len(prog.rhs) }

// StateIndex returns the state vector index of a compartment.
func (prog *Program) StateIndex(name string) (int, bool) {
	i, ok := prog.states[name]
	return i, ok
}

// ParamIndex returns the parameter vector index of a base parameter.
func (prog *Program) ParamIndex(name string) (int, bool) {
	i, ok := prog.params[name]
	return i, ok
}

// Derivatives writes f(t, y, p) into dy. It does not allocate.
func (prog *Program) Derivatives(t float64, y, params, dy []float64) {
	for i, f := range prog.rhs {
		dy[i] = f(t, y, params)
	}
}

// Derived returns the compiled evaluator of a derived parameter.
func (prog *Program) Derived(name string) (Func, bool) {
	f, ok := prog.derived[name]
	return f, ok
}

// EvalDerived evaluates a derived parameter.
func (prog *Program) EvalDerived(name string, t float64, y, params []float64) (float64, error) {
	f, ok := prog.derived[name]
	if !ok {
		return math.NaN(), fmt.Errorf("%w: unknown derived quantity %q", model.ErrInvalidInput, name)
	}
	return f(t, y, params), nil
}

// ParamVector orders values by the program's parameters. Parameters declared
// with a constant in the model text fall back to that value.
func (prog *Program) ParamVector(values map[string]float64) ([]float64, error) {
	out := make([]float64, len(prog.sys.Parameters))
	var missing []string
	for i, name := range prog.sys.Parameters {
		v, ok := values[name]
		if !ok {
			v, ok = prog.sys.Defaults[name]
		}
		if !ok {
			missing = append(missing, name)
			continue
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: parameter %s is not finite", model.ErrInvalidInput, name)
		}
		out[i] = v
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing parameters: %s", model.ErrInvalidInput, strings.Join(missing, ", "))
	}
	return out, nil
}

// StateVector orders initial values by compartment.
func (prog *Program) StateVector(initials map[string]float64) ([]float64, error) {
	out := make([]float64, len(prog.sys.Compartments))
	var missing []string
	for i, name := range prog.sys.Compartments {
		v, ok := initials[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: initial value of %s is not finite", model.ErrInvalidInput, name)
		}
		out[i] = v
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing initial values: %s", model.ErrInvalidInput, strings.Join(missing, ", "))
	}
	return out, nil
}
