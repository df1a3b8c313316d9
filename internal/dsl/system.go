package dsl

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rcliao/pksim/internal/expr"
)

// Derived is a parameter computed from other symbols. Expr has every other
// derived name substituted away; Source is the right-hand side as written.
type Derived struct {
	Name   string
	Source expr.Expr
	Expr   expr.Expr
	Line   int
}

// System is a compiled model. It is immutable after Parse returns and is safe
// to share between goroutines.
type System struct {
	Compartments []string // sorted
	Parameters   []string // sorted, includes the keys of Defaults

	// Defaults holds values for parameters defined by a constant expression.
	Defaults map[string]float64

	// Derived is in dependency order.
	Derived   []Derived
	Equations map[string]expr.Expr
}

// Parse compiles model text.
func Parse(text string) (*System, error) {
	c, err := classify(Split(text))
	if err != nil {
		return nil, err
	}

	defaults := map[string]float64{}
	defs := map[string]row{}
	for _, r := range c.params {
		if len(expr.FreeSymbols(r.rhs)) == 0 {
			if v, ok := expr.Constant(r.rhs); ok {
				defaults[r.name] = v
				continue
			}
		}
		defs[r.name] = r
	}

	ordered, err := order(defs)
	if err != nil {
		return nil, err
	}

	repl := make(map[string]expr.Expr, len(ordered))
	derived := make([]Derived, 0, len(ordered))
	for _, name := range ordered {
		r := defs[name]
		sub, err := substitute(r.rhs, repl)
		if err != nil {
			return nil, &ParseError{Line: r.stmt.Line, Text: r.stmt.Text, Err: err}
		}
		repl[name] = sub
		derived = append(derived, Derived{Name: name, Source: r.rhs, Expr: sub, Line: r.stmt.Line})
	}

	sys := &System{
		Defaults:  defaults,
		Derived:   derived,
		Equations: make(map[string]expr.Expr, len(c.odes)),
	}
	for _, r := range c.odes {
		sub, err := substitute(r.rhs, repl)
		if err != nil {
			return nil, &ParseError{Line: r.stmt.Line, Text: r.stmt.Text, Err: err}
		}
		sys.Equations[r.name] = sub
		sys.Compartments = append(sys.Compartments, r.name)
	}
	sort.Strings(sys.Compartments)
	sys.Parameters = baseParameters(sys, defaults)
	return sys, nil
}

// baseParameters collects every symbol that is not a compartment, a derived
// parameter or time. Unknown symbols become parameters the caller must supply.
func baseParameters(sys *System, defaults map[string]float64) []string {
	known := map[string]bool{TimeSymbol: true}
	for _, name := range sys.Compartments {
		known[name] = true
	}
	for _, d := range sys.Derived {
		known[d.Name] = true
	}

	params := map[string]struct{}{}
	for name := range defaults {
		params[name] = struct{}{}
	}
	collect := func(e expr.Expr) {
		for sym := range expr.FreeSymbols(e) {
			if !known[sym] {
				params[sym] = struct{}{}
			}
		}
	}
	for _, e := range sys.Equations {
		collect(e)
	}
	for _, d := range sys.Derived {
		collect(d.Expr)
	}

	out := make([]string, 0, len(params))
	for name := range params {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// DerivedExpr returns the substituted expression of a derived parameter.
func (s *System) DerivedExpr(name string) (expr.Expr, bool) {
	for _, d := range s.Derived {
		if d.Name == name {
			return d.Expr, true
		}
	}
	return nil, false
}

// DerivedNames returns derived parameter names in dependency order.
func (s *System) DerivedNames() []string {
	out := make([]string, len(s.Derived))
	for i, d := range s.Derived {
		out[i] = d.Name
	}
	return out
}

// HasCompartment reports whether name is a compartment.
func (s *System) HasCompartment(name string) bool {
	_, ok := s.Equations[name]
	return ok
}

// ProcessedODE renders the substituted equations, one per line.
func (s *System) ProcessedODE() string {
	var b strings.Builder
	for i, name := range s.Compartments {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "d%sdt = %s", name, expr.String(s.Equations[name]))
	}
	return b.String()
}

// Resubstitute applies the derived definitions to the equations once more and
// returns the result as a new System. For a System built by Parse the
// equations are unchanged.
func (s *System) Resubstitute() (*System, error) {
	repl := make(map[string]expr.Expr, len(s.Derived))
	for _, d := range s.Derived {
		repl[d.Name] = d.Expr
	}
	out := &System{
		Compartments: s.Compartments,
		Parameters:   s.Parameters,
		Defaults:     s.Defaults,
		Derived:      s.Derived,
		Equations:    make(map[string]expr.Expr, len(s.Equations)),
	}
	for name, e := range s.Equations {
		sub, err := substitute(expr.Substitute(e, repl), repl)
		if err != nil {
			return nil, fmt.Errorf("resubstitute %s: %w", name, err)
		}
		out.Equations[name] = sub
	}
	return out, nil
}
