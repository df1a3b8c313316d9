package dsl

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rcliao/pksim/internal/expr"
)

// TimeSymbol is the independent variable.
const TimeSymbol = "t"

var (
	odePattern  = regexp.MustCompile(`^d([A-Za-z_][A-Za-z0-9_]*)dt$`)
	namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// row is a classified statement with its parsed right-hand side.
type row struct {
	name string
	rhs  expr.Expr
	stmt Statement
}

// classified holds ODE rows and parameter definitions, each in first
// appearance order. A later statement for the same name replaces the
// earlier one.
type classified struct {
	odes   []row
	params []row
}

// classify sorts statements into ODE rows and parameter definitions. Lines
// without '=' and lines whose left-hand side is neither dXdt nor a bare
// identifier are dropped.
func classify(stmts []Statement) (*classified, error) {
	c := &classified{}
	odeIdx := map[string]int{}
	paramIdx := map[string]int{}
	for _, st := range stmts {
		eq := strings.IndexByte(st.Text, '=')
		if eq < 0 {
			continue
		}
		lhs := strings.TrimSpace(st.Text[:eq])
		rhsText := strings.TrimSpace(st.Text[eq+1:])

		var name string
		isODE := false
		if m := odePattern.FindStringSubmatch(lhs); m != nil {
			name, isODE = m[1], true
		} else if namePattern.MatchString(lhs) {
			name = lhs
		} else {
			continue
		}

		rhs, err := expr.Parse(rhsText)
		if err != nil {
			return nil, &ParseError{Line: st.Line, Text: st.Text, Err: err}
		}
		r := row{name: name, rhs: rhs, stmt: st}
		if isODE {
			if i, ok := odeIdx[name]; ok {
				c.odes[i] = r
				continue
			}
			odeIdx[name] = len(c.odes)
			c.odes = append(c.odes, r)
			continue
		}
		if i, ok := paramIdx[name]; ok {
			c.params[i] = r
			continue
		}
		paramIdx[name] = len(c.params)
		c.params = append(c.params, r)
	}
	return c, c.check()
}

// check rejects reserved or conflicting names.
func (c *classified) check() error {
	comps := map[string]bool{}
	for _, r := range c.odes {
		if err := checkName(r, "compartment"); err != nil {
			return err
		}
		comps[r.name] = true
	}
	for _, r := range c.params {
		if err := checkName(r, "parameter"); err != nil {
			return err
		}
		if comps[r.name] {
			return &ParseError{Line: r.stmt.Line, Text: r.stmt.Text,
				Err: fmt.Errorf("%s is already a compartment", r.name)}
		}
	}
	return nil
}

func checkName(r row, what string) error {
	switch {
	case r.name == TimeSymbol:
		return &ParseError{Line: r.stmt.Line, Text: r.stmt.Text,
			Err: fmt.Errorf("%s name %q is reserved for time", what, r.name)}
	case expr.IsBuiltin(r.name):
		return &ParseError{Line: r.stmt.Line, Text: r.stmt.Text,
			Err: fmt.Errorf("%s name %q is a builtin function", what, r.name)}
	}
	return nil
}
