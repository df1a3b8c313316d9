package dsl

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rcliao/pksim/internal/expr"
)

// order returns the derived definitions in dependency order using Kahn's
// algorithm. Ties are broken alphabetically so the order is stable.
func order(defs map[string]row) ([]string, error) {
	indeg := make(map[string]int, len(defs))
	dependents := make(map[string][]string, len(defs))
	for name, r := range defs {
		if _, ok := indeg[name]; !ok {
			indeg[name] = 0
		}
		for _, sym := range expr.SymbolNames(r.rhs) {
			if sym == TimeSymbol {
				continue
			}
			if _, ok := defs[sym]; !ok {
				continue
			}
			indeg[name]++
			dependents[sym] = append(dependents[sym], name)
		}
	}

	var queue []string
	for name, d := range indeg {
		if d == 0 {
			queue = append(queue, name)
		}
	}
	sort.Strings(queue)

	out := make([]string, 0, len(defs))
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		out = append(out, name)
		next := dependents[name]
		sort.Strings(next)
		for _, dep := range next {
			indeg[dep]--
			if indeg[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(out) < len(defs) {
		var stuck []string
		for name, d := range indeg {
			if d > 0 {
				stuck = append(stuck, name)
			}
		}
		sort.Strings(stuck)
		first := defs[stuck[0]]
		for _, name := range stuck[1:] {
			if defs[name].stmt.Line < first.stmt.Line {
				first = defs[name]
			}
		}
		return nil, &ParseError{
			Line: first.stmt.Line,
			Text: first.stmt.Text,
			Err:  fmt.Errorf("%w: %s", ErrCycle, strings.Join(stuck, ", ")),
		}
	}
	return out, nil
}

// substitute rewrites e until no derived name is left. Every entry of repl
// must already be fully substituted, so one pass normally suffices.
func substitute(e expr.Expr, repl map[string]expr.Expr) (expr.Expr, error) {
	names := make(map[string]struct{}, len(repl))
	for name := range repl {
		names[name] = struct{}{}
	}
	for pass := 0; pass <= len(repl); pass++ {
		if !expr.References(e, names) {
			return e, nil
		}
		e = expr.Substitute(e, repl)
	}
	if expr.References(e, names) {
		return nil, fmt.Errorf("substitution did not reach a fixed point after %d passes", len(repl)+1)
	}
	return e, nil
}
