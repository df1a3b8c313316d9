package expr

import "sort"

// FreeSymbols collects the symbol names referenced by e. Function names are
// not symbols.
func FreeSymbols(e Expr) map[string]struct{} {
	out := map[string]struct{}{}
	collectSymbols(e, out)
	return out
}

func collectSymbols(e Expr, out map[string]struct{}) {
	switch n := e.(type) {
	case *Sym:
		out[n.Name] = struct{}{}
	case *Call:
		for _, a := range n.Args {
			collectSymbols(a, out)
		}
	case *Binary:
		collectSymbols(n.Left, out)
		collectSymbols(n.Right, out)
	case *Unary:
		collectSymbols(n.X, out)
	}
}

// SymbolNames returns the free symbols of e in sorted order.
func SymbolNames(e Expr) []string {
	set := FreeSymbols(e)
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// References reports whether e references any symbol in names.
func References(e Expr, names map[string]struct{}) bool {
	switch n := e.(type) {
	case *Sym:
		_, ok := names[n.Name]
		return ok
	case *Call:
		for _, a := range n.Args {
			if References(a, names) {
				return true
			}
		}
	case *Binary:
		return References(n.Left, names) || References(n.Right, names)
	case *Unary:
		return References(n.X, names)
	}
	return false
}

// Substitute replaces every symbol found in repl by its mapped expression.
// Replacement is simultaneous: inserted expressions are not rewritten again.
// Unchanged subtrees are returned as-is.
func Substitute(e Expr, repl map[string]Expr) Expr {
	if len(repl) == 0 {
		return e
	}
	switch n := e.(type) {
	case *Sym:
		if r, ok := repl[n.Name]; ok {
			return r
		}
		return n
	case *Call:
		var args []Expr
		for i, a := range n.Args {
			s := Substitute(a, repl)
			if s != a && args == nil {
				args = make([]Expr, len(n.Args))
				copy(args, n.Args[:i])
			}
			if args != nil {
				args[i] = s
			}
		}
		if args == nil {
			return n
		}
		return &Call{Func: n.Func, Args: args}
	case *Binary:
		l, r := Substitute(n.Left, repl), Substitute(n.Right, repl)
		if l == n.Left && r == n.Right {
			return n
		}
		return &Binary{Op: n.Op, Left: l, Right: r}
	case *Unary:
		x := Substitute(n.X, repl)
		if x == n.X {
			return n
		}
		return &Unary{Op: n.Op, X: x}
	}
	return e
}
