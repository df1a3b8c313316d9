// Package expr implements the symbolic expression tree used by model
// definitions: parsing, printing, free-symbol collection and substitution.
//
// Nodes are immutable. Substitution builds new nodes only along changed
// paths and shares the untouched subtrees.
package expr

import (
	"math"
	"strconv"
	"strings"
)

// Expr is a node of an expression tree.
type Expr interface {
	String() string
	exprNode()
}

// Num is a numeric literal.
type Num struct{ Value float64 }

// Sym is a reference to a named symbol.
type Sym struct{ Name string }

// Call applies a builtin function to its arguments.
type Call struct {
	Func string
	Args []Expr
}

// Binary is one of + - * / ^.
type Binary struct {
	Op          byte
	Left, Right Expr
}

// Unary is a prefix + or -.
type Unary struct {
	Op byte
	X  Expr
}

func (*Num) exprNode()    {}
func (*Sym) exprNode()    {}
func (*Call) exprNode()   {}
func (*Binary) exprNode() {}
func (*Unary) exprNode()  {}

// NewNum returns a literal node.
func NewNum(v float64) *Num { return &Num{Value: v} }

// NewSym returns a symbol node.
func NewSym(name string) *Sym { return &Sym{Name: name} }

// binding strength used by the parser and the printer
const (
	precLowest = iota
	precSum
	precProduct
	precUnary
	precPower
	precAtom
)

func binaryPrec(op byte) int {
	switch op {
	case '+', '-':
		return precSum
	case '*', '/':
		return precProduct
	case '^':
		return precPower
	}
	return precLowest
}

func nodePrec(e Expr) int {
	switch n := e.(type) {
	case *Binary:
		return binaryPrec(n.Op)
	case *Unary:
		return precUnary
	case *Num:
		if n.Value < 0 {
			return precUnary
		}
	}
	return precAtom
}

func (n *Num) String() string { return formatNum(n.Value) }
func (s *Sym) String() string { return s.Name }

func (c *Call) String() string {
	var b strings.Builder
	b.WriteString(c.Func)
	b.WriteByte('(')
	for i, a := range c.Args {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(a.String())
	}
	b.WriteByte(')')
	return b.String()
}

func (u *Unary) String() string {
	return string(u.Op) + wrap(u.X, nodePrec(u.X) < precUnary)
}

func (b *Binary) String() string {
	p := binaryPrec(b.Op)
	lp, rp := nodePrec(b.Left), nodePrec(b.Right)
	var left, right string
	if b.Op == '^' {
		// right associative
		left = wrap(b.Left, lp <= p)
		right = wrap(b.Right, rp < precUnary)
		return left + "^" + right
	}
	left = wrap(b.Left, lp < p)
	right = wrap(b.Right, rp <= p)
	return left + " " + string(b.Op) + " " + right
}

func wrap(e Expr, paren bool) string {
	if paren {
		return "(" + e.String() + ")"
	}
	return e.String()
}

func formatNum(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// String formats e so that Parse(String(e)) yields an equal tree for trees
// built by Parse. A negative Num that was built directly prints with a sign
// and parses back as a Unary minus with the same value.
func String(e Expr) string {
	if e == nil {
		return ""
	}
	return e.String()
}

// Equal reports whether a and b are structurally identical.
func Equal(a, b Expr) bool {
	switch x := a.(type) {
	case *Num:
		y, ok := b.(*Num)
		return ok && x.Value == y.Value
	case *Sym:
		y, ok := b.(*Sym)
		return ok && x.Name == y.Name
	case *Call:
		y, ok := b.(*Call)
		if !ok || x.Func != y.Func || len(x.Args) != len(y.Args) {
			return false
		}
		for i := range x.Args {
			if !Equal(x.Args[i], y.Args[i]) {
				return false
			}
		}
		return true
	case *Binary:
		y, ok := b.(*Binary)
		return ok && x.Op == y.Op && Equal(x.Left, y.Left) && Equal(x.Right, y.Right)
	case *Unary:
		y, ok := b.(*Unary)
		return ok && x.Op == y.Op && Equal(x.X, y.X)
	}
	return a == nil && b == nil
}

// Constant evaluates an expression that references no symbols.
func Constant(e Expr) (float64, bool) {
	switch n := e.(type) {
	case *Num:
		return n.Value, true
	case *Call:
		f, ok := Builtin(n.Func)
		if !ok || len(n.Args) != 1 {
			return 0, false
		}
		v, ok := Constant(n.Args[0])
		if !ok {
			return 0, false
		}
		return f(v), true
	case *Unary:
		v, ok := Constant(n.X)
		if !ok {
			return 0, false
		}
		if n.Op == '-' {
			return -v, true
		}
		return v, true
	case *Binary:
		l, ok := Constant(n.Left)
		if !ok {
			return 0, false
		}
		r, ok := Constant(n.Right)
		if !ok {
			return 0, false
		}
		return ApplyBinary(n.Op, l, r), true
	}
	return 0, false
}

// ApplyBinary applies a binary operator to two numbers.
func ApplyBinary(op byte, l, r float64) float64 {
	switch op {
	case '+':
		return l + r
	case '-':
		return l - r
	case '*':
		return l * r
	case '/':
		return l / r
	case '^':
		return math.Pow(l, r)
	}
	return math.NaN()
}
