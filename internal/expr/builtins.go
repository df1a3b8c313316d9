package expr

import (
	"math"
	"sort"
)

var builtins = map[string]func(float64) float64{
	"sqrt": math.Sqrt,
	"sin":  math.Sin,
	"cos":  math.Cos,
	"tan":  math.Tan,
	"exp":  math.Exp,
	"log":  math.Log,
	"abs":  math.Abs,
	"asin": math.Asin,
	"acos": math.Acos,
	"atan": math.Atan,
	"sinh": math.Sinh,
	"cosh": math.Cosh,
	"tanh": math.Tanh,
}

// aliases accepted in model text
var funcAliases = map[string]string{
	"ln": "log",
}

func canonicalFunc(name string) (string, bool) {
	if a, ok := funcAliases[name]; ok {
		name = a
	}
	_, ok := builtins[name]
	return name, ok
}

// IsBuiltin reports whether name is a builtin function or an alias of one.
func IsBuiltin(name string) bool {
	_, ok := canonicalFunc(name)
	return ok
}

// Builtin returns the numeric implementation of a builtin function.
func Builtin(name string) (func(float64) float64, bool) {
	name, ok := canonicalFunc(name)
	if !ok {
		return nil, false
	}
	return builtins[name], true
}

// Builtins lists the canonical builtin function names.
func Builtins() []string {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
