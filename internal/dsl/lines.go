// Package dsl compiles model text into an EquationSystem: it classifies
// statements into compartment equations and parameter definitions, orders the
// definitions by dependency and substitutes them into the equations.
package dsl

import (
	"strings"
)

// Statement is one non-blank line of model text after preprocessing.
type Statement struct {
	Text string
	Line int
}

// Split preprocesses model text into statements. Non-ASCII characters are
// removed, lines are trimmed, blank lines dropped and ** is rewritten to ^.
// Line numbers refer to the original text.
func Split(text string) []Statement {
	lines := strings.Split(text, "\n")
	var out []Statement
	for i, line := range lines {
		lineNum := i + 1
		trimmed := strings.TrimSpace(stripNonASCII(line))
		if trimmed == "" {
			continue
		}
		out = append(out, Statement{
			Text: strings.ReplaceAll(trimmed, "**", "^"),
			Line: lineNum,
		})
	}
	return out
}

func stripNonASCII(s string) string {
	clean := true
	for i := 0; i < len(s); i++ {
		if s[i] > 0x7f {
			clean = false
			break
		}
	}
	if clean {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] <= 0x7f {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
