package dsl

import (
	"errors"
	"fmt"

	"github.com/rcliao/pksim/internal/model"
)

// ErrCycle marks parameter definitions that depend on each other.
var ErrCycle = errors.New("cyclic parameter definitions")

// ParseError reports a model text problem. Line is 0 when the problem is not
// tied to a single statement.
type ParseError struct {
	Line int
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line == 0 {
		return e.Err.Error()
	}
	return fmt.Sprintf("line %d: %q: %v", e.Line, e.Text, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is matches model.ErrModelParse.
func (e *ParseError) Is(target error) bool { return target == model.ErrModelParse }
