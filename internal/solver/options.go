// Package solver integrates an ODE system across dosing events. Each
// interval between events is integrated as its own segment by an adaptive
// stepper, and every accepted step keeps a cubic Hermite interpolant so the
// solution can be evaluated at any requested time.
package solver

import "fmt"

// Integration methods.
const (
	MethodRosenbrock23 = "rosenbrock23"
	MethodDopri5       = "dopri5"
)

// Options contains solver configuration parameters.
type Options struct {
	Method    string  // MethodRosenbrock23 or MethodDopri5
	RelTol    float64 // Relative error tolerance
	AbsTol    float64 // Absolute error tolerance
	FirstStep float64 // Initial step, 0 picks one automatically
	MaxStep   float64 // Largest step, 0 means the segment length
	MaxSteps  int     // Step attempts allowed for a whole run
}

// DefaultOptions returns default solver options.
func DefaultOptions() Options {
	return Options{
		Method:   MethodRosenbrock23,
		RelTol:   1e-6,
		AbsTol:   1e-9,
		MaxSteps: 100000,
	}
}

// Validate checks that the options can drive a run.
func (o Options) Validate() error {
	switch o.Method {
	case MethodRosenbrock23, MethodDopri5:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMethod, o.Method)
	}
	if !(o.RelTol > 0) || !(o.AbsTol > 0) {
		return fmt.Errorf("tolerances must be positive (rtol=%g atol=%g)", o.RelTol, o.AbsTol)
	}
	if o.FirstStep < 0 || o.MaxStep < 0 {
		return fmt.Errorf("step sizes must not be negative")
	}
	if o.MaxSteps <= 0 {
		return fmt.Errorf("max steps must be positive, got %d", o.MaxSteps)
	}
	return nil
}

func (o Options) newStepper(n int, f RHS) stepper {
	if o.Method == MethodDopri5 {
		return newDopri5(n, f)
	}
	return newRosenbrock23(n, f)
}
