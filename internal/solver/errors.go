package solver

import (
	"errors"
	"fmt"

	"github.com/rcliao/pksim/internal/model"
)

// Integration errors.
var (
	// ErrStepTooSmall indicates the adaptive step fell below its minimum.
	ErrStepTooSmall = errors.New("solver: step size below minimum")

	// ErrMaxSteps indicates the step budget of the run was exhausted.
	ErrMaxSteps = errors.New("solver: maximum number of steps exceeded")

	// ErrNonFinite indicates the state or its derivative became NaN or Inf.
	ErrNonFinite = errors.New("solver: non-finite state")

	// ErrUnknownMethod indicates an unsupported integration method.
	ErrUnknownMethod = errors.New("solver: unknown method")
)

// IntegrationError wraps an error with the segment and time it occurred at.
type IntegrationError struct {
	Segment int
	Time    float64
	Err     error
}

func (e *IntegrationError) Error() string {
	return fmt.Sprintf("segment %d at t=%g: %v", e.Segment, e.Time, e.Err)
}

func (e *IntegrationError) Unwrap() error {
	return e.Err
}

// Is matches model.ErrIntegration.
func (e *IntegrationError) Is(target error) bool { return target == model.ErrIntegration }
