package model

import "errors"

// Error kinds. Concrete errors in the other packages match one of these with
// errors.Is.
var (
	// ErrModelParse marks malformed or contradictory model text.
	ErrModelParse = errors.New("model parse error")

	// ErrInvalidInput marks missing values or malformed request fields.
	ErrInvalidInput = errors.New("invalid input")

	// ErrIntegration marks an ODE solver failure on some segment.
	ErrIntegration = errors.New("integration failure")

	// ErrOptimization marks an internal least-squares failure. Running out
	// of evaluations is a fit result, not this error.
	ErrOptimization = errors.New("optimization failure")
)
