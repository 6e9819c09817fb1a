package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/ta2/internal/ir"
)

// ErrUnknownPrimitive is returned when a step names a primitive the registry
// does not hold.
var ErrUnknownPrimitive = errors.New("unknown primitive")

// ErrMissingOutput is returned when a primitive did not produce a declared
// output slot.
var ErrMissingOutput = errors.New("declared output not produced")

// Phase names the part of a run a step failed in.
type Phase string

const (
	PhaseFit     Phase = "fit"
	PhaseProduce Phase = "produce"
)

// StepExecutionError reports a step whose fit or produce failed.
// The run that hit it was aborted and committed nothing.
type StepExecutionError struct {
	// Step is the index of the failing step.
	Step int

	// Primitive identifies the step's primitive.
	Primitive ir.PrimitiveRef

	// Phase is the run phase.
	Phase Phase

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("%s step %d (%s): %v", e.Phase, e.Step, e.Primitive.ID, e.Err)
}

// Unwrap returns the underlying cause.
func (e *StepExecutionError) Unwrap() error {
	return e.Err
}

// IsStepExecutionError returns true if err is or wraps a StepExecutionError.
func IsStepExecutionError(err error) bool {
	var se *StepExecutionError
	return errors.As(err, &se)
}

// RunError represents a problem detected before any step runs.
type RunError struct {
	// Code identifies the error category.
	Code RunErrorCode

	// Message is a human-readable description.
	Message string

	// Details contains additional context.
	Details map[string]string
}

// RunErrorCode categorizes run errors.
type RunErrorCode string

const (
	// ErrCodeInvalidOverride indicates an override names a missing step or
	// cannot be applied.
	ErrCodeInvalidOverride RunErrorCode = "INVALID_OVERRIDE"

	// ErrCodeMissingInput indicates fewer run inputs than declared inputs.
	ErrCodeMissingInput RunErrorCode = "MISSING_INPUT"

	// ErrCodeInvalidGraph indicates the graph failed validation.
	ErrCodeInvalidGraph RunErrorCode = "INVALID_GRAPH"
)

// Error implements the error interface.
func (e *RunError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsRunError returns true if err is or wraps a RunError with the given code.
func IsRunError(err error, code RunErrorCode) bool {
	var re *RunError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

func newMissingInputError(declared, got int) *RunError {
	return &RunError{
		Code:    ErrCodeMissingInput,
		Message: fmt.Sprintf("pipeline declares %d inputs, run got %d", declared, got),
		Details: map[string]string{
			"declared": fmt.Sprintf("%d", declared),
			"got":      fmt.Sprintf("%d", got),
		},
	}
}
