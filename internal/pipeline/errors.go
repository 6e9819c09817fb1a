package pipeline

import (
	"errors"
	"fmt"
)

// Sentinel causes carried by GraphConstructionError.
var (
	ErrForwardReference = errors.New("reference to a step that is not strictly earlier")
	ErrUnknownInput     = errors.New("reference to an undeclared pipeline input")
	ErrUnknownOutput    = errors.New("reference to an output slot the step never declared")
	ErrDuplicateSlot    = errors.New("slot already bound")
	ErrKindMismatch     = errors.New("argument kind does not match reference")
	ErrInvalidRef       = errors.New("malformed reference")
	ErrInvalidName      = errors.New("empty name")
	ErrDetachedStep     = errors.New("step has not been added to a pipeline")
	ErrStepAttached     = errors.New("step already belongs to a pipeline")
)

// ErrUnsupportedStep is returned when a subpipeline or placeholder step is
// executed or serialized. Only primitive steps are implemented.
var ErrUnsupportedStep = errors.New("unsupported step kind")

// GraphConstructionError reports invalid wiring at build time.
// The graph is left exactly as it was before the failing call.
type GraphConstructionError struct {
	// Op is the failing operation, e.g. "add_step" or "add_argument".
	Op string

	// Step is the index of the step being built, or -1.
	Step int

	// Slot is the argument, hyperparameter or output name involved.
	Slot string

	// Ref is the offending reference in string form, if any.
	Ref string

	// Err is one of the sentinel errors above.
	Err error
}

// Error implements the error interface.
func (e *GraphConstructionError) Error() string {
	msg := "graph construction: " + e.Op
	if e.Step >= 0 {
		msg += fmt.Sprintf(" step %d", e.Step)
	}
	if e.Slot != "" {
		msg += fmt.Sprintf(" slot %q", e.Slot)
	}
	if e.Ref != "" {
		msg += " ref " + e.Ref
	}
	return msg + ": " + e.Err.Error()
}

// Unwrap returns the sentinel cause.
func (e *GraphConstructionError) Unwrap() error {
	return e.Err
}

// IsGraphConstructionError reports whether err is or wraps a
// GraphConstructionError.
func IsGraphConstructionError(err error) bool {
	var ge *GraphConstructionError
	return errors.As(err, &ge)
}

func constructionError(op string, step int, slot string, ref Ref, cause error) *GraphConstructionError {
	e := &GraphConstructionError{Op: op, Step: step, Slot: slot, Err: cause}
	if ref.Kind != 0 {
		e.Ref = ref.String()
	}
	return e
}

// UnsupportedStepError identifies the step that could not be handled.
type UnsupportedStepError struct {
	Step int
	Kind StepKind
}

// Error implements the error interface.
func (e *UnsupportedStepError) Error() string {
	return fmt.Sprintf("step %d: %s steps are not supported", e.Step, e.Kind)
}

// Unwrap lets errors.Is match ErrUnsupportedStep.
func (e *UnsupportedStepError) Unwrap() error {
	return ErrUnsupportedStep
}

// ErrNilStep is returned when AddStep is given a nil step.
var ErrNilStep = errors.New("nil step")
