package pipeline

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/ta2/internal/ir"
)

// RefKind says what a reference points at.
type RefKind int

const (
	// RefInput points at a declared pipeline input: "inputs.N".
	RefInput RefKind = iota + 1
	// RefStepOutput points at a step's output slot: "steps.N.slot".
	RefStepOutput
	// RefStep points at a step's fitted instance: "steps.N".
	RefStep
)

// Ref is the source of an argument.
type Ref struct {
	Kind   RefKind
	Index  int
	Output string
}

// InputRef references pipeline input i.
func InputRef(i int) Ref {
	return Ref{Kind: RefInput, Index: i}
}

// StepOutputRef references output slot of step.
func StepOutputRef(step int, slot string) Ref {
	return Ref{Kind: RefStepOutput, Index: step, Output: slot}
}

// StepRef references the fitted instance of step.
func StepRef(step int) Ref {
	return Ref{Kind: RefStep, Index: step}
}

// String renders the reference in data-reference form.
func (r Ref) String() string {
	switch r.Kind {
	case RefInput:
		return fmt.Sprintf("inputs.%d", r.Index)
	case RefStepOutput:
		return fmt.Sprintf("steps.%d.%s", r.Index, r.Output)
	case RefStep:
		return fmt.Sprintf("steps.%d", r.Index)
	}
	return "<invalid>"
}

// ParseRef parses "inputs.N", "steps.N.slot" or "steps.N".
func ParseRef(s string) (Ref, error) {
	head, rest, ok := strings.Cut(s, ".")
	if !ok {
		return Ref{}, fmt.Errorf("%w: %q", ErrInvalidRef, s)
	}
	idxStr, slot, hasSlot := strings.Cut(rest, ".")
	idx, err := strconv.Atoi(idxStr)
	if err != nil || idx < 0 {
		return Ref{}, fmt.Errorf("%w: %q", ErrInvalidRef, s)
	}
	switch head {
	case "inputs":
		if hasSlot {
			return Ref{}, fmt.Errorf("%w: %q", ErrInvalidRef, s)
		}
		return InputRef(idx), nil
	case "steps":
		if !hasSlot {
			return StepRef(idx), nil
		}
		if slot == "" {
			return Ref{}, fmt.Errorf("%w: %q", ErrInvalidRef, s)
		}
		return StepOutputRef(idx, slot), nil
	}
	return Ref{}, fmt.Errorf("%w: %q", ErrInvalidRef, s)
}

// ArgumentKind tags how an argument is passed to a primitive.
type ArgumentKind int

const (
	// ArgContainer passes a materialized dataset-shaped value.
	ArgContainer ArgumentKind = iota + 1
	// ArgData passes a column or field shaped value.
	ArgData
	// ArgPrimitive passes another step's fitted instance.
	ArgPrimitive
	// ArgValue passes a literal Value.
	ArgValue
)

// String returns the document tag for the kind.
func (k ArgumentKind) String() string {
	switch k {
	case ArgContainer:
		return ir.ArgContainer
	case ArgData:
		return ir.ArgData
	case ArgPrimitive:
		return ir.ArgPrimitive
	case ArgValue:
		return ir.ArgValue
	}
	return "INVALID"
}

// ParseArgumentKind maps a document tag to an ArgumentKind.
func ParseArgumentKind(s string) (ArgumentKind, error) {
	switch s {
	case ir.ArgContainer:
		return ArgContainer, nil
	case ir.ArgData:
		return ArgData, nil
	case ir.ArgPrimitive:
		return ArgPrimitive, nil
	case ir.ArgValue:
		return ArgValue, nil
	}
	return 0, fmt.Errorf("unknown argument kind %q", s)
}

// Argument is a kind-tagged argument binding. Ref is set for CONTAINER,
// DATA and PRIMITIVE; Value is set for VALUE.
type Argument struct {
	Kind  ArgumentKind
	Ref   Ref
	Value ir.Value
}

// checkShape validates the kind/reference pairing without looking at the
// graph.
func (a Argument) checkShape() error {
	switch a.Kind {
	case ArgContainer, ArgData:
		if a.Ref.Kind != RefInput && a.Ref.Kind != RefStepOutput {
			return ErrKindMismatch
		}
	case ArgPrimitive:
		if a.Ref.Kind != RefStep {
			return ErrKindMismatch
		}
	case ArgValue:
		if a.Value == nil {
			return ErrKindMismatch
		}
		return nil
	default:
		return ErrKindMismatch
	}
	if a.Ref.Index < 0 || (a.Ref.Kind == RefStepOutput && a.Ref.Output == "") {
		return ErrInvalidRef
	}
	return nil
}
