package pipeline

import (
	"maps"
	"slices"

	"github.com/roach88/ta2/internal/ir"
)

// StepKind is the step variant tag.
type StepKind int

const (
	KindPrimitive StepKind = iota + 1
	KindSubpipeline
	KindPlaceholder
)

// String returns the document tag for the kind.
func (k StepKind) String() string {
	switch k {
	case KindPrimitive:
		return ir.StepPrimitive
	case KindSubpipeline:
		return ir.StepSubpipeline
	case KindPlaceholder:
		return ir.StepPlaceholder
	}
	return "INVALID"
}

// User is a user annotation attached to a pipeline or a step.
type User struct {
	ID        string
	Reason    string
	Rationale string
}

// Step is one node of the graph.
//
// A step is built detached, then added to a pipeline with AddStep, which
// fixes its index. Bindings added while detached are only checked for shape
// and duplicates; AddStep checks them against the graph. Bindings added
// after attachment are checked immediately.
type Step struct {
	kind        StepKind
	primitive   ir.PrimitiveRef
	arguments   map[string]Argument
	hyperparams map[string]Argument
	outputs     []string
	users       []User

	index int
	owner *Pipeline
}

// NewPrimitiveStep returns a detached step wrapping a primitive.
func NewPrimitiveStep(ref ir.PrimitiveRef) *Step {
	return newStep(KindPrimitive, ref)
}

// NewSubpipelineStep returns a detached subpipeline step. Such steps can be
// placed in a graph but cannot be executed or serialized.
func NewSubpipelineStep() *Step {
	return newStep(KindSubpipeline, ir.PrimitiveRef{})
}

// NewPlaceholderStep returns a detached placeholder step. Such steps can be
// placed in a graph but cannot be executed or serialized.
func NewPlaceholderStep() *Step {
	return newStep(KindPlaceholder, ir.PrimitiveRef{})
}

func newStep(kind StepKind, ref ir.PrimitiveRef) *Step {
	return &Step{
		kind:        kind,
		primitive:   ref,
		arguments:   make(map[string]Argument),
		hyperparams: make(map[string]Argument),
		index:       -1,
	}
}

// Kind returns the step variant.
func (s *Step) Kind() StepKind { return s.kind }

// Primitive returns the primitive descriptor.
func (s *Step) Primitive() ir.PrimitiveRef { return s.primitive }

// Index returns the step position, or -1 while detached.
func (s *Step) Index() int { return s.index }

// Argument returns the binding for an input slot.
func (s *Step) Argument(slot string) (Argument, bool) {
	a, ok := s.arguments[slot]
	return a, ok
}

// Arguments returns a copy of the input slot bindings.
func (s *Step) Arguments() map[string]Argument {
	return maps.Clone(s.arguments)
}

// ArgumentSlots returns the bound input slots in sorted order.
func (s *Step) ArgumentSlots() []string {
	return slices.Sorted(maps.Keys(s.arguments))
}

// Hyperparameter returns the binding for a hyperparameter.
func (s *Step) Hyperparameter(name string) (Argument, bool) {
	a, ok := s.hyperparams[name]
	return a, ok
}

// Hyperparams returns a copy of the hyperparameter bindings.
func (s *Step) Hyperparams() map[string]Argument {
	return maps.Clone(s.hyperparams)
}

// HyperparamNames returns the bound hyperparameter names in sorted order.
func (s *Step) HyperparamNames() []string {
	return slices.Sorted(maps.Keys(s.hyperparams))
}

// Outputs returns the declared output slots in declaration order.
func (s *Step) Outputs() []string {
	return slices.Clone(s.outputs)
}

// HasOutput reports whether slot was declared.
func (s *Step) HasOutput(slot string) bool {
	return slices.Contains(s.outputs, slot)
}

// Users returns the step's user annotations.
func (s *Step) Users() []User {
	return slices.Clone(s.users)
}

// AddUser appends a user annotation.
func (s *Step) AddUser(u User) {
	s.users = append(s.users, u)
}

// AddArgument binds an input slot to a pipeline input or an earlier step.
// kind must be ArgContainer, ArgData or ArgPrimitive.
func (s *Step) AddArgument(slot string, kind ArgumentKind, ref Ref) error {
	return s.bind("add_argument", s.arguments, slot, Argument{Kind: kind, Ref: ref})
}

// AddHyperparameter binds a hyperparameter to a reference.
// Literal hyperparameters go through SetHyperparameter.
func (s *Step) AddHyperparameter(name string, kind ArgumentKind, ref Ref) error {
	return s.bind("add_hyperparameter", s.hyperparams, name, Argument{Kind: kind, Ref: ref})
}

// SetHyperparameter binds a hyperparameter to a literal VALUE, replacing any
// existing binding of that name.
func (s *Step) SetHyperparameter(name string, v ir.Value) error {
	if name == "" {
		return constructionError("set_hyperparameter", s.index, name, Ref{}, ErrInvalidName)
	}
	if v == nil {
		return constructionError("set_hyperparameter", s.index, name, Ref{}, ErrKindMismatch)
	}
	s.hyperparams[name] = Argument{Kind: ArgValue, Value: v}
	return nil
}

func (s *Step) bind(op string, into map[string]Argument, slot string, a Argument) error {
	if slot == "" {
		return constructionError(op, s.index, slot, a.Ref, ErrInvalidName)
	}
	if a.Kind == ArgValue {
		return constructionError(op, s.index, slot, a.Ref, ErrKindMismatch)
	}
	if err := a.checkShape(); err != nil {
		return constructionError(op, s.index, slot, a.Ref, err)
	}
	if _, dup := into[slot]; dup {
		return constructionError(op, s.index, slot, a.Ref, ErrDuplicateSlot)
	}
	if s.owner != nil {
		if err := s.owner.checkRef(s.index, a); err != nil {
			return constructionError(op, s.index, slot, a.Ref, err)
		}
	}
	into[slot] = a
	return nil
}

// AddOutput declares an output slot and returns a reference to it.
// The step must already belong to a pipeline.
func (s *Step) AddOutput(slot string) (Ref, error) {
	if s.owner == nil {
		return Ref{}, constructionError("add_output", s.index, slot, Ref{}, ErrDetachedStep)
	}
	if slot == "" {
		return Ref{}, constructionError("add_output", s.index, slot, Ref{}, ErrInvalidName)
	}
	if s.HasOutput(slot) {
		return Ref{}, constructionError("add_output", s.index, slot, Ref{}, ErrDuplicateSlot)
	}
	s.outputs = append(s.outputs, slot)
	return StepOutputRef(s.index, slot), nil
}

// clone copies the step for another owner.
func (s *Step) clone(owner *Pipeline) *Step {
	return &Step{
		kind:        s.kind,
		primitive:   s.primitive,
		arguments:   maps.Clone(s.arguments),
		hyperparams: maps.Clone(s.hyperparams),
		outputs:     slices.Clone(s.outputs),
		users:       slices.Clone(s.users),
		index:       s.index,
		owner:       owner,
	}
}
