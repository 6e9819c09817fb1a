package pipeline

import (
	"maps"
	"slices"
	"time"
)

// Context tags the purpose a pipeline was built for.
type Context string

const (
	ContextPretraining Context = "PRETRAINING"
	ContextTesting     Context = "TESTING"
	ContextEvaluation  Context = "EVALUATION"
	ContextProduction  Context = "PRODUCTION"
)

// SourceInfo records who or what produced a pipeline.
type SourceInfo struct {
	Name    string
	Contact string
	From    []string
}

// Metadata is the closed set of provenance fields. Extra holds free-form
// annotations that have no dedicated field.
type Metadata struct {
	Name        string
	Description string
	Source      SourceInfo
	Users       []User
	Extra       map[string]string
}

func (m Metadata) clone() Metadata {
	m.Source.From = slices.Clone(m.Source.From)
	m.Users = slices.Clone(m.Users)
	m.Extra = maps.Clone(m.Extra)
	return m
}

// Output is a named pipeline output resolving to a step output slot.
type Output struct {
	Name string
	Ref  Ref
}

// Pipeline is an ordered, append-only sequence of steps plus declared
// inputs and outputs.
type Pipeline struct {
	id       string
	created  time.Time
	context  Context
	metadata Metadata

	inputs  []string
	steps   []*Step
	outputs []Output
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithCreated sets the creation timestamp. The default is the current time.
func WithCreated(t time.Time) Option {
	return func(p *Pipeline) {
		p.created = t.UTC()
	}
}

// WithContext sets the context tag. The default is ContextPretraining.
func WithContext(c Context) Option {
	return func(p *Pipeline) {
		p.context = c
	}
}

// WithMetadata sets provenance metadata.
func WithMetadata(m Metadata) Option {
	return func(p *Pipeline) {
		p.metadata = m.clone()
	}
}

// New creates an empty pipeline.
func New(id string, opts ...Option) *Pipeline {
	p := &Pipeline{
		id:      id,
		created: time.Now().UTC().Truncate(time.Second),
		context: ContextPretraining,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ID returns the pipeline id.
func (p *Pipeline) ID() string { return p.id }

// Created returns the creation timestamp in UTC.
func (p *Pipeline) Created() time.Time { return p.created }

// Context returns the context tag.
func (p *Pipeline) Context() Context { return p.context }

// Metadata returns a copy of the provenance metadata.
func (p *Pipeline) Metadata() Metadata { return p.metadata.clone() }

// Inputs returns the declared input names.
func (p *Pipeline) Inputs() []string { return slices.Clone(p.inputs) }

// Outputs returns the declared pipeline outputs.
func (p *Pipeline) Outputs() []Output { return slices.Clone(p.outputs) }

// Steps returns the steps in declaration order, which is execution order.
func (p *Pipeline) Steps() []*Step { return slices.Clone(p.steps) }

// NumSteps returns the number of steps.
func (p *Pipeline) NumSteps() int { return len(p.steps) }

// Step returns step i, or nil if out of range.
func (p *Pipeline) Step(i int) *Step {
	if i < 0 || i >= len(p.steps) {
		return nil
	}
	return p.steps[i]
}

// AddInput declares a pipeline input and returns a reference to it.
func (p *Pipeline) AddInput(name string) Ref {
	p.inputs = append(p.inputs, name)
	return InputRef(len(p.inputs) - 1)
}

// AddStep appends step and returns its index. Every binding the step already
// carries is checked against the graph; on failure the graph is unchanged
// and the step stays detached.
func (p *Pipeline) AddStep(step *Step) (int, error) {
	idx := len(p.steps)
	if step == nil {
		return -1, constructionError("add_step", idx, "", Ref{}, ErrNilStep)
	}
	if step.owner != nil {
		return -1, constructionError("add_step", idx, "", Ref{}, ErrStepAttached)
	}
	if err := p.checkBindings("add_step", idx, step); err != nil {
		return -1, err
	}
	step.index = idx
	step.owner = p
	p.steps = append(p.steps, step)
	return idx, nil
}

// AddOutput exposes a step output slot as a named pipeline output and returns
// the output's position.
func (p *Pipeline) AddOutput(ref Ref, name string) (int, error) {
	if ref.Kind != RefStepOutput {
		return -1, constructionError("add_output", -1, name, ref, ErrKindMismatch)
	}
	if err := p.checkRef(len(p.steps), Argument{Kind: ArgData, Ref: ref}); err != nil {
		return -1, constructionError("add_output", -1, name, ref, err)
	}
	p.outputs = append(p.outputs, Output{Name: name, Ref: ref})
	return len(p.outputs) - 1, nil
}

// Validate re-checks every binding and output against the graph.
// Graphs built through the Add methods always pass.
func (p *Pipeline) Validate() error {
	for i, s := range p.steps {
		if s.index != i || s.owner != p {
			return constructionError("validate", i, "", Ref{}, ErrDetachedStep)
		}
		if err := p.checkBindings("validate", i, s); err != nil {
			return err
		}
	}
	for _, o := range p.outputs {
		if err := p.checkRef(len(p.steps), Argument{Kind: ArgData, Ref: o.Ref}); err != nil {
			return constructionError("validate", -1, o.Name, o.Ref, err)
		}
	}
	return nil
}

// checkBindings checks a step's arguments and hyperparameters as if the step
// sat at index idx. Slots are visited in sorted order so the reported error
// is deterministic.
func (p *Pipeline) checkBindings(op string, idx int, s *Step) error {
	for _, slot := range s.ArgumentSlots() {
		a := s.arguments[slot]
		if err := p.checkRef(idx, a); err != nil {
			return constructionError(op, idx, slot, a.Ref, err)
		}
	}
	for _, name := range s.HyperparamNames() {
		a := s.hyperparams[name]
		if err := p.checkRef(idx, a); err != nil {
			return constructionError(op, idx, name, a.Ref, err)
		}
	}
	return nil
}

// checkRef enforces the no-forward-reference rule for a binding on the step
// at index idx.
func (p *Pipeline) checkRef(idx int, a Argument) error {
	if a.Kind == ArgValue {
		return nil
	}
	if err := a.checkShape(); err != nil {
		return err
	}
	r := a.Ref
	switch r.Kind {
	case RefInput:
		if r.Index >= len(p.inputs) {
			return ErrUnknownInput
		}
	case RefStepOutput:
		if r.Index >= idx {
			return ErrForwardReference
		}
		if !p.steps[r.Index].HasOutput(r.Output) {
			return ErrUnknownOutput
		}
	case RefStep:
		if r.Index >= idx {
			return ErrForwardReference
		}
	}
	return nil
}

// Clone returns a deep copy of the graph. Literal values are shared; they
// are never mutated in place.
func (p *Pipeline) Clone() *Pipeline {
	c := &Pipeline{
		id:       p.id,
		created:  p.created,
		context:  p.context,
		metadata: p.metadata.clone(),
		inputs:   slices.Clone(p.inputs),
		outputs:  slices.Clone(p.outputs),
	}
	c.steps = make([]*Step, len(p.steps))
	for i, s := range p.steps {
		c.steps[i] = s.clone(c)
	}
	return c
}
