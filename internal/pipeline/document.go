package pipeline

import (
	"fmt"
	"maps"
	"time"

	"github.com/roach88/ta2/internal/ir"
)

// Document returns the structural record of the graph. The digest and the
// fitted-pipeline fields are left for the caller to fill in.
func (p *Pipeline) Document() (*ir.PipelineDocument, error) {
	doc := &ir.PipelineDocument{
		Schema:      ir.DocumentSchema,
		ID:          p.id,
		Created:     p.created.UTC().Format(time.RFC3339),
		Context:     string(p.context),
		Name:        p.metadata.Name,
		Description: p.metadata.Description,
		Users:       usersToDoc(p.metadata.Users),
	}
	if src := p.metadata.Source; src.Name != "" || src.Contact != "" || len(src.From) > 0 {
		doc.Source = &ir.SourceDoc{Name: src.Name, Contact: src.Contact, From: src.From}
	}
	if len(p.metadata.Extra) > 0 {
		doc.Extra = maps.Clone(p.metadata.Extra)
	}
	for _, name := range p.inputs {
		doc.Inputs = append(doc.Inputs, ir.InputDoc{Name: name})
	}
	for _, o := range p.outputs {
		doc.Outputs = append(doc.Outputs, ir.OutputDoc{Name: o.Name, Data: o.Ref.String()})
	}
	for i, s := range p.steps {
		if s.kind != KindPrimitive {
			return nil, &UnsupportedStepError{Step: i, Kind: s.kind}
		}
		sd := ir.StepDoc{
			Type:        ir.StepPrimitive,
			Primitive:   s.primitive,
			Arguments:   argumentsToDoc(s.arguments),
			Hyperparams: argumentsToDoc(s.hyperparams),
			Users:       usersToDoc(s.users),
		}
		for _, slot := range s.outputs {
			sd.Outputs = append(sd.Outputs, ir.StepOutputDoc{ID: slot})
		}
		doc.Steps = append(doc.Steps, sd)
	}
	return doc, nil
}

func argumentsToDoc(args map[string]Argument) map[string]ir.ArgumentDoc {
	if len(args) == 0 {
		return nil
	}
	out := make(map[string]ir.ArgumentDoc, len(args))
	for name, a := range args {
		if a.Kind == ArgValue {
			out[name] = ir.ArgumentDoc{Type: a.Kind.String(), Value: &ir.Literal{Value: a.Value}}
			continue
		}
		out[name] = ir.ArgumentDoc{Type: a.Kind.String(), Data: a.Ref.String()}
	}
	return out
}

func usersToDoc(users []User) []ir.UserDoc {
	var out []ir.UserDoc
	for _, u := range users {
		out = append(out, ir.UserDoc{ID: u.ID, Reason: u.Reason, Rationale: u.Rationale})
	}
	return out
}

// FromDocument rebuilds a graph from its structural record. Every binding
// goes through the same add-time checks as hand-built graphs.
func FromDocument(doc *ir.PipelineDocument) (*Pipeline, error) {
	opts := []Option{WithContext(Context(doc.Context))}
	if doc.Created != "" {
		created, err := time.Parse(time.RFC3339, doc.Created)
		if err != nil {
			return nil, fmt.Errorf("from document: created: %w", err)
		}
		opts = append(opts, WithCreated(created))
	}
	meta := Metadata{
		Name:        doc.Name,
		Description: doc.Description,
		Extra:       doc.Extra,
	}
	if doc.Source != nil {
		meta.Source = SourceInfo{Name: doc.Source.Name, Contact: doc.Source.Contact, From: doc.Source.From}
	}
	meta.Users = usersFromDoc(doc.Users)
	opts = append(opts, WithMetadata(meta))

	p := New(doc.ID, opts...)
	for _, in := range doc.Inputs {
		p.AddInput(in.Name)
	}
	for i, sd := range doc.Steps {
		if err := addStepFromDoc(p, i, sd); err != nil {
			return nil, fmt.Errorf("from document: %w", err)
		}
	}
	for _, od := range doc.Outputs {
		ref, err := ParseRef(od.Data)
		if err != nil {
			return nil, fmt.Errorf("from document: output %q: %w", od.Name, err)
		}
		if _, err := p.AddOutput(ref, od.Name); err != nil {
			return nil, fmt.Errorf("from document: %w", err)
		}
	}
	return p, nil
}

func addStepFromDoc(p *Pipeline, i int, sd ir.StepDoc) error {
	switch sd.Type {
	case ir.StepPrimitive:
	case ir.StepSubpipeline:
		return &UnsupportedStepError{Step: i, Kind: KindSubpipeline}
	case ir.StepPlaceholder:
		return &UnsupportedStepError{Step: i, Kind: KindPlaceholder}
	default:
		return fmt.Errorf("step %d: unknown step type %q", i, sd.Type)
	}

	s := NewPrimitiveStep(sd.Primitive)
	for slot, ad := range sd.Arguments {
		kind, ref, err := parseArgumentDoc(ad)
		if err != nil {
			return fmt.Errorf("step %d argument %q: %w", i, slot, err)
		}
		if err := s.AddArgument(slot, kind, ref); err != nil {
			return err
		}
	}
	for name, ad := range sd.Hyperparams {
		if ad.Type == ir.ArgValue {
			if ad.Value == nil || ad.Value.Value == nil {
				return fmt.Errorf("step %d hyperparameter %q: VALUE without value", i, name)
			}
			if err := s.SetHyperparameter(name, ad.Value.Value); err != nil {
				return err
			}
			continue
		}
		kind, ref, err := parseArgumentDoc(ad)
		if err != nil {
			return fmt.Errorf("step %d hyperparameter %q: %w", i, name, err)
		}
		if err := s.AddHyperparameter(name, kind, ref); err != nil {
			return err
		}
	}
	for _, u := range usersFromDoc(sd.Users) {
		s.AddUser(u)
	}
	if _, err := p.AddStep(s); err != nil {
		return err
	}
	for _, od := range sd.Outputs {
		if _, err := s.AddOutput(od.ID); err != nil {
			return err
		}
	}
	return nil
}

func parseArgumentDoc(ad ir.ArgumentDoc) (ArgumentKind, Ref, error) {
	kind, err := ParseArgumentKind(ad.Type)
	if err != nil {
		return 0, Ref{}, err
	}
	ref, err := ParseRef(ad.Data)
	if err != nil {
		return 0, Ref{}, err
	}
	return kind, ref, nil
}

func usersFromDoc(docs []ir.UserDoc) []User {
	var out []User
	for _, u := range docs {
		out = append(out, User{ID: u.ID, Reason: u.Reason, Rationale: u.Rationale})
	}
	return out
}
