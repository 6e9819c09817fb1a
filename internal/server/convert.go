package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/roach88/ta2/internal/api"
	"github.com/roach88/ta2/internal/dataset"
	"github.com/roach88/ta2/internal/engine"
	"github.com/roach88/ta2/internal/ir"
	"github.com/roach88/ta2/internal/pipeline"
	"github.com/roach88/ta2/internal/problem"
	"github.com/roach88/ta2/internal/scoring"
	"github.com/roach88/ta2/internal/session"
)

// allowedValueTypes lists every value tag the server accepts and emits.
func allowedValueTypes() []string {
	var out []string
	for _, k := range []ir.Kind{ir.KindInt64, ir.KindDouble, ir.KindBool, ir.KindString, ir.KindBytes} {
		out = append(out, k.String(), k.String()+"_list")
	}
	return append(out, "dataset_uri")
}

func problemFromWire(d *api.ProblemDescription) *problem.Problem {
	p := &problem.Problem{
		ID:          d.Problem.ID,
		Version:     d.Problem.Version,
		Name:        d.Problem.Name,
		TaskType:    problem.TaskType(d.Problem.TaskType),
		TaskSubtype: d.Problem.TaskSubtype,
		Metrics:     metricsFromWire(d.Problem.PerformanceMetrics),
	}
	for _, in := range d.Inputs {
		pin := problem.Input{DatasetID: in.DatasetID}
		for _, t := range in.Targets {
			pin.Targets = append(pin.Targets, problem.Target{
				TargetIndex: t.TargetIndex,
				ResourceID:  t.ResourceID,
				ColumnIndex: t.ColumnIndex,
				ColumnName:  t.ColumnName,
			})
		}
		p.Inputs = append(p.Inputs, pin)
	}
	return p
}

func metricsFromWire(ms []api.PerformanceMetric) []problem.PerformanceMetric {
	var out []problem.PerformanceMetric
	for _, m := range ms {
		out = append(out, problem.PerformanceMetric{Metric: problem.Metric(m.Metric), K: m.K, PosLabel: m.PosLabel})
	}
	return out
}

func metricToWire(m problem.PerformanceMetric) api.PerformanceMetric {
	return api.PerformanceMetric{Metric: string(m.Metric), K: m.K, PosLabel: m.PosLabel}
}

func scoresToWire(rs []scoring.Result) []api.Score {
	out := make([]api.Score, 0, len(rs))
	for _, r := range rs {
		out = append(out, api.Score{Metric: metricToWire(r.Metric), Value: api.ValueOf(ir.Double(r.Value))})
	}
	return out
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func progressToWire(p session.Progress) api.Progress {
	return api.Progress{State: string(p.State), Status: p.Status, Start: timestamp(p.Start), End: timestamp(p.End)}
}

func searchResultToWire(r session.SearchResult) *api.GetSearchSolutionsResultsResponse {
	resp := &api.GetSearchSolutionsResultsResponse{
		Progress:      progressToWire(r.Progress),
		DoneTicks:     float64(r.DoneTicks),
		AllTicks:      float64(r.AllTicks),
		SolutionID:    r.SolutionID,
		InternalScore: r.InternalScore,
	}
	if len(r.Scores) > 0 {
		resp.Scores = []api.SolutionSearchScore{{
			ScoringConfiguration: api.ScoringConfiguration{
				Method:         r.ScoringConfig.Method,
				TrainTestRatio: r.ScoringConfig.TrainTestRatio,
				RandomSeed:     r.ScoringConfig.RandomSeed,
			},
			Scores: scoresToWire(r.Scores),
		}}
	}
	return resp
}

// outputValue converts one produced output. Columns and label lists become
// string lists; anything else is reported as an error value.
func outputValue(v any) api.Value {
	switch out := v.(type) {
	case dataset.Column:
		return api.StringListValue(out.Values)
	case []string:
		return api.StringListValue(out)
	case ir.Value:
		return api.ValueOf(out)
	}
	msg := fmt.Sprintf("output of type %T cannot be exposed", v)
	return api.Value{Error: &msg}
}

func exposedOutputs(outputs map[string]any) map[string]api.Value {
	out := make(map[string]api.Value, len(outputs))
	for name, v := range outputs {
		out[name] = outputValue(v)
	}
	return out
}

func primitiveToWire(r ir.PrimitiveRef) api.Primitive {
	return api.Primitive{ID: r.ID, Version: r.Version, PythonPath: r.PythonPath, Name: r.Name, Digest: r.Digest}
}

func primitiveFromWire(p api.Primitive) ir.PrimitiveRef {
	return ir.PrimitiveRef{ID: p.ID, Version: p.Version, PythonPath: p.PythonPath, Name: p.Name, Digest: p.Digest}
}

func usersToWire(us []ir.UserDoc) []api.PipelineDescriptionUser {
	var out []api.PipelineDescriptionUser
	for _, u := range us {
		out = append(out, api.PipelineDescriptionUser{ID: u.ID, Reason: u.Reason, Rationale: u.Rationale})
	}
	return out
}

func usersFromWire(us []api.PipelineDescriptionUser) []ir.UserDoc {
	var out []ir.UserDoc
	for _, u := range us {
		out = append(out, ir.UserDoc{ID: u.ID, Reason: u.Reason, Rationale: u.Rationale})
	}
	return out
}

// descriptionFromDocument converts a structural document to its wire form.
func descriptionFromDocument(doc *ir.PipelineDocument) (*api.PipelineDescription, error) {
	d := &api.PipelineDescription{
		ID:          doc.ID,
		Created:     doc.Created,
		Context:     doc.Context,
		Name:        doc.Name,
		Description: doc.Description,
		Users:       usersToWire(doc.Users),
	}
	if doc.Source != nil {
		d.Source = &api.PipelineSource{Name: doc.Source.Name, Contact: doc.Source.Contact, Pipelines: doc.Source.From}
	}
	for _, in := range doc.Inputs {
		d.Inputs = append(d.Inputs, api.PipelineDescriptionInput{Name: in.Name})
	}
	for _, out := range doc.Outputs {
		d.Outputs = append(d.Outputs, api.PipelineDescriptionOutput{Name: out.Name, Data: out.Data})
	}
	for i, sd := range doc.Steps {
		if sd.Type != ir.StepPrimitive {
			return nil, fmt.Errorf("step %d: %w: %s", i, pipeline.ErrUnsupportedStep, sd.Type)
		}
		step := &api.PrimitivePipelineDescriptionStep{
			Primitive: primitiveToWire(sd.Primitive),
			Users:     usersToWire(sd.Users),
		}
		if len(sd.Arguments) > 0 {
			step.Arguments = make(map[string]api.PrimitiveStepArgument, len(sd.Arguments))
		}
		for slot, ad := range sd.Arguments {
			a, err := argumentToWire(ad)
			if err != nil {
				return nil, fmt.Errorf("step %d argument %q: %w", i, slot, err)
			}
			step.Arguments[slot] = a
		}
		if len(sd.Hyperparams) > 0 {
			step.Hyperparams = make(map[string]api.PrimitiveStepHyperparameter, len(sd.Hyperparams))
		}
		for name, ad := range sd.Hyperparams {
			hp, err := hyperparamToWire(ad)
			if err != nil {
				return nil, fmt.Errorf("step %d hyperparameter %q: %w", i, name, err)
			}
			step.Hyperparams[name] = hp
		}
		for _, o := range sd.Outputs {
			step.Outputs = append(step.Outputs, api.StepOutput{ID: o.ID})
		}
		d.Steps = append(d.Steps, api.PipelineDescriptionStep{Primitive: step})
	}
	return d, nil
}

func argumentToWire(ad ir.ArgumentDoc) (api.PrimitiveStepArgument, error) {
	switch ad.Type {
	case ir.ArgContainer:
		return api.PrimitiveStepArgument{Container: &api.ContainerArgument{Data: ad.Data}}, nil
	case ir.ArgData:
		return api.PrimitiveStepArgument{Data: &api.DataArgument{Data: ad.Data}}, nil
	case ir.ArgPrimitive:
		ref, err := pipeline.ParseRef(ad.Data)
		if err != nil {
			return api.PrimitiveStepArgument{}, err
		}
		return api.PrimitiveStepArgument{Primitive: &api.PrimitiveArgument{Data: ref.Index}}, nil
	}
	return api.PrimitiveStepArgument{}, fmt.Errorf("%s arguments have no wire form", ad.Type)
}

func hyperparamToWire(ad ir.ArgumentDoc) (api.PrimitiveStepHyperparameter, error) {
	switch ad.Type {
	case ir.ArgContainer:
		return api.PrimitiveStepHyperparameter{Container: &api.ContainerArgument{Data: ad.Data}}, nil
	case ir.ArgData:
		return api.PrimitiveStepHyperparameter{Data: &api.DataArgument{Data: ad.Data}}, nil
	case ir.ArgPrimitive:
		ref, err := pipeline.ParseRef(ad.Data)
		if err != nil {
			return api.PrimitiveStepHyperparameter{}, err
		}
		return api.PrimitiveStepHyperparameter{Primitive: &api.PrimitiveArgument{Data: ref.Index}}, nil
	case ir.ArgValue:
		if ad.Value == nil || ad.Value.Value == nil {
			return api.PrimitiveStepHyperparameter{}, fmt.Errorf("VALUE without value")
		}
		return api.PrimitiveStepHyperparameter{Value: &api.ValueArgument{Data: api.ValueOf(ad.Value.Value)}}, nil
	}
	return api.PrimitiveStepHyperparameter{}, fmt.Errorf("unknown argument type %q", ad.Type)
}

// documentFromDescription converts a wire pipeline description to a
// structural document. Literal hyperparameters take the declared kind of
// the primitive's matching hyperparameter, so empty lists keep their type.
func documentFromDescription(d *api.PipelineDescription, reg *engine.Registry) (*ir.PipelineDocument, error) {
	doc := &ir.PipelineDocument{
		Schema:      ir.DocumentSchema,
		ID:          d.ID,
		Created:     d.Created,
		Context:     d.Context,
		Name:        d.Name,
		Description: d.Description,
		Users:       usersFromWire(d.Users),
	}
	if doc.Context == "" {
		doc.Context = string(pipeline.ContextPretraining)
	}
	if d.Source != nil {
		doc.Source = &ir.SourceDoc{Name: d.Source.Name, Contact: d.Source.Contact, From: d.Source.Pipelines}
	}
	for _, in := range d.Inputs {
		doc.Inputs = append(doc.Inputs, ir.InputDoc{Name: in.Name})
	}
	for _, out := range d.Outputs {
		doc.Outputs = append(doc.Outputs, ir.OutputDoc{Name: out.Name, Data: out.Data})
	}
	for i, ws := range d.Steps {
		sd, err := stepFromWire(ws, reg)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		doc.Steps = append(doc.Steps, sd)
	}
	return doc, nil
}

func stepFromWire(ws api.PipelineDescriptionStep, reg *engine.Registry) (ir.StepDoc, error) {
	switch {
	case ws.Pipeline != nil && ws.Primitive == nil && ws.Placeholder == nil:
		return ir.StepDoc{Type: ir.StepSubpipeline}, nil
	case ws.Placeholder != nil && ws.Primitive == nil && ws.Pipeline == nil:
		return ir.StepDoc{Type: ir.StepPlaceholder}, nil
	case ws.Primitive == nil || ws.Pipeline != nil || ws.Placeholder != nil:
		return ir.StepDoc{}, fmt.Errorf("exactly one of primitive, pipeline or placeholder must be set")
	}

	prim, err := reg.Lookup(ws.Primitive.Primitive.ID)
	if err != nil {
		return ir.StepDoc{}, err
	}
	declared := make(map[string]ir.Kind)
	for _, spec := range prim.Hyperparams() {
		if spec.Default != nil {
			declared[spec.Name] = spec.Default.Kind()
		}
	}

	sd := ir.StepDoc{
		Type:      ir.StepPrimitive,
		Primitive: primitiveFromWire(ws.Primitive.Primitive),
		Users:     usersFromWire(ws.Primitive.Users),
	}
	if len(ws.Primitive.Arguments) > 0 {
		sd.Arguments = make(map[string]ir.ArgumentDoc, len(ws.Primitive.Arguments))
	}
	for slot, a := range ws.Primitive.Arguments {
		ad, err := argumentFromWire(a)
		if err != nil {
			return ir.StepDoc{}, fmt.Errorf("argument %q: %w", slot, err)
		}
		sd.Arguments[slot] = ad
	}
	if len(ws.Primitive.Hyperparams) > 0 {
		sd.Hyperparams = make(map[string]ir.ArgumentDoc, len(ws.Primitive.Hyperparams))
	}
	for name, h := range ws.Primitive.Hyperparams {
		ad, err := hyperparamFromWire(h, declared[name])
		if err != nil {
			return ir.StepDoc{}, fmt.Errorf("hyperparameter %q: %w", name, err)
		}
		sd.Hyperparams[name] = ad
	}
	for _, o := range ws.Primitive.Outputs {
		sd.Outputs = append(sd.Outputs, ir.StepOutputDoc{ID: o.ID})
	}
	return sd, nil
}

func argumentFromWire(a api.PrimitiveStepArgument) (ir.ArgumentDoc, error) {
	switch {
	case a.Container != nil && a.Data == nil && a.Primitive == nil:
		return ir.ArgumentDoc{Type: ir.ArgContainer, Data: a.Container.Data}, nil
	case a.Data != nil && a.Container == nil && a.Primitive == nil:
		return ir.ArgumentDoc{Type: ir.ArgData, Data: a.Data.Data}, nil
	case a.Primitive != nil && a.Container == nil && a.Data == nil:
		return ir.ArgumentDoc{Type: ir.ArgPrimitive, Data: pipeline.StepRef(a.Primitive.Data).String()}, nil
	}
	return ir.ArgumentDoc{}, errors.New("exactly one of container, data or primitive must be set")
}

func hyperparamFromWire(h api.PrimitiveStepHyperparameter, declared ir.Kind) (ir.ArgumentDoc, error) {
	set := 0
	var ad ir.ArgumentDoc
	if h.Container != nil {
		set++
		ad = ir.ArgumentDoc{Type: ir.ArgContainer, Data: h.Container.Data}
	}
	if h.Data != nil {
		set++
		ad = ir.ArgumentDoc{Type: ir.ArgData, Data: h.Data.Data}
	}
	if h.Primitive != nil {
		set++
		ad = ir.ArgumentDoc{Type: ir.ArgPrimitive, Data: pipeline.StepRef(h.Primitive.Data).String()}
	}
	if h.Value != nil {
		set++
		v, err := h.Value.Data.IR(declared)
		if err != nil {
			return ir.ArgumentDoc{}, err
		}
		ad = ir.ArgumentDoc{Type: ir.ArgValue, Value: &ir.Literal{Value: v}}
	}
	if set != 1 {
		return ir.ArgumentDoc{}, fmt.Errorf("exactly one binding must be set, got %d", set)
	}
	return ad, nil
}

// pipelineFromDescription builds a graph from its wire form. Every binding
// goes through the graph's add-time checks.
func pipelineFromDescription(d *api.PipelineDescription, reg *engine.Registry) (*pipeline.Pipeline, error) {
	doc, err := documentFromDescription(d, reg)
	if err != nil {
		return nil, err
	}
	return pipeline.FromDocument(doc)
}

// describeSteps lists the effective literal hyperparameters of every step.
func describeSteps(p *pipeline.Pipeline, reg *engine.Registry) ([]api.StepDescription, error) {
	out := make([]api.StepDescription, 0, p.NumSteps())
	for i := range p.NumSteps() {
		hps, err := reg.EffectiveHyperparams(p.Step(i))
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		desc := &api.PrimitiveStepDescription{Hyperparams: make(map[string]api.Value, len(hps))}
		for name, v := range hps {
			desc.Hyperparams[name] = api.ValueOf(v)
		}
		out = append(out, api.StepDescription{Primitive: desc})
	}
	return out, nil
}
