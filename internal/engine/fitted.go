package engine

import (
	"fmt"
	"sync"

	"github.com/roach88/ta2/internal/ir"
	"github.com/roach88/ta2/internal/pipeline"
)

// FittedPipeline pairs a graph with one fitted instance per step.
//
// The graph is a private clone; callers get copies. Produce calls on the
// same FittedPipeline are serialized because instances may keep scratch
// state; distinct FittedPipelines run concurrently.
type FittedPipeline struct {
	id        string
	datasetID string
	graph     *pipeline.Pipeline

	mu        sync.Mutex
	instances []Instance

	// fit holds the fit run's arena. Nil for restored pipelines.
	fit *arena
}

// NewFitted assembles a FittedPipeline from restored parts. instances must
// hold exactly one entry per step, in step order.
func NewFitted(id, datasetID string, graph *pipeline.Pipeline, instances []Instance) (*FittedPipeline, error) {
	if len(instances) != graph.NumSteps() {
		return nil, fmt.Errorf("fitted pipeline %s: %d instances for %d steps", id, len(instances), graph.NumSteps())
	}
	for i, inst := range instances {
		if inst == nil {
			return nil, fmt.Errorf("fitted pipeline %s: step %d has no instance", id, i)
		}
	}
	return &FittedPipeline{
		id:        id,
		datasetID: datasetID,
		graph:     graph.Clone(),
		instances: append([]Instance(nil), instances...),
	}, nil
}

// ID returns the fitted pipeline id, distinct from the graph's id.
func (f *FittedPipeline) ID() string { return f.id }

// DatasetID returns the id of the dataset the pipeline was fit on.
func (f *FittedPipeline) DatasetID() string { return f.datasetID }

// Pipeline returns a copy of the fitted graph, with overrides applied.
func (f *FittedPipeline) Pipeline() *pipeline.Pipeline { return f.graph.Clone() }

// NumSteps returns the number of steps.
func (f *FittedPipeline) NumSteps() int { return len(f.instances) }

// Document returns the structural record augmented with the fitted pipeline
// and dataset ids, sealed with its digest.
func (f *FittedPipeline) Document() (*ir.PipelineDocument, error) {
	doc, err := f.graph.Document()
	if err != nil {
		return nil, err
	}
	doc.FittedPipelineID = f.id
	doc.DatasetID = f.datasetID
	if err := doc.Seal(); err != nil {
		return nil, err
	}
	return doc, nil
}

// MarshalStep serializes the fitted instance of step i.
func (f *FittedPipeline) MarshalStep(i int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i < 0 || i >= len(f.instances) {
		return nil, fmt.Errorf("fitted pipeline %s: no step %d", f.id, i)
	}
	return f.instances[i].MarshalBinary()
}

// FitStepOutput returns what step produced on slot during the fit run.
// Restored pipelines have no fit outputs.
func (f *FittedPipeline) FitStepOutput(step int, slot string) (any, bool) {
	if f.fit == nil {
		return nil, false
	}
	return f.fit.output(step, slot)
}

// FitOutputs returns the pipeline outputs of the fit run, in declaration
// order. Restored pipelines return nil.
func (f *FittedPipeline) FitOutputs() []any {
	if f.fit == nil {
		return nil
	}
	return f.fit.pipelineOutputs(f.graph)
}

// RunResult is the outcome of a produce run.
type RunResult struct {
	// Outputs holds the pipeline outputs in declaration order.
	Outputs []any

	arena *arena
}

// StepOutput returns what step produced on slot during this run.
func (r *RunResult) StepOutput(step int, slot string) (any, bool) {
	return r.arena.output(step, slot)
}

// arena is the per-run output cache, indexed by step position.
type arena struct {
	inputs  []any
	outputs []map[string]any
}

func newArena(steps int, inputs []any) *arena {
	return &arena{
		inputs:  inputs,
		outputs: make([]map[string]any, steps),
	}
}

func (a *arena) output(step int, slot string) (any, bool) {
	if step < 0 || step >= len(a.outputs) || a.outputs[step] == nil {
		return nil, false
	}
	v, ok := a.outputs[step][slot]
	return v, ok
}

func (a *arena) pipelineOutputs(g *pipeline.Pipeline) []any {
	outs := g.Outputs()
	values := make([]any, len(outs))
	for i, o := range outs {
		values[i], _ = a.output(o.Ref.Index, o.Ref.Output)
	}
	return values
}
