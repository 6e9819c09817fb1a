package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/ta2/internal/ids"
	"github.com/roach88/ta2/internal/ir"
	"github.com/roach88/ta2/internal/pipeline"
)

var (
	tracer = otel.Tracer("ta2.engine")
	meter  = otel.Meter("ta2.engine")
)

// Overrides replaces literal hyperparameters before a fit, keyed by step
// index then hyperparameter name.
type Overrides map[int]map[string]ir.Value

// Engine fits and produces step graphs. It holds no per-run state and is
// safe for concurrent use.
type Engine struct {
	registry    *Registry
	ids         ids.Generator
	stepTimeout time.Duration
	logger      *slog.Logger

	metricsOnce  sync.Once
	stepLatency  metric.Float64Histogram
	stepFailures metric.Int64Counter
	runLatency   metric.Float64Histogram
}

// Option configures an Engine.
type Option func(*Engine)

// WithIDGenerator sets the generator for fitted pipeline ids.
// Default: ids.UUIDv4Generator.
func WithIDGenerator(g ids.Generator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithStepTimeout bounds each step invocation. Zero disables the bound.
func WithStepTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.stepTimeout = d
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an Engine that resolves primitives through reg.
func New(reg *Registry, opts ...Option) *Engine {
	e := &Engine{
		registry: reg,
		ids:      ids.UUIDv4Generator{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the primitive registry.
func (e *Engine) Registry() *Registry { return e.registry }

// initMetrics lazily creates the instruments. Failures degrade to no
// metrics.
func (e *Engine) initMetrics() {
	e.metricsOnce.Do(func() {
		var err error
		e.stepLatency, err = meter.Float64Histogram("ta2_step_duration_seconds",
			metric.WithDescription("Time spent in one step invocation"),
			metric.WithUnit("s"),
		)
		if err != nil {
			e.logger.Warn("step latency metric unavailable", "error", err)
		}
		e.stepFailures, err = meter.Int64Counter("ta2_step_failures_total",
			metric.WithDescription("Number of failed step invocations"),
		)
		if err != nil {
			e.logger.Warn("step failure metric unavailable", "error", err)
		}
		e.runLatency, err = meter.Float64Histogram("ta2_run_duration_seconds",
			metric.WithDescription("Time spent in one fit or produce run"),
			metric.WithUnit("s"),
		)
		if err != nil {
			e.logger.Warn("run latency metric unavailable", "error", err)
		}
	})
}

// Fit clones p, applies overrides, and fits every step in declaration order.
// inputs are bound to the pipeline's declared inputs by position.
func (e *Engine) Fit(ctx context.Context, p *pipeline.Pipeline, inputs []any, datasetID string, overrides Overrides) (*FittedPipeline, error) {
	e.initMetrics()

	g := p.Clone()
	if err := applyOverrides(g, overrides); err != nil {
		return nil, err
	}
	if err := g.Validate(); err != nil {
		return nil, &RunError{Code: ErrCodeInvalidGraph, Message: err.Error()}
	}
	if len(inputs) < len(g.Inputs()) {
		return nil, newMissingInputError(len(g.Inputs()), len(inputs))
	}

	fittedID := e.ids.Generate()
	ctx, span := tracer.Start(ctx, "engine.Fit",
		trace.WithAttributes(
			attribute.String("pipeline.id", g.ID()),
			attribute.String("fitted_pipeline.id", fittedID),
			attribute.Int("pipeline.steps", g.NumSteps()),
		),
	)
	defer span.End()

	start := time.Now()
	run := newArena(g.NumSteps(), inputs)
	instances := make([]Instance, g.NumSteps())

	for i, step := range g.Steps() {
		if err := e.runStep(ctx, PhaseFit, i, step, run, instances); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			e.logger.Debug("fit aborted",
				"pipeline", g.ID(),
				"step", i,
				"error", err,
			)
			return nil, err
		}
	}

	e.recordRun(ctx, PhaseFit, time.Since(start))
	span.SetStatus(codes.Ok, "")
	e.logger.Debug("pipeline fitted",
		"pipeline", g.ID(),
		"fitted_pipeline", fittedID,
		"steps", g.NumSteps(),
		"duration", time.Since(start),
	)

	return &FittedPipeline{
		id:        fittedID,
		datasetID: datasetID,
		graph:     g,
		instances: instances,
		fit:       run,
	}, nil
}

// Produce runs the fitted instances on new inputs with a fresh output cache.
func (e *Engine) Produce(ctx context.Context, f *FittedPipeline, inputs []any) (*RunResult, error) {
	e.initMetrics()

	if len(inputs) < len(f.graph.Inputs()) {
		return nil, newMissingInputError(len(f.graph.Inputs()), len(inputs))
	}

	ctx, span := tracer.Start(ctx, "engine.Produce",
		trace.WithAttributes(
			attribute.String("pipeline.id", f.graph.ID()),
			attribute.String("fitted_pipeline.id", f.id),
		),
	)
	defer span.End()

	f.mu.Lock()
	defer f.mu.Unlock()

	start := time.Now()
	run := newArena(f.graph.NumSteps(), inputs)
	for i, step := range f.graph.Steps() {
		if err := e.runStep(ctx, PhaseProduce, i, step, run, f.instances); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}

	e.recordRun(ctx, PhaseProduce, time.Since(start))
	span.SetStatus(codes.Ok, "")
	return &RunResult{
		Outputs: run.pipelineOutputs(f.graph),
		arena:   run,
	}, nil
}

// runStep executes step i. In the fit phase it fits a new instance into
// instances[i]; in the produce phase it reuses instances[i].
func (e *Engine) runStep(ctx context.Context, phase Phase, i int, step *pipeline.Step, run *arena, instances []Instance) error {
	fail := func(err error) error {
		return &StepExecutionError{Step: i, Primitive: step.Primitive(), Phase: phase, Err: err}
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	if step.Kind() != pipeline.KindPrimitive {
		return fail(&pipeline.UnsupportedStepError{Step: i, Kind: step.Kind()})
	}

	ctx, span := tracer.Start(ctx, "engine.Step",
		trace.WithAttributes(
			attribute.Int("step.index", i),
			attribute.String("step.primitive", step.Primitive().ID),
			attribute.String("step.phase", string(phase)),
		),
	)
	defer span.End()

	args, err := resolveAll(step.Arguments(), run, instances)
	if err != nil {
		return fail(err)
	}

	stepCtx := ctx
	if e.stepTimeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, e.stepTimeout)
		defer cancel()
	}

	start := time.Now()
	inst := instances[i]
	if phase == PhaseFit {
		inst, err = e.fitInstance(stepCtx, step, args, run, instances)
	}
	if err == nil && inst == nil {
		err = errors.New("primitive returned no instance")
	}
	var outputs map[string]any
	if err == nil {
		outputs, err = inst.Produce(stepCtx, args)
	}
	e.recordStep(ctx, step, phase, time.Since(start), err)

	if err != nil {
		if errors.Is(stepCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fail(err)
	}
	for _, slot := range step.Outputs() {
		if _, ok := outputs[slot]; !ok {
			err := fmt.Errorf("%w: %q", ErrMissingOutput, slot)
			span.SetStatus(codes.Error, err.Error())
			return fail(err)
		}
	}

	run.outputs[i] = outputs
	instances[i] = inst
	return nil
}

func (e *Engine) fitInstance(ctx context.Context, step *pipeline.Step, args Arguments, run *arena, instances []Instance) (Instance, error) {
	prim, err := e.registry.Lookup(step.Primitive().ID)
	if err != nil {
		return nil, err
	}
	hp := make(Hyperparams)
	for _, spec := range prim.Hyperparams() {
		if spec.Default != nil {
			hp[spec.Name] = spec.Default
		}
	}
	bound, err := resolveAll(step.Hyperparams(), run, instances)
	if err != nil {
		return nil, err
	}
	for name, v := range bound {
		hp[name] = v
	}
	return prim.Fit(ctx, args, hp)
}

// resolveAll looks up every binding in the run's arena, the run inputs, or
// the instance set.
func resolveAll(bindings map[string]pipeline.Argument, run *arena, instances []Instance) (map[string]any, error) {
	out := make(map[string]any, len(bindings))
	for name, a := range bindings {
		v, err := resolve(a, run, instances)
		if err != nil {
			return nil, fmt.Errorf("resolve %q: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

func resolve(a pipeline.Argument, run *arena, instances []Instance) (any, error) {
	if a.Kind == pipeline.ArgValue {
		return a.Value, nil
	}
	switch a.Ref.Kind {
	case pipeline.RefInput:
		if a.Ref.Index >= len(run.inputs) {
			return nil, fmt.Errorf("no run input %d", a.Ref.Index)
		}
		return run.inputs[a.Ref.Index], nil
	case pipeline.RefStepOutput:
		v, ok := run.output(a.Ref.Index, a.Ref.Output)
		if !ok {
			return nil, fmt.Errorf("no output %s in this run", a.Ref)
		}
		return v, nil
	case pipeline.RefStep:
		if a.Ref.Index >= len(instances) || instances[a.Ref.Index] == nil {
			return nil, fmt.Errorf("no instance for %s", a.Ref)
		}
		return instances[a.Ref.Index], nil
	}
	return nil, fmt.Errorf("unresolvable reference %s", a.Ref)
}

func applyOverrides(g *pipeline.Pipeline, overrides Overrides) error {
	for idx, values := range overrides {
		step := g.Step(idx)
		if step == nil {
			return &RunError{
				Code:    ErrCodeInvalidOverride,
				Message: fmt.Sprintf("override names step %d of %d", idx, g.NumSteps()),
				Details: map[string]string{"step": fmt.Sprintf("%d", idx)},
			}
		}
		for name, v := range values {
			if err := step.SetHyperparameter(name, v); err != nil {
				return &RunError{
					Code:    ErrCodeInvalidOverride,
					Message: err.Error(),
					Details: map[string]string{"step": fmt.Sprintf("%d", idx), "name": name},
				}
			}
		}
	}
	return nil
}

func (e *Engine) recordStep(ctx context.Context, step *pipeline.Step, phase Phase, d time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("primitive", step.Primitive().ID),
		attribute.String("phase", string(phase)),
	)
	if e.stepLatency != nil {
		e.stepLatency.Record(ctx, d.Seconds(), attrs)
	}
	if err != nil && e.stepFailures != nil {
		e.stepFailures.Add(ctx, 1, attrs)
	}
}

func (e *Engine) recordRun(ctx context.Context, phase Phase, d time.Duration) {
	if e.runLatency != nil {
		e.runLatency.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("phase", string(phase))))
	}
}
