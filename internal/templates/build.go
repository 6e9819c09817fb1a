package templates

import (
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/roach88/ta2/internal/engine"
	"github.com/roach88/ta2/internal/ir"
	"github.com/roach88/ta2/internal/pipeline"
)

// Build expands candidate n of t into a pipeline with the given id. target
// replaces TargetPlaceholder in hyperparameters.
func (l *Library) Build(t *Template, id, target string, n int) (*pipeline.Pipeline, error) {
	if n < 0 || n >= t.Candidates() {
		return nil, fmt.Errorf("template %s: candidate %d out of range [0, %d)", t.Name, n, t.Candidates())
	}
	choice := t.Choice(n)

	extra := map[string]string{"template": t.Name, "candidate": strconv.Itoa(n)}
	for i, ax := range t.Grid {
		extra[fmt.Sprintf("grid.%d.%s", ax.Step, ax.Name)] = fmt.Sprint(choice[i])
	}
	p := pipeline.New(id, pipeline.WithMetadata(pipeline.Metadata{
		Name:        t.Name,
		Description: t.Description,
		Source:      pipeline.SourceInfo{Name: ir.UserAgent, From: []string{"template:" + t.Name}},
		Extra:       extra,
	}))
	p.AddInput("input dataset")

	for i, st := range t.Steps {
		prim, err := l.registry.LookupPath(st.Primitive)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		step := pipeline.NewPrimitiveStep(prim.Descriptor())

		for _, slot := range slices.Sorted(maps.Keys(st.Arguments)) {
			ref, err := pipeline.ParseRef(st.Arguments[slot])
			if err != nil {
				return nil, fmt.Errorf("step %d argument %s: %w", i, slot, err)
			}
			if err := step.AddArgument(slot, pipeline.ArgContainer, ref); err != nil {
				return nil, err
			}
		}

		hps := maps.Clone(st.Hyperparams)
		for k, ax := range t.Grid {
			if ax.Step == i {
				hps[ax.Name] = choice[k]
			}
		}
		for _, name := range slices.Sorted(maps.Keys(hps)) {
			v, err := hyperparamValue(prim, name, hps[name], target)
			if err != nil {
				return nil, fmt.Errorf("step %d hyperparameter %s: %w", i, name, err)
			}
			if err := step.SetHyperparameter(name, v); err != nil {
				return nil, err
			}
		}

		if _, err := p.AddStep(step); err != nil {
			return nil, err
		}
		for _, slot := range st.Outputs {
			if _, err := step.AddOutput(slot); err != nil {
				return nil, err
			}
		}
	}

	out, err := pipeline.ParseRef(t.Output)
	if err != nil {
		return nil, fmt.Errorf("output: %w", err)
	}
	if _, err := p.AddOutput(out, "predictions"); err != nil {
		return nil, err
	}
	return p, nil
}

// hyperparamValue converts a template literal to a Value of the kind the
// primitive declares for name. Integers widen to doubles where a double is
// declared.
func hyperparamValue(prim engine.Primitive, name string, raw any, target string) (ir.Value, error) {
	if s, ok := raw.(string); ok && s == TargetPlaceholder {
		raw = target
	}

	declared := ir.KindInvalid
	known := false
	for _, spec := range prim.Hyperparams() {
		if spec.Name == name {
			known = true
			if spec.Default != nil {
				declared = spec.Default.Kind()
			}
		}
	}
	if !known {
		return nil, fmt.Errorf("not declared by %s", prim.Descriptor().PythonPath)
	}

	if n, ok := raw.(int64); ok && declared == ir.KindDouble {
		raw = float64(n)
	}
	v, err := ir.FromGo(raw, declared)
	if err != nil {
		return nil, err
	}
	if declared != ir.KindInvalid && v.Kind() != declared {
		return nil, fmt.Errorf("got %s, want %s", v.Kind(), declared)
	}
	return v, nil
}
