package templates

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/roach88/ta2/internal/problem"
)

// TargetPlaceholder in a string hyperparameter is replaced with the
// problem's target column.
const TargetPlaceholder = "$target"

// Template is a compiled pipeline template.
type Template struct {
	Name        string
	Task        problem.TaskType
	Description string
	Steps       []StepTemplate
	Output      string
	Grid        []Axis
}

// StepTemplate is one step of a template.
type StepTemplate struct {
	Primitive   string
	Arguments   map[string]string
	Hyperparams map[string]any
	Outputs     []string
}

// Axis is one dimension of a hyperparameter grid.
type Axis struct {
	Step   int
	Name   string
	Values []any
}

// Candidates returns the number of grid points, 1 for a template without a
// grid.
func (t *Template) Candidates() int {
	n := 1
	for _, a := range t.Grid {
		n *= len(a.Values)
	}
	return n
}

// Choice returns the grid values of candidate n, one per axis. The last
// axis varies fastest.
func (t *Template) Choice(n int) []any {
	out := make([]any, len(t.Grid))
	for i := len(t.Grid) - 1; i >= 0; i-- {
		vals := t.Grid[i].Values
		out[i] = vals[n%len(vals)]
		n /= len(vals)
	}
	return out
}

// compileTemplate parses one validated, concrete template value.
func compileTemplate(name string, v cue.Value) (*Template, error) {
	t := &Template{Name: name}

	task, err := v.LookupPath(cue.ParsePath("task")).String()
	if err != nil {
		return nil, fieldError(name, "task", err)
	}
	t.Task = problem.TaskType(task)

	if d := v.LookupPath(cue.ParsePath("description")); d.Exists() {
		if t.Description, err = d.String(); err != nil {
			return nil, fieldError(name, "description", err)
		}
	}

	if t.Output, err = v.LookupPath(cue.ParsePath("output")).String(); err != nil {
		return nil, fieldError(name, "output", err)
	}

	steps, err := v.LookupPath(cue.ParsePath("steps")).List()
	if err != nil {
		return nil, fieldError(name, "steps", err)
	}
	for i := 0; steps.Next(); i++ {
		st, err := compileStep(steps.Value())
		if err != nil {
			return nil, fieldError(name, fmt.Sprintf("steps[%d]", i), err)
		}
		t.Steps = append(t.Steps, st)
	}

	grid, err := v.LookupPath(cue.ParsePath("grid")).List()
	if err != nil {
		return nil, fieldError(name, "grid", err)
	}
	for i := 0; grid.Next(); i++ {
		ax, err := compileAxis(grid.Value())
		if err != nil {
			return nil, fieldError(name, fmt.Sprintf("grid[%d]", i), err)
		}
		if ax.Step >= len(t.Steps) {
			return nil, &CompileError{Template: name, Field: fmt.Sprintf("grid[%d]", i),
				Message: fmt.Sprintf("step %d out of range", ax.Step), Pos: grid.Value().Pos()}
		}
		t.Grid = append(t.Grid, ax)
	}

	return t, nil
}

func compileStep(v cue.Value) (StepTemplate, error) {
	st := StepTemplate{Arguments: map[string]string{}, Hyperparams: map[string]any{}}

	var err error
	if st.Primitive, err = v.LookupPath(cue.ParsePath("primitive")).String(); err != nil {
		return st, err
	}

	args, err := v.LookupPath(cue.ParsePath("arguments")).Fields()
	if err != nil {
		return st, err
	}
	for args.Next() {
		ref, err := args.Value().String()
		if err != nil {
			return st, err
		}
		st.Arguments[args.Label()] = ref
	}

	hps, err := v.LookupPath(cue.ParsePath("hyperparams")).Fields()
	if err != nil {
		return st, err
	}
	for hps.Next() {
		val, err := decodeValue(hps.Value())
		if err != nil {
			return st, err
		}
		st.Hyperparams[hps.Label()] = val
	}

	outs, err := v.LookupPath(cue.ParsePath("outputs")).List()
	if err != nil {
		return st, err
	}
	for outs.Next() {
		slot, err := outs.Value().String()
		if err != nil {
			return st, err
		}
		st.Outputs = append(st.Outputs, slot)
	}
	return st, nil
}

func compileAxis(v cue.Value) (Axis, error) {
	var ax Axis
	step, err := v.LookupPath(cue.ParsePath("step")).Int64()
	if err != nil {
		return ax, err
	}
	ax.Step = int(step)
	if ax.Name, err = v.LookupPath(cue.ParsePath("name")).String(); err != nil {
		return ax, err
	}
	vals, err := v.LookupPath(cue.ParsePath("values")).List()
	if err != nil {
		return ax, err
	}
	for vals.Next() {
		val, err := decodeValue(vals.Value())
		if err != nil {
			return ax, err
		}
		ax.Values = append(ax.Values, val)
	}
	return ax, nil
}

// decodeValue converts a concrete CUE scalar or list into the Go types
// ir.FromGo accepts.
func decodeValue(v cue.Value) (any, error) {
	switch k := v.IncompleteKind(); k {
	case cue.IntKind:
		n, err := v.Int64()
		return n, err
	case cue.FloatKind, cue.NumberKind:
		f, err := v.Float64()
		return f, err
	case cue.BoolKind:
		b, err := v.Bool()
		return b, err
	case cue.StringKind:
		s, err := v.String()
		return s, err
	case cue.BytesKind:
		b, err := v.Bytes()
		return b, err
	case cue.ListKind:
		it, err := v.List()
		if err != nil {
			return nil, err
		}
		out := []any{}
		for it.Next() {
			elem, err := decodeValue(it.Value())
			if err != nil {
				return nil, err
			}
			out = append(out, elem)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported hyperparameter kind %s", k)
	}
}

func fieldError(template, field string, err error) error {
	ce := &CompileError{Template: template, Field: field, Message: err.Error()}
	if f, ok := formatCUEError(err).(*CompileError); ok {
		ce.Message, ce.Pos = f.Message, f.Pos
	}
	return ce
}
