package templates

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/ta2/internal/engine"
	"github.com/roach88/ta2/internal/problem"
)

//go:embed schema.cue
var schemaCUE string

//go:embed default.cue
var defaultCUE string

// Library is an ordered set of templates whose primitives all resolve in a
// registry.
type Library struct {
	registry  *engine.Registry
	templates []*Template
}

// Default compiles the embedded library.
func Default(reg *engine.Registry) (*Library, error) {
	return Load(reg, "")
}

// Load compiles the embedded library and, when dir is not empty, the CUE
// package in dir. Templates from dir replace defaults of the same name and
// are otherwise appended in declaration order.
func Load(reg *engine.Registry, dir string) (*Library, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	defaults := ctx.CompileString(defaultCUE, cue.Filename("default.cue"))
	if err := defaults.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	templates, err := compileAll(schema.Unify(defaults))
	if err != nil {
		return nil, err
	}

	if dir != "" {
		extra, err := loadDir(ctx, dir)
		if err != nil {
			return nil, err
		}
		more, err := compileAll(schema.Unify(extra))
		if err != nil {
			return nil, err
		}
		for _, t := range more {
			i := slices.IndexFunc(templates, func(d *Template) bool { return d.Name == t.Name })
			if i >= 0 {
				templates[i] = t
			} else {
				templates = append(templates, t)
			}
		}
	}

	lib := &Library{registry: reg, templates: templates}
	for _, t := range templates {
		if err := lib.checkPrimitives(t); err != nil {
			return nil, err
		}
	}
	return lib, nil
}

func loadDir(ctx *cue.Context, dir string) (cue.Value, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return cue.Value{}, fmt.Errorf("templates directory: %w", err)
	}
	if !info.IsDir() {
		return cue.Value{}, fmt.Errorf("templates directory: not a directory: %s", dir)
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.cue"))
	if err != nil {
		return cue.Value{}, fmt.Errorf("templates directory: %w", err)
	}
	if len(files) == 0 {
		return cue.Value{}, fmt.Errorf("templates directory: no CUE files found in %s", dir)
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return cue.Value{}, fmt.Errorf("templates directory: no CUE instances loaded")
	}
	inst := instances[0]
	if inst.Err != nil {
		return cue.Value{}, fmt.Errorf("loading CUE files: %w", inst.Err)
	}
	v := ctx.BuildInstance(inst)
	if err := v.Err(); err != nil {
		return cue.Value{}, formatCUEError(err)
	}
	return v, nil
}

func compileAll(v cue.Value) ([]*Template, error) {
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}
	iter, err := v.LookupPath(cue.ParsePath("templates")).Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []*Template
	for iter.Next() {
		t, err := compileTemplate(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (l *Library) checkPrimitives(t *Template) error {
	for i, st := range t.Steps {
		if _, err := l.registry.LookupPath(st.Primitive); err != nil {
			return &CompileError{Template: t.Name, Field: fmt.Sprintf("steps[%d].primitive", i), Message: err.Error()}
		}
	}
	return nil
}

// Templates returns every template in library order.
func (l *Library) Templates() []*Template {
	return slices.Clone(l.templates)
}

// ForTask returns the templates for a task type in library order.
func (l *Library) ForTask(task problem.TaskType) []*Template {
	var out []*Template
	for _, t := range l.templates {
		if t.Task == task {
			out = append(out, t)
		}
	}
	return out
}

// Template returns the named template.
func (l *Library) Template(name string) (*Template, bool) {
	i := slices.IndexFunc(l.templates, func(t *Template) bool { return t.Name == name })
	if i < 0 {
		return nil, false
	}
	return l.templates[i], true
}

// Registry returns the registry templates resolve against.
func (l *Library) Registry() *engine.Registry { return l.registry }

// Validate builds every candidate of every template and returns all
// failures. A library that validates never yields a construction error
// during a search.
func (l *Library) Validate() []error {
	var errs []error
	for _, t := range l.templates {
		for n := range t.Candidates() {
			id := fmt.Sprintf("%s-%d", t.Name, n)
			if _, err := l.Build(t, id, "target", n); err != nil {
				errs = append(errs, fmt.Errorf("template %s candidate %d: %w", t.Name, n, err))
			}
		}
	}
	return errs
}
