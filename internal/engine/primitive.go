package engine

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/roach88/ta2/internal/ir"
	"github.com/roach88/ta2/internal/pipeline"
)

// Arguments maps input slots to resolved values. CONTAINER and DATA slots
// hold data produced upstream or supplied as run inputs; PRIMITIVE slots
// hold an Instance.
type Arguments map[string]any

// Hyperparams maps hyperparameter names to resolved values. VALUE bindings
// resolve to ir.Value; reference bindings resolve like Arguments.
type Hyperparams map[string]any

// Int returns the named int64 hyperparameter or def.
func (h Hyperparams) Int(name string, def int64) int64 {
	if v, ok := h[name].(ir.Int64); ok {
		return int64(v)
	}
	return def
}

// Float returns the named numeric hyperparameter as float64 or def.
func (h Hyperparams) Float(name string, def float64) float64 {
	if v, ok := h[name].(ir.Value); ok {
		if f, ok := ir.AsFloat64(v); ok {
			return f
		}
	}
	return def
}

// Bool returns the named bool hyperparameter or def.
func (h Hyperparams) Bool(name string, def bool) bool {
	if v, ok := h[name].(ir.Bool); ok {
		return bool(v)
	}
	return def
}

// String returns the named string hyperparameter or def.
func (h Hyperparams) String(name string, def string) string {
	if v, ok := h[name].(ir.String); ok {
		return string(v)
	}
	return def
}

// HyperparamSpec declares a tunable hyperparameter of a primitive.
type HyperparamSpec struct {
	Name        string
	Default     ir.Value
	Description string
}

// Instance is the fitted, stateful form of a primitive.
type Instance interface {
	// Produce computes the step's outputs, keyed by output slot.
	Produce(ctx context.Context, args Arguments) (map[string]any, error)

	// MarshalBinary serializes the learned state.
	MarshalBinary() ([]byte, error)
}

// Primitive is an opaque fit capability. Implementations must be safe for
// concurrent Fit calls; each call returns a distinct Instance.
type Primitive interface {
	Descriptor() ir.PrimitiveRef
	Hyperparams() []HyperparamSpec
	Fit(ctx context.Context, args Arguments, hp Hyperparams) (Instance, error)

	// Restore rebuilds an Instance from MarshalBinary output.
	Restore(state []byte) (Instance, error)
}

// Registry maps primitive ids to implementations.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]Primitive
}

// NewRegistry returns a registry holding prims.
// It panics on duplicate ids.
func NewRegistry(prims ...Primitive) *Registry {
	r := &Registry{byID: make(map[string]Primitive)}
	for _, p := range prims {
		if err := r.Register(p); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a primitive. Ids must be unique.
func (r *Registry) Register(p Primitive) error {
	id := p.Descriptor().ID
	if id == "" {
		return fmt.Errorf("register primitive: empty id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byID[id]; dup {
		return fmt.Errorf("register primitive %s: already registered", id)
	}
	r.byID[id] = p
	return nil
}

// Lookup returns the primitive registered under id.
func (r *Registry) Lookup(id string) (Primitive, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPrimitive, id)
	}
	return p, nil
}

// LookupPath returns the primitive whose descriptor has the given python
// path. Templates name primitives this way.
func (r *Registry) LookupPath(path string) (Primitive, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.byID {
		if p.Descriptor().PythonPath == path {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownPrimitive, path)
}

// List returns every registered descriptor, sorted by id.
func (r *Registry) List() []ir.PrimitiveRef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ir.PrimitiveRef, 0, len(r.byID))
	for _, id := range slices.Sorted(maps.Keys(r.byID)) {
		out = append(out, r.byID[id].Descriptor())
	}
	return out
}

// EffectiveHyperparams returns the literal hyperparameters a primitive step
// runs with: its VALUE bindings over the primitive's declared defaults.
// Reference-bound hyperparameters are not included.
func (r *Registry) EffectiveHyperparams(step *pipeline.Step) (map[string]ir.Value, error) {
	prim, err := r.Lookup(step.Primitive().ID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]ir.Value)
	for _, spec := range prim.Hyperparams() {
		if spec.Default != nil {
			out[spec.Name] = spec.Default
		}
	}
	for name, a := range step.Hyperparams() {
		if a.Kind == pipeline.ArgValue {
			out[name] = a.Value
		} else {
			delete(out, name)
		}
	}
	return out, nil
}
