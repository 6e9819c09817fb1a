// Package testutil provides primitives, graphs and proposers for tests.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/roach88/ta2/internal/engine"
	"github.com/roach88/ta2/internal/ir"
)

// NumPrimitive is a float64 primitive whose learned state is one number.
// FitFunc computes the state; ProduceFunc maps state and arguments to the
// "produce" output. Nil funcs learn 0 and pass "inputs" through.
type NumPrimitive struct {
	ID          string
	Specs       []engine.HyperparamSpec
	FitFunc     func(ctx context.Context, args engine.Arguments, hp engine.Hyperparams) (float64, error)
	ProduceFunc func(state float64, args engine.Arguments) (any, error)

	mu    sync.Mutex
	fits  int
	calls []string
}

// Descriptor implements engine.Primitive.
func (p *NumPrimitive) Descriptor() ir.PrimitiveRef {
	return ir.PrimitiveRef{
		ID:         p.ID,
		Version:    "0.0.1",
		PythonPath: "ta2.testutil." + p.ID,
		Name:       p.ID,
	}
}

// Hyperparams implements engine.Primitive.
func (p *NumPrimitive) Hyperparams() []engine.HyperparamSpec { return p.Specs }

// Fit implements engine.Primitive.
func (p *NumPrimitive) Fit(ctx context.Context, args engine.Arguments, hp engine.Hyperparams) (engine.Instance, error) {
	p.record("fit")
	state := 0.0
	if p.FitFunc != nil {
		var err error
		if state, err = p.FitFunc(ctx, args, hp); err != nil {
			return nil, err
		}
	}
	return &numInstance{prim: p, State: state}, nil
}

// Restore implements engine.Primitive.
func (p *NumPrimitive) Restore(data []byte) (engine.Instance, error) {
	inst := &numInstance{prim: p}
	if err := json.Unmarshal(data, &inst.State); err != nil {
		return nil, fmt.Errorf("restore %s: %w", p.ID, err)
	}
	return inst, nil
}

// Fits returns how many times Fit ran.
func (p *NumPrimitive) Fits() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fits
}

// Calls returns the recorded "fit" and "produce" calls in order.
func (p *NumPrimitive) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *NumPrimitive) record(call string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if call == "fit" {
		p.fits++
	}
	p.calls = append(p.calls, call)
}

type numInstance struct {
	prim  *NumPrimitive
	State float64
}

func (i *numInstance) Produce(_ context.Context, args engine.Arguments) (map[string]any, error) {
	i.prim.record("produce")
	if i.prim.ProduceFunc == nil {
		return map[string]any{"produce": args["inputs"]}, nil
	}
	out, err := i.prim.ProduceFunc(i.State, args)
	if err != nil {
		return nil, err
	}
	return map[string]any{"produce": out}, nil
}

func (i *numInstance) MarshalBinary() ([]byte, error) {
	return json.Marshal(i.State)
}

// Float returns v as a float64, or 0.
func Float(v any) float64 {
	f, _ := v.(float64)
	return f
}

// Offset learns the mean of its []float64 "inputs" at fit time and adds it
// to every element at produce time.
func Offset(id string) *NumPrimitive {
	return &NumPrimitive{
		ID: id,
		FitFunc: func(_ context.Context, args engine.Arguments, _ engine.Hyperparams) (float64, error) {
			xs, ok := args["inputs"].([]float64)
			if !ok || len(xs) == 0 {
				return 0, fmt.Errorf("offset: inputs must be a non-empty []float64, got %T", args["inputs"])
			}
			sum := 0.0
			for _, x := range xs {
				sum += x
			}
			return sum / float64(len(xs)), nil
		},
		ProduceFunc: func(state float64, args engine.Arguments) (any, error) {
			xs, _ := args["inputs"].([]float64)
			out := make([]float64, len(xs))
			for i, x := range xs {
				out[i] = x + state
			}
			return out, nil
		},
	}
}

// Scale multiplies every element of its []float64 "inputs" by the "factor"
// hyperparameter.
func Scale(id string) *NumPrimitive {
	return &NumPrimitive{
		ID:    id,
		Specs: []engine.HyperparamSpec{{Name: "factor", Default: ir.Double(2)}},
		FitFunc: func(_ context.Context, _ engine.Arguments, hp engine.Hyperparams) (float64, error) {
			return hp.Float("factor", 1), nil
		},
		ProduceFunc: func(state float64, args engine.Arguments) (any, error) {
			xs, _ := args["inputs"].([]float64)
			out := make([]float64, len(xs))
			for i, x := range xs {
				out[i] = x * state
			}
			return out, nil
		},
	}
}

// Failing fails every fit with err.
func Failing(id string, err error) *NumPrimitive {
	return &NumPrimitive{
		ID: id,
		FitFunc: func(context.Context, engine.Arguments, engine.Hyperparams) (float64, error) {
			return 0, err
		},
	}
}
