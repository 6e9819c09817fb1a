// Package primitives implements the reference primitive library.
//
// Every primitive is deterministic and keeps its learned state as JSON, so a
// fitted pipeline saved by one process restores bit-for-bit in another. All
// primitives read the "inputs" argument and write the "produce" output;
// learners also read "outputs" (the target column) at fit time.
package primitives

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/ta2/internal/dataset"
	"github.com/roach88/ta2/internal/engine"
	"github.com/roach88/ta2/internal/ir"
)

// Version is stamped into every descriptor.
const Version = "0.3.0"

// Output is the slot every reference primitive produces.
const Output = "produce"

// Python paths of the reference primitives. Templates refer to primitives
// by path.
const (
	PathDatasetToFrame    = "ta2.primitives.data.DatasetToFrame"
	PathExtractAttributes = "ta2.primitives.data.ExtractAttributes"
	PathExtractTargets    = "ta2.primitives.data.ExtractTargets"
	PathMeanImputer       = "ta2.primitives.preprocessing.MeanImputer"
	PathStandardScaler    = "ta2.primitives.preprocessing.StandardScaler"
	PathNearestCentroid   = "ta2.primitives.classification.NearestCentroid"
	PathKNearestNeighbors = "ta2.primitives.classification.KNearestNeighbors"
	PathMajorityClass     = "ta2.primitives.classification.MajorityClass"
	PathMeanRegressor     = "ta2.primitives.regression.MeanRegressor"
	PathRidgeRegression   = "ta2.primitives.regression.RidgeRegression"
)

var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://ta2.dev/primitives"))

// descriptor builds a reference with an id derived from path, so ids are
// stable across processes and releases.
func descriptor(path, name string) ir.PrimitiveRef {
	ref := ir.PrimitiveRef{
		ID:         uuid.NewSHA1(idNamespace, []byte(path)).String(),
		Version:    Version,
		PythonPath: path,
		Name:       name,
	}
	digest, err := ir.ContentDigest(ir.DomainPrimitive, map[string]any{
		"id":          ref.ID,
		"version":     ref.Version,
		"python_path": ref.PythonPath,
	})
	if err != nil {
		panic(err)
	}
	ref.Digest = digest
	return ref
}

// primitive adapts a typed fit/produce pair to engine.Primitive. S is the
// learned state and must round-trip through encoding/json.
type primitive[S any] struct {
	ref     ir.PrimitiveRef
	specs   []engine.HyperparamSpec
	fit     func(args engine.Arguments, hp engine.Hyperparams) (S, error)
	produce func(state *S, args engine.Arguments) (any, error)
}

func (p *primitive[S]) Descriptor() ir.PrimitiveRef { return p.ref }

func (p *primitive[S]) Hyperparams() []engine.HyperparamSpec { return p.specs }

func (p *primitive[S]) Fit(ctx context.Context, args engine.Arguments, hp engine.Hyperparams) (engine.Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	state, err := p.fit(args, hp)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.ref.Name, err)
	}
	return &instance[S]{prim: p, state: state}, nil
}

func (p *primitive[S]) Restore(data []byte) (engine.Instance, error) {
	inst := &instance[S]{prim: p}
	if err := json.Unmarshal(data, &inst.state); err != nil {
		return nil, fmt.Errorf("restore %s: %w", p.ref.Name, err)
	}
	return inst, nil
}

type instance[S any] struct {
	prim  *primitive[S]
	state S
}

func (i *instance[S]) Produce(ctx context.Context, args engine.Arguments) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err := i.prim.produce(&i.state, args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", i.prim.ref.Name, err)
	}
	return map[string]any{Output: out}, nil
}

func (i *instance[S]) MarshalBinary() ([]byte, error) {
	return json.Marshal(i.state)
}

// none is the state of primitives that learn nothing.
type none struct{}

func arg[T any](args engine.Arguments, slot string) (T, error) {
	v, ok := args[slot].(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("argument %q: want %T, got %T", slot, zero, args[slot])
	}
	return v, nil
}

func matrixArg(args engine.Arguments) (*dataset.Matrix, error) {
	return arg[*dataset.Matrix](args, "inputs")
}

func targetsArg(args engine.Arguments, rows int) (dataset.Column, error) {
	y, err := arg[dataset.Column](args, "outputs")
	if err != nil {
		return y, err
	}
	if y.Len() != rows {
		return y, fmt.Errorf("targets have %d rows, inputs have %d", y.Len(), rows)
	}
	if y.Len() == 0 {
		return y, fmt.Errorf("no training rows")
	}
	return y, nil
}
