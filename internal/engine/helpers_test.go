package engine

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/ta2/internal/ids"
	"github.com/roach88/ta2/internal/ir"
	"github.com/roach88/ta2/internal/pipeline"
)

// callLog records primitive calls across a run.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, s)
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// numPrim is a float64 primitive whose learned state is one number.
type numPrim struct {
	id      string
	specs   []HyperparamSpec
	log     *callLog
	fit     func(ctx context.Context, args Arguments, hp Hyperparams) (float64, error)
	produce func(state float64, args Arguments) map[string]any
}

func (p *numPrim) Descriptor() ir.PrimitiveRef {
	return ir.PrimitiveRef{ID: p.id, Version: "0.1.0", PythonPath: "ta2.test." + p.id, Name: p.id}
}

func (p *numPrim) Hyperparams() []HyperparamSpec { return p.specs }

func (p *numPrim) Fit(ctx context.Context, args Arguments, hp Hyperparams) (Instance, error) {
	if p.log != nil {
		p.log.add("fit:" + p.id)
	}
	state := 0.0
	if p.fit != nil {
		var err error
		if state, err = p.fit(ctx, args, hp); err != nil {
			return nil, err
		}
	}
	return &numInstance{prim: p, State: state}, nil
}

func (p *numPrim) Restore(data []byte) (Instance, error) {
	inst := &numInstance{prim: p}
	if err := json.Unmarshal(data, &inst.State); err != nil {
		return nil, err
	}
	return inst, nil
}

type numInstance struct {
	prim  *numPrim
	State float64
}

func (i *numInstance) Produce(_ context.Context, args Arguments) (map[string]any, error) {
	if i.prim.log != nil {
		i.prim.log.add("produce:" + i.prim.id)
	}
	return i.prim.produce(i.State, args), nil
}

func (i *numInstance) MarshalBinary() ([]byte, error) {
	return json.Marshal(i.State)
}

func num(v any) float64 {
	f, _ := v.(float64)
	return f
}

// chainPrims returns the A, B, C primitives: A emits its "value"
// hyperparameter, B multiplies its input by "factor", C adds 1.
func chainPrims(log *callLog) []Primitive {
	a := &numPrim{
		id:    "a",
		log:   log,
		specs: []HyperparamSpec{{Name: "value", Default: ir.Double(2)}},
		fit: func(_ context.Context, _ Arguments, hp Hyperparams) (float64, error) {
			return hp.Float("value", 0), nil
		},
		produce: func(state float64, _ Arguments) map[string]any {
			return map[string]any{"o": state}
		},
	}
	b := &numPrim{
		id:    "b",
		log:   log,
		specs: []HyperparamSpec{{Name: "factor", Default: ir.Double(3)}},
		fit: func(_ context.Context, _ Arguments, hp Hyperparams) (float64, error) {
			return hp.Float("factor", 1), nil
		},
		produce: func(state float64, args Arguments) map[string]any {
			return map[string]any{"o": num(args["inputs"]) * state}
		},
	}
	c := &numPrim{
		id:  "c",
		log: log,
		produce: func(_ float64, args Arguments) map[string]any {
			return map[string]any{"o": num(args["inputs"]) + 1}
		},
	}
	return []Primitive{a, b, c}
}

func primRef(id string) ir.PrimitiveRef {
	return ir.PrimitiveRef{ID: id, Version: "0.1.0", PythonPath: "ta2.test." + id, Name: id}
}

// chainGraph builds A -> B -> C plus one input no step reads.
func chainGraph(t *testing.T) *pipeline.Pipeline {
	t.Helper()
	p := pipeline.New("chain")
	p.AddInput("probe")

	var prev pipeline.Ref
	for i, id := range []string{"a", "b", "c"} {
		s := pipeline.NewPrimitiveStep(primRef(id))
		if i > 0 {
			require.NoError(t, s.AddArgument("inputs", pipeline.ArgContainer, prev))
		}
		_, err := p.AddStep(s)
		require.NoError(t, err)
		prev, err = s.AddOutput("o")
		require.NoError(t, err)
	}
	_, err := p.AddOutput(prev, "result")
	require.NoError(t, err)
	return p
}

func newTestEngine(prims []Primitive, opts ...Option) *Engine {
	opts = append([]Option{WithIDGenerator(ids.NewSequenceGenerator("fp"))}, opts...)
	return New(NewRegistry(prims...), opts...)
}
