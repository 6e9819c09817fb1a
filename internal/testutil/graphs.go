package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/ta2/internal/ir"
	"github.com/roach88/ta2/internal/pipeline"
)

// Ref returns the descriptor NumPrimitive uses for id.
func Ref(id string) ir.PrimitiveRef {
	return (&NumPrimitive{ID: id}).Descriptor()
}

// Chain builds a pipeline with one input feeding steps named by ids in
// sequence. Each step reads the previous "produce" output; the last one is
// exposed as the pipeline output "predictions".
func Chain(t testing.TB, id string, primitiveIDs ...string) *pipeline.Pipeline {
	t.Helper()
	p := pipeline.New(id)
	prev := p.AddInput("dataset")
	for _, pid := range primitiveIDs {
		s := pipeline.NewPrimitiveStep(Ref(pid))
		require.NoError(t, s.AddArgument("inputs", pipeline.ArgContainer, prev))
		_, err := p.AddStep(s)
		require.NoError(t, err)
		prev, err = s.AddOutput("produce")
		require.NoError(t, err)
	}
	_, err := p.AddOutput(prev, "predictions")
	require.NoError(t, err)
	return p
}
