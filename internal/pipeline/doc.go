// Package pipeline implements the step graph: typed steps wired by typed
// argument references into a directed acyclic graph.
//
// The graph is append-only. Every mutating call checks that references only
// point at pipeline inputs or at outputs of steps with a strictly smaller
// index, so declaration order is always a valid topological order and no
// cycle detection pass is needed. Execution lives in internal/engine; this
// package has no execution logic.
//
// Construction follows the add-then-wire pattern:
//
//	p := pipeline.New("pipeline-1")
//	in := p.AddInput("dataset")
//	step := pipeline.NewPrimitiveStep(frameRef)
//	_, _ = p.AddStep(step)
//	_ = step.AddArgument("inputs", pipeline.ArgContainer, in)
//	out, _ := step.AddOutput("produce")
//	_, _ = p.AddOutput(out, "frame")
package pipeline
