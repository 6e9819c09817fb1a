// Package engine runs step graphs.
//
// Fit walks the steps of a cloned graph in declaration order, which the
// pipeline package guarantees is a valid topological order. For each step it
// resolves arguments from a per-run output arena indexed by step position,
// fits the step's primitive, and produces the step's outputs. The fitted
// instances are kept in a FittedPipeline. Produce walks the same order with
// a fresh arena, reusing the fitted instances unchanged.
//
// CRITICAL PATTERNS:
//
// Per-run caching:
// Every Fit and every Produce allocates its own arena. Produce never reads
// outputs cached by the fit run; only learned state carries over, inside the
// instances.
//
// Index identity:
// Outputs and instances are addressed by step index, never by primitive
// identity. The same primitive may appear at several indices with different
// fitted state.
//
// Copy-on-fit:
// Fit clones the graph before applying hyperparameter overrides, so
// concurrent fits of one graph never share a step or an instance.
//
// Failure:
// The first failing step aborts the run with a StepExecutionError. Nothing
// is committed and nothing is retried.
package engine
