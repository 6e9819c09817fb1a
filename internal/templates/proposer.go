package templates

import (
	"context"
	"iter"
	"log/slog"

	"github.com/roach88/ta2/internal/ids"
	"github.com/roach88/ta2/internal/pipeline"
	"github.com/roach88/ta2/internal/problem"
)

// Proposer enumerates template candidates for a problem.
type Proposer struct {
	library *Library
	ids     ids.Generator
	logger  *slog.Logger
}

// ProposerOption configures a Proposer.
type ProposerOption func(*Proposer)

// WithIDGenerator sets the generator for pipeline ids.
func WithIDGenerator(g ids.Generator) ProposerOption {
	return func(p *Proposer) { p.ids = g }
}

// WithLogger sets the proposer's logger.
func WithLogger(l *slog.Logger) ProposerOption {
	return func(p *Proposer) { p.logger = l }
}

// NewProposer creates a proposer over lib. Pipeline ids default to UUIDv4.
func NewProposer(lib *Library, opts ...ProposerOption) *Proposer {
	p := &Proposer{library: lib, ids: ids.UUIDv4Generator{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Propose yields every candidate of every template matching the problem's
// task type, in library then grid order. Enumeration stops when ctx is done
// or the consumer stops pulling. A candidate that fails to build is logged
// and skipped.
func (p *Proposer) Propose(ctx context.Context, prob *problem.Problem) iter.Seq2[*pipeline.Pipeline, error] {
	return func(yield func(*pipeline.Pipeline, error) bool) {
		target := prob.TargetColumn()
		for _, t := range p.library.ForTask(prob.TaskType) {
			for n := range t.Candidates() {
				if ctx.Err() != nil {
					return
				}
				pl, err := p.library.Build(t, p.ids.Generate(), target, n)
				if err != nil {
					p.logger.Warn("candidate skipped", "template", t.Name, "candidate", n, "error", err)
					continue
				}
				p.logger.Debug("candidate proposed", "template", t.Name, "candidate", n, "pipeline_id", pl.ID())
				if !yield(pl, nil) {
					return
				}
			}
		}
	}
}
