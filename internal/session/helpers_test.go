package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/ta2/internal/dataset"
	"github.com/roach88/ta2/internal/engine"
	"github.com/roach88/ta2/internal/ids"
	"github.com/roach88/ta2/internal/pipeline"
	"github.com/roach88/ta2/internal/primitives"
	"github.com/roach88/ta2/internal/problem"
	"github.com/roach88/ta2/internal/templates"
	"github.com/roach88/ta2/internal/testutil"
)

var errBoom = errors.New("boom")

type loaderFunc func(ctx context.Context, uri string) (*dataset.Dataset, error)

func (f loaderFunc) Load(ctx context.Context, uri string) (*dataset.Dataset, error) {
	return f(ctx, uri)
}

func toyDataset() *dataset.Dataset {
	return &dataset.Dataset{
		ID:      "toy",
		Columns: []string{"x", "y", "label"},
		Rows: [][]string{
			{"0", "0", "a"}, {"1", "0", "a"}, {"0", "1", "a"}, {"1", "1", "a"},
			{"10", "10", "b"}, {"11", "10", "b"}, {"10", "11", "b"}, {"11", "11", "b"},
		},
	}
}

// toyLoader serves toyDataset under "toy" and fails every other uri.
func toyLoader() DatasetLoader {
	return loaderFunc(func(_ context.Context, uri string) (*dataset.Dataset, error) {
		if uri == "toy" {
			return toyDataset(), nil
		}
		return nil, fmt.Errorf("no dataset at %s", uri)
	})
}

func classificationProblem() *problem.Problem {
	return &problem.Problem{
		ID:       "toy_problem",
		TaskType: problem.Classification,
		Inputs:   []problem.Input{{DatasetID: "toy", Targets: []problem.Target{{ColumnName: "label"}}}},
	}
}

// testRegistry holds the reference primitives plus a primitive whose fit
// always fails with errBoom.
func testRegistry(t *testing.T) *engine.Registry {
	t.Helper()
	reg := primitives.Registry()
	require.NoError(t, reg.Register(testutil.Failing("boom", errBoom)))
	return reg
}

// templateCandidates returns the first n classification candidates of the
// default template library, with ids pl-1, pl-2, ...
func templateCandidates(t *testing.T, reg *engine.Registry, n int) []*pipeline.Pipeline {
	t.Helper()
	lib, err := templates.Default(reg)
	require.NoError(t, err)
	prop := templates.NewProposer(lib, templates.WithIDGenerator(ids.NewSequenceGenerator("pl")))

	var out []*pipeline.Pipeline
	for p, err := range prop.Propose(context.Background(), classificationProblem()) {
		require.NoError(t, err)
		out = append(out, p)
		if len(out) == n {
			break
		}
	}
	require.Len(t, out, n)
	return out
}

// majorityCandidate builds the majority_class template under id.
func majorityCandidate(t *testing.T, reg *engine.Registry, id string) *pipeline.Pipeline {
	t.Helper()
	lib, err := templates.Default(reg)
	require.NoError(t, err)
	tmpl, ok := lib.Template("majority_class")
	require.True(t, ok)
	p, err := lib.Build(tmpl, id, "label", 0)
	require.NoError(t, err)
	return p
}

// listProposer yields ps in order, then err if set.
func listProposer(err error, ps ...*pipeline.Pipeline) ProposerFunc {
	return func(ctx context.Context, _ *problem.Problem) iter.Seq2[*pipeline.Pipeline, error] {
		return func(yield func(*pipeline.Pipeline, error) bool) {
			for _, p := range ps {
				if ctx.Err() != nil || !yield(p, nil) {
					return
				}
			}
			if err != nil {
				yield(nil, err)
			}
		}
	}
}

// blockingProposer yields ps, then blocks until ctx is done.
func blockingProposer(ps ...*pipeline.Pipeline) ProposerFunc {
	return func(ctx context.Context, _ *problem.Problem) iter.Seq2[*pipeline.Pipeline, error] {
		return func(yield func(*pipeline.Pipeline, error) bool) {
			for _, p := range ps {
				if !yield(p, nil) {
					return
				}
			}
			<-ctx.Done()
		}
	}
}

// endlessProposer yields p until ctx is done or the consumer stops.
func endlessProposer(p *pipeline.Pipeline) ProposerFunc {
	return func(ctx context.Context, _ *problem.Problem) iter.Seq2[*pipeline.Pipeline, error] {
		return func(yield func(*pipeline.Pipeline, error) bool) {
			for ctx.Err() == nil {
				if !yield(p, nil) {
					return
				}
			}
		}
	}
}

// unboundedProposer yields p until the consumer stops, never looking at ctx.
func unboundedProposer(p *pipeline.Pipeline) ProposerFunc {
	return func(_ context.Context, _ *problem.Problem) iter.Seq2[*pipeline.Pipeline, error] {
		return func(yield func(*pipeline.Pipeline, error) bool) {
			for yield(p, nil) {
			}
		}
	}
}

func newTestManager(t *testing.T, reg *engine.Registry, prop Proposer, opts ...Option) *Manager {
	t.Helper()
	opts = append([]Option{WithIDGenerator(ids.NewSequenceGenerator("id"))}, opts...)
	m := NewManager(engine.New(reg), prop, toyLoader(), opts...)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func startToySearch(t *testing.T, m *Manager) string {
	t.Helper()
	id, err := m.StartSearch(context.Background(), SearchRequest{
		Problem:    classificationProblem(),
		DatasetURI: "toy",
	})
	require.NoError(t, err)
	return id
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// drainSearch reads records until the stream returns an error, which is
// returned alongside them.
func drainSearch(t *testing.T, st *SearchStream) ([]SearchResult, error) {
	t.Helper()
	ctx := testContext(t)
	var out []SearchResult
	for {
		rec, err := st.Next(ctx)
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}

// drainRequest reads progress records until io.EOF.
func drainRequest(t *testing.T, m *Manager, requestID string) []RequestResult {
	t.Helper()
	st, err := m.RequestResults(requestID)
	require.NoError(t, err)

	ctx := testContext(t)
	var out []RequestResult
	for {
		rec, err := st.Next(ctx)
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, rec)
	}
}

func progressStates(recs []RequestResult) []ProgressState {
	out := make([]ProgressState, len(recs))
	for i, r := range recs {
		out[i] = r.Progress.State
	}
	return out
}
