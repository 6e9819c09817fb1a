package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/roach88/ta2/internal/api"
	"github.com/roach88/ta2/internal/dataset"
	"github.com/roach88/ta2/internal/engine"
	"github.com/roach88/ta2/internal/ids"
	"github.com/roach88/ta2/internal/pipeline"
	"github.com/roach88/ta2/internal/primitives"
	"github.com/roach88/ta2/internal/problem"
	"github.com/roach88/ta2/internal/session"
	"github.com/roach88/ta2/internal/templates"
)

type loaderFunc func(ctx context.Context, uri string) (*dataset.Dataset, error)

func (f loaderFunc) Load(ctx context.Context, uri string) (*dataset.Dataset, error) {
	return f(ctx, uri)
}

func toyLoader() session.DatasetLoader {
	return loaderFunc(func(_ context.Context, uri string) (*dataset.Dataset, error) {
		if uri != "toy" {
			return nil, fmt.Errorf("no dataset at %s", uri)
		}
		return &dataset.Dataset{
			ID:      "toy",
			Columns: []string{"x", "y", "label"},
			Rows: [][]string{
				{"0", "0", "a"}, {"1", "0", "a"}, {"0", "1", "a"}, {"1", "1", "a"},
				{"10", "10", "b"}, {"11", "10", "b"}, {"10", "11", "b"}, {"11", "11", "b"},
			},
		}, nil
	})
}

// firstCandidates proposes the first n template candidates for a problem.
func firstCandidates(t *testing.T, reg *engine.Registry, n int) session.ProposerFunc {
	t.Helper()
	lib, err := templates.Default(reg)
	require.NoError(t, err)
	prop := templates.NewProposer(lib, templates.WithIDGenerator(ids.NewSequenceGenerator("pl")))
	return func(ctx context.Context, prob *problem.Problem) iter.Seq2[*pipeline.Pipeline, error] {
		return func(yield func(*pipeline.Pipeline, error) bool) {
			i := 0
			for p, err := range prop.Propose(ctx, prob) {
				if !yield(p, err) || err != nil {
					return
				}
				if i++; i == n {
					return
				}
			}
		}
	}
}

type testEnv struct {
	client   *api.CoreClient
	manager  *session.Manager
	registry *engine.Registry
}

func newTestEnv(t *testing.T, opts ...session.Option) *testEnv {
	t.Helper()
	reg := primitives.Registry()
	opts = append([]session.Option{session.WithIDGenerator(ids.NewSequenceGenerator("id"))}, opts...)
	m := session.NewManager(engine.New(reg), firstCandidates(t, reg, 2), toyLoader(), opts...)
	t.Cleanup(func() { _ = m.Close() })

	srv := New(m, reg)
	lis := bufconn.Listen(1 << 20)
	gs := srv.NewGRPCServer()
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &testEnv{client: api.NewCoreClient(conn), manager: m, registry: reg}
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func toySearchRequest() *api.SearchSolutionsRequest {
	return &api.SearchSolutionsRequest{
		UserAgent: "test",
		Version:   "2018.7.7",
		Problem: &api.ProblemDescription{
			Problem: api.Problem{ID: "toy_problem", TaskType: "CLASSIFICATION"},
			Inputs: []api.ProblemInput{{
				DatasetID: "toy",
				Targets:   []api.ProblemTarget{{ColumnName: "label"}},
			}},
		},
		Inputs: []api.Value{api.DatasetURIValue("toy")},
	}
}

// recvAll reads a stream until it ends and returns the messages with the
// terminal error, nil on a clean end.
func recvAll[T any](stream grpc.ServerStreamingClient[T]) ([]*T, error) {
	var out []*T
	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, msg)
	}
}
