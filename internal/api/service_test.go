package api

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type fakeServer struct {
	UnimplementedCoreServer
}

func (fakeServer) Hello(context.Context, *HelloRequest) (*HelloResponse, error) {
	return &HelloResponse{UserAgent: "fake", Version: "1"}, nil
}

func (fakeServer) GetSearchSolutionsResults(req *GetSearchSolutionsResultsRequest, stream grpc.ServerStreamingServer[GetSearchSolutionsResultsResponse]) error {
	for _, id := range []string{"a", "b"} {
		if err := stream.Send(&GetSearchSolutionsResultsResponse{SolutionID: req.SearchID + "/" + id}); err != nil {
			return err
		}
	}
	return nil
}

func dialFake(t *testing.T) *CoreClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterCoreServer(srv, fakeServer{})
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewCoreClient(conn)
}

func TestServiceUnaryAndStream(t *testing.T) {
	client := dialFake(t)
	ctx := context.Background()

	hello, err := client.Hello(ctx, &HelloRequest{})
	require.NoError(t, err)
	assert.Equal(t, "fake", hello.UserAgent)

	stream, err := client.GetSearchSolutionsResults(ctx, &GetSearchSolutionsResultsRequest{SearchID: "s"})
	require.NoError(t, err)
	var got []string
	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got = append(got, msg.SolutionID)
	}
	assert.Equal(t, []string{"s/a", "s/b"}, got)
}

func TestServiceUnimplemented(t *testing.T) {
	client := dialFake(t)

	_, err := client.ListPrimitives(context.Background(), &ListPrimitivesRequest{})
	assert.Equal(t, codes.Unimplemented, status.Code(err))

	stream, err := client.GetScoreSolutionResults(context.Background(), &GetScoreSolutionResultsRequest{RequestID: "r"})
	require.NoError(t, err)
	_, err = stream.Recv()
	assert.Equal(t, codes.Unimplemented, status.Code(err))
}

func TestServiceDescCoversServer(t *testing.T) {
	assert.Len(t, CoreServiceDesc.Methods, 9)
	assert.Len(t, CoreServiceDesc.Streams, 3)
	for _, s := range CoreServiceDesc.Streams {
		assert.True(t, s.ServerStreams, s.StreamName)
		assert.False(t, s.ClientStreams, s.StreamName)
	}
}
