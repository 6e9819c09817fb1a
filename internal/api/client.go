package api

import (
	"context"

	"google.golang.org/grpc"
)

// CoreClient is the client side of ta2.Core. Every call uses the JSON
// codec.
type CoreClient struct {
	cc grpc.ClientConnInterface
}

// NewCoreClient wraps a connection.
func NewCoreClient(cc grpc.ClientConnInterface) *CoreClient {
	return &CoreClient{cc: cc}
}

func invoke[Req, Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in *Req, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	if err := cc.Invoke(ctx, method, in, out, append(CallOptions(), opts...)...); err != nil {
		return nil, err
	}
	return out, nil
}

func openStream[Req, Resp any](ctx context.Context, cc grpc.ClientConnInterface, desc *grpc.StreamDesc, method string, in *Req, opts []grpc.CallOption) (grpc.ServerStreamingClient[Resp], error) {
	stream, err := cc.NewStream(ctx, desc, method, append(CallOptions(), opts...)...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[Req, Resp]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

func (c *CoreClient) Hello(ctx context.Context, in *HelloRequest, opts ...grpc.CallOption) (*HelloResponse, error) {
	return invoke[HelloRequest, HelloResponse](ctx, c.cc, MethodHello, in, opts)
}

func (c *CoreClient) SearchSolutions(ctx context.Context, in *SearchSolutionsRequest, opts ...grpc.CallOption) (*SearchSolutionsResponse, error) {
	return invoke[SearchSolutionsRequest, SearchSolutionsResponse](ctx, c.cc, MethodSearchSolutions, in, opts)
}

func (c *CoreClient) GetSearchSolutionsResults(ctx context.Context, in *GetSearchSolutionsResultsRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[GetSearchSolutionsResultsResponse], error) {
	return openStream[GetSearchSolutionsResultsRequest, GetSearchSolutionsResultsResponse](ctx, c.cc, &CoreServiceDesc.Streams[0], MethodGetSearchSolutionsResults, in, opts)
}

func (c *CoreClient) EndSearchSolutions(ctx context.Context, in *EndSearchSolutionsRequest, opts ...grpc.CallOption) (*EndSearchSolutionsResponse, error) {
	return invoke[EndSearchSolutionsRequest, EndSearchSolutionsResponse](ctx, c.cc, MethodEndSearchSolutions, in, opts)
}

func (c *CoreClient) StopSearchSolutions(ctx context.Context, in *StopSearchSolutionsRequest, opts ...grpc.CallOption) (*StopSearchSolutionsResponse, error) {
	return invoke[StopSearchSolutionsRequest, StopSearchSolutionsResponse](ctx, c.cc, MethodStopSearchSolutions, in, opts)
}

func (c *CoreClient) ScoreSolution(ctx context.Context, in *ScoreSolutionRequest, opts ...grpc.CallOption) (*ScoreSolutionResponse, error) {
	return invoke[ScoreSolutionRequest, ScoreSolutionResponse](ctx, c.cc, MethodScoreSolution, in, opts)
}

func (c *CoreClient) GetScoreSolutionResults(ctx context.Context, in *GetScoreSolutionResultsRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[GetScoreSolutionResultsResponse], error) {
	return openStream[GetScoreSolutionResultsRequest, GetScoreSolutionResultsResponse](ctx, c.cc, &CoreServiceDesc.Streams[1], MethodGetScoreSolutionResults, in, opts)
}

func (c *CoreClient) ProduceSolution(ctx context.Context, in *ProduceSolutionRequest, opts ...grpc.CallOption) (*ProduceSolutionResponse, error) {
	return invoke[ProduceSolutionRequest, ProduceSolutionResponse](ctx, c.cc, MethodProduceSolution, in, opts)
}

func (c *CoreClient) GetProduceSolutionResults(ctx context.Context, in *GetProduceSolutionResultsRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[GetProduceSolutionResultsResponse], error) {
	return openStream[GetProduceSolutionResultsRequest, GetProduceSolutionResultsResponse](ctx, c.cc, &CoreServiceDesc.Streams[2], MethodGetProduceSolutionResults, in, opts)
}

func (c *CoreClient) DescribeSolution(ctx context.Context, in *DescribeSolutionRequest, opts ...grpc.CallOption) (*DescribeSolutionResponse, error) {
	return invoke[DescribeSolutionRequest, DescribeSolutionResponse](ctx, c.cc, MethodDescribeSolution, in, opts)
}

func (c *CoreClient) SolutionExport(ctx context.Context, in *SolutionExportRequest, opts ...grpc.CallOption) (*SolutionExportResponse, error) {
	return invoke[SolutionExportRequest, SolutionExportResponse](ctx, c.cc, MethodSolutionExport, in, opts)
}

func (c *CoreClient) ListPrimitives(ctx context.Context, in *ListPrimitivesRequest, opts ...grpc.CallOption) (*ListPrimitivesResponse, error) {
	return invoke[ListPrimitivesRequest, ListPrimitivesResponse](ctx, c.cc, MethodListPrimitives, in, opts)
}
