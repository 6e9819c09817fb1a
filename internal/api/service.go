package api

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "ta2.Core"

// Full method names.
const (
	MethodHello                     = "/ta2.Core/Hello"
	MethodSearchSolutions           = "/ta2.Core/SearchSolutions"
	MethodGetSearchSolutionsResults = "/ta2.Core/GetSearchSolutionsResults"
	MethodEndSearchSolutions        = "/ta2.Core/EndSearchSolutions"
	MethodStopSearchSolutions       = "/ta2.Core/StopSearchSolutions"
	MethodScoreSolution             = "/ta2.Core/ScoreSolution"
	MethodGetScoreSolutionResults   = "/ta2.Core/GetScoreSolutionResults"
	MethodProduceSolution           = "/ta2.Core/ProduceSolution"
	MethodGetProduceSolutionResults = "/ta2.Core/GetProduceSolutionResults"
	MethodDescribeSolution          = "/ta2.Core/DescribeSolution"
	MethodSolutionExport            = "/ta2.Core/SolutionExport"
	MethodListPrimitives            = "/ta2.Core/ListPrimitives"
)

// CoreServer is the server side of ta2.Core.
type CoreServer interface {
	Hello(context.Context, *HelloRequest) (*HelloResponse, error)
	SearchSolutions(context.Context, *SearchSolutionsRequest) (*SearchSolutionsResponse, error)
	GetSearchSolutionsResults(*GetSearchSolutionsResultsRequest, grpc.ServerStreamingServer[GetSearchSolutionsResultsResponse]) error
	EndSearchSolutions(context.Context, *EndSearchSolutionsRequest) (*EndSearchSolutionsResponse, error)
	StopSearchSolutions(context.Context, *StopSearchSolutionsRequest) (*StopSearchSolutionsResponse, error)
	ScoreSolution(context.Context, *ScoreSolutionRequest) (*ScoreSolutionResponse, error)
	GetScoreSolutionResults(*GetScoreSolutionResultsRequest, grpc.ServerStreamingServer[GetScoreSolutionResultsResponse]) error
	ProduceSolution(context.Context, *ProduceSolutionRequest) (*ProduceSolutionResponse, error)
	GetProduceSolutionResults(*GetProduceSolutionResultsRequest, grpc.ServerStreamingServer[GetProduceSolutionResultsResponse]) error
	DescribeSolution(context.Context, *DescribeSolutionRequest) (*DescribeSolutionResponse, error)
	SolutionExport(context.Context, *SolutionExportRequest) (*SolutionExportResponse, error)
	ListPrimitives(context.Context, *ListPrimitivesRequest) (*ListPrimitivesResponse, error)
}

// RegisterCoreServer registers srv on s.
func RegisterCoreServer(s grpc.ServiceRegistrar, srv CoreServer) {
	s.RegisterService(&CoreServiceDesc, srv)
}

// unary builds the handler of a unary method.
func unary[Req, Resp any](method string, call func(CoreServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(CoreServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(CoreServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// serverStream builds the handler of a server-streaming method.
func serverStream[Req, Resp any](call func(CoreServer, *Req, grpc.ServerStreamingServer[Resp]) error) grpc.StreamHandler {
	return func(srv any, stream grpc.ServerStream) error {
		in := new(Req)
		if err := stream.RecvMsg(in); err != nil {
			return err
		}
		return call(srv.(CoreServer), in, &grpc.GenericServerStream[Req, Resp]{ServerStream: stream})
	}
}

// CoreServiceDesc describes ta2.Core for grpc.ServiceRegistrar.
var CoreServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CoreServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Hello", Handler: unary(MethodHello, CoreServer.Hello)},
		{MethodName: "SearchSolutions", Handler: unary(MethodSearchSolutions, CoreServer.SearchSolutions)},
		{MethodName: "EndSearchSolutions", Handler: unary(MethodEndSearchSolutions, CoreServer.EndSearchSolutions)},
		{MethodName: "StopSearchSolutions", Handler: unary(MethodStopSearchSolutions, CoreServer.StopSearchSolutions)},
		{MethodName: "ScoreSolution", Handler: unary(MethodScoreSolution, CoreServer.ScoreSolution)},
		{MethodName: "ProduceSolution", Handler: unary(MethodProduceSolution, CoreServer.ProduceSolution)},
		{MethodName: "DescribeSolution", Handler: unary(MethodDescribeSolution, CoreServer.DescribeSolution)},
		{MethodName: "SolutionExport", Handler: unary(MethodSolutionExport, CoreServer.SolutionExport)},
		{MethodName: "ListPrimitives", Handler: unary(MethodListPrimitives, CoreServer.ListPrimitives)},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "GetSearchSolutionsResults",
			Handler:       serverStream(CoreServer.GetSearchSolutionsResults),
			ServerStreams: true,
		},
		{
			StreamName:    "GetScoreSolutionResults",
			Handler:       serverStream(CoreServer.GetScoreSolutionResults),
			ServerStreams: true,
		},
		{
			StreamName:    "GetProduceSolutionResults",
			Handler:       serverStream(CoreServer.GetProduceSolutionResults),
			ServerStreams: true,
		},
	},
	Metadata: "ta2/core.json",
}
