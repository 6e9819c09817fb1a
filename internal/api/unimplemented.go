package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// UnimplementedCoreServer answers every method with codes.Unimplemented.
// Embed it to implement a subset of CoreServer.
type UnimplementedCoreServer struct{}

func (UnimplementedCoreServer) Hello(context.Context, *HelloRequest) (*HelloResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Hello not implemented")
}

func (UnimplementedCoreServer) SearchSolutions(context.Context, *SearchSolutionsRequest) (*SearchSolutionsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method SearchSolutions not implemented")
}

func (UnimplementedCoreServer) GetSearchSolutionsResults(*GetSearchSolutionsResultsRequest, grpc.ServerStreamingServer[GetSearchSolutionsResultsResponse]) error {
	return status.Error(codes.Unimplemented, "method GetSearchSolutionsResults not implemented")
}

func (UnimplementedCoreServer) EndSearchSolutions(context.Context, *EndSearchSolutionsRequest) (*EndSearchSolutionsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method EndSearchSolutions not implemented")
}

func (UnimplementedCoreServer) StopSearchSolutions(context.Context, *StopSearchSolutionsRequest) (*StopSearchSolutionsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method StopSearchSolutions not implemented")
}

func (UnimplementedCoreServer) ScoreSolution(context.Context, *ScoreSolutionRequest) (*ScoreSolutionResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ScoreSolution not implemented")
}

func (UnimplementedCoreServer) GetScoreSolutionResults(*GetScoreSolutionResultsRequest, grpc.ServerStreamingServer[GetScoreSolutionResultsResponse]) error {
	return status.Error(codes.Unimplemented, "method GetScoreSolutionResults not implemented")
}

func (UnimplementedCoreServer) ProduceSolution(context.Context, *ProduceSolutionRequest) (*ProduceSolutionResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ProduceSolution not implemented")
}

func (UnimplementedCoreServer) GetProduceSolutionResults(*GetProduceSolutionResultsRequest, grpc.ServerStreamingServer[GetProduceSolutionResultsResponse]) error {
	return status.Error(codes.Unimplemented, "method GetProduceSolutionResults not implemented")
}

func (UnimplementedCoreServer) DescribeSolution(context.Context, *DescribeSolutionRequest) (*DescribeSolutionResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method DescribeSolution not implemented")
}

func (UnimplementedCoreServer) SolutionExport(context.Context, *SolutionExportRequest) (*SolutionExportResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method SolutionExport not implemented")
}

func (UnimplementedCoreServer) ListPrimitives(context.Context, *ListPrimitivesRequest) (*ListPrimitivesResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListPrimitives not implemented")
}
