package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel"
	"google.golang.org/grpc"

	"github.com/roach88/ta2/internal/api"
	"github.com/roach88/ta2/internal/engine"
	"github.com/roach88/ta2/internal/ir"
	"github.com/roach88/ta2/internal/session"
)

var meter = otel.Meter("ta2.server")

// Server implements api.CoreServer on top of a session manager. It holds no
// state of its own: every identifier and record lives in the manager.
type Server struct {
	api.UnimplementedCoreServer

	sessions *session.Manager
	registry *engine.Registry
	logger   *slog.Logger
	metrics  *rpcMetrics
}

var _ api.CoreServer = (*Server)(nil)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a server answering for sessions. registry resolves the
// primitives named by templates and step descriptions.
func New(sessions *session.Manager, registry *engine.Registry, opts ...Option) *Server {
	s := &Server{sessions: sessions, registry: registry, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.metrics = newRPCMetrics(s.logger)
	return s
}

// NewGRPCServer returns a gRPC server with s registered, its interceptors
// installed and OpenTelemetry instrumentation enabled.
func (s *Server) NewGRPCServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(s.UnaryInterceptor()),
		grpc.ChainStreamInterceptor(s.StreamInterceptor()),
	}, opts...)
	gs := grpc.NewServer(opts...)
	api.RegisterCoreServer(gs, s)
	return gs
}

// Serve runs a gRPC server on lis until ctx is done, then stops it
// gracefully.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	gs := s.NewGRPCServer()
	errCh := make(chan error, 1)
	go func() {
		errCh <- gs.Serve(lis)
	}()
	s.logger.Info("grpc server listening", "addr", lis.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("grpc server stopping")
		gs.GracefulStop()
		<-errCh
		return nil
	}
}

func (s *Server) Hello(ctx context.Context, req *api.HelloRequest) (*api.HelloResponse, error) {
	return &api.HelloResponse{
		UserAgent:         ir.UserAgent,
		Version:           ir.ProtocolVersion,
		AllowedValueTypes: allowedValueTypes(),
	}, nil
}

func (s *Server) SearchSolutions(ctx context.Context, req *api.SearchSolutionsRequest) (*api.SearchSolutionsResponse, error) {
	uri, ok := req.Inputs[0].URI()
	if !ok {
		return nil, invalid("search inputs", errors.New("inputs.0 must be a dataset uri"))
	}

	sreq := session.SearchRequest{
		Problem:    problemFromWire(req.Problem),
		DatasetURI: uri,
		TimeBound:  time.Duration(req.TimeBound * float64(time.Minute)),
	}
	if req.Template != nil {
		tmpl, err := pipelineFromDescription(req.Template, s.registry)
		if err != nil {
			return nil, invalid("template", err)
		}
		sreq.Template = tmpl
	}

	id, err := s.sessions.StartSearch(ctx, sreq)
	if err != nil {
		return nil, err
	}
	s.logger.Info("search requested", "search_id", id, "user_agent", req.UserAgent, "dataset", uri)
	return &api.SearchSolutionsResponse{SearchID: id}, nil
}

func (s *Server) GetSearchSolutionsResults(req *api.GetSearchSolutionsResultsRequest, stream grpc.ServerStreamingServer[api.GetSearchSolutionsResultsResponse]) error {
	st, err := s.sessions.SearchResults(req.SearchID)
	if err != nil {
		return err
	}
	ctx := stream.Context()
	for {
		rec, err := st.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := stream.Send(searchResultToWire(rec)); err != nil {
			return err
		}
	}
}

func (s *Server) EndSearchSolutions(ctx context.Context, req *api.EndSearchSolutionsRequest) (*api.EndSearchSolutionsResponse, error) {
	if err := s.sessions.EndSearch(req.SearchID); err != nil {
		return nil, err
	}
	return &api.EndSearchSolutionsResponse{}, nil
}

func (s *Server) StopSearchSolutions(ctx context.Context, req *api.StopSearchSolutionsRequest) (*api.StopSearchSolutionsResponse, error) {
	if err := s.sessions.StopSearch(req.SearchID); err != nil {
		return nil, err
	}
	return &api.StopSearchSolutionsResponse{}, nil
}

func (s *Server) ScoreSolution(ctx context.Context, req *api.ScoreSolutionRequest) (*api.ScoreSolutionResponse, error) {
	if c := req.Configuration; c != nil && c.Method != "" && c.Method != session.ScoringMethodHoldout {
		return nil, invalid("scoring configuration", fmt.Errorf("unsupported method %q", c.Method))
	}
	var uri string
	if len(req.Inputs) > 0 {
		var ok bool
		if uri, ok = req.Inputs[0].URI(); !ok {
			return nil, invalid("score inputs", errors.New("inputs.0 must be a dataset uri"))
		}
	}
	id, err := s.sessions.ScoreSolution(req.SolutionID, metricsFromWire(req.PerformanceMetrics), uri)
	if err != nil {
		return nil, err
	}
	return &api.ScoreSolutionResponse{RequestID: id}, nil
}

func (s *Server) GetScoreSolutionResults(req *api.GetScoreSolutionResultsRequest, stream grpc.ServerStreamingServer[api.GetScoreSolutionResultsResponse]) error {
	return s.streamRequest(stream.Context(), req.RequestID, session.RequestScore, func(rec session.RequestResult) error {
		return stream.Send(&api.GetScoreSolutionResultsResponse{
			Progress: progressToWire(rec.Progress),
			Scores:   scoresToWire(rec.Scores),
		})
	})
}

func (s *Server) ProduceSolution(ctx context.Context, req *api.ProduceSolutionRequest) (*api.ProduceSolutionResponse, error) {
	uri, ok := req.Inputs[0].URI()
	if !ok {
		return nil, invalid("produce inputs", errors.New("inputs.0 must be a dataset uri"))
	}
	id, err := s.sessions.ProduceSolution(req.SolutionID, uri, req.ExposeOutputs...)
	if err != nil {
		return nil, err
	}
	return &api.ProduceSolutionResponse{RequestID: id}, nil
}

func (s *Server) GetProduceSolutionResults(req *api.GetProduceSolutionResultsRequest, stream grpc.ServerStreamingServer[api.GetProduceSolutionResultsResponse]) error {
	return s.streamRequest(stream.Context(), req.RequestID, session.RequestProduce, func(rec session.RequestResult) error {
		resp := &api.GetProduceSolutionResultsResponse{Progress: progressToWire(rec.Progress)}
		if rec.Outputs != nil {
			resp.ExposedOutputs = exposedOutputs(rec.Outputs)
		}
		return stream.Send(resp)
	})
}

// streamRequest sends every record of a request until its terminal record.
// Records of a request of another kind are not sent.
func (s *Server) streamRequest(ctx context.Context, requestID string, kind session.RequestKind, send func(session.RequestResult) error) error {
	st, err := s.sessions.RequestResults(requestID)
	if err != nil {
		return err
	}
	for {
		rec, err := st.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if rec.Kind != kind {
			return &session.UnknownRequestError{RequestID: requestID}
		}
		if err := send(rec); err != nil {
			return err
		}
	}
}

func (s *Server) DescribeSolution(ctx context.Context, req *api.DescribeSolutionRequest) (*api.DescribeSolutionResponse, error) {
	sol, err := s.sessions.Solution(req.SolutionID)
	if err != nil {
		return nil, err
	}
	p := sol.Fitted.Pipeline()
	doc, err := p.Document()
	if err != nil {
		return nil, err
	}
	desc, err := descriptionFromDocument(doc)
	if err != nil {
		return nil, err
	}
	steps, err := describeSteps(p, s.registry)
	if err != nil {
		return nil, err
	}
	return &api.DescribeSolutionResponse{Pipeline: desc, Steps: steps}, nil
}

func (s *Server) SolutionExport(ctx context.Context, req *api.SolutionExportRequest) (*api.SolutionExportResponse, error) {
	sol, err := s.sessions.Solution(req.SolutionID)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.ExportSolution(ctx, req.SolutionID); err != nil {
		return nil, err
	}
	s.logger.Info("solution ranked", "solution_id", req.SolutionID, "rank", req.Rank)
	return &api.SolutionExportResponse{FittedPipelineID: sol.Fitted.ID()}, nil
}

func (s *Server) ListPrimitives(ctx context.Context, req *api.ListPrimitivesRequest) (*api.ListPrimitivesResponse, error) {
	refs := s.registry.List()
	out := make([]api.Primitive, 0, len(refs))
	for _, r := range refs {
		out = append(out, primitiveToWire(r))
	}
	return &api.ListPrimitivesResponse{Primitives: out}, nil
}
