package server

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/roach88/ta2/internal/api"
)

// rpcMetrics counts and times every call by method and status code.
type rpcMetrics struct {
	calls    metric.Int64Counter
	duration metric.Float64Histogram
}

func newRPCMetrics(logger *slog.Logger) *rpcMetrics {
	m := &rpcMetrics{}
	var err error
	m.calls, err = meter.Int64Counter("ta2_rpc_requests_total",
		metric.WithDescription("Number of finished RPCs"),
	)
	if err != nil {
		logger.Warn("rpc metric unavailable", "error", err)
	}
	m.duration, err = meter.Float64Histogram("ta2_rpc_duration_seconds",
		metric.WithDescription("RPC latency, including the whole stream for streaming calls"),
		metric.WithUnit("s"),
	)
	if err != nil {
		logger.Warn("rpc latency metric unavailable", "error", err)
	}
	return m
}

func (m *rpcMetrics) record(ctx context.Context, method string, err error, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("rpc.method", method),
		attribute.String("rpc.code", status.Code(err).String()),
	)
	if m.calls != nil {
		m.calls.Add(ctx, 1, attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, elapsed.Seconds(), attrs)
	}
}

// finish logs a finished call. Client errors log at Info, server errors at
// Warn.
func finish(logger *slog.Logger, method string, err error, elapsed time.Duration) {
	code := status.Code(err)
	switch {
	case err == nil:
		logger.Debug("rpc finished", "method", method, "duration", elapsed)
	case isServerFault(err):
		logger.Warn("rpc failed", "method", method, "code", code.String(), "error", err, "duration", elapsed)
	default:
		logger.Info("rpc rejected", "method", method, "code", code.String(), "error", err, "duration", elapsed)
	}
}

// UnaryInterceptor validates requests, maps errors to statuses, logs and
// records metrics.
func (s *Server) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := func() (any, error) {
			if err := api.Validate(req); err != nil {
				return nil, err
			}
			return handler(ctx, req)
		}()
		err = toStatus(err)
		elapsed := time.Since(start)
		finish(s.logger, info.FullMethod, err, elapsed)
		s.metrics.record(ctx, info.FullMethod, err, elapsed)
		return resp, err
	}
}

// StreamInterceptor is the streaming counterpart of UnaryInterceptor.
// Requests are validated as they are received.
func (s *Server) StreamInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := toStatus(handler(srv, &validatingStream{ServerStream: ss}))
		elapsed := time.Since(start)
		finish(s.logger, info.FullMethod, err, elapsed)
		s.metrics.record(ss.Context(), info.FullMethod, err, elapsed)
		return err
	}
}

type validatingStream struct {
	grpc.ServerStream
}

func (v *validatingStream) RecvMsg(m any) error {
	if err := v.ServerStream.RecvMsg(m); err != nil {
		return err
	}
	return api.Validate(m)
}
