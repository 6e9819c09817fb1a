package server

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/roach88/ta2/internal/api"
	"github.com/roach88/ta2/internal/engine"
	"github.com/roach88/ta2/internal/pipeline"
	"github.com/roach88/ta2/internal/session"
)

// toStatus maps an internal error to a gRPC status error. Errors that
// already carry a status pass through unchanged.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(statusCode(err), err.Error())
}

func statusCode(err error) codes.Code {
	switch {
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case session.IsNotFound(err):
		return codes.NotFound
	case errors.Is(err, pipeline.ErrUnsupportedStep):
		return codes.Unimplemented
	case api.IsValidationError(err),
		session.IsInvalidRequestError(err),
		pipeline.IsGraphConstructionError(err),
		errors.Is(err, engine.ErrUnknownPrimitive):
		return codes.InvalidArgument
	case errors.Is(err, session.ErrNoArchiver):
		return codes.FailedPrecondition
	case errors.Is(err, session.ErrManagerClosed):
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

// invalid marks a conversion failure of the named request part.
func invalid(what string, err error) error {
	return &api.ValidationError{Message: what, Err: err}
}

// isServerFault reports whether err is the server's fault rather than the
// caller's.
func isServerFault(err error) bool {
	switch status.Code(err) {
	case codes.Internal, codes.Unknown, codes.DataLoss, codes.Unavailable:
		return true
	default:
		return false
	}
}
