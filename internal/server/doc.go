// Package server answers the ta2.Core gRPC service from a session manager.
//
// Handlers translate between the wire messages of package api and the
// internal pipeline, problem and value types; all state lives in the
// session.Manager. Errors are mapped to status codes in one place:
//
//	unknown search, solution or request   NotFound
//	invalid request, template or wiring   InvalidArgument
//	subpipeline or placeholder steps      Unimplemented
//	no archiver configured                FailedPrecondition
//	anything else                         Internal
//
// A failed search ends its result stream with an Internal status.
package server
