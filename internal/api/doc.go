// Package api defines the ta2.Core wire schema and its gRPC bindings.
//
// Messages are plain Go structs carried as JSON: the package registers a
// codec under the content-subtype "json", and both NewCoreClient and the
// server select it. The service description is written by hand, so no
// generated code is involved.
//
// Request messages carry validator tags; Validate checks any message
// against them.
package api
