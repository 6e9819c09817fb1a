package session

import (
	"errors"
	"fmt"
)

// ErrManagerClosed is returned by operations on a closed Manager.
var ErrManagerClosed = errors.New("session manager closed")

// ErrNoArchiver is returned by ExportSolution when no archiver is configured.
var ErrNoArchiver = errors.New("no archiver configured")

// UnknownSessionError is returned for a search id the manager does not hold.
type UnknownSessionError struct {
	SearchID string
}

func (e *UnknownSessionError) Error() string {
	return fmt.Sprintf("unknown search %q", e.SearchID)
}

// UnknownSolutionError is returned for a solution id the manager does not
// hold.
type UnknownSolutionError struct {
	SolutionID string
}

func (e *UnknownSolutionError) Error() string {
	return fmt.Sprintf("unknown solution %q", e.SolutionID)
}

// UnknownRequestError is returned for a request id the manager does not hold.
type UnknownRequestError struct {
	RequestID string
}

func (e *UnknownRequestError) Error() string {
	return fmt.Sprintf("unknown request %q", e.RequestID)
}

// SearchFailedError is delivered by a search stream after its last record
// when the search could not run to completion.
type SearchFailedError struct {
	SearchID string
	Err      error
}

func (e *SearchFailedError) Error() string {
	return fmt.Sprintf("search %s failed: %v", e.SearchID, e.Err)
}

func (e *SearchFailedError) Unwrap() error {
	return e.Err
}

// InvalidRequestError wraps a rejected search, score or produce request.
type InvalidRequestError struct {
	Op  string
	Err error
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid %s request: %v", e.Op, e.Err)
}

func (e *InvalidRequestError) Unwrap() error {
	return e.Err
}

// IsUnknownSessionError checks if an error is an UnknownSessionError.
func IsUnknownSessionError(err error) bool {
	var ue *UnknownSessionError
	return errors.As(err, &ue)
}

// IsUnknownSolutionError checks if an error is an UnknownSolutionError.
func IsUnknownSolutionError(err error) bool {
	var ue *UnknownSolutionError
	return errors.As(err, &ue)
}

// IsUnknownRequestError checks if an error is an UnknownRequestError.
func IsUnknownRequestError(err error) bool {
	var ue *UnknownRequestError
	return errors.As(err, &ue)
}

// IsNotFound reports whether err names a search, solution or request the
// manager does not hold.
func IsNotFound(err error) bool {
	return IsUnknownSessionError(err) || IsUnknownSolutionError(err) || IsUnknownRequestError(err)
}

// IsSearchFailedError checks if an error is a SearchFailedError.
func IsSearchFailedError(err error) bool {
	var se *SearchFailedError
	return errors.As(err, &se)
}

// IsInvalidRequestError checks if an error is an InvalidRequestError.
func IsInvalidRequestError(err error) bool {
	var ie *InvalidRequestError
	return errors.As(err, &ie)
}
