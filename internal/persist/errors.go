package persist

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by backends for a missing document or blob.
var ErrNotFound = errors.New("not found")

// ErrorCode categorizes persistence failures.
type ErrorCode string

const (
	ErrCodeMissingDocument   ErrorCode = "MISSING_DOCUMENT"
	ErrCodeCorruptDocument   ErrorCode = "CORRUPT_DOCUMENT"
	ErrCodeDigestMismatch    ErrorCode = "DIGEST_MISMATCH"
	ErrCodeMissingBlob       ErrorCode = "MISSING_BLOB"
	ErrCodeBlobCountMismatch ErrorCode = "BLOB_COUNT_MISMATCH"
	ErrCodeRestoreFailed     ErrorCode = "RESTORE_FAILED"
	ErrCodeBackend           ErrorCode = "BACKEND"
	ErrCodeSerializeFailed   ErrorCode = "SERIALIZE_FAILED"
)

// PersistenceError reports a failed save or load. Load never returns a
// partial pipeline alongside it.
type PersistenceError struct {
	// Op is "save" or "load".
	Op string

	// FittedPipelineID identifies the pipeline involved.
	FittedPipelineID string

	// Step is the step index involved, or -1.
	Step int

	// Code identifies the error category.
	Code ErrorCode

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *PersistenceError) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Op, e.FittedPipelineID, e.Code)
	if e.Step >= 0 {
		msg += fmt.Sprintf(" (step %d)", e.Step)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsPersistenceError returns true if err is or wraps a PersistenceError.
func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

// CodeOf returns the code of the PersistenceError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

func loadError(id string, step int, code ErrorCode, err error) *PersistenceError {
	return &PersistenceError{Op: "load", FittedPipelineID: id, Step: step, Code: code, Err: err}
}

func saveError(id string, step int, code ErrorCode, err error) *PersistenceError {
	return &PersistenceError{Op: "save", FittedPipelineID: id, Step: step, Code: code, Err: err}
}
