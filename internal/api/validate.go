package api

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidationError reports a message that failed its validator tags.
type ValidationError struct {
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Message, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Validate checks a message against its validator tags. Messages without
// struct fields to check pass.
func Validate(msg any) error {
	err := validate.Struct(msg)
	if err == nil {
		return nil
	}
	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return nil
	}
	return &ValidationError{Message: fmt.Sprintf("%T", msg), Err: err}
}

// IsValidationError checks if an error is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
