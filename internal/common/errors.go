package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors. The first four abort a document job; the rest
// classify degraded paths that are logged and survived.
var (
	ErrNotFound       = errors.New("object not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrEmptyDocument  = errors.New("empty document text")
	ErrUnsupportedExt = errors.New("unsupported file extension")
	ErrOCRUnavailable = errors.New("ocr binary unavailable")
	ErrVisionDisabled = errors.New("vision disabled")
	ErrTimeout        = errors.New("operation timed out")
)

// NewAppError builds an AppError wrapping cause.
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
