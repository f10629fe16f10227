package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for common cases.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrLocked       = errors.New("resource locked")
)

// Process exit codes returned by the command line tool.
const (
	ExitOK           = 0
	ExitFailure      = 1
	ExitInvalidInput = 2
	ExitNotFound     = 3
	ExitLocked       = 4
)

// AppError represents a structured application error with an exit code mapping.
type AppError struct {
	Code     string
	Message  string
	ExitCode int
	Err      error
}

func (e *AppError) Error() string {
	if e.Err != nil && !isSentinel(e.Err) {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func isSentinel(err error) bool {
	switch err {
	case ErrNotFound, ErrInvalidInput, ErrLocked:
		return true
	}
	return false
}

// NotFound creates an error for a missing resource.
func NotFound(resource string, id any) *AppError {
	return &AppError{
		Code:     "NOT_FOUND",
		Message:  fmt.Sprintf("%s with id %v not found", resource, id),
		ExitCode: ExitNotFound,
		Err:      ErrNotFound,
	}
}

// InvalidInput creates an error for rejected command line input.
func InvalidInput(message string) *AppError {
	return &AppError{
		Code:     "INVALID_INPUT",
		Message:  message,
		ExitCode: ExitInvalidInput,
		Err:      ErrInvalidInput,
	}
}

// InvalidInputf is InvalidInput with formatting.
func InvalidInputf(format string, args ...any) *AppError {
	return InvalidInput(fmt.Sprintf(format, args...))
}

// Locked creates an error for a resource held by another process.
func Locked(message string) *AppError {
	return &AppError{
		Code:     "LOCKED",
		Message:  message,
		ExitCode: ExitLocked,
		Err:      ErrLocked,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// ExitCode returns the process exit code for the given error.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.ExitCode
	}

	switch {
	case errors.Is(err, ErrInvalidInput):
		return ExitInvalidInput
	case errors.Is(err, ErrNotFound):
		return ExitNotFound
	case errors.Is(err, ErrLocked):
		return ExitLocked
	default:
		return ExitFailure
	}
}
