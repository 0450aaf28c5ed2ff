package errors

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Common error types that can be used across the application
var (
	ErrConfiguration        = new(ErrCodeConfiguration, "configuration error")
	ErrAuthentication       = new(ErrCodeAuthentication, "authentication failed")
	ErrTerminalMissing      = new(ErrCodeTerminalMissing, "terminal identifier missing")
	ErrUnsupportedOperation = new(ErrCodeUnsupportedOperation, "unsupported operation")
	ErrValidation           = new(ErrCodeValidation, "validation error")
	ErrHTTPClient           = new(ErrCodeHTTPClient, "http client error")
	ErrInternal             = new(ErrCodeInternal, "internal error")
)

const (
	ErrCodeConfiguration        = "configuration_error"
	ErrCodeAuthentication       = "authentication_error"
	ErrCodeTerminalMissing      = "terminal_missing"
	ErrCodeUnsupportedOperation = "unsupported_operation"
	ErrCodeValidation           = "validation_error"
	ErrCodeHTTPClient           = "http_client_error"
	ErrCodeInternal             = "internal_error"
)

// InternalError represents a domain error
type InternalError struct {
	Code    string // Machine-readable error code
	Message string // Human-readable error message
	Op      string // Logical operation name
	Err     error  // Underlying error
}

func (e *InternalError) Error() string {
	if e.Err == nil {
		return e.DisplayError()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Err.Error())
}

func (e *InternalError) DisplayError() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// Is implements error matching for wrapped errors
func (e *InternalError) Is(target error) bool {
	if target == nil {
		return false
	}

	t, ok := target.(*InternalError)
	if !ok {
		return errors.Is(e.Err, target)
	}

	return e.Code == t.Code
}

func new(code string, message string) *InternalError {
	return &InternalError{
		Code:    code,
		Message: message,
	}
}

// New creates a new InternalError with the given code and message
func New(code string, message string) *InternalError {
	return new(code, message)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

// IsConfiguration checks if an error is a configuration error
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsAuthentication checks if an error is an authentication error
func IsAuthentication(err error) bool {
	return errors.Is(err, ErrAuthentication)
}

// IsTerminalMissing checks if an error is a missing terminal error
func IsTerminalMissing(err error) bool {
	return errors.Is(err, ErrTerminalMissing)
}

// IsUnsupportedOperation checks if an error is an unsupported operation error
func IsUnsupportedOperation(err error) bool {
	return errors.Is(err, ErrUnsupportedOperation)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsHTTPClient checks if an error is an http client error
func IsHTTPClient(err error) bool {
	return errors.Is(err, ErrHTTPClient)
}
