package errors

import (
	"errors"
	"fmt"
)

// Domain errors - these represent business rule violations
var (
	// Pipeline
	ErrInvalidConfiguration = errors.New("invalid analysis configuration")
	ErrMalformedRecord      = errors.New("malformed service request record")
	ErrRunCancelled         = errors.New("analysis run cancelled")

	// Reports
	ErrReportNotFound = errors.New("analysis report not found")
	ErrUnknownTable   = errors.New("unknown report table")
	ErrNoRecords      = errors.New("no records supplied")

	// Sources
	ErrFetchFailed = errors.New("fetching source records failed")

	// Generic
	ErrNotFound    = errors.New("resource not found")
	ErrBadRequest  = errors.New("bad request")
	ErrConflict    = errors.New("resource conflict")
	ErrRateLimited = errors.New("rate limit exceeded")
)

// ConfigurationError names the configuration field that failed validation.
// It always unwraps to ErrInvalidConfiguration.
type ConfigurationError struct {
	Field  string
	Value  interface{}
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s=%v: %s", e.Field, e.Value, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrInvalidConfiguration
}

// MalformedRecordError describes why a single raw record was rejected.
type MalformedRecordError struct {
	Reason string
	Field  string
	Value  interface{}
}

func (e *MalformedRecordError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("malformed record: %s (%s=%v)", e.Reason, e.Field, e.Value)
	}
	return fmt.Sprintf("malformed record: %s", e.Reason)
}

func (e *MalformedRecordError) Unwrap() error {
	return ErrMalformedRecord
}

// AppError wraps errors with additional context for HTTP responses
type AppError struct {
	Err        error  // The underlying error
	Message    string // User-friendly message
	Code       string // Machine-readable error code
	StatusCode int    // HTTP status code
	Details    map[string]interface{}
}

func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Error constructors for common cases
func NewBadRequestError(err error, message string) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       "BAD_REQUEST",
		StatusCode: 400,
	}
}

func NewNotFoundError(err error, message string) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       "NOT_FOUND",
		StatusCode: 404,
	}
}

func NewUpstreamError(err error, message string) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       "UPSTREAM_ERROR",
		StatusCode: 502,
	}
}

// ValidationErrors holds multiple field validation errors
type ValidationErrors struct {
	Errors map[string][]string `json:"errors"`
}

func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{
		Errors: make(map[string][]string),
	}
}

func (v *ValidationErrors) Add(field, message string) {
	v.Errors[field] = append(v.Errors[field], message)
}

func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

func (v *ValidationErrors) Error() string {
	return fmt.Sprintf("validation failed: %d field(s) have errors", len(v.Errors))
}
