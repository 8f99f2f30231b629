// Package errors provides standardized error types and helpers for the sefer codebase.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases
var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput indicates invalid input or validation failure
	ErrInvalidInput = errors.New("invalid input")
	// ErrInternal indicates an internal consistency fault (a defect, not a user error)
	ErrInternal = errors.New("internal error")
	// ErrUnavailable indicates a remote service answered with a failure status
	ErrUnavailable = errors.New("service unavailable")
)

// Sentinel errors for citation parsing and rendering
var (
	// ErrMalformed indicates a citation does not match the citation grammar
	ErrMalformed = errors.New("malformed citation")
	// ErrUnexpectedShape indicates a fetched text payload has an unsupported shape
	ErrUnexpectedShape = errors.New("unexpected payload shape")
	// ErrOutOfRange indicates a verse index outside the fetched text
	ErrOutOfRange = errors.New("verse out of range")
	// ErrEmptyInput indicates there is no text to render
	ErrEmptyInput = errors.New("empty text")
	// ErrLengthMismatch indicates the fetched text does not match the requested span
	ErrLengthMismatch = errors.New("text length does not match range")
)

// NotFoundError represents a resource not found error with context
type NotFoundError struct {
	Resource string // Type of resource (e.g., "text", "book", "cache entry")
	ID       string // Identifier of the resource
	Err      error  // Underlying error, if any
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrNotFound
}

// ValidationError represents an input validation error with context
type ValidationError struct {
	Field   string // Field name that failed validation
	Value   string // Value that failed validation (may be redacted)
	Message string // Human-readable error message
	Err     error  // Underlying error, if any
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// IOError represents an I/O operation error with context
type IOError struct {
	Operation string // Operation being performed (e.g., "read", "write", "open")
	Path      string // File/resource path involved
	Err       error  // Underlying error
}

func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to %s %s: %v", e.Operation, e.Path, e.Err)
	}
	return fmt.Sprintf("failed to %s: %v", e.Operation, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// ParseError reports a citation that the grammar rejected.
type ParseError struct {
	Input    string // Full citation as typed
	Fragment string // Part of the input that could not be matched
	Message  string // Error details
	Err      error  // Underlying error, if any
}

func (e *ParseError) Error() string {
	if e.Fragment != "" && e.Fragment != e.Input {
		return fmt.Sprintf("malformed citation %q near %q: %s", e.Input, e.Fragment, e.Message)
	}
	return fmt.Sprintf("malformed citation %q: %s", e.Input, e.Message)
}

func (e *ParseError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrMalformed
}

// ShapeError reports a payload value the flattener cannot handle.
type ShapeError struct {
	Path string // Location inside the payload (e.g., "text[3]")
	Kind string // Go type or JSON kind that was found
}

func (e *ShapeError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("unexpected payload shape at %s: %s", e.Path, e.Kind)
	}
	return fmt.Sprintf("unexpected payload shape: %s", e.Kind)
}

func (e *ShapeError) Unwrap() error {
	return ErrUnexpectedShape
}

// RangeError reports a render request that does not fit the fetched text.
// Reason is one of ErrOutOfRange, ErrEmptyInput or ErrLengthMismatch.
type RangeError struct {
	Reason error
	Want   int // Requested index or implied length
	Have   int // Length of the text sequence
}

func (e *RangeError) Error() string {
	switch e.Reason {
	case ErrEmptyInput:
		return e.Reason.Error()
	case ErrOutOfRange:
		return fmt.Sprintf("%v: verse %d requested, %d available", e.Reason, e.Want, e.Have)
	default:
		return fmt.Sprintf("%v: expected %d verses, got %d", e.Reason, e.Want, e.Have)
	}
}

func (e *RangeError) Unwrap() error {
	return e.Reason
}

// HTTPError represents a non-successful response from a remote API.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string // First bytes of the response body
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: status=%d body=%q", e.Method, e.URL, e.StatusCode, e.Body)
}

func (e *HTTPError) Unwrap() error {
	if e.StatusCode == 404 {
		return ErrNotFound
	}
	return ErrUnavailable
}

// Helper functions for creating common errors

// NewNotFound creates a NotFoundError
func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		ID:       id,
	}
}

// NewValidation creates a ValidationError
func NewValidation(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewIO creates an IOError
func NewIO(operation, path string, err error) *IOError {
	return &IOError{
		Operation: operation,
		Path:      path,
		Err:       err,
	}
}

// NewParse creates a ParseError for a citation
func NewParse(input, fragment, message string) *ParseError {
	return &ParseError{
		Input:    input,
		Fragment: fragment,
		Message:  message,
	}
}

// NewRange creates a RangeError
func NewRange(reason error, want, have int) *RangeError {
	return &RangeError{
		Reason: reason,
		Want:   want,
		Have:   have,
	}
}

// Wrap adds context to an error. If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf adds formatted context to an error. If err is nil, returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// Is wraps errors.Is for convenience
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
