// Package errors provides the error taxonomy for the ecomap pipeline.
// Typed errors carry enough context to report a failure without losing its
// cause, and each one matches a sentinel through errors.Is so callers can
// branch on the kind of failure rather than on message text.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// New returns an error that formats as the given text.
// It's an alias for the standard library errors.New for convenience.
var New = errors.New

// Join is an alias for the standard library errors.Join.
var Join = errors.Join

// As is an alias for the standard library errors.As.
var As = errors.As

// Is is an alias for the standard library errors.Is.
var Is = errors.Is

// Sentinel errors for the pipeline
var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates that a resource already exists
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates a malformed record or argument
	ErrInvalidInput = errors.New("invalid input")

	// ErrResolutionConflict indicates an ambiguous merge decision
	ErrResolutionConflict = errors.New("resolution conflict")

	// ErrScoringDataMissing indicates that no growth signal was available
	ErrScoringDataMissing = errors.New("scoring data missing")

	// ErrScheduleConflict indicates a job class already has a run in flight
	ErrScheduleConflict = errors.New("already running")

	// ErrWriteConflict indicates a concurrent write won the race for an entity
	ErrWriteConflict = errors.New("store write conflict")

	// ErrStoreUnavailable indicates the store cannot serve reads or writes
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrTimeout indicates that an operation timed out
	ErrTimeout = errors.New("operation timed out")

	// ErrCanceled indicates that an operation was canceled
	ErrCanceled = errors.New("operation canceled")
)

// NotFoundError represents an error when a resource is not found
type NotFoundError struct {
	Resource string
	ID       string
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Resource, e.ID)
}

// Is implements errors.Is support
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// ValidationError represents a malformed record or invalid argument.
// Records failing validation are dropped and reported, never fatal to a batch.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// Is implements errors.Is support
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError creates a new ValidationError
func NewValidationError(field string, value any, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// ResolutionConflict records a merge decision that had more than one
// plausible outcome. It is resolved deterministically and logged, never
// returned as a run failure.
type ResolutionConflict struct {
	EntityID   string
	Field      string
	Candidates []string
	Chosen     string
	Reason     string
}

// Error implements the error interface
func (e *ResolutionConflict) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("resolution conflict on %s.%s: chose %s from [%s] (%s)",
			e.EntityID, e.Field, e.Chosen, strings.Join(e.Candidates, ", "), e.Reason)
	}
	return fmt.Sprintf("resolution conflict on %s: chose %s from [%s] (%s)",
		e.EntityID, e.Chosen, strings.Join(e.Candidates, ", "), e.Reason)
}

// Is implements errors.Is support
func (e *ResolutionConflict) Is(target error) bool {
	return target == ErrResolutionConflict
}

// NewResolutionConflict creates a new ResolutionConflict
func NewResolutionConflict(entityID, field string, candidates []string, chosen, reason string) *ResolutionConflict {
	return &ResolutionConflict{
		EntityID:   entityID,
		Field:      field,
		Candidates: candidates,
		Chosen:     chosen,
		Reason:     reason,
	}
}

// ScoringDataMissing indicates an entity has no growth signals at all.
type ScoringDataMissing struct {
	EntityID string
}

// Error implements the error interface
func (e *ScoringDataMissing) Error() string {
	return fmt.Sprintf("no growth signals for entity %s", e.EntityID)
}

// Is implements errors.Is support
func (e *ScoringDataMissing) Is(target error) bool {
	return target == ErrScoringDataMissing
}

// NewScoringDataMissing creates a new ScoringDataMissing
func NewScoringDataMissing(entityID string) *ScoringDataMissing {
	return &ScoringDataMissing{EntityID: entityID}
}

// ScheduleConflict is returned when a job class is triggered while a run of
// the same class is still in flight.
type ScheduleConflict struct {
	JobClass    string
	ActiveRunID string
}

// Error implements the error interface
func (e *ScheduleConflict) Error() string {
	if e.ActiveRunID != "" {
		return fmt.Sprintf("job %s already running (run %s)", e.JobClass, e.ActiveRunID)
	}
	return fmt.Sprintf("job %s already running", e.JobClass)
}

// Is implements errors.Is support
func (e *ScheduleConflict) Is(target error) bool {
	return target == ErrScheduleConflict
}

// NewScheduleConflict creates a new ScheduleConflict
func NewScheduleConflict(jobClass, activeRunID string) *ScheduleConflict {
	return &ScheduleConflict{JobClass: jobClass, ActiveRunID: activeRunID}
}

// StoreWriteConflict is returned when an entity changed between read and
// write. Callers retry with a fresh read-merge-write a bounded number of times.
type StoreWriteConflict struct {
	EntityID string
	Expected int64
	Actual   int64
	Attempts int
}

// Error implements the error interface
func (e *StoreWriteConflict) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("write conflict on entity %s after %d attempts", e.EntityID, e.Attempts)
	}
	return fmt.Sprintf("write conflict on entity %s: expected version %d, found %d", e.EntityID, e.Expected, e.Actual)
}

// Is implements errors.Is support
func (e *StoreWriteConflict) Is(target error) bool {
	return target == ErrWriteConflict
}

// NewStoreWriteConflict creates a new StoreWriteConflict
func NewStoreWriteConflict(entityID string, expected, actual int64) *StoreWriteConflict {
	return &StoreWriteConflict{EntityID: entityID, Expected: expected, Actual: actual}
}

// StoreError wraps a failure of the underlying store.
// It matches ErrStoreUnavailable, which aborts a whole run.
type StoreError struct {
	Operation string
	Err       error
}

// Error implements the error interface
func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s failed: %v", e.Operation, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *StoreError) Is(target error) bool {
	return target == ErrStoreUnavailable
}

// NewStoreError creates a new StoreError
func NewStoreError(operation string, err error) *StoreError {
	return &StoreError{Operation: operation, Err: err}
}

// ConfigError represents a configuration error
type ConfigError struct {
	Component string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Message)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError
func NewConfigError(component, message string, err error) *ConfigError {
	return &ConfigError{
		Component: component,
		Message:   message,
		Err:       err,
	}
}

// ParseError represents an error when parsing data formats
type ParseError struct {
	Format  string // "json", "yaml", "cel"
	File    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *ParseError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("parse error in %s file %s: %s", e.Format, e.File, e.Message)
	}
	return fmt.Sprintf("%s parse error: %s", e.Format, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError creates a new ParseError
func NewParseError(format, file string, message string, err error) *ParseError {
	return &ParseError{
		Format:  format,
		File:    file,
		Message: message,
		Err:     err,
	}
}

// IOError represents an error during I/O operations
type IOError struct {
	Operation string // "read", "write", "open", "close"
	Path      string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("IO error during %s of %s: %s", e.Operation, e.Path, e.Message)
	}
	return fmt.Sprintf("IO error during %s: %s", e.Operation, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *IOError) Unwrap() error {
	return e.Err
}

// NewIOError creates a new IOError
func NewIOError(operation, path string, err error) *IOError {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &IOError{
		Operation: operation,
		Path:      path,
		Message:   message,
		Err:       err,
	}
}

// ResourceError represents an error during resource operations
type ResourceError struct {
	Operation string // "resolve", "score", "audit", "commit"
	Resource  string // "entity", "block", "run"
	ID        string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *ResourceError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("failed to %s %s %s: %s", e.Operation, e.Resource, e.ID, e.Message)
	}
	return fmt.Sprintf("failed to %s %s: %s", e.Operation, e.Resource, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ResourceError) Unwrap() error {
	return e.Err
}

// NewResourceError creates a new ResourceError
func NewResourceError(operation, resource, id string, err error) *ResourceError {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &ResourceError{
		Operation: operation,
		Resource:  resource,
		ID:        id,
		Message:   message,
		Err:       err,
	}
}

// APIError represents a failed call to a remote feed or API.
type APIError struct {
	Endpoint   string
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s returned status %d: %s", e.Endpoint, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("request to %s failed: %s", e.Endpoint, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *APIError) Unwrap() error {
	return e.Err
}

// Helper functions for error checking

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsWriteConflict checks if an error is a store write conflict
func IsWriteConflict(err error) bool {
	return errors.Is(err, ErrWriteConflict)
}

// IsScheduleConflict checks if an error is a schedule conflict
func IsScheduleConflict(err error) bool {
	return errors.Is(err, ErrScheduleConflict)
}

// IsStoreUnavailable checks if an error should abort a whole run
func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// IsCanceled checks if an error is a cancellation error
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}

// Helper wrapping functions for common patterns

// WrapValidation wraps an error as a ValidationError
func WrapValidation(field string, err error) error {
	if err == nil {
		return nil
	}
	return &ValidationError{Field: field, Message: err.Error()}
}

// WrapIO wraps an error as an IOError
func WrapIO(operation, path string, err error) error {
	if err == nil {
		return nil
	}
	return NewIOError(operation, path, err)
}

// WrapParse wraps an error as a ParseError
func WrapParse(format, file string, err error) error {
	if err == nil {
		return nil
	}
	return NewParseError(format, file, err.Error(), err)
}

// WrapResource wraps an error as a ResourceError
func WrapResource(operation, resource, id string, err error) error {
	if err == nil {
		return nil
	}
	return NewResourceError(operation, resource, id, err)
}
