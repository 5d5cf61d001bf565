// Package shared contains common domain types, errors, and events used
// across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Validation errors
	ErrInvalidArgument = errors.New("invalid argument")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")

	// Storage errors
	ErrRecordAbsent     = errors.New("record absent")
	ErrStorageRead      = errors.New("storage read failed")
	ErrStorageCorrupt   = errors.New("stored record is corrupt")
	ErrStorageWrite     = errors.New("storage write failed")
	ErrStaleWrite       = errors.New("stale write rejected")
	ErrStoreClosed      = errors.New("record store is closed")
	ErrUnknownSchemaVer = errors.New("unknown schema version")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "progress", "companion", "engine"
	Op      string // Operation that failed, e.g., "RecordCompletion"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// IsInvalidArgument checks if the error is a validation error. State is
// never mutated when one of these is returned.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsStorageWrite checks if the error is a storage write failure. The
// in-memory state is already updated when one of these surfaces; the caller
// should warn that progress may not survive a restart.
func IsStorageWrite(err error) bool {
	return errors.Is(err, ErrStorageWrite) || errors.Is(err, ErrStaleWrite)
}

// IsStorageCorrupt checks if the error marks an unparsable stored record.
// Initialization recovers from these by substituting defaults.
func IsStorageCorrupt(err error) bool {
	return errors.Is(err, ErrStorageCorrupt) || errors.Is(err, ErrUnknownSchemaVer)
}
