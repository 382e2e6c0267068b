// Package shared contains common domain types, errors, and events
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrInvalidEntity = errors.New("invalid entity")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrFutureTimestamp = errors.New("timestamp cannot be in the future")

	// State errors
	ErrInvalidState     = errors.New("invalid state")
	ErrStateTransition  = errors.New("invalid state transition")
	ErrAlreadyProcessed = errors.New("already processed")

	// Concurrency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrOptimisticLock         = errors.New("optimistic lock failure")

	// External collaborator errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "catalog", "progression", "xp"
	Op      string // Operation that failed, e.g., "Resolve", "ApplyActivity"
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

// Catalog domain errors
var (
	// ErrCatalogUnavailable means neither the personalized nor the default
	// chapter list could be read. Callers must surface this as "journey
	// unavailable", never as "all chapters locked".
	ErrCatalogUnavailable = NewDomainError("catalog", "Resolve", ErrServiceUnavailable, "no chapter catalog available")
	ErrCatalogEmpty       = NewDomainError("catalog", "Resolve", ErrNotFound, "catalog has no chapters")
	ErrInvalidChapter     = NewDomainError("catalog", "Validate", ErrInvalidEntity, "invalid chapter definition")
	ErrInvalidCatalogKind = NewDomainError("catalog", "Validate", ErrInvalidInput, "invalid catalog kind")
)

// Progression domain errors
var (
	ErrRecordNotFound       = NewDomainError("progression", "Find", ErrNotFound, "progress record not found")
	ErrRecordAlreadyExists  = NewDomainError("progression", "Create", ErrAlreadyExists, "progress record already exists")
	ErrChapterCompleted     = NewDomainError("progression", "Apply", ErrAlreadyProcessed, "chapter already completed")
	ErrProgressConflict     = NewDomainError("progression", "Update", ErrConcurrentModification, "progress record changed since read")
	ErrInvalidStatus        = NewDomainError("progression", "Validate", ErrInvalidState, "invalid progress status")
	ErrStatusTransition     = NewDomainError("progression", "Transition", ErrStateTransition, "invalid progress status transition")
	ErrCatalogMixing        = NewDomainError("progression", "Validate", ErrInvalidInput, "progress records span multiple catalogs")
	ErrNegativeActivityData = NewDomainError("progression", "Apply", ErrNegativeValue, "activity deltas must be non-negative")
)

// XP ledger errors
var (
	// ErrReconciliationFailure means the XP total update failed after progress
	// was durably written. Not fatal: the periodic sweep re-derives the total.
	ErrReconciliationFailure = NewDomainError("xp", "Reconcile", ErrExternalService, "XP total update failed")
	ErrLearnerTotalNotFound  = NewDomainError("xp", "Total", ErrNotFound, "learner XP total not found")
	ErrInvalidXPAmount       = NewDomainError("xp", "Validate", ErrNegativeValue, "XP amount must be non-negative")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsConflict checks if the error is an optimistic concurrency conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrOptimisticLock)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConcurrentModification)
}
