// Package shared holds the error kinds, events and value objects every arena
// package agrees on.
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

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrValueOutOfRange = errors.New("value out of range")

	// Anti-cheat errors
	ErrAntiCheat = errors.New("anti-cheat rejection")
	ErrLockedOut = errors.New("locked out")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")

	// Concurrency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// Infrastructure errors
	ErrServiceUnavailable = errors.New("service unavailable")

	ErrRateLimited = errors.New("rate limited")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "arena", "leaderboard", "season"
	Op      string // Operation that failed, e.g., "Submit", "Rotate"
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

// Arena domain errors
var (
	ErrProfileNotFound    = NewDomainError("arena", "Find", ErrNotFound, "arena profile not found")
	ErrInvalidUserID      = NewDomainError("arena", "Validate", ErrInvalidID, "invalid user ID")
	ErrInvalidLevel       = NewDomainError("arena", "Validate", ErrInvalidInput, "invalid level")
	ErrInvalidSubmission  = NewDomainError("arena", "Validate", ErrValidation, "malformed session submission")
	ErrUnknownChallenge   = NewDomainError("arena", "Validate", ErrValidation, "unknown challenge")
	ErrAnswerTooFast      = NewDomainError("arena", "Guard", ErrAntiCheat, "session completed faster than humanly possible")
	ErrXPClaimTooHigh     = NewDomainError("arena", "Guard", ErrAntiCheat, "claimed XP exceeds the session maximum")
	ErrProfileLocked      = NewDomainError("arena", "Guard", ErrLockedOut, "arena access temporarily locked")
	ErrVersionConflict    = NewDomainError("arena", "Update", ErrConcurrentModification, "profile version changed")
	ErrSubmitRateExceeded = NewDomainError("arena", "Admit", ErrRateLimited, "too many requests")
)

// Season domain errors
var (
	ErrSeasonNotFound = NewDomainError("season", "Find", ErrNotFound, "season not found")
	ErrSeasonExists   = NewDomainError("season", "Create", ErrAlreadyExists, "season number already used")
	ErrInvalidSeason  = NewDomainError("season", "Validate", ErrValueOutOfRange, "season ends before it starts")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsAntiCheat checks if the error is an anti-cheat rejection.
func IsAntiCheat(err error) bool {
	return errors.Is(err, ErrAntiCheat)
}

// IsConflict checks if the error is an optimistic concurrency conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsRetryable checks if the operation may succeed when repeated unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrConcurrentModification)
}
