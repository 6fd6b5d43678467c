// Package shared contains the error kinds and domain events used across
// every domain package. It has no dependencies outside the standard library.
package shared

import (
	"errors"
	"fmt"
)

// Base error kinds, matched with errors.Is().
var (
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrValidation    = errors.New("validation error")
	ErrInvalidState  = errors.New("invalid state")

	// Coins
	ErrInsufficientFunds = errors.New("insufficient funds")

	// Achievements
	ErrDuplicateAchievement = errors.New("achievement already earned")
	ErrInvalidBadgeType     = errors.New("invalid badge type")

	// Concurrency
	ErrConcurrencyConflict = errors.New("concurrency conflict")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g. "user", "coins", "progress"
	Op      string // Operation that failed, e.g. "Apply", "Complete"
	Kind    error  // Base error kind for errors.Is() checking
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

// Unwrap returns the underlying error, or the kind when there is none.
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching on both kind and cause.
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

// NewValidationError builds an ErrValidation error for a domain operation.
func NewValidationError(domain, op, message string) *DomainError {
	return NewDomainError(domain, op, ErrValidation, message)
}

// Well-known errors.
var (
	ErrUserNotFound      = NewDomainError("user", "Find", ErrNotFound, "user not found")
	ErrUserAlreadyExists = NewDomainError("user", "Create", ErrAlreadyExists, "user already exists")
	ErrProgressNotFound  = NewDomainError("progress", "Find", ErrNotFound, "progress record not found")
	ErrMistakeNotFound   = NewDomainError("progress", "FindMistake", ErrNotFound, "mistake not found")
	ErrQuizNotFound      = NewDomainError("progress", "FindQuiz", ErrNotFound, "quiz result not found")
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
	return errors.Is(err, ErrValidation)
}

// IsInsufficientFunds checks if a debit was rejected for lack of balance.
func IsInsufficientFunds(err error) bool {
	return errors.Is(err, ErrInsufficientFunds)
}

// IsDuplicateAchievement checks if an award hit an existing badge.
func IsDuplicateAchievement(err error) bool {
	return errors.Is(err, ErrDuplicateAchievement)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}
