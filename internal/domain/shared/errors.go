package shared

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies a DomainError for retry and reporting decisions
type ErrorCategory string

const (
	CategoryValidation    ErrorCategory = "VALIDATION"
	CategoryConfiguration ErrorCategory = "CONFIGURATION"
	CategoryProcessing    ErrorCategory = "PROCESSING"
	CategoryConcurrency   ErrorCategory = "CONCURRENCY"
	CategoryNotFound      ErrorCategory = "NOT_FOUND"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code     string        `json:"code"`
	Message  string        `json:"message"`
	Category ErrorCategory `json:"category"`
	cause    error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, if any
func (e *DomainError) Unwrap() error {
	return e.cause
}

// Is matches on code so wrapped copies of the sentinels still compare equal
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new validation-category domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:     code,
		Message:  message,
		Category: CategoryValidation,
	}
}

// NewValidationError is returned synchronously to the caller and never retried
func NewValidationError(code, message string) *DomainError {
	return NewDomainError(code, message)
}

// NewConfigurationError flags missing or inconsistent plan / period setup
func NewConfigurationError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message, Category: CategoryConfiguration}
}

// NewProcessingError wraps a collaborator failure
func NewProcessingError(code, message string, cause error) *DomainError {
	return &DomainError{Code: code, Message: message, Category: CategoryProcessing, cause: cause}
}

// NewConcurrencyError reports a lost optimistic-lock race
func NewConcurrencyError(message string) *DomainError {
	return &DomainError{Code: "CONCURRENCY_CONFLICT", Message: message, Category: CategoryConcurrency}
}

// Common domain errors
var (
	ErrNotFound            = &DomainError{Code: "NOT_FOUND", Message: "Resource not found", Category: CategoryNotFound}
	ErrAlreadyExists       = NewDomainError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput        = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrConcurrencyConflict = NewConcurrencyError("Resource was modified by another process")
	ErrUnauthorized        = NewDomainError("UNAUTHORIZED", "Not authorized to perform this action")
	ErrInvalidState        = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
)

// CategoryOf returns the category of err, or PROCESSING for foreign errors
func CategoryOf(err error) ErrorCategory {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Category
	}
	return CategoryProcessing
}

func IsValidation(err error) bool {
	return err != nil && CategoryOf(err) == CategoryValidation
}

func IsConfiguration(err error) bool {
	return err != nil && CategoryOf(err) == CategoryConfiguration
}

func IsProcessing(err error) bool {
	return err != nil && CategoryOf(err) == CategoryProcessing
}

func IsConcurrency(err error) bool {
	return err != nil && CategoryOf(err) == CategoryConcurrency
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
