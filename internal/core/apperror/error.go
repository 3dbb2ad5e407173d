// Package apperror provides structured errors with stable machine-readable codes.
// All engine rejections and repository failures are expressed as AppError so callers
// can map them to a stable code without string matching.
package apperror

import (
	"errors"
	"fmt"
)

// Error codes following domain-driven design
const (
	// Infrastructure errors
	CodeInternal = "INTERNAL_ERROR"
	CodeDatabase = "DATABASE_ERROR"
	CodeTimeout  = "TIMEOUT_ERROR"

	// Validation errors
	CodeValidation       = "VALIDATION_ERROR"
	CodeInvalidQuantity  = "INVALID_QUANTITY"
	CodeInvalidDirection = "INVALID_DIRECTION"
	CodeUnknownReason    = "UNKNOWN_REASON"
	CodeEmptyBatch       = "EMPTY_BATCH"

	// Constraint violations
	CodeInsufficientStock        = "INSUFFICIENT_STOCK"
	CodeStockLimitExceeded       = "STOCK_LIMIT_EXCEEDED"
	CodeOrderConstraintViolation = "ORDER_CONSTRAINT_VIOLATION"
	CodeDuplicateEdit            = "DUPLICATE_EDIT"
	CodeBatchTooLarge            = "BATCH_TOO_LARGE"

	// Business rule violations
	CodeBusinessRule            = "BUSINESS_RULE_VIOLATION"
	CodeInactiveResource        = "INACTIVE_RESOURCE"
	CodeOrderNotReceivable      = "ORDER_NOT_RECEIVABLE"
	CodeReasonDirectionMismatch = "REASON_DIRECTION_MISMATCH"
	CodePlanNotExecutable       = "PLAN_NOT_EXECUTABLE"
	CodeConcurrentModification  = "CONCURRENT_MODIFICATION"

	// Warnings only; never block a plan.
	CodeLowStock         = "LOW_STOCK"
	CodeCriticalStock    = "CRITICAL_STOCK"
	CodeOrderContention  = "ORDER_CONTENTION"
	CodeOrderLinkIgnored = "ORDER_LINK_IGNORED"

	// Authorization errors
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"

	// Not found
	CodeNotFound         = "NOT_FOUND"
	CodeResourceNotFound = "RESOURCE_NOT_FOUND"
)

// AppError is the standard error type for the platform.
// Details carry the item ids and quantities behind the failure.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (item ids, quantities, etc.)
	Details map[string]any `json:"details,omitempty"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions for common errors ---

// NewValidation creates a validation error
func NewValidation(message string) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: message,
	}
}

// NewNotFound creates a not found error
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", entity),
		Details: map[string]any{"entity": entity, "id": id},
	}
}

// NewInactiveResource is returned when an inactive item or actor would take part in a mutation.
func NewInactiveResource(entity string, id any) *AppError {
	return &AppError{
		Code:    CodeInactiveResource,
		Message: fmt.Sprintf("%s is inactive", entity),
		Details: map[string]any{"entity": entity, "id": id},
	}
}

// NewPlanNotExecutable rejects a commit of a plan that did not pass validation.
func NewPlanNotExecutable(globalErrors, invalidItems int) *AppError {
	return &AppError{
		Code:    CodePlanNotExecutable,
		Message: "Plan cannot proceed and was not committed",
		Details: map[string]any{
			"global_errors": globalErrors,
			"invalid_items": invalidItems,
		},
	}
}

// NewConcurrentModification creates an optimistic locking error
func NewConcurrentModification(entity string, id any) *AppError {
	return &AppError{
		Code:    CodeConcurrentModification,
		Message: "Record was modified by another transaction. Please retry.",
		Details: map[string]any{"entity": entity, "id": id},
	}
}

// NewForbidden creates an authorization error
func NewForbidden(message string) *AppError {
	return &AppError{
		Code:    CodeForbidden,
		Message: message,
	}
}

// --- Helper functions ---

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == CodeNotFound || appErr.Code == CodeResourceNotFound
	}
	return false
}

// IsConcurrentModification checks if error is CodeConcurrentModification
func IsConcurrentModification(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == CodeConcurrentModification
	}
	return false
}

// HasCode reports whether err carries an AppError with the given code.
func HasCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}
