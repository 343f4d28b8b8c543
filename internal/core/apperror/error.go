// Package apperror provides structured error handling following RFC 7807 Problem Details.
// All business errors must use AppError for consistent API responses.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes following domain-driven design
const (
	// Infrastructure errors (5xx)
	CodeInternal = "INTERNAL_ERROR"
	CodeDatabase = "DATABASE_ERROR"
	CodeTimeout  = "TIMEOUT_ERROR"

	// Validation errors (400)
	CodeValidation      = "VALIDATION_ERROR"
	CodeInvalidArgument = "INVALID_ARGUMENT"

	// Ledger rule violations (422)
	CodeUnitConversion            = "UNIT_CONVERSION_ERROR"
	CodeInsufficientStock         = "INSUFFICIENT_STOCK"
	CodeInsufficientBatchQuantity = "INSUFFICIENT_BATCH_QUANTITY"
	CodeBusinessRule              = "BUSINESS_RULE_VIOLATION"
	CodeInvalidStatus             = "INVALID_STATUS"

	// State conflicts (409)
	CodeTransactionLocked      = "TRANSACTION_LOCKED"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
	CodeConflict               = "CONFLICT"
	CodeIdempotency            = "IDEMPOTENCY_CONFLICT"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"
)

// AppError is the standard error type for the platform.
// It implements error interface and provides structured details for API responses.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (field errors, quantities, etc.)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

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

// --- Factory functions ---

// NewValidation creates a validation error (400) for malformed requests.
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewInvalidArgument reports a non-positive quantity or price, or other input
// rejected before any state change.
func NewInvalidArgument(message string) *AppError {
	return &AppError{
		Code:       CodeInvalidArgument,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewUnitConversion reports a missing or non-positive conversion factor.
func NewUnitConversion(unitID, materialID any) *AppError {
	return &AppError{
		Code:       CodeUnitConversion,
		Message:    "No valid conversion to base unit",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"unitId": unitID, "materialId": materialID},
	}
}

// NewInsufficientStock reports that allocation cannot satisfy the requested quantity.
// Quantities are passed as strings to keep full decimal precision in responses.
func NewInsufficientStock(materialID any, requested, available string) *AppError {
	return &AppError{
		Code:       CodeInsufficientStock,
		Message:    "Insufficient stock",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"materialId": materialID,
			"requested":  requested,
			"available":  available,
		},
	}
}

// NewInsufficientBatchQuantity reports a decrement larger than a batch's remainder.
func NewInsufficientBatchQuantity(entryID any, requested, remaining string) *AppError {
	return &AppError{
		Code:       CodeInsufficientBatchQuantity,
		Message:    "Requested quantity exceeds batch remainder",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"ledgerEntryId": entryID,
			"requested":     requested,
			"remaining":     remaining,
		},
	}
}

// NewLockedTransaction reports an attempt to post or modify a finalized transaction.
func NewLockedTransaction(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeTransactionLocked,
		Message:    fmt.Sprintf("%s is locked and cannot be changed", entity),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewConcurrentModification creates an optimistic locking error
func NewConcurrentModification(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeConcurrentModification,
		Message:    "Record was modified by another user. Please refresh and try again.",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewBusinessRule creates a business rule violation error (422)
func NewBusinessRule(code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// NewInvalidStatus reports a status change the document's state machine
// does not allow (422).
func NewInvalidStatus(entity, from, to string) *AppError {
	return &AppError{
		Code:       CodeInvalidStatus,
		Message:    fmt.Sprintf("%s cannot move from %s to %s", entity, from, to),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"entity": entity, "status": from, "target": to},
	}
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewConflict creates a conflict error (409)
func NewConflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// NewIdempotencyConflict creates error when operation is already in progress
func NewIdempotencyConflict(key string) *AppError {
	return &AppError{
		Code:       CodeIdempotency,
		Message:    "Operation already in progress or completed",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"idempotency_key": key},
	}
}

// NewIdempotencyMismatch is returned when the same idempotency key is reused for
// a different request (different operation or body hash).
func NewIdempotencyMismatch(key string) *AppError {
	return &AppError{
		Code:       CodeIdempotency,
		Message:    "Idempotency key mismatch",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"idempotency_key": key},
	}
}

// --- Helper functions ---

// IsAppError checks if error is AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// HasCode reports whether err carries an AppError with the given code.
func HasCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool { return HasCode(err, CodeNotFound) }

// IsConcurrentModification checks if error is CodeConcurrentModification
func IsConcurrentModification(err error) bool { return HasCode(err, CodeConcurrentModification) }

func IsInvalidArgument(err error) bool { return HasCode(err, CodeInvalidArgument) }

func IsUnitConversion(err error) bool { return HasCode(err, CodeUnitConversion) }

func IsInsufficientStock(err error) bool { return HasCode(err, CodeInsufficientStock) }

// IsInvalidStatus checks if error is a rejected status transition.
func IsInvalidStatus(err error) bool { return HasCode(err, CodeInvalidStatus) }

func IsInsufficientBatchQuantity(err error) bool {
	return HasCode(err, CodeInsufficientBatchQuantity)
}

func IsLockedTransaction(err error) bool { return HasCode(err, CodeTransactionLocked) }
