package dto

import (
	"net/http"

	"github.com/edubill/backend/internal/domain/shared"
)

// Error codes written to the wire. Domain codes pass through unchanged so
// clients see the same code the service layer raised.

// General error codes
const (
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "INTERNAL_ERROR"
)

// Input error codes
const (
	// ErrCodeValidation is used for invalid input data
	ErrCodeValidation = shared.CodeValidation
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "BAD_REQUEST"
	// ErrCodeInvalidFrequency is used for an unknown recurrence frequency
	ErrCodeInvalidFrequency = shared.CodeInvalidFrequency
	// ErrCodePayloadTooLarge is used when the body exceeds the configured limit
	ErrCodePayloadTooLarge = "PAYLOAD_TOO_LARGE"
)

// Tenant error codes
const (
	// ErrCodeUnauthorized is used when the tenant or actor headers are missing
	ErrCodeUnauthorized = "UNAUTHORIZED"
	// ErrCodeForbidden is used when the actor lacks the privilege
	ErrCodeForbidden = shared.CodeForbidden
	// ErrCodeScopeViolation is used when a reference resolves outside the caller's scope
	ErrCodeScopeViolation = shared.CodeScopeViolation
)

// Resource error codes
const (
	ErrCodeNotFound                 = shared.CodeNotFound
	ErrCodeAlreadyExists            = shared.CodeAlreadyExists
	ErrCodeConcurrencyConflict      = shared.CodeConcurrencyConflict
	ErrCodeDuplicateApproval        = shared.CodeDuplicateApproval
	ErrCodeRecurringAlreadyExpanded = shared.CodeRecurringAlreadyExpanded
)

// Lifecycle error codes
const (
	ErrCodeInvalidState      = shared.CodeInvalidState
	ErrCodeInvalidTransition = shared.CodeInvalidTransition
	ErrCodeFieldImmutable    = shared.CodeFieldImmutable
)

// Audit trail error codes
const (
	ErrCodeImmutableRecordViolation = shared.CodeImmutableRecordViolation
	ErrCodeDeleteForbidden          = shared.CodeDeleteForbidden
)

// Rate limiting error codes
const (
	// ErrCodeRateLimited is used when rate limit is exceeded
	ErrCodeRateLimited = "RATE_LIMITED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal: http.StatusInternalServerError,

	// Input errors -> 400 Bad Request
	ErrCodeValidation:       http.StatusBadRequest,
	ErrCodeBadRequest:       http.StatusBadRequest,
	ErrCodeInvalidFrequency: http.StatusBadRequest,
	ErrCodePayloadTooLarge:  http.StatusRequestEntityTooLarge,

	// Tenant errors
	ErrCodeUnauthorized:   http.StatusUnauthorized,
	ErrCodeForbidden:      http.StatusForbidden,
	ErrCodeScopeViolation: http.StatusForbidden,

	// Resource errors
	ErrCodeNotFound:                 http.StatusNotFound,
	ErrCodeAlreadyExists:            http.StatusConflict,
	ErrCodeConcurrencyConflict:      http.StatusConflict,
	ErrCodeDuplicateApproval:        http.StatusConflict,
	ErrCodeRecurringAlreadyExpanded: http.StatusConflict,

	// Lifecycle errors -> 422 Unprocessable Entity
	ErrCodeInvalidState:      http.StatusUnprocessableEntity,
	ErrCodeInvalidTransition: http.StatusUnprocessableEntity,
	ErrCodeFieldImmutable:    http.StatusUnprocessableEntity,

	// Audit trail errors
	ErrCodeImmutableRecordViolation: http.StatusConflict,
	ErrCodeDeleteForbidden:          http.StatusMethodNotAllowed,

	ErrCodeRateLimited: http.StatusTooManyRequests,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
