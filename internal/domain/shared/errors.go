package shared

import (
	"errors"
	"fmt"
)

// Error codes. Codes are stable and surfaced to API clients.
const (
	CodeNotFound                 = "NOT_FOUND"
	CodeAlreadyExists            = "ALREADY_EXISTS"
	CodeConcurrencyConflict      = "CONCURRENCY_CONFLICT"
	CodeForbidden                = "FORBIDDEN"
	CodeInvalidState             = "INVALID_STATE"
	CodeScopeViolation           = "SCOPE_VIOLATION"
	CodeValidation               = "VALIDATION_ERROR"
	CodeInvalidTransition        = "INVALID_TRANSITION"
	CodeFieldImmutable           = "FIELD_IMMUTABLE"
	CodeDuplicateApproval        = "DUPLICATE_APPROVAL"
	CodeImmutableRecordViolation = "IMMUTABLE_RECORD_VIOLATION"
	CodeDeleteForbidden          = "DELETE_FORBIDDEN"
	CodeInvalidFrequency         = "INVALID_FREQUENCY"
	CodeRecurringAlreadyExpanded = "RECURRING_ALREADY_EXPANDED"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is reports whether target is a DomainError with the same code, so sentinel
// errors can be matched with errors.Is regardless of message or details.
func (e *DomainError) Is(target error) bool {
	var de *DomainError
	if !errors.As(target, &de) {
		return false
	}
	return de.Code == e.Code
}

// WithDetail returns a copy of the error carrying an extra diagnostic field
func (e *DomainError) WithDetail(key string, value any) *DomainError {
	details := make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	return &DomainError{Code: e.Code, Message: e.Message, Details: details}
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound                 = NewDomainError(CodeNotFound, "Resource not found")
	ErrAlreadyExists            = NewDomainError(CodeAlreadyExists, "Resource already exists")
	ErrConcurrencyConflict      = NewDomainError(CodeConcurrencyConflict, "Resource was modified by another process")
	ErrForbidden                = NewDomainError(CodeForbidden, "Access to this resource is forbidden")
	ErrInvalidState             = NewDomainError(CodeInvalidState, "Operation not allowed in current state")
	ErrScopeViolation           = NewDomainError(CodeScopeViolation, "Reference does not belong to the current tenant scope")
	ErrValidation               = NewDomainError(CodeValidation, "Invalid input provided")
	ErrInvalidTransition        = NewDomainError(CodeInvalidTransition, "State transition not allowed")
	ErrFieldImmutable           = NewDomainError(CodeFieldImmutable, "Field can no longer be changed")
	ErrDuplicateApproval        = NewDomainError(CodeDuplicateApproval, "Approval already recorded")
	ErrImmutableRecordViolation = NewDomainError(CodeImmutableRecordViolation, "Audit records cannot be modified")
	ErrDeleteForbidden          = NewDomainError(CodeDeleteForbidden, "Audit records cannot be deleted")
	ErrInvalidFrequency         = NewDomainError(CodeInvalidFrequency, "Unknown recurrence frequency")
	ErrRecurringAlreadyExpanded = NewDomainError(CodeRecurringAlreadyExpanded, "Recurring item has already been expanded")
)

// NewScopeViolation reports a reference that resolves outside the caller's tenant scope
func NewScopeViolation(entity, id, rule string) *DomainError {
	return &DomainError{
		Code:    CodeScopeViolation,
		Message: fmt.Sprintf("%s %s violates tenant scope: %s", entity, id, rule),
		Details: map[string]any{"entity": entity, "id": id, "rule": rule},
	}
}

// NewValidationError reports malformed input for a single field
func NewValidationError(field, message string) *DomainError {
	return &DomainError{
		Code:    CodeValidation,
		Message: fmt.Sprintf("%s: %s", field, message),
		Details: map[string]any{"field": field},
	}
}

// NewInvalidTransition reports a state machine operation that the current state does not permit
func NewInvalidTransition(entity, from, to string) *DomainError {
	return &DomainError{
		Code:    CodeInvalidTransition,
		Message: fmt.Sprintf("cannot transition %s from %s to %s", entity, from, to),
		Details: map[string]any{"entity": entity, "from": from, "to": to},
	}
}

// NewFieldImmutable reports an attempt to change a frozen field
func NewFieldImmutable(entity, field, rule string) *DomainError {
	return &DomainError{
		Code:    CodeFieldImmutable,
		Message: fmt.Sprintf("%s field %s cannot be changed: %s", entity, field, rule),
		Details: map[string]any{"entity": entity, "field": field, "rule": rule},
	}
}

// IsCode reports whether err is a DomainError carrying code
func IsCode(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}
