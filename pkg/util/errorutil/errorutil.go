package errorutil

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes surfaced to API callers.
const (
	CodeValidation           = "VALIDATION_FAILED"
	CodeNotFound             = "NOT_FOUND"
	CodeSelfReference        = "SELF_REFERENCE"
	CodeCircularRelationship = "CIRCULAR_RELATIONSHIP"
	CodeInvalidSourceState   = "INVALID_SOURCE_STATE"
	CodeInvalidTargetState   = "INVALID_TARGET_STATE"
	CodeInvalidSplitSpec     = "INVALID_SPLIT_SPEC"
	CodeInvalidMergeSpec     = "INVALID_MERGE_SPEC"
	CodeSystemGenerated      = "SYSTEM_GENERATED"
	CodeTenantMismatch       = "TENANT_MISMATCH"
	CodeStorageFailure       = "STORAGE_FAILURE"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeForbidden            = "FORBIDDEN"
	CodeConflict             = "CONFLICT"
	CodeInternal             = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the caller may retry the whole operation from validation.
func (e *DomainError) Retryable() bool {
	return e != nil && e.Code == CodeStorageFailure
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewSelfReference(ticketID string) error {
	return NewDomainError(CodeSelfReference, "a ticket cannot be related to itself", http.StatusBadRequest,
		map[string]any{"ticket_id": ticketID})
}

func NewCircularRelationship(message string, details map[string]any) error {
	return NewDomainError(CodeCircularRelationship, message, http.StatusConflict, details)
}

func NewInvalidSourceState(message string, details map[string]any) error {
	return NewDomainError(CodeInvalidSourceState, message, http.StatusConflict, details)
}

func NewInvalidTargetState(message string, details map[string]any) error {
	return NewDomainError(CodeInvalidTargetState, message, http.StatusConflict, details)
}

func NewInvalidSplitSpec(message string, details map[string]any) error {
	return NewDomainError(CodeInvalidSplitSpec, message, http.StatusUnprocessableEntity, details)
}

func NewInvalidMergeSpec(message string, details map[string]any) error {
	return NewDomainError(CodeInvalidMergeSpec, message, http.StatusUnprocessableEntity, details)
}

func NewSystemGenerated(relationshipID string, relationshipType string) error {
	return NewDomainError(CodeSystemGenerated, "system generated relationships cannot be removed", http.StatusConflict,
		map[string]any{"relationship_id": relationshipID, "relationship_type": relationshipType})
}

func NewTenantMismatch(details map[string]any) error {
	return NewDomainError(CodeTenantMismatch, "tickets belong to different tenants", http.StatusForbidden, details)
}

// NewStorageFailure wraps an error from the underlying store. It is the only retryable class.
func NewStorageFailure(err error) error {
	return &DomainError{
		Code:       CodeStorageFailure,
		Message:    "storage operation failed",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// HasCode reports whether err is a DomainError with the given code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// IsDomainError reports whether err already carries a DomainError.
func IsDomainError(err error) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr)
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	if err == nil {
		return nil
	}
	return ToDomainError(err)
}
