package errorutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// Error codes surfaced to callers.
const (
	CodeInvalidTransition  = "INVALID_TRANSITION"
	CodeIneligibleAssignee = "INELIGIBLE_ASSIGNEE"
	CodeNotCurrentAssignee = "NOT_CURRENT_ASSIGNEE"
	CodeInvalidRoleBinding = "INVALID_ROLE_BINDING"
	CodeMissingEvidence    = "MISSING_EVIDENCE"
	CodeForbidden          = "FORBIDDEN"
	CodeNotFound           = "NOT_FOUND"
	CodeConflict           = "CONFLICT"
	CodeValidation         = "VALIDATION_FAILED"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInternal           = "INTERNAL_ERROR"
)

// Sentinels for errors.Is comparisons. Matching is by code only.
var (
	ErrInvalidTransition  = &DomainError{Code: CodeInvalidTransition}
	ErrIneligibleAssignee = &DomainError{Code: CodeIneligibleAssignee}
	ErrNotCurrentAssignee = &DomainError{Code: CodeNotCurrentAssignee}
	ErrInvalidRoleBinding = &DomainError{Code: CodeInvalidRoleBinding}
	ErrMissingEvidence    = &DomainError{Code: CodeMissingEvidence}
	ErrForbidden          = &DomainError{Code: CodeForbidden}
	ErrNotFound           = &DomainError{Code: CodeNotFound}
	ErrConflict           = &DomainError{Code: CodeConflict}
	ErrValidation         = &DomainError{Code: CodeValidation}
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Retryable  bool
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Message == "" {
		return e.Code
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a DomainError with the same code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return t.Code == e.Code
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

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

// NewConflict signals an optimistic-version mismatch or a uniqueness clash.
// Callers may re-read and reapply.
func NewConflict(message string, details map[string]any) error {
	err := NewDomainError(CodeConflict, message, http.StatusConflict, details)
	err.Retryable = true
	return err
}

func NewInvalidTransition(from, transition string) error {
	return NewDomainError(CodeInvalidTransition,
		fmt.Sprintf("cannot %s issue in status %s", transition, from),
		http.StatusConflict,
		map[string]any{"status": from, "transition": transition})
}

func NewIneligibleAssignee(reason string, details map[string]any) error {
	return NewDomainError(CodeIneligibleAssignee, reason, http.StatusUnprocessableEntity, details)
}

func NewNotCurrentAssignee(details map[string]any) error {
	return NewDomainError(CodeNotCurrentAssignee, "source user is not the current assignee", http.StatusConflict, details)
}

// NewInvalidRoleBinding carries every violated rule, not just the first.
func NewInvalidRoleBinding(violations []string) error {
	return NewDomainError(CodeInvalidRoleBinding, "user role binding is invalid", http.StatusBadRequest,
		map[string]any{"violations": violations})
}

func NewMissingEvidence(issueID string) error {
	return NewDomainError(CodeMissingEvidence, "resolution requires an after-evidence attachment",
		http.StatusUnprocessableEntity, map[string]any{"issue_id": issueID})
}

func NewRateLimited() error {
	return NewDomainError(CodeRateLimited, "too many requests", http.StatusTooManyRequests, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// IsRetryable reports whether the caller may re-read and retry.
func IsRetryable(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Retryable
	}
	return false
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
	if errors.Is(err, pgx.ErrNoRows) {
		return NewNotFound("resource", nil).(*DomainError)
	}
	return NewInternalError(err).(*DomainError)
}

// MapError is ToDomainError for call sites returning plain error values.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	return ToDomainError(err)
}
