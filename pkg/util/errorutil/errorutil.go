package errorutil

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes shared by the chat gateway and the HTTP layer.
const (
	CodeValidation        = "VALIDATION_FAILED"
	CodeNotFound          = "NOT_FOUND"
	CodePermissionDenied  = "PERMISSION_DENIED"
	CodeUnreachable       = "UNREACHABLE"
	CodeConfiguration     = "CONFIGURATION_ERROR"
	CodePlatformTransient = "PLATFORM_TRANSIENT"
	CodeAlreadyOpen       = "ALREADY_OPEN"
	CodeNotOpen           = "NOT_OPEN"
	CodeInternal          = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
// Message is what the person who triggered the event gets to see.
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

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(message string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    message,
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewPermissionDenied(message string) error {
	return NewDomainError(CodePermissionDenied, message, http.StatusForbidden, nil)
}

func NewUnreachable(message string, err error) error {
	return &DomainError{
		Code:       CodeUnreachable,
		Message:    message,
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

func NewConfigurationError(message string, details map[string]any) error {
	return NewDomainError(CodeConfiguration, message, http.StatusInternalServerError, details)
}

// NewPlatformTransient wraps a failed call against the chat platform.
func NewPlatformTransient(message string, err error) error {
	return &DomainError{
		Code:       CodePlatformTransient,
		Message:    message,
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

func NewAlreadyOpen(message string, details map[string]any) error {
	return NewDomainError(CodeAlreadyOpen, message, http.StatusConflict, details)
}

func NewNotOpen(message string, details map[string]any) error {
	return NewDomainError(CodeNotOpen, message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "Wystąpił nieoczekiwany błąd. Spróbuj ponownie później.",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
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
	if de, ok := NewInternalError(err).(*DomainError); ok {
		return de
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// HasCode reports whether err carries the given domain code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		return false
	}
	return domainErr.Code == code
}

func MapError(err error) error {
	return ToDomainError(err)
}
