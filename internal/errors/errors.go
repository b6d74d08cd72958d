// Package errors defines the service error taxonomy shared by the service
// layer and the HTTP API. Every error that should reach a client as something
// other than a 500 is expressed as a *ServiceError.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode is a stable machine-readable error identifier.
type ErrorCode string

const (
	CodeValidation      ErrorCode = "VALIDATION_ERROR"
	CodeBadRequest      ErrorCode = "BAD_REQUEST"
	CodeUnauthorized    ErrorCode = "UNAUTHORIZED"
	CodeInvalidToken    ErrorCode = "INVALID_TOKEN"
	CodeForbidden       ErrorCode = "FORBIDDEN"
	CodeNotFound        ErrorCode = "NOT_FOUND"
	CodeConflict        ErrorCode = "CONFLICT"
	CodeFileTooLarge    ErrorCode = "FILE_TOO_LARGE"
	CodeUnsupportedType ErrorCode = "UNSUPPORTED_TYPE"
	CodeRateLimited     ErrorCode = "RATE_LIMITED"
	CodeInternal        ErrorCode = "INTERNAL"
)

// ServiceError carries an HTTP status, a client-safe message and optional
// structured details. The wrapped error is never rendered to clients.
type ServiceError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetails attaches a detail entry and returns the same error for chaining.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New constructs a ServiceError.
func New(code ErrorCode, status int, message string) *ServiceError {
	return &ServiceError{Code: code, HTTPStatus: status, Message: message}
}

// Wrap constructs a ServiceError around a cause.
func Wrap(code ErrorCode, status int, message string, err error) *ServiceError {
	return &ServiceError{Code: code, HTTPStatus: status, Message: message, Err: err}
}

func Validation(message string) *ServiceError {
	return New(CodeValidation, http.StatusUnprocessableEntity, message)
}

func Validationf(format string, args ...interface{}) *ServiceError {
	return Validation(fmt.Sprintf(format, args...))
}

// InvalidFormat reports a malformed field value.
func InvalidFormat(field, reason string) *ServiceError {
	return Validation(fmt.Sprintf("Invalid %s: %s", field, reason)).WithDetails("field", field)
}

func BadRequest(message string) *ServiceError {
	return New(CodeBadRequest, http.StatusBadRequest, message)
}

func Unauthorized(message string) *ServiceError {
	if message == "" {
		message = "Not authenticated"
	}
	return New(CodeUnauthorized, http.StatusUnauthorized, message)
}

func InvalidToken(err error) *ServiceError {
	return Wrap(CodeInvalidToken, http.StatusUnauthorized, "Invalid token", err)
}

func Forbidden(message string) *ServiceError {
	if message == "" {
		message = "Access denied"
	}
	return New(CodeForbidden, http.StatusForbidden, message)
}

// NotFound reports a missing resource, e.g. NotFound("VBU").
func NotFound(resource string) *ServiceError {
	return New(CodeNotFound, http.StatusNotFound, resource+" not found")
}

func Conflict(message string) *ServiceError {
	return New(CodeConflict, http.StatusConflict, message)
}

func FileTooLarge(maxBytes int64) *ServiceError {
	return New(CodeFileTooLarge, http.StatusRequestEntityTooLarge,
		fmt.Sprintf("File exceeds maximum size of %dMB", maxBytes/(1024*1024))).
		WithDetails("max_bytes", maxBytes)
}

func UnsupportedType(contentType string) *ServiceError {
	return New(CodeUnsupportedType, http.StatusUnsupportedMediaType,
		fmt.Sprintf("File type '%s' is not allowed", contentType))
}

func RateLimitExceeded(limit int, window string) *ServiceError {
	return New(CodeRateLimited, http.StatusTooManyRequests, "Too many requests").
		WithDetails("limit", limit).
		WithDetails("window", window)
}

func Internal(message string, err error) *ServiceError {
	if message == "" {
		message = "Internal server error"
	}
	return Wrap(CodeInternal, http.StatusInternalServerError, message, err)
}

// GetServiceError extracts a *ServiceError from err's chain, or nil.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if stderrors.As(err, &se) {
		return se
	}
	return nil
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	se := GetServiceError(err)
	return se != nil && se.Code == code
}

// Is and As mirror the standard library so callers need a single import.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target interface{}) bool { return stderrors.As(err, target) }
