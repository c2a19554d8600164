// Package errors provides the pipeline's unified error taxonomy.
//
// Error codes are stable strings: they are recorded on FetchAttempt rows,
// incremented as metric labels, and returned to editorial API clients
// verbatim, so renaming one is a breaking change.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable error classification string (spec.md §7).
type Code string

const (
	// Transport
	CodeTimeout         Code = "Timeout"
	CodeDNS             Code = "DNS"
	CodeConnectError    Code = "ConnectError"
	CodeTLSError        Code = "TLSError"
	CodeHTTPStatusError Code = "HTTPStatusError"

	// Guardrails
	CodeCircuitOpen              Code = "CircuitOpen"
	CodeRateLimited              Code = "RateLimited"
	CodeDomainConcurrencyLimited Code = "DomainConcurrencyLimited"
	CodeMaxBytesExceeded         Code = "MaxBytesExceeded"
	CodeMissingSourceID          Code = "MissingSourceId"
	CodeMissingEndpoint          Code = "MissingEndpoint"
	CodeSSRFBlocked              Code = "SSRFBlocked"

	// Parse/extract
	CodeJSONDecode     Code = "JSONDecode"
	CodeHTMLParse      Code = "HTMLParse"
	CodePDFParse       Code = "PDFParse"
	CodeOCRUnavailable Code = "OCRUnavailable"

	// Application
	CodeMergeIdempotent Code = "MergeIdempotent"
	CodeSplitInvalid    Code = "SplitInvalid"
	CodeInvalidProfile  Code = "InvalidProfile"

	// Generic HTTP-facing
	CodeInvalidInput Code = "InvalidInput"
	CodeNotFound     Code = "NotFound"
	CodeConflict     Code = "Conflict"
	CodeInternal     Code = "Internal"
)

// ActionBlockedCode builds the ActionBlocked<REASON> family from spec.md §4.9,
// e.g. ActionBlockedCode("HYDRATING_BEFORE_TIMEOUT") -> "ActionBlocked:HYDRATING_BEFORE_TIMEOUT".
func ActionBlockedCode(reason string) Code {
	return Code("ActionBlocked:" + reason)
}

// ServiceError is a structured error carrying a stable Code, an HTTP status
// for the editorial/read API, optional details, and an underlying cause.
type ServiceError struct {
	Code       Code
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// WithDetails attaches a detail key/value and returns the receiver for chaining.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a ServiceError with no underlying cause.
func New(code Code, message string, httpStatus int) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: httpStatus}
}

// Wrap creates a ServiceError around an existing error.
func Wrap(code Code, message string, httpStatus int, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: httpStatus, Err: err}
}

// As reports whether err is (or wraps) a *ServiceError, writing it into target.
func As(err error, target **ServiceError) bool {
	return errors.As(err, target)
}

// Convenience constructors used across the HTTP surface (spec.md §6).

func NotFound(resource, id string) *ServiceError {
	return New(CodeNotFound, "resource not found", http.StatusNotFound).
		WithDetails("resource", resource).WithDetails("id", id)
}

func Conflict(message string) *ServiceError {
	return New(CodeConflict, message, http.StatusConflict)
}

func InvalidInput(field, reason string) *ServiceError {
	return New(CodeInvalidInput, "invalid input", http.StatusBadRequest).
		WithDetails("field", field).WithDetails("reason", reason)
}

func ActionBlocked(reason string) *ServiceError {
	return New(ActionBlockedCode(reason), "action blocked by current event state", http.StatusConflict).
		WithDetails("reason", reason)
}

func Internal(message string, err error) *ServiceError {
	return Wrap(CodeInternal, message, http.StatusInternalServerError, err)
}

func InvalidProfile(sourceID, detail string) *ServiceError {
	return New(CodeInvalidProfile, "invalid source profile", http.StatusBadRequest).
		WithDetails("source_id", sourceID).WithDetails("detail", detail)
}
