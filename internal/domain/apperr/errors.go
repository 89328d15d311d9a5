// Package apperr defines the error taxonomy shared by the analysis pipeline.
// Every error that reaches the HTTP layer carries a machine-readable Kind.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a pipeline failure
type Kind string

const (
	KindSchemaValidation  Kind = "schema_validation"
	KindConversionFailure Kind = "conversion_failure"
	KindRateLimitExceeded Kind = "rate_limit_exceeded"
	KindFeatureDisabled   Kind = "feature_disabled"
	KindExtractionTimeout Kind = "extraction_timeout"
	KindExtractionFailure Kind = "extraction_failure"
	KindDataIntegrity     Kind = "data_integrity"
	KindCanceled          Kind = "canceled"
	KindInternal          Kind = "internal"
)

// StatusClientClosedRequest is returned when the caller went away mid-request
const StatusClientClosedRequest = 499

// Sentinel values for errors.Is comparisons
var (
	ErrSchemaValidation  = &Error{Kind: KindSchemaValidation}
	ErrConversionFailure = &Error{Kind: KindConversionFailure}
	ErrRateLimitExceeded = &Error{Kind: KindRateLimitExceeded}
	ErrFeatureDisabled   = &Error{Kind: KindFeatureDisabled}
	ErrExtractionTimeout = &Error{Kind: KindExtractionTimeout}
	ErrExtractionFailure = &Error{Kind: KindExtractionFailure}
	ErrDataIntegrity     = &Error{Kind: KindDataIntegrity}
	ErrCanceled          = &Error{Kind: KindCanceled}
	ErrInternal          = &Error{Kind: KindInternal}
)

// Error is a classified pipeline error
type Error struct {
	Kind    Kind
	Message string
	Details []string
	Err     error
}

// New creates a classified error with a formatted message
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithDetails returns a copy of e carrying the given details
func (e *Error) WithDetails(details ...string) *Error {
	cp := *e
	cp.Details = append(append([]string(nil), e.Details...), details...)
	return &cp
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind when the target is a bare sentinel
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Message == "" && t.Err == nil {
		return t.Kind == e.Kind
	}
	return t == e
}

// KindOf returns the kind of err, or KindInternal for unclassified errors
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// HTTPStatus maps a kind to its response status code
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindSchemaValidation, KindConversionFailure:
		return http.StatusBadRequest
	case KindRateLimitExceeded:
		return http.StatusTooManyRequests
	case KindFeatureDisabled:
		return http.StatusServiceUnavailable
	case KindExtractionTimeout, KindExtractionFailure:
		return http.StatusBadGateway
	case KindDataIntegrity:
		return http.StatusUnprocessableEntity
	case KindCanceled:
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

// Retriable reports whether a caller may retry the same request later
func Retriable(kind Kind) bool {
	switch kind {
	case KindRateLimitExceeded, KindExtractionTimeout, KindExtractionFailure, KindFeatureDisabled:
		return true
	default:
		return false
	}
}
