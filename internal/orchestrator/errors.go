package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Error codes surfaced by the orchestrator. Callers never see a raw,
// unclassified error.
const (
	CodeTimeout              = "TIMEOUT"
	CodeValidationError      = "VALIDATION_ERROR"
	CodeInternalError        = "INTERNAL_ERROR"
	CodeProviderError        = "PROVIDER_ERROR"
	CodeNoProvidersAvailable = "NO_PROVIDERS_AVAILABLE"
)

// Error is the typed error every orchestrator failure is wrapped in.
type Error struct {
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// newError builds a typed error, preserving the code of an already
// typed cause.
func newError(code, message string, cause error) *Error {
	var typed *Error
	if errors.As(cause, &typed) {
		return typed
	}
	return &Error{Code: code, Message: message, Cause: cause}
}

// classify reclassifies an arbitrary failure: deadline or
// timeout-flavored errors become TIMEOUT carrying the configured
// timeout, anything else becomes INTERNAL_ERROR.
func classify(err error, timeout time.Duration) *Error {
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return &Error{
			Code:    CodeTimeout,
			Message: fmt.Sprintf("request timed out after %s", timeout),
			Cause:   err,
		}
	}
	return &Error{Code: CodeInternalError, Message: "request processing failed", Cause: err}
}
