// Package errors provides the standardized error taxonomy used by the
// submission workflow and the retry engine. Every failure an external
// call can produce is normalized into one of five kinds so callers
// branch on classification rather than string matching.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"time"
)

// Kind classifies an error for retry and surfacing decisions.
type Kind string

const (
	// KindValidation covers bad input, missing required fields and
	// unresolved merge placeholders. Never retried.
	KindValidation Kind = "VALIDATION"

	// KindTransient covers timeouts, 5xx responses and connection
	// resets. Handed to the retry engine.
	KindTransient Kind = "TRANSIENT_INTEGRATION"

	// KindTerminal covers auth failures and permanently invalid
	// references. Not retried; the submission fails directly.
	KindTerminal Kind = "TERMINAL_INTEGRATION"

	// KindConflict is a compare-and-set mismatch in the status tracker.
	// The losing caller treats it as a no-op.
	KindConflict Kind = "CONCURRENCY_CONFLICT"

	// KindDuplicateDelivery is an attempted second "sent" email for the
	// same (submission, recipient, purpose). Logged and suppressed.
	KindDuplicateDelivery Kind = "DUPLICATE_DELIVERY"
)

// Issue is a single actionable validation problem.
type Issue struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// StandardError represents a structured application error.
type StandardError struct {
	Kind      Kind                   `json:"kind"`
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Issues    []Issue                `json:"issues,omitempty"`
	Service   string                 `json:"service,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s/%s]: %s", e.Kind, e.Code, e.Message)
}

// ==========================
// Constructors
// ==========================

// NewValidationError creates a non-retryable validation error carrying a
// structured issue list.
func NewValidationError(message string, issues []Issue) *StandardError {
	return &StandardError{
		Kind:      KindValidation,
		Code:      "VALIDATION_FAILED",
		Message:   message,
		Retryable: false,
		Issues:    issues,
		Timestamp: time.Now().UTC(),
	}
}

// NewFieldValidationError is a convenience wrapper for a single issue.
func NewFieldValidationError(field, message string) *StandardError {
	return NewValidationError(message, []Issue{{Field: field, Message: message}})
}

// NewTransientError creates a retryable integration error.
func NewTransientError(service string, err error) *StandardError {
	return &StandardError{
		Kind:      KindTransient,
		Code:      "EXTERNAL_SERVICE_ERROR",
		Message:   fmt.Sprintf("External service '%s' error", service),
		Details:   err.Error(),
		Retryable: true,
		Service:   service,
		Timestamp: time.Now().UTC(),
	}
}

// NewTimeoutError creates a retryable timeout error.
func NewTimeoutError(service string, err error) *StandardError {
	return &StandardError{
		Kind:      KindTransient,
		Code:      "TIMEOUT_ERROR",
		Message:   fmt.Sprintf("Service '%s' timeout", service),
		Details:   err.Error(),
		Retryable: true,
		Service:   service,
		Timestamp: time.Now().UTC(),
	}
}

// NewTerminalError creates a non-retryable integration error. The
// submission it belongs to moves directly to FAILED.
func NewTerminalError(service, details string) *StandardError {
	return &StandardError{
		Kind:      KindTerminal,
		Code:      "TERMINAL_INTEGRATION_ERROR",
		Message:   fmt.Sprintf("Unrecoverable error from '%s'", service),
		Details:   details,
		Retryable: false,
		Service:   service,
		Timestamp: time.Now().UTC(),
	}
}

// NewAuthenticationError creates a non-retryable auth error against an
// external service.
func NewAuthenticationError(service, details string) *StandardError {
	return &StandardError{
		Kind:      KindTerminal,
		Code:      "AUTHENTICATION_ERROR",
		Message:   fmt.Sprintf("Authentication with '%s' failed", service),
		Details:   details,
		Retryable: false,
		Service:   service,
		Timestamp: time.Now().UTC(),
	}
}

// NewConflictError creates the stale-state error returned when a guarded
// transition loses a compare-and-set race.
func NewConflictError(entity, id, expected, actual string) *StandardError {
	return &StandardError{
		Kind:      KindConflict,
		Code:      "STALE_STATE",
		Message:   fmt.Sprintf("%s %s is no longer in state %q", entity, id, expected),
		Details:   fmt.Sprintf("current state: %q", actual),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDuplicateDeliveryError marks a blocked second send for a tuple that
// already has a sent delivery log row.
func NewDuplicateDeliveryError(submissionID, recipient, purpose string) *StandardError {
	return &StandardError{
		Kind:      KindDuplicateDelivery,
		Code:      "DUPLICATE_DELIVERY",
		Message:   "A sent delivery already exists for this recipient and purpose",
		Details:   fmt.Sprintf("submission=%s recipient=%s purpose=%s", submissionID, recipient, purpose),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// Classification helpers
// ==========================

// FromHTTPStatus classifies an HTTP response status from an external
// service. 5xx and 429 are transient; 401/403 terminal; other 4xx are
// validation-grade and surfaced to the caller.
func FromHTTPStatus(service string, status int, body string) *StandardError {
	switch {
	case status >= 500 || status == http.StatusTooManyRequests:
		return NewTransientError(service, fmt.Errorf("status %d: %s", status, body))
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return NewAuthenticationError(service, fmt.Sprintf("status %d: %s", status, body))
	default:
		return &StandardError{
			Kind:      KindValidation,
			Code:      "UPSTREAM_REJECTED",
			Message:   fmt.Sprintf("Service '%s' rejected the request", service),
			Details:   fmt.Sprintf("status %d: %s", status, body),
			Retryable: false,
			Service:   service,
			Timestamp: time.Now().UTC(),
		}
	}
}

// Normalize ensures any error is a StandardError. Unknown errors are
// treated as transient so the retry engine gets a chance; a wrapped
// StandardError keeps its original classification.
func Normalize(service string, err error) *StandardError {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return NewTransientError(service, err)
}

// IsRetryable reports whether the retry engine should schedule the error.
func IsRetryable(err error) bool {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr.Retryable
	}
	return false
}

// KindOf returns the classification of an error, or an empty Kind for
// errors outside the taxonomy.
func KindOf(err error) Kind {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr.Kind
	}
	return ""
}

// AsValidation extracts a validation error, if that is what err is.
func AsValidation(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) && stdErr.Kind == KindValidation {
		return stdErr, true
	}
	return nil, false
}

// IsConflict reports whether err is a lost compare-and-set race.
func IsConflict(err error) bool {
	return KindOf(err) == KindConflict
}
