package tracker

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of a tracking error. The class
// decides what the engine does next: submission failures surface to the
// caller, unrecoverable failures end tracking with a terminal Failed state,
// and transient failures are retried silently on the next polling pass.
type ErrorClass string

const (
	// ErrorClassSubmission indicates the initial create/update/delete call
	// itself failed. The mutation never entered the tracking queue.
	ErrorClassSubmission ErrorClass = "submission"

	// ErrorClassUnrecoverable indicates the control plane can no longer
	// resolve the progress token. Tracking stops with a failure outcome.
	ErrorClassUnrecoverable ErrorClass = "unrecoverable"

	// ErrorClassTransient indicates a temporary polling failure (timeout,
	// throttling, 5xx). The item is retried on the next pass.
	ErrorClassTransient ErrorClass = "transient"
)

// TrackerError represents a classified tracking error with context.
type TrackerError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Token is the progress token the error relates to, if any.
	Token string `json:"token,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation OperationKind `json:"operation,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *TrackerError) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("[%s] %s (token=%s): %s", e.Class, e.Message, e.Token, e.unwrapMessage())
	}
	return fmt.Sprintf("[%s] %s: %s", e.Class, e.Message, e.unwrapMessage())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *TrackerError) Unwrap() error {
	return e.Err
}

func (e *TrackerError) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is.
func (e *TrackerError) Is(target error) bool {
	t, ok := target.(*TrackerError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// WithToken adds the progress token to the error context.
func (e *TrackerError) WithToken(token string) *TrackerError {
	e.Token = token
	return e
}

// WithOperation adds the operation kind to the error context.
func (e *TrackerError) WithOperation(op OperationKind) *TrackerError {
	e.Operation = op
	return e
}

// NewSubmissionError creates an error for a failed submission call.
func NewSubmissionError(message string, err error) *TrackerError {
	return &TrackerError{
		Class:   ErrorClassSubmission,
		Message: message,
		Err:     err,
	}
}

// NewTokenNotFoundError creates the unrecoverable error a ControlPlaneClient
// must return when the control plane no longer recognizes a progress token.
// The tracker treats it as a legitimate terminal signal, not a retryable
// fault: tokens are short-lived handles and an expired one will never start
// resolving again.
func NewTokenNotFoundError(token string, err error) *TrackerError {
	return &TrackerError{
		Class:   ErrorClassUnrecoverable,
		Code:    CodeTokenNotFound,
		Message: "progress token not found",
		Token:   token,
		Err:     err,
	}
}

// NewTransientError creates an error for a temporary polling failure.
func NewTransientError(message string, err error) *TrackerError {
	return &TrackerError{
		Class:   ErrorClassTransient,
		Message: message,
		Err:     err,
	}
}

// IsSubmissionFailure returns true if the error came from the initial
// mutating call rather than a later poll.
func IsSubmissionFailure(err error) bool {
	var e *TrackerError
	if errors.As(err, &e) {
		return e.Class == ErrorClassSubmission
	}
	return false
}

// IsTokenNotFound returns true if the control plane no longer recognizes the
// progress token.
func IsTokenNotFound(err error) bool {
	var e *TrackerError
	if errors.As(err, &e) {
		return e.Class == ErrorClassUnrecoverable && e.Code == CodeTokenNotFound
	}
	return false
}

// IsTransient returns true if the error is classified as transient.
func IsTransient(err error) bool {
	var e *TrackerError
	if errors.As(err, &e) {
		return e.Class == ErrorClassTransient
	}
	return false
}

// classifyPollError sorts a status-poll error into the unrecoverable or
// transient bucket. Anything that is not token-not-found is assumed to be a
// network blip or throttling and must not prematurely fail a possibly
// still-running operation.
func classifyPollError(token string, err error) *TrackerError {
	if IsTokenNotFound(err) {
		var e *TrackerError
		errors.As(err, &e)
		return e
	}
	return NewTransientError("status poll failed", err).WithToken(token)
}

// Common error codes.
const (
	CodeTokenNotFound   = "TOKEN_NOT_FOUND"
	CodeDuplicateToken  = "DUPLICATE_TOKEN"
	CodePolicyDenied    = "POLICY_DENIED"
	CodeTrackerClosed   = "TRACKER_CLOSED"
	CodeInvalidArgument = "INVALID_ARGUMENT"
)
