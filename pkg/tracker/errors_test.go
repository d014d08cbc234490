package tracker

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorClassification(t *testing.T) {
	submission := NewSubmissionError("create rejected", errors.New("403"))
	notFound := NewTokenNotFoundError("tok-1", nil)
	transient := NewTransientError("timeout", errors.New("deadline exceeded"))

	if !IsSubmissionFailure(submission) || IsSubmissionFailure(notFound) || IsSubmissionFailure(transient) {
		t.Error("IsSubmissionFailure misclassified")
	}
	if !IsTokenNotFound(notFound) || IsTokenNotFound(submission) || IsTokenNotFound(transient) {
		t.Error("IsTokenNotFound misclassified")
	}
	if !IsTransient(transient) || IsTransient(submission) || IsTransient(notFound) {
		t.Error("IsTransient misclassified")
	}
	if IsTokenNotFound(errors.New("plain")) {
		t.Error("plain errors must not classify as token-not-found")
	}
}

func TestClassificationSurvivesWrapping(t *testing.T) {
	wrapped := fmt.Errorf("status poll: %w", NewTokenNotFoundError("tok-1", nil))
	if !IsTokenNotFound(wrapped) {
		t.Error("classification should survive fmt.Errorf wrapping")
	}
}

func TestClassifyPollError(t *testing.T) {
	perr := classifyPollError("tok-1", NewTokenNotFoundError("tok-1", nil))
	if perr.Class != ErrorClassUnrecoverable {
		t.Errorf("token-not-found class = %s, want %s", perr.Class, ErrorClassUnrecoverable)
	}

	perr = classifyPollError("tok-1", errors.New("503 service unavailable"))
	if perr.Class != ErrorClassTransient {
		t.Errorf("generic error class = %s, want %s", perr.Class, ErrorClassTransient)
	}
	if perr.Token != "tok-1" {
		t.Errorf("token = %q, want tok-1", perr.Token)
	}
}

func TestTrackerErrorMessage(t *testing.T) {
	err := NewTokenNotFoundError("tok-9", errors.New("expired"))
	msg := err.Error()
	for _, want := range []string{"unrecoverable", "tok-9", "expired"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error message %q should contain %q", msg, want)
		}
	}
}
