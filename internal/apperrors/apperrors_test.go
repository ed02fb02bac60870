package apperrors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestValidationErrorMessageNamesFields(t *testing.T) {
	err := &ValidationError{Scope: "report", Fields: []FieldError{
		{Field: "totalLongPositions", Message: "does not match"},
		{Field: "reportingEntity", Message: "is required"},
	}}
	msg := err.Error()
	if !strings.Contains(msg, "totalLongPositions") || !strings.Contains(msg, "reportingEntity") {
		t.Fatalf("message does not name fields: %s", msg)
	}
	if err.Field() != "totalLongPositions" {
		t.Fatalf("Field() = %q", err.Field())
	}
}

func TestClassificationHelpersUnwrap(t *testing.T) {
	transient := &TransientNetworkError{Op: "submit", StatusCode: 503}
	exhausted := &RetryExhaustedError{Op: "submit", Attempts: 3, Last: transient}
	wrapped := fmt.Errorf("cftc: %w", exhausted)

	if !IsRetryExhausted(wrapped) {
		t.Fatal("expected retry exhausted")
	}
	if !IsTransient(wrapped) {
		t.Fatal("expected transient cause to be reachable")
	}
	if IsValidation(wrapped) || IsAuthorization(wrapped) {
		t.Fatal("unexpected classification")
	}
	var target *TransientNetworkError
	if !errors.As(wrapped, &target) || target.StatusCode != 503 {
		t.Fatalf("errors.As failed: %v", target)
	}
}

func TestTransientErrorMessages(t *testing.T) {
	cases := []struct {
		err  *TransientNetworkError
		want string
	}{
		{&TransientNetworkError{Op: "fetch", Timeout: true}, "fetch timed out"},
		{&TransientNetworkError{Op: "fetch", StatusCode: 502}, "fetch: remote returned status 502"},
		{&TransientNetworkError{Op: "fetch", Err: errors.New("reset")}, "fetch: reset"},
	}
	for _, c := range cases {
		if got := c.err.Error(); got != c.want {
			t.Errorf("Error() = %q, want %q", got, c.want)
		}
	}
}
