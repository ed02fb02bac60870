// Package apperrors holds the error taxonomy shared by connectors and the
// compliance service. Every type is returned as a pointer so callers can use
// errors.As.
package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

// FieldError names one field that failed a check.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (f FieldError) String() string {
	if f.Field == "" {
		return f.Message
	}
	return fmt.Sprintf("%s: %s", f.Field, f.Message)
}

// ValidationError is a structural or business-rule failure. It always happens
// before any network call and is never retried.
type ValidationError struct {
	Scope  string
	Fields []FieldError
}

// NewValidationError builds a single-field validation error.
func NewValidationError(scope, field, format string, args ...any) *ValidationError {
	return &ValidationError{
		Scope:  scope,
		Fields: []FieldError{{Field: field, Message: fmt.Sprintf(format, args...)}},
	}
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.String())
	}
	return fmt.Sprintf("%s validation failed: %s", e.Scope, strings.Join(parts, "; "))
}

// Field returns the first offending field name.
func (e *ValidationError) Field() string {
	if len(e.Fields) == 0 {
		return ""
	}
	return e.Fields[0].Field
}

// ConnectionError means a connector could not establish a session.
type ConnectionError struct {
	Exchange string
	Reason   string
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect to %s failed: %s", e.Exchange, e.Reason)
}

// TransientNetworkError is a timeout, transport failure or 5xx/429 answer that
// may succeed when retried.
type TransientNetworkError struct {
	Op         string
	StatusCode int
	Timeout    bool
	Err        error
}

func (e *TransientNetworkError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("%s timed out", e.Op)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: remote returned status %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Op + ": transient failure"
	}
}

func (e *TransientNetworkError) Unwrap() error { return e.Err }

// RetryExhaustedError is returned after the attempt ceiling is reached.
type RetryExhaustedError struct {
	Op       string
	Attempts int
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("all %d retry attempts failed for %s: %v", e.Attempts, e.Op, e.Last)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Last }

// RemoteRejectionError is a definitive 4xx answer from a remote endpoint.
type RemoteRejectionError struct {
	Op         string
	StatusCode int
	Reason     string
}

func (e *RemoteRejectionError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s rejected with status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s rejected with status %d: %s", e.Op, e.StatusCode, e.Reason)
}

// AuthorizationError is an administrative action attempted with a bad token.
type AuthorizationError struct {
	Action string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("unauthorized: %s requires a valid administrator token", e.Action)
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsTransient reports whether err is or wraps a TransientNetworkError.
func IsTransient(err error) bool {
	var t *TransientNetworkError
	return errors.As(err, &t)
}

// IsRetryExhausted reports whether err is or wraps a RetryExhaustedError.
func IsRetryExhausted(err error) bool {
	var r *RetryExhaustedError
	return errors.As(err, &r)
}

// IsAuthorization reports whether err is or wraps an AuthorizationError.
func IsAuthorization(err error) bool {
	var a *AuthorizationError
	return errors.As(err, &a)
}
