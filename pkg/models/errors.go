package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind is the stable taxonomy of engine failures.
type ErrorKind string

const (
	ErrInvalidInput  ErrorKind = "INVALID_INPUT"
	ErrInvalidMargin ErrorKind = "INVALID_MARGIN"
	ErrResourceLimit ErrorKind = "RESOURCE_LIMIT"
	ErrRuleCompile   ErrorKind = "RULE_COMPILE_ERROR"
	ErrRuleEval      ErrorKind = "RULE_EVAL_ERROR"
	ErrDataFetch     ErrorKind = "DATA_FETCH_ERROR"
	ErrDatabase      ErrorKind = "DATABASE_ERROR"
	ErrEventPublish  ErrorKind = "EVENT_PUBLISH_ERROR"
	ErrWebhook       ErrorKind = "WEBHOOK_ERROR"
	ErrTimeout       ErrorKind = "RESOURCE_LIMIT:timeout"
	ErrInternal      ErrorKind = "INTERNAL"
)

// Error is the single structured error surfaced to callers. Input errors
// carry the specific violations that were detected.
type Error struct {
	Kind       ErrorKind
	Message    string
	Violations []string
	cause      error
}

func (e *Error) Error() string {
	if len(e.Violations) > 0 {
		return fmt.Sprintf("%s: %s [%s]", e.Kind, e.Message, strings.Join(e.Violations, "; "))
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// NewError builds a structured engine error.
func NewError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// NewErrorf builds a structured engine error with a formatted message.
func NewErrorf(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError attaches a cause while keeping the kind discriminable.
func WrapError(kind ErrorKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, cause: cause}
}

// WithViolations attaches the violation list and returns the error.
func (e *Error) WithViolations(violations []string) *Error {
	e.Violations = violations
	return e
}

// KindOf extracts the engine error kind from an arbitrary error chain.
// Unknown errors map to INTERNAL.
func KindOf(err error) ErrorKind {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return ErrInternal
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind ErrorKind) bool {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Kind == kind
	}
	return false
}
