package rules

import (
	"errors"
	"fmt"
)

// CompileError reports an expression the compiler rejected: malformed
// JSON, an unknown operator, a path outside the allow-list, or a safety
// limit. Callers map it onto their own error taxonomy.
type CompileError struct {
	Message string
	cause   error
}

func (e *CompileError) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *CompileError) Unwrap() error { return e.cause }

// EvalError reports a program that failed during evaluation: a non-boolean
// root, or a blown operation or depth budget.
type EvalError struct {
	Message string
}

func (e *EvalError) Error() string { return e.Message }

// IsCompileError reports whether err carries a CompileError.
func IsCompileError(err error) bool {
	var ce *CompileError
	return errors.As(err, &ce)
}

// IsEvalError reports whether err carries an EvalError.
func IsEvalError(err error) bool {
	var ee *EvalError
	return errors.As(err, &ee)
}

func compileError(msg string) error {
	return &CompileError{Message: msg}
}

func compileErrorf(format string, args ...interface{}) error {
	return &CompileError{Message: fmt.Sprintf(format, args...)}
}

func wrapCompileError(msg string, cause error) error {
	return &CompileError{Message: msg, cause: cause}
}

func evalError(msg string) error {
	return &EvalError{Message: msg}
}

func evalErrorf(format string, args ...interface{}) error {
	return &EvalError{Message: fmt.Sprintf(format, args...)}
}
