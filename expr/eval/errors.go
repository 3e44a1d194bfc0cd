// Package eval implements the function map (C5), the recursive evaluator
// (C6) and expression functions (C7) described in spec §4.5–4.7.
package eval

import (
	"fmt"

	"github.com/evalgo/eve-build/expr"
)

// EvalError is the evaluator's structured error type (§4.6). WhileEval
// distinguishes "raised by a sub-evaluation" (traceback-worthy) from
// "raised at this point" (a user-visible frame); UserContext marks an
// error as originating from fail/assert/assert_non_empty, so callers can
// drop the frame-by-frame traceback and show just the message.
type EvalError struct {
	Message         string
	WhileEval       bool
	UserContext     bool
	InvolvedObjects []expr.Value
	wrapped         error
}

func (e *EvalError) Error() string { return e.Message }
func (e *EvalError) Unwrap() error { return e.wrapped }

// Fail constructs a user-context error, as raised by the `fail` and
// `assert*` operators.
func Fail(msg string) *EvalError {
	return &EvalError{Message: msg, UserContext: true}
}

// Failf is Fail with fmt.Sprintf formatting.
func Failf(format string, args ...interface{}) *EvalError {
	return Fail(fmt.Sprintf(format, args...))
}

// Fatal constructs a plain (non-user-context) evaluation error.
func Fatal(msg string) *EvalError {
	return &EvalError{Message: msg}
}

// Fatalf is Fatal with fmt.Sprintf formatting.
func Fatalf(format string, args ...interface{}) *EvalError {
	return Fatal(fmt.Sprintf(format, args...))
}

// WithInvolved attaches values (typically artifacts) a frame wishes to
// annotate onto the error and returns the same error for chaining.
func (e *EvalError) WithInvolved(values ...expr.Value) *EvalError {
	e.InvolvedObjects = append(e.InvolvedObjects, values...)
	return e
}

// asEvalError extracts an *EvalError from any error, wrapping plain
// errors as a fatal, non-user-context evaluation error.
func asEvalError(err error) *EvalError {
	if err == nil {
		return nil
	}
	if ee, ok := err.(*EvalError); ok {
		return ee
	}
	return &EvalError{Message: err.Error(), wrapped: err}
}

// WrapWhileEval wraps an inner error with additional contextual prefix,
// the propagation helper named `while_eval`/`while_evaluating` in §4.6.
// It is transparent when the inner error is already user-context: the
// prefix is dropped so a user's `fail` message reaches the top unchanged.
func WrapWhileEval(context string, err error) error {
	if err == nil {
		return nil
	}
	inner := asEvalError(err)
	if inner.UserContext {
		return inner
	}
	return &EvalError{
		Message:         context + ": " + inner.Message,
		WhileEval:       true,
		UserContext:     false,
		InvolvedObjects: inner.InvolvedObjects,
		wrapped:         inner,
	}
}
