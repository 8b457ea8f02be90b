// Package moesi implements a discrete-event, cycle-accurate simulator for
// a MOESI cache-coherence protocol across a configurable number of CPUs
// sharing a single memory bus.
package moesi

import (
	"errors"
	"fmt"
)

// Error represents a structured simulator error with context.
type Error struct {
	Op    string    // Operation that failed (e.g., "Run", "LoadTrace")
	CPU   int       // CPU index (-1 if not applicable)
	Code  ErrorCode // High-level error category
	Msg   string    // Human-readable message
	Inner error     // Wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.CPU >= 0 {
		return fmt.Sprintf("moesi: %s: cpu=%d: %s", e.Op, e.CPU, e.Msg)
	}
	return fmt.Sprintf("moesi: %s: %s", e.Op, e.Msg)
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is compares errors by code, so callers can test errors.Is(err, &Error{Code: ...}).
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == te.Code
}

// ErrorCode categorizes the disposition of a failure: trace read errors are
// local to one CPU's stream, while alignment and coherence invariant
// violations abort the whole run.
type ErrorCode string

const (
	ErrCodeAlignment          ErrorCode = "alignment_violation"
	ErrCodeCoherenceInvariant ErrorCode = "coherence_invariant_violation"
	ErrCodeTraceSemantic      ErrorCode = "trace_semantic_error"
	ErrCodeTraceRead          ErrorCode = "trace_read_error"
	ErrCodeConfig             ErrorCode = "invalid_configuration"
)

// NewError creates a structured error with no CPU association.
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, CPU: -1, Code: code, Msg: msg}
}

// NewCPUError creates a structured error attributed to a specific CPU.
func NewCPUError(op string, cpu int, code ErrorCode, msg string) *Error {
	return &Error{Op: op, CPU: cpu, Code: code, Msg: msg}
}

// WrapError wraps an existing error with simulator context, preserving the
// inner error's code when it is already a structured *Error.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	if me, ok := inner.(*Error); ok {
		return &Error{Op: op, CPU: me.CPU, Code: me.Code, Msg: me.Msg, Inner: me.Inner}
	}
	return &Error{Op: op, CPU: -1, Code: ErrCodeTraceRead, Msg: inner.Error(), Inner: inner}
}

// IsCode reports whether err is a structured Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var me *Error
	if errors.As(err, &me) {
		return me.Code == code
	}
	return false
}
