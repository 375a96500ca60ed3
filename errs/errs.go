// Package errs defines the typed error taxonomy surfaced at component
// boundaries: failures the orchestrator must distinguish from ordinary Go
// errors returned by the standard library.
package errs

import "fmt"

type Code string

const (
	// Capacity is returned when an ingest would exceed the store's configured
	// block-count limit.
	Capacity Code = "ERR_CAPACITY"
	// IO wraps any filesystem error encountered while reading, writing, or
	// mapping a block file.
	IO Code = "ERR_IO"
	// Dim is returned on a summary_dim mismatch between a block (on disk or
	// freshly sublimated) and the store's configured dimension, or between a
	// policy binding's configured vocab/embedding size and the weights it is
	// asked to transform.
	Dim Code = "ERR_DIM"
	// BadHash is returned at init when the policy document's SHA-256 does not
	// match the compiled-in expected hash and dev mode is not enabled.
	BadHash Code = "ERR_BAD_HASH"
)

// Error is the typed error value carried across component boundaries. A nil
// *Error is safe to call Error() on.
type Error struct {
	Code Code
	Msg  string
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func New(code Code, format string, args ...any) error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Is reports whether err is an *Error carrying the given code.
func Is(err error, code Code) bool {
	e, ok := err.(*Error)
	return ok && e.Code == code
}
