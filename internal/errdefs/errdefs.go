// Package errdefs defines the error kinds reported by the single-shot library.
//
// Every error returned by a public operation matches exactly one of the
// sentinel kinds below with errors.Is. Constructors attach a stack trace.
package errdefs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error kinds.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInvalidState    = errors.New("invalid state")
	ErrNotSupported    = errors.New("not supported")
	ErrTimeout         = errors.New("timeout")
	ErrBackend         = errors.New("backend error")
)

// InvalidArgument reports a caller-provided value that violates a precondition.
func InvalidArgument(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidArgument, format, args...)
}

// InvalidState reports an operation on a closed or incomplete object.
func InvalidState(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidState, format, args...)
}

// NotSupported reports a well-formed request the backend cannot honor.
func NotSupported(format string, args ...interface{}) error {
	return errors.Wrapf(ErrNotSupported, format, args...)
}

// Timeout reports an invocation that did not finish within its budget.
func Timeout(format string, args ...interface{}) error {
	return errors.Wrapf(ErrTimeout, format, args...)
}

// Annotate adds context to err. An error that already carries a kind keeps
// it; any other error is reported as an invalid argument.
func Annotate(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	if Kind(err) != "" {
		return errors.WithMessagef(err, format, args...)
	}
	return errors.Wrapf(ErrInvalidArgument, "%s: %v", fmt.Sprintf(format, args...), err)
}

// Backend wraps a runtime failure. The message of err is kept verbatim.
// Errors that already carry a kind are returned unchanged.
func Backend(err error) error {
	if err == nil {
		return nil
	}
	if Kind(err) != "" {
		return err
	}
	return errors.WithStack(&backendError{err: err})
}

// Backendf creates a backend failure from a message.
func Backendf(format string, args ...interface{}) error {
	return errors.WithStack(&backendError{err: fmt.Errorf(format, args...)})
}

type backendError struct {
	err error
}

func (e *backendError) Error() string { return e.err.Error() }

func (e *backendError) Unwrap() error { return e.err }

func (e *backendError) Is(target error) bool { return target == ErrBackend }

// Kind names the kind of err, or returns "" when err carries none.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidArgument):
		return "InvalidArgument"
	case errors.Is(err, ErrInvalidState):
		return "InvalidState"
	case errors.Is(err, ErrNotSupported):
		return "NotSupported"
	case errors.Is(err, ErrTimeout):
		return "Timeout"
	case errors.Is(err, ErrBackend):
		return "BackendError"
	default:
		return ""
	}
}
