package session

import (
	"errors"
	"fmt"
)

type modelNotFoundError struct{ path string }

func (e modelNotFoundError) Error() string {
	return fmt.Sprintf("model file not found: %s", e.path)
}

// ErrModelNotFound reports that neither the artifact nor its fallback exists.
func ErrModelNotFound(path string) error { return modelNotFoundError{path: path} }

// IsModelNotFound reports whether err is a missing-artifact error.
func IsModelNotFound(err error) bool {
	var e modelNotFoundError
	return errors.As(err, &e)
}

type unsupportedFormatError struct{ path string }

func (e unsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported model format: %s", e.path)
}

// ErrUnsupportedFormat reports an artifact extension no loader handles.
func ErrUnsupportedFormat(path string) error { return unsupportedFormatError{path: path} }

// IsUnsupportedFormat reports whether err is an unsupported-format error.
func IsUnsupportedFormat(err error) bool {
	var e unsupportedFormatError
	return errors.As(err, &e)
}

type sessionError struct {
	path string
	err  error
}

func (e sessionError) Error() string {
	return fmt.Sprintf("create session for %s: %v", e.path, e.err)
}

func (e sessionError) Unwrap() error { return e.err }

// ErrSession wraps a runtime rejection (bad configuration, corrupt artifact).
func ErrSession(path string, err error) error { return sessionError{path: path, err: err} }

// IsSessionError reports whether err came from the runtime while opening a session.
func IsSessionError(err error) bool {
	var e sessionError
	return errors.As(err, &e)
}

type dependencyUnavailableError struct {
	name   string
	reason string
}

func (e dependencyUnavailableError) Error() string {
	return fmt.Sprintf("%s runtime unavailable: %s", e.name, e.reason)
}

// ErrDependencyUnavailable reports a runtime that was not built in or whose
// native library is missing.
func ErrDependencyUnavailable(name, reason string) error {
	return dependencyUnavailableError{name: name, reason: reason}
}

// IsDependencyUnavailable reports whether err is a missing-runtime error.
func IsDependencyUnavailable(err error) bool {
	var e dependencyUnavailableError
	return errors.As(err, &e)
}
