package model

import (
	"errors"
	"fmt"
)

// invalidParamError reports a request parameter that cannot be applied.
type invalidParamError struct {
	key string
	msg string
}

func (e invalidParamError) Error() string { return fmt.Sprintf("param %s: %s", e.key, e.msg) }

// ErrInvalidParam constructs an invalid parameter error for key.
func ErrInvalidParam(key, format string, args ...any) error {
	return invalidParamError{key: key, msg: fmt.Sprintf(format, args...)}
}

// IsInvalidParam reports whether err is an invalid parameter error.
func IsInvalidParam(err error) bool {
	var e invalidParamError
	return errors.As(err, &e)
}
