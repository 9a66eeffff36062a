package imageclass

import (
	"errors"
	"fmt"
)

type badInputError struct{ err error }

func (e badInputError) Error() string { return fmt.Sprintf("bad input: %v", e.err) }
func (e badInputError) Unwrap() error { return e.err }

// ErrBadInput reports a payload that is not a decodable image.
func ErrBadInput(err error) error { return badInputError{err: err} }

// IsBadInput reports whether err is a bad-input error.
func IsBadInput(err error) bool {
	var e badInputError
	return errors.As(err, &e)
}
