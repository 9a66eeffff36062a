package store

import "errors"

// cacheError signals a failed or refused cache mutation.
type cacheError struct {
	path string
	op   string
	err  error
}

func (e cacheError) Error() string {
	if e.err != nil {
		return "cache " + e.op + " " + e.path + ": " + e.err.Error()
	}
	return "cache " + e.path + ": " + e.op
}

func (e cacheError) Unwrap() error { return e.err }

// ErrCache constructs a cache error for path. err may be nil.
func ErrCache(path, op string, err error) error { return cacheError{path: path, op: op, err: err} }

// IsCacheError reports whether err is (or wraps) a cache error.
func IsCacheError(err error) bool {
	var ce cacheError
	return errors.As(err, &ce)
}
