package hub

import (
	"errors"
	"fmt"
)

// Kind classifies a fetch failure.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindNetwork      Kind = "network"
	KindDisk         Kind = "disk"
	KindUnauthorized Kind = "unauthorized"
	KindInvalid      Kind = "invalid"
)

// FetchError is a structured registry download failure.
type FetchError struct {
	Kind Kind
	Repo string
	File string
	Err  error
}

func (e *FetchError) Error() string {
	target := e.Repo
	if e.File != "" {
		target += "/" + e.File
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", target, e.Kind, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", target, e.Kind)
}

func (e *FetchError) Unwrap() error { return e.Err }

func fetchErr(kind Kind, repo, file string, err error) error {
	return &FetchError{Kind: kind, Repo: repo, File: file, Err: err}
}

// IsFetchError reports whether err is (or wraps) a FetchError.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}

// KindOf returns the fetch failure kind of err, or "" if err is not a FetchError.
func KindOf(err error) Kind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}
