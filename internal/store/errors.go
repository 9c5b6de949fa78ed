package store

import "errors"

var (
	// ErrMalformedData is returned when the store file exists but cannot be
	// parsed. The file is left untouched.
	ErrMalformedData = errors.New("malformed key store")

	// ErrWriteFailed is returned when the store could not be persisted. The
	// previous contents of the file are still intact.
	ErrWriteFailed = errors.New("key store write failed")

	// ErrNoChange may be returned by an Update callback to end the
	// transaction successfully without writing.
	ErrNoChange = errors.New("no change")
)
