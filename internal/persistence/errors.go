package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrInvalidNamespace is returned when a namespace is empty or malformed.
	ErrInvalidNamespace = errors.New("persistence: invalid namespace")
)
