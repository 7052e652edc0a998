package application

import (
	"errors"
	"strings"

	"github.com/example/worship-scheduler/internal/instance"
	"github.com/example/worship-scheduler/internal/persistence"
)

var (
	// ErrUnauthorized is returned when the acting principal lacks permission for an operation.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrAlreadyExists is returned when a create or rename would duplicate an existing resource.
	ErrAlreadyExists = errors.New("application: already exists")
	// ErrStaleContext is returned when a write belongs to a schedule the client has navigated away from.
	ErrStaleContext = errors.New("application: stale schedule context")
	// ErrInvalidKey is returned for malformed instance keys.
	ErrInvalidKey = instance.ErrInvalidKey
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// requireID records an error when id is blank or cannot name a team or member.
func (v *ValidationError) requireID(field, id string) {
	switch {
	case strings.TrimSpace(id) == "":
		v.add(field, "is required")
	case !persistence.ValidID(id):
		v.add(field, "must not contain ':' or wildcard characters")
	}
}

// merge copies entries from another validation error into the receiver.
func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

// errOrNil returns v as an error only when it holds field errors.
func (v *ValidationError) errOrNil() error {
	if v.HasErrors() {
		return v
	}
	return nil
}
