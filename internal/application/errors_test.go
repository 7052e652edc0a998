package application

import (
	"errors"
	"fmt"
	"testing"

	"github.com/example/worship-scheduler/internal/instance"
)

func TestValidationError(t *testing.T) {
	t.Parallel()

	var nilErr *ValidationError
	if nilErr.Error() != "" || nilErr.HasErrors() {
		t.Fatalf("expected nil validation error to be empty")
	}
	if err := (&ValidationError{}).errOrNil(); err != nil {
		t.Fatalf("expected no error without field errors, got %v", err)
	}

	vErr := &ValidationError{}
	vErr.add("service_time", "must be HH:MM")
	vErr.merge(&ValidationError{FieldErrors: map[string]string{"service_types[1].name": "is required"}})
	vErr.merge(nil)

	if len(vErr.FieldErrors) != 2 {
		t.Fatalf("expected 2 field errors, got %v", vErr.FieldErrors)
	}
	if got := vErr.FieldErrors["service_types[1].name"]; got != "is required" {
		t.Fatalf("expected merged field error, got %q", got)
	}

	wrapped := fmt.Errorf("add service type: %w", vErr.errOrNil())
	var target *ValidationError
	if !errors.As(wrapped, &target) || target.Error() != "validation failed" {
		t.Fatalf("expected wrapped validation error, got %v", wrapped)
	}
}

func TestErrInvalidKeyMatchesInstanceParsing(t *testing.T) {
	t.Parallel()

	_, err := instance.ParseKey("2026-13-40:st1")
	if !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey from ParseKey, got %v", err)
	}
	if got := ErrorKind(err); got != "invalid_key" {
		t.Fatalf("expected invalid_key kind, got %q", got)
	}
}
