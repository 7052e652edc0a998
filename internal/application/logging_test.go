package application

import (
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/example/worship-scheduler/internal/instance"
	"github.com/example/worship-scheduler/internal/persistence"
)

func TestDefaultLogger(t *testing.T) {
	t.Parallel()

	custom := slog.New(slog.NewTextHandler(io.Discard, nil))
	if got := defaultLogger(custom); got != custom {
		t.Fatalf("expected custom logger to be returned")
	}

	if got := defaultLogger(nil); got != slog.Default() {
		t.Fatalf("expected default logger when none provided")
	}
}

func TestErrorKind(t *testing.T) {
	t.Parallel()

	_, keyErr := instance.ParseKey("2026-01-04:")
	cases := map[string]struct {
		err      error
		expected string
	}{
		"nil":               {err: nil, expected: ""},
		"unauthorized":      {err: ErrUnauthorized, expected: "unauthorized"},
		"wrapped not found": {err: fmt.Errorf("load: %w", ErrNotFound), expected: "not_found"},
		"store not found":   {err: persistence.ErrNotFound, expected: "not_found"},
		"already exists":    {err: ErrAlreadyExists, expected: "already_exists"},
		"stale":             {err: ErrStaleContext, expected: "stale_context"},
		"invalid key":       {err: keyErr, expected: "invalid_key"},
		"validation":        {err: &ValidationError{FieldErrors: map[string]string{"name": "required"}}, expected: "validation"},
		"other":             {err: io.EOF, expected: "unexpected"},
	}

	for name, tc := range cases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if got := ErrorKind(tc.err); got != tc.expected {
				t.Fatalf("expected %q, got %q", tc.expected, got)
			}
		})
	}
}
