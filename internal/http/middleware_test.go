package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/example/worship-scheduler/internal/application"
)

func TestStaticLeaders(t *testing.T) {
	t.Parallel()

	leaders := NewStaticLeaders(" leader-1 ", "", "leader-2")
	if len(leaders) != 2 {
		t.Fatalf("expected 2 leaders, got %d", len(leaders))
	}
	if !leaders.IsLeader(context.Background(), "any-team", "leader-1") {
		t.Fatalf("expected leader-1 to lead every team")
	}
	if leaders.IsLeader(context.Background(), "any-team", "m1") {
		t.Fatalf("expected m1 not to be a leader")
	}
}

func TestTeamScope(t *testing.T) {
	t.Parallel()

	captured := make(chan application.Principal, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /teams/{team}/ping", teamScope(NewStaticLeaders("leader-1"), newResponder(nil), func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFromContext(r.Context())
		if !ok {
			t.Errorf("expected principal in request context")
		}
		if teamID, _ := TeamIDFromContext(r.Context()); teamID != "team-1" {
			t.Errorf("expected team-1, got %q", teamID)
		}
		captured <- principal
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("rejects requests without a member id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/teams/team-1/ping", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	invalid := []struct {
		name   string
		path   string
		member string
	}{
		{name: "colon in team", path: "/teams/team-1:x/ping", member: "m1"},
		{name: "glob in team", path: "/teams/team*/ping", member: "m1"},
		{name: "colon in member", path: "/teams/team-1/ping", member: "x:m1"},
	}
	for _, tc := range invalid {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			req.Header.Set(MemberIDHeader, tc.member)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
		})
	}

	cases := []struct {
		member string
		leader bool
	}{
		{member: "leader-1", leader: true},
		{member: "m1", leader: false},
	}
	for _, tc := range cases {
		t.Run(tc.member, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/teams/team-1/ping", nil)
			req.Header.Set(MemberIDHeader, tc.member)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Code)
			}
			principal := <-captured
			if principal.MemberID != tc.member || principal.IsLeader != tc.leader {
				t.Fatalf("unexpected principal %+v", principal)
			}
		})
	}
}

func TestRequestLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := RequestLogger(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if LoggerFromContext(r.Context()) == nil {
			t.Errorf("expected request logger in context")
		}
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/teams/team-1/schedules", nil)
	req.Header.Set(MemberIDHeader, "m1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected start and completion records, got %d", len(lines))
	}
	var completed map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &completed); err != nil {
		t.Fatalf("failed to decode log record: %v", err)
	}
	if completed["request_id"] != float64(1) || completed["member_id"] != "m1" || completed["status"] != float64(http.StatusTeapot) {
		t.Fatalf("unexpected completion record %v", completed)
	}
}

func TestResponder_HandleServiceError(t *testing.T) {
	t.Parallel()

	vErr := &application.ValidationError{FieldErrors: map[string]string{"name": "is required"}}
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "unauthorized", err: application.ErrUnauthorized, status: http.StatusForbidden, code: "LEADER_REQUIRED"},
		{name: "not found", err: fmt.Errorf("schedule: %w", application.ErrNotFound), status: http.StatusNotFound},
		{name: "already exists", err: application.ErrAlreadyExists, status: http.StatusConflict, code: "ALREADY_EXISTS"},
		{name: "stale", err: application.ErrStaleContext, status: http.StatusConflict, code: "STALE_CONTEXT"},
		{name: "invalid key", err: application.ErrInvalidKey, status: http.StatusBadRequest},
		{name: "validation", err: vErr, status: http.StatusUnprocessableEntity},
		{name: "unexpected", err: errors.New("disk on fire"), status: http.StatusInternalServerError},
	}

	r := newResponder(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			r.handleServiceError(context.Background(), rec, tc.err)
			if rec.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, rec.Code)
			}
			var body errorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if body.ErrorCode != tc.code {
				t.Fatalf("expected error code %q, got %q", tc.code, body.ErrorCode)
			}
			if tc.status == http.StatusUnprocessableEntity && body.Errors["name"] != "必須項目です。" {
				t.Fatalf("expected localized field error, got %v", body.Errors)
			}
			if tc.status == http.StatusInternalServerError && strings.Contains(body.Message, "disk") {
				t.Fatalf("internal errors must not leak details: %q", body.Message)
			}
		})
	}
}
