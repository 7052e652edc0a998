package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/example/worship-scheduler/internal/application"
	"github.com/example/worship-scheduler/internal/persistence"
)

const (
	// MemberIDHeader names the acting team member.
	MemberIDHeader = "X-Member-ID"
	// ClientIDHeader identifies one editing client (browser tab) of a member.
	ClientIDHeader = "X-Client-ID"
	// FocusTokenHeader carries the token returned by the focus endpoint.
	FocusTokenHeader = "X-Focus-Token"
)

// LeaderOracle answers whether a member holds the leader capability on a team.
type LeaderOracle interface {
	IsLeader(ctx context.Context, teamID, memberID string) bool
}

// StaticLeaders grants the leader capability to a fixed set of members on every team.
type StaticLeaders map[string]struct{}

// NewStaticLeaders builds a StaticLeaders from member ids.
func NewStaticLeaders(memberIDs ...string) StaticLeaders {
	leaders := make(StaticLeaders, len(memberIDs))
	for _, id := range memberIDs {
		if id = strings.TrimSpace(id); id != "" {
			leaders[id] = struct{}{}
		}
	}
	return leaders
}

// IsLeader implements LeaderOracle.
func (s StaticLeaders) IsLeader(_ context.Context, _ string, memberID string) bool {
	_, ok := s[memberID]
	return ok
}

// teamScope resolves the {team} path value and the acting member from
// X-Member-ID, then grants the leader capability for that team.
func teamScope(oracle LeaderOracle, responder responder, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		teamID := strings.TrimSpace(r.PathValue("team"))
		if !persistence.ValidID(teamID) {
			responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidTeamID)
			return
		}
		memberID := strings.TrimSpace(r.Header.Get(MemberIDHeader))
		if memberID == "" {
			responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingMemberID)
			return
		}
		if !persistence.ValidID(memberID) {
			responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidMemberID)
			return
		}
		principal := application.Principal{MemberID: memberID}
		principal.IsLeader = oracle != nil && oracle.IsLeader(r.Context(), teamID, principal.MemberID)

		ctx := ContextWithTeamID(r.Context(), teamID)
		ctx = ContextWithPrincipal(ctx, principal)
		next(w, r.WithContext(ctx))
	}
}

func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}
	var counter atomic.Uint64

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := counter.Add(1)
			logger := base.With(
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
			)
			if member := strings.TrimSpace(r.Header.Get(MemberIDHeader)); member != "" {
				logger = logger.With("member_id", member)
			}

			ctx := ContextWithLogger(r.Context(), logger)
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			logger.InfoContext(ctx, "request started")
			next.ServeHTTP(recorder, r.WithContext(ctx))
			logger.InfoContext(ctx, "request completed", "status", recorder.status, "duration", time.Since(start))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}
