package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/example/worship-scheduler/internal/application"
)

type conflictService interface {
	List(ctx context.Context, teamID string, unresolvedOnly bool) ([]application.ScheduleConflict, error)
	Resolve(ctx context.Context, params application.ResolveConflictParams) (application.ScheduleConflict, error)
}

type ConflictHandler struct {
	service   conflictService
	responder responder
}

func NewConflictHandler(service conflictService, logger *slog.Logger) *ConflictHandler {
	return &ConflictHandler{service: service, responder: newResponder(logger)}
}

// List returns the team's conflicts newest first. ?unresolved=true hides
// resolved ones.
func (h *ConflictHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	unresolvedOnly := false
	if value := strings.TrimSpace(r.URL.Query().Get("unresolved")); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, nil)
			return
		}
		unresolvedOnly = parsed
	}
	teamID, _ := TeamIDFromContext(r.Context())

	conflicts, err := h.service.List(r.Context(), teamID, unresolvedOnly)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]conflictDTO, 0, len(conflicts))
	for _, c := range conflicts {
		out = append(out, toConflictDTO(c))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, conflictListResponse{Conflicts: out})
}

func (h *ConflictHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	teamID, _ := TeamIDFromContext(r.Context())
	principal, _ := PrincipalFromContext(r.Context())

	conflict, err := h.service.Resolve(r.Context(), application.ResolveConflictParams{
		Principal:  principal,
		TeamID:     teamID,
		ConflictID: strings.TrimSpace(r.PathValue("id")),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toConflictDTO(conflict))
}

type conflictDTO struct {
	ID             string     `json:"id"`
	MemberID       string     `json:"member_id"`
	MemberName     string     `json:"member_name,omitempty"`
	ServiceDate    string     `json:"service_date"`
	ServiceName    string     `json:"service_name"`
	InstrumentID   string     `json:"instrument_id,omitempty"`
	InstrumentName string     `json:"instrument_name,omitempty"`
	ConflictType   string     `json:"conflict_type"`
	CreatedAt      time.Time  `json:"created_at"`
	IsResolved     bool       `json:"is_resolved"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
}

type conflictListResponse struct {
	Conflicts []conflictDTO `json:"conflicts"`
}

func toConflictDTO(c application.ScheduleConflict) conflictDTO {
	return conflictDTO{
		ID:             c.ID,
		MemberID:       c.MemberID,
		MemberName:     c.MemberName,
		ServiceDate:    c.ServiceDate.String(),
		ServiceName:    c.ServiceName,
		InstrumentID:   c.InstrumentID,
		InstrumentName: c.InstrumentName,
		ConflictType:   string(c.ConflictType),
		CreatedAt:      c.CreatedAt,
		IsResolved:     c.IsResolved,
		ResolvedAt:     c.ResolvedAt,
	}
}
